package sequences

import "context"

// Sequence names.
const (
	Objects = "objects"
	Folders = "folders"
)

type Repository interface {
	// Next returns the next id of sequence name in a context. The first id
	// handed out is start.
	Next(ctx context.Context, contextID int, name string, start int) (int, error)
}
