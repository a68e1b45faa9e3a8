package aliases

import "context"

// Alias is a secondary mail address of an internal user.
type Alias struct {
	UserID  int
	Address string
}

type Repository interface {
	// Search returns up to limit aliases whose lower-cased address matches
	// the LIKE pattern.
	Search(ctx context.Context, contextID int, pattern string, limit int) ([]Alias, error)
}
