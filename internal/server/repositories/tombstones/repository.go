package tombstones

import (
	"context"
	"time"

	"github.com/dmitrijs2005/groupware/internal/server/cursor"
	"github.com/dmitrijs2005/groupware/internal/server/models"
)

type Repository interface {
	Insert(ctx context.Context, t *models.Tombstone, internalUser bool) error
	Since(ctx context.Context, q Query) (*cursor.Iterator[*models.Tombstone], error)
}

// Query selects the tombstones of one folder, or of all user-derived objects
// when InternalUsers is set.
type Query struct {
	ContextID     int
	FolderID      int
	InternalUsers bool
	Since         time.Time
	CreatedBy     int
}
