package objects

import (
	"context"
	"time"

	"github.com/dmitrijs2005/groupware/internal/server/cursor"
	"github.com/dmitrijs2005/groupware/internal/server/models"
)

type Repository interface {
	Insert(ctx context.Context, o *models.Object) error
	Update(ctx context.Context, o *models.Object) error
	Delete(ctx context.Context, contextID, id int) error
	// Lock reads the full row and holds a row lock until the surrounding
	// transaction ends.
	Lock(ctx context.Context, contextID, id int) (*models.Object, error)
	Query(ctx context.Context, q Query) (*cursor.Iterator[*models.Object], error)
}

// Query selects objects of one context. Zero-valued fields do not filter.
type Query struct {
	ContextID int

	// FolderIDs, OwnFolderIDs and InternalUsers are OR'd: InternalUsers
	// selects every user-derived object regardless of its folder, and
	// OwnFolderIDs only contribute objects created by Owner.
	FolderIDs     []int
	OwnFolderIDs  []int
	Owner         int
	InternalUsers bool

	IDs             []int
	InternalUserIDs []int
	CreatedBy       int
	ModifiedSince   time.Time

	// Patterns are LIKE patterns per field, compared case-insensitively and
	// OR'd together.
	Patterns map[models.Field]string

	Fields      []models.Field
	Order       []Order
	SpecialSort bool
	Offset      int
	Limit       int
}

type Order struct {
	Field models.Field
	Dir   models.OrderDirection
}

// RequiredFields are loaded whatever the caller projects, since permission
// and sync decisions depend on them.
var RequiredFields = []models.Field{models.FieldID, models.FieldFolderID, models.FieldCreatedBy, models.FieldLastModified}
