package folders

import (
	"context"
	"time"

	"github.com/dmitrijs2005/groupware/internal/server/models"
)

type Repository interface {
	// Get loads a folder row with its permission entries.
	Get(ctx context.Context, contextID, id int) (*models.Folder, error)
	// Children lists the ids of the folders below parentID changed at or
	// after since (zero since lists all).
	Children(ctx context.Context, contextID, parentID int, since time.Time) ([]int, error)
	// Candidates lists folders of a module carrying an entry for the user or
	// one of the groups. Group 0 is always included.
	Candidates(ctx context.Context, contextID int, module models.Module, userID int, groupIDs []int) ([]int, error)
	// DefaultFolder returns the default folder of a user for a module.
	DefaultFolder(ctx context.Context, contextID, userID int, module models.Module) (int, error)
	// Lock takes a row lock on a folder and returns its last-modified value.
	Lock(ctx context.Context, contextID, id int) (time.Time, error)
	ReplacePermissions(ctx context.Context, contextID, id int, entries []models.PermissionEntry) error
	Touch(ctx context.Context, contextID, id int, lastModified time.Time) error
}
