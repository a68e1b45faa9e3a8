// Package services contains the server-side business logic: the object store,
// the delta sync engine and the search engine. Every operation resolves and
// authorizes the folder through the folder catalog before touching objects.
package services

import (
	"context"
	"database/sql"
	"time"

	"github.com/dmitrijs2005/groupware/internal/common"
	"github.com/dmitrijs2005/groupware/internal/dbx"
	"github.com/dmitrijs2005/groupware/internal/logging"
	"github.com/dmitrijs2005/groupware/internal/server/cursor"
	"github.com/dmitrijs2005/groupware/internal/server/folders"
	"github.com/dmitrijs2005/groupware/internal/server/models"
	"github.com/dmitrijs2005/groupware/internal/server/permissions"
	"github.com/dmitrijs2005/groupware/internal/server/repositories/objects"
	"github.com/dmitrijs2005/groupware/internal/server/repositories/repomanager"
)

// objectModule is the module of the objects this engine stores.
const objectModule = models.ModuleContact

// base holds what every service needs.
type base struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	catalog     *folders.Catalog
	log         logging.Logger
	now         func() time.Time
}

// access is a folder together with the caller's effective permission on it.
type access struct {
	folder *models.Folder
	eff    permissions.Effective
}

// authorize resolves folderID and checks, in this order, that it holds
// objects of the engine's module, that the caller may use that module and
// that the folder is visible. Failures are Conflicts, except a missing
// folder.
func (b *base) authorize(ctx context.Context, op string, id models.Identity, folderID int) (*access, error) {
	if folderID <= 0 {
		return nil, common.NotFound(op, "invalid folder id").With(id.ContextID, id.UserID, folderID, 0)
	}
	f, err := b.catalog.Get(ctx, id.ContextID, folderID)
	if err != nil {
		return nil, common.Annotate(err, op, id.ContextID, id.UserID, folderID, 0)
	}
	if f.Module != objectModule {
		return nil, common.Conflict(op, "folder does not hold "+objectModule.String()+" objects").With(id.ContextID, id.UserID, folderID, 0)
	}
	e := permissions.Compute(id, f)
	if !permissions.HasModuleAccess(e, objectModule) {
		return nil, common.Conflict(op, "module not permitted").With(id.ContextID, id.UserID, folderID, 0)
	}
	if !e.FolderVisible {
		return nil, common.Conflict(op, "folder not visible").With(id.ContextID, id.UserID, folderID, 0)
	}
	return &access{folder: f, eff: e}, nil
}

// readable additionally requires read permission and rejects virtual folders,
// which never hold objects.
func (b *base) readable(ctx context.Context, op string, id models.Identity, folderID int) (*access, error) {
	a, err := b.authorize(ctx, op, id, folderID)
	if err != nil {
		return nil, err
	}
	if a.folder.Virtual {
		return nil, common.Conflict(op, "virtual folders hold no objects").With(id.ContextID, id.UserID, folderID, 0)
	}
	if !a.eff.CanReadOwn {
		return nil, common.Conflict(op, "no read permission").With(id.ContextID, id.UserID, folderID, 0)
	}
	return a, nil
}

// scope restricts q to the objects of a the caller may read. The system
// users folder aggregates every user-derived object.
func (a *access) scope(q *objects.Query, userID int) {
	folderID := a.folder.ID
	if a.eff.ReadOwnOnly() {
		q.OwnFolderIDs = append(q.OwnFolderIDs, folderID)
		q.Owner = userID
	} else {
		q.FolderIDs = append(q.FolderIDs, folderID)
	}
	if folderID == models.SystemUsersFolderID && a.eff.CanReadAll {
		q.InternalUsers = true
	}
}

// contains reports whether o belongs to the folder of a.
func (a *access) contains(o *models.Object) bool {
	if o.FolderID == a.folder.ID {
		return true
	}
	return a.folder.ID == models.SystemUsersFolderID && o.InternalUserID != 0
}

func validateFields(op string, cols []models.Field) error {
	for _, f := range cols {
		if !f.Valid() {
			return common.Malformed(op, "unknown field")
		}
	}
	return nil
}

// openQuery runs q on a checked-out connection that stays with the returned
// iterator until it is closed.
func (b *base) openQuery(ctx context.Context, q objects.Query) (*cursor.Iterator[*models.Object], error) {
	conn, err := b.db.Conn(ctx)
	if err != nil {
		return nil, dbx.Translate(err)
	}
	it, err := b.repomanager.Objects(conn).Query(ctx, q)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	return it.OnClose(conn.Close), nil
}
