// Package folders implements the folder catalog: read access to folder
// metadata and permissions, including the static system and virtual folders,
// through a process-wide read-through cache, plus the permission write path.
package folders

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dmitrijs2005/groupware/internal/common"
	"github.com/dmitrijs2005/groupware/internal/dbx"
	"github.com/dmitrijs2005/groupware/internal/logging"
	"github.com/dmitrijs2005/groupware/internal/server/cursor"
	"github.com/dmitrijs2005/groupware/internal/server/models"
	"github.com/dmitrijs2005/groupware/internal/server/occ"
	"github.com/dmitrijs2005/groupware/internal/server/permissions"
	"github.com/dmitrijs2005/groupware/internal/server/repositories/repomanager"
	"golang.org/x/sync/singleflight"
)

// maxDepth bounds PathToRoot on corrupt trees.
const maxDepth = 64

// defaultLoadTimeout bounds a shared store load, which runs detached from
// the cancellation of the caller that started it.
const defaultLoadTimeout = 10 * time.Second

type Catalog struct {
	db    *sql.DB
	repos repomanager.RepositoryManager
	cache *Cache
	log   logging.Logger
	loads singleflight.Group
	now   func() time.Time

	loadTimeout time.Duration
}

func NewCatalog(db *sql.DB, repos repomanager.RepositoryManager, cache *Cache, log logging.Logger) *Catalog {
	return &Catalog{
		db:    db,
		repos: repos,
		cache: cache,
		log:   log.With("module", "folders"),
		now:   time.Now,

		loadTimeout: defaultLoadTimeout,
	}
}

// Get returns a folder. A missing folder is a not-found error, distinct from
// transient store failures.
func (c *Catalog) Get(ctx context.Context, contextID, id int) (*models.Folder, error) {
	const op = "folders.Get"
	if id <= 0 {
		return nil, common.NotFound(op, "invalid folder id").With(contextID, 0, id, 0)
	}
	if f, ok := c.cache.Get(contextID, id); ok {
		return f, nil
	}
	if f, ok := buildSystemFolder(contextID, id); ok {
		c.cache.Put(f, c.cache.Ticket(contextID, id))
		return f, nil
	}

	// other callers may be waiting on this load, so it must not fail
	// because this caller went away
	loadCtx := context.WithoutCancel(ctx)
	ch := c.loads.DoChan(fmt.Sprintf("%d/%d", contextID, id), func() (any, error) {
		ctx, cancel := context.WithTimeout(loadCtx, c.loadTimeout)
		defer cancel()
		ticket := c.cache.Ticket(contextID, id)
		f, err := c.repos.Folders(c.db).Get(ctx, contextID, id)
		if err != nil {
			return nil, err
		}
		c.cache.Put(f, ticket)
		return f, nil
	})

	select {
	case <-ctx.Done():
		return nil, common.Annotate(dbx.Translate(ctx.Err()), op, contextID, 0, id, 0)
	case r := <-ch:
		if r.Err != nil {
			return nil, common.Annotate(r.Err, op, contextID, 0, id, 0)
		}
		return r.Val.(*models.Folder).Clone(), nil
	}
}

// Type resolves the type of a folder; static folders never reach the store.
func (c *Catalog) Type(ctx context.Context, contextID, id int) (models.FolderType, error) {
	if s, ok := systemFolders[id]; ok {
		return s.typ, nil
	}
	f, err := c.Get(ctx, contextID, id)
	if err != nil {
		return 0, err
	}
	return f.Type, nil
}

// PathToRoot returns the folder and its ancestors, leaf first.
func (c *Catalog) PathToRoot(ctx context.Context, contextID, id int) ([]*models.Folder, error) {
	var path []*models.Folder
	seen := make(map[int]bool)
	for cur := id; ; {
		if seen[cur] || len(path) >= maxDepth {
			return nil, &common.Error{Kind: common.KindInternal, Op: "folders.PathToRoot", ContextID: contextID, FolderID: id, Reason: "folder tree has a cycle"}
		}
		seen[cur] = true

		f, err := c.Get(ctx, contextID, cur)
		if err != nil {
			return nil, err
		}
		path = append(path, f)
		if f.IsRoot() {
			return path, nil
		}
		cur = f.ParentID
	}
}

// Subfolders lists the children of parentID changed at or after since. The
// child ids are read up front; each folder is resolved through the cache as
// the sequence advances.
func (c *Catalog) Subfolders(ctx context.Context, contextID, parentID int, since time.Time) (*cursor.Iterator[*models.Folder], error) {
	var ids []int
	if since.IsZero() {
		ids = append(ids, systemChildren(parentID)...)
	}
	if parentID != models.SystemUsersFolderID && !isVirtual(parentID) {
		stored, err := c.repos.Folders(c.db).Children(ctx, contextID, parentID, since)
		if err != nil {
			return nil, common.Annotate(err, "folders.Subfolders", contextID, 0, parentID, 0)
		}
		ids = append(ids, stored...)
	}

	pos := 0
	return cursor.New(func() (*models.Folder, bool, error) {
		for pos < len(ids) {
			id := ids[pos]
			pos++
			f, err := c.Get(ctx, contextID, id)
			if common.KindOf(err) == common.KindNotFound {
				// deleted since the id list was read
				continue
			}
			if err != nil {
				return nil, false, err
			}
			return f, true, nil
		}
		return nil, false, nil
	}, nil), nil
}

func isVirtual(id int) bool {
	s, ok := systemFolders[id]
	return ok && s.virtual
}

// DefaultFolder returns the id of the user's default folder of module m.
func (c *Catalog) DefaultFolder(ctx context.Context, contextID, userID int, m models.Module) (int, error) {
	id, err := c.repos.Folders(c.db).DefaultFolder(ctx, contextID, userID, m)
	if err != nil {
		return 0, common.Annotate(err, "folders.DefaultFolder", contextID, userID, 0, 0)
	}
	return id, nil
}

// ReadableFolders lists the non-virtual folders of module m the caller sees
// with at least read-own permission.
func (c *Catalog) ReadableFolders(ctx context.Context, id models.Identity, m models.Module) ([]*models.Folder, error) {
	ids := systemFoldersOf(m)
	stored, err := c.repos.Folders(c.db).Candidates(ctx, id.ContextID, m, id.UserID, id.GroupIDs)
	if err != nil {
		return nil, common.Annotate(err, "folders.ReadableFolders", id.ContextID, id.UserID, 0, 0)
	}
	ids = append(ids, stored...)

	var out []*models.Folder
	for _, fid := range ids {
		f, err := c.Get(ctx, id.ContextID, fid)
		if common.KindOf(err) == common.KindNotFound {
			continue
		}
		if err != nil {
			return nil, err
		}
		e := permissions.Compute(id, f)
		if e.FolderVisible && e.CanReadOwn {
			out = append(out, f)
		}
	}
	return out, nil
}

// UpdatePermissions replaces the permission entries of a stored folder. The
// caller must administer the folder. The cache entry is invalidated inside
// the transaction and again after commit, before the connection returns to
// the pool.
func (c *Catalog) UpdatePermissions(ctx context.Context, id models.Identity, folderID int, entries []models.PermissionEntry) error {
	const op = "folders.UpdatePermissions"
	if IsSystemFolder(folderID) {
		return common.Conflict(op, "permissions of system folders are fixed").With(id.ContextID, id.UserID, folderID, 0)
	}
	if err := validateEntries(entries); err != nil {
		return err.With(id.ContextID, id.UserID, folderID, 0)
	}

	f, err := c.Get(ctx, id.ContextID, folderID)
	if err != nil {
		return err
	}
	if !permissions.Compute(id, f).IsAdmin {
		return common.Conflict(op, "caller does not administer the folder").With(id.ContextID, id.UserID, folderID, 0)
	}

	conn, err := c.db.Conn(ctx)
	if err != nil {
		return common.Annotate(dbx.Translate(err), op, id.ContextID, id.UserID, folderID, 0)
	}
	defer conn.Close()

	err = dbx.WithTx(ctx, conn, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := c.repos.Folders(tx)
		last, err := repo.Lock(ctx, id.ContextID, folderID)
		if err != nil {
			return err
		}
		if err := repo.ReplacePermissions(ctx, id.ContextID, folderID, entries); err != nil {
			return err
		}
		if err := repo.Touch(ctx, id.ContextID, folderID, occ.Next(last, c.now())); err != nil {
			return err
		}
		c.cache.Invalidate(id.ContextID, folderID)
		return nil
	})
	c.cache.Invalidate(id.ContextID, folderID)
	if err != nil {
		return common.Annotate(err, op, id.ContextID, id.UserID, folderID, 0)
	}

	c.log.Info(ctx, "folder permissions replaced", "context", id.ContextID, "folder", folderID, "entries", len(entries))
	return nil
}

func validateEntries(entries []models.PermissionEntry) *common.Error {
	const op = "folders.UpdatePermissions"
	admin := false
	for _, p := range entries {
		if p.Kind != models.PrincipalUser && p.Kind != models.PrincipalGroup {
			return common.Malformed(op, "unknown principal kind")
		}
		if p.Folder < 0 || p.Folder > models.FolderMax ||
			p.Read < 0 || p.Read > models.ObjectMax ||
			p.Write < 0 || p.Write > models.ObjectMax ||
			p.Delete < 0 || p.Delete > models.ObjectMax {
			return common.Malformed(op, "permission level out of range")
		}
		admin = admin || p.Admin
	}
	if !admin {
		return common.Malformed(op, "folder needs at least one administrator")
	}
	return nil
}
