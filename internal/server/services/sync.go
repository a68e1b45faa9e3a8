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
	"github.com/dmitrijs2005/groupware/internal/server/repositories/objects"
	"github.com/dmitrijs2005/groupware/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/groupware/internal/server/repositories/tombstones"
)

// SyncService serves the incremental change feed of a folder. Timestamps are
// compared with >= so a client may see an object again, never miss one.
type SyncService struct {
	base
}

func NewSyncService(db *sql.DB, m repomanager.RepositoryManager, catalog *folders.Catalog, log logging.Logger) *SyncService {
	return &SyncService{base: base{
		db:          db,
		repomanager: m,
		catalog:     catalog,
		log:         log.With("module", "sync"),
		now:         time.Now,
	}}
}

// ChangeSet is the result of Changes.
type ChangeSet struct {
	Modified  []*models.Object
	Deleted   []*models.Object
	Watermark time.Time
}

// ModifiedSince lists the live objects of folderID last modified at or after
// since, oldest first.
func (s *SyncService) ModifiedSince(ctx context.Context, id models.Identity, folderID int, since time.Time, cols []models.Field) (*cursor.Iterator[*models.Object], error) {
	const op = "sync.ModifiedSince"
	if err := validateFields(op, cols); err != nil {
		return nil, err
	}
	a, err := s.readable(ctx, op, id, folderID)
	if err != nil {
		return nil, err
	}
	return s.modified(ctx, op, id, a, since, cols)
}

func (s *SyncService) modified(ctx context.Context, op string, id models.Identity, a *access, since time.Time, cols []models.Field) (*cursor.Iterator[*models.Object], error) {
	q := objects.Query{
		ContextID:     id.ContextID,
		ModifiedSince: since,
		Fields:        cols,
		Order:         []objects.Order{{Field: models.FieldLastModified, Dir: models.OrderAsc}},
	}
	a.scope(&q, id.UserID)

	it, err := s.openQuery(ctx, q)
	if err != nil {
		return nil, common.Annotate(err, op, id.ContextID, id.UserID, a.folder.ID, 0)
	}
	return it, nil
}

// DeletedSince lists the objects removed from folderID at or after since,
// ordered by deletion time, object id and tombstone sequence. Each deletion
// is reported as an object carrying its id, folder, creator, the deleting
// user and the deletion time as LastModified. cols is validated only.
func (s *SyncService) DeletedSince(ctx context.Context, id models.Identity, folderID int, since time.Time, cols []models.Field) (*cursor.Iterator[*models.Object], error) {
	const op = "sync.DeletedSince"
	if err := validateFields(op, cols); err != nil {
		return nil, err
	}
	a, err := s.readable(ctx, op, id, folderID)
	if err != nil {
		return nil, err
	}
	return s.deleted(ctx, op, id, a, since)
}

func (s *SyncService) deleted(ctx context.Context, op string, id models.Identity, a *access, since time.Time) (*cursor.Iterator[*models.Object], error) {
	q := tombstones.Query{
		ContextID: id.ContextID,
		FolderID:  a.folder.ID,
		Since:     since,
		// the system users folder reports every deleted user object
		InternalUsers: a.folder.ID == models.SystemUsersFolderID,
	}
	if a.eff.ReadOwnOnly() {
		q.CreatedBy = id.UserID
	}

	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, common.Annotate(dbx.Translate(err), op, id.ContextID, id.UserID, a.folder.ID, 0)
	}
	it, err := s.repomanager.Tombstones(conn).Since(ctx, q)
	if err != nil {
		_ = conn.Close()
		return nil, common.Annotate(err, op, id.ContextID, id.UserID, a.folder.ID, 0)
	}
	return cursor.Map(it.OnClose(conn.Close), tombstoneObject), nil
}

func tombstoneObject(t *models.Tombstone) *models.Object {
	return &models.Object{
		ContextID:    t.ContextID,
		ID:           t.ObjectID,
		FolderID:     t.FolderID,
		CreatedBy:    t.CreatedBy,
		ModifiedBy:   t.ModifiedBy,
		LastModified: t.DeletedAt,
	}
}

// Changes drains both feeds and returns them with the watermark for the next
// call: the newest timestamp observed, or since when nothing changed.
func (s *SyncService) Changes(ctx context.Context, id models.Identity, folderID int, since time.Time, cols []models.Field) (*ChangeSet, error) {
	const op = "sync.Changes"
	if err := validateFields(op, cols); err != nil {
		return nil, err
	}
	a, err := s.readable(ctx, op, id, folderID)
	if err != nil {
		return nil, err
	}

	cs := &ChangeSet{Watermark: since}

	mod, err := s.modified(ctx, op, id, a, since, cols)
	if err != nil {
		return nil, err
	}
	if cs.Modified, err = cursor.Collect(mod); err != nil {
		return nil, common.Annotate(err, op, id.ContextID, id.UserID, folderID, 0)
	}

	del, err := s.deleted(ctx, op, id, a, since)
	if err != nil {
		return nil, err
	}
	if cs.Deleted, err = cursor.Collect(del); err != nil {
		return nil, common.Annotate(err, op, id.ContextID, id.UserID, folderID, 0)
	}

	for _, list := range [][]*models.Object{cs.Modified, cs.Deleted} {
		for _, o := range list {
			if o.LastModified.After(cs.Watermark) {
				cs.Watermark = o.LastModified
			}
		}
	}

	s.log.Debug(ctx, "changes served", "context", id.ContextID, "folder", folderID,
		"modified", len(cs.Modified), "deleted", len(cs.Deleted))
	return cs, nil
}
