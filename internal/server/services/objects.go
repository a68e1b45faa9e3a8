package services

import (
	"context"
	"database/sql"
	"time"

	"github.com/dmitrijs2005/groupware/internal/common"
	"github.com/dmitrijs2005/groupware/internal/dbx"
	"github.com/dmitrijs2005/groupware/internal/logging"
	"github.com/dmitrijs2005/groupware/internal/server/config"
	"github.com/dmitrijs2005/groupware/internal/server/cursor"
	"github.com/dmitrijs2005/groupware/internal/server/events"
	"github.com/dmitrijs2005/groupware/internal/server/folders"
	"github.com/dmitrijs2005/groupware/internal/server/models"
	"github.com/dmitrijs2005/groupware/internal/server/occ"
	"github.com/dmitrijs2005/groupware/internal/server/repositories/objects"
	"github.com/dmitrijs2005/groupware/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/groupware/internal/server/repositories/sequences"
)

// ObjectService stores objects: creation, update (including moves between
// folders), deletion with tombstones, and the read paths.
type ObjectService struct {
	base
	notifier            events.Notifier
	blockSize           int
	strictNotifications bool
}

func NewObjectService(db *sql.DB, m repomanager.RepositoryManager, catalog *folders.Catalog,
	notifier events.Notifier, log logging.Logger, cfg *config.Config) *ObjectService {
	return &ObjectService{
		base: base{
			db:          db,
			repomanager: m,
			catalog:     catalog,
			log:         log.With("module", "objects"),
			now:         time.Now,
		},
		notifier:            notifier,
		blockSize:           cfg.ByIDsBlockSize,
		strictNotifications: cfg.StrictNotifications,
	}
}

// Insert creates obj in obj.FolderID and returns the stored object.
func (s *ObjectService) Insert(ctx context.Context, id models.Identity, obj *models.Object) (*models.Object, error) {
	const op = "objects.Insert"
	if obj == nil || obj.FolderID == 0 {
		return nil, common.Malformed(op, "owning folder required").With(id.ContextID, id.UserID, 0, 0)
	}
	if err := validateValues(op, obj.Values); err != nil {
		return nil, err
	}
	a, err := s.authorize(ctx, op, id, obj.FolderID)
	if err != nil {
		return nil, err
	}
	if a.folder.Virtual {
		return nil, common.Conflict(op, "virtual folders hold no objects").With(id.ContextID, id.UserID, obj.FolderID, 0)
	}
	if !a.eff.CanCreate {
		return nil, common.Conflict(op, "no permission to create objects").With(id.ContextID, id.UserID, obj.FolderID, 0)
	}

	var created *models.Object
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		next, err := s.repomanager.Sequences(tx).Next(ctx, id.ContextID, sequences.Objects, 1)
		if err != nil {
			return err
		}
		now := occ.Next(time.Time{}, s.now())
		o := &models.Object{
			ContextID:      id.ContextID,
			ID:             next,
			FolderID:       obj.FolderID,
			CreatedBy:      id.UserID,
			ModifiedBy:     id.UserID,
			CreatedAt:      now,
			LastModified:   now,
			InternalUserID: obj.InternalUserID,
			Attributes:     models.Attributes(nil).Merge(obj.Attributes),
		}
		for f, v := range obj.Values {
			if v != "" {
				o.Set(f, v)
			}
		}
		if err := s.repomanager.Objects(tx).Insert(ctx, o); err != nil {
			return err
		}
		created = o
		return nil
	})
	if err != nil {
		return nil, common.Annotate(err, op, id.ContextID, id.UserID, obj.FolderID, 0)
	}

	s.log.Info(ctx, "object created", "context", id.ContextID, "user", id.UserID, "folder", created.FolderID, "object", created.ID)
	return created, s.notified(ctx, op, id, created, s.notifier.Create(ctx, id, created.Clone()))
}

// Update applies obj to the stored object obj.ID found in folderID. Values
// overwrite, an empty value clears the field; attributes merge. A different
// obj.FolderID moves the object and leaves a tombstone in folderID. A zero
// clientLastModified skips the concurrency check.
func (s *ObjectService) Update(ctx context.Context, id models.Identity, obj *models.Object, folderID int, clientLastModified time.Time) (*models.Object, error) {
	const op = "objects.Update"
	if obj == nil || obj.ID <= 0 {
		return nil, common.NotFound(op, "invalid object id").With(id.ContextID, id.UserID, folderID, 0)
	}
	if err := validateValues(op, obj.Values); err != nil {
		return nil, err
	}
	src, err := s.authorize(ctx, op, id, folderID)
	if err != nil {
		return nil, common.Annotate(err, op, id.ContextID, id.UserID, folderID, obj.ID)
	}

	target := folderID
	move := obj.FolderID != 0 && obj.FolderID != folderID
	if move {
		dst, err := s.authorize(ctx, op, id, obj.FolderID)
		if err != nil {
			return nil, common.Annotate(err, op, id.ContextID, id.UserID, obj.FolderID, obj.ID)
		}
		if dst.folder.Virtual || !dst.eff.CanCreate {
			return nil, common.Conflict(op, "no permission to create objects in the target folder").With(id.ContextID, id.UserID, obj.FolderID, obj.ID)
		}
		target = obj.FolderID
	}

	var before, after *models.Object
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Objects(tx)
		stored, err := repo.Lock(ctx, id.ContextID, obj.ID)
		if err != nil {
			return err
		}
		if !src.contains(stored) {
			return common.NotFound(op, "object is not in this folder")
		}
		if err := occ.Check(stored.LastModified, clientLastModified); err != nil {
			return err
		}
		if !src.eff.CanWrite(id.UserID, stored.CreatedBy) {
			return common.Conflict(op, "no permission to modify the object")
		}
		if move && !src.eff.CanDelete(id.UserID, stored.CreatedBy) {
			return common.Conflict(op, "no permission to move the object out of its folder")
		}

		o := stored.Clone()
		for f, v := range obj.Values {
			if v == "" {
				delete(o.Values, f)
			} else {
				o.Set(f, v)
			}
		}
		o.Attributes = o.Attributes.Merge(obj.Attributes)
		o.FolderID = target
		o.ModifiedBy = id.UserID
		o.LastModified = occ.Next(stored.LastModified, s.now())
		if err := repo.Update(ctx, o); err != nil {
			return err
		}

		if move {
			// the object stays in the system users aggregate
			t := &models.Tombstone{
				ContextID:  id.ContextID,
				ObjectID:   o.ID,
				FolderID:   folderID,
				CreatedBy:  stored.CreatedBy,
				ModifiedBy: id.UserID,
				DeletedAt:  o.LastModified,
			}
			if err := s.repomanager.Tombstones(tx).Insert(ctx, t, false); err != nil {
				return err
			}
		}
		before, after = stored, o
		return nil
	})
	if err != nil {
		return nil, common.Annotate(err, op, id.ContextID, id.UserID, folderID, obj.ID)
	}

	s.log.Info(ctx, "object modified", "context", id.ContextID, "user", id.UserID, "folder", after.FolderID, "object", after.ID, "moved", move)
	return after, s.notified(ctx, op, id, after, s.notifier.Modify(ctx, id, before, after.Clone()))
}

// Delete removes objectID from folderID and records a tombstone in the same
// transaction.
func (s *ObjectService) Delete(ctx context.Context, id models.Identity, objectID, folderID int, clientLastModified time.Time) error {
	const op = "objects.Delete"
	if objectID <= 0 {
		return common.NotFound(op, "invalid object id").With(id.ContextID, id.UserID, folderID, objectID)
	}
	a, err := s.authorize(ctx, op, id, folderID)
	if err != nil {
		return common.Annotate(err, op, id.ContextID, id.UserID, folderID, objectID)
	}

	var deleted *models.Object
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Objects(tx)
		stored, err := repo.Lock(ctx, id.ContextID, objectID)
		if err != nil {
			return err
		}
		if !a.contains(stored) {
			return common.NotFound(op, "object is not in this folder")
		}
		if err := occ.Check(stored.LastModified, clientLastModified); err != nil {
			return err
		}
		if !a.eff.CanDelete(id.UserID, stored.CreatedBy) {
			return common.Conflict(op, "no permission to delete the object")
		}
		if err := repo.Delete(ctx, id.ContextID, objectID); err != nil {
			return err
		}
		t := &models.Tombstone{
			ContextID:  id.ContextID,
			ObjectID:   objectID,
			FolderID:   stored.FolderID,
			CreatedBy:  stored.CreatedBy,
			ModifiedBy: id.UserID,
			DeletedAt:  occ.Next(stored.LastModified, s.now()),
		}
		if err := s.repomanager.Tombstones(tx).Insert(ctx, t, stored.InternalUserID != 0); err != nil {
			return err
		}
		deleted = stored
		return nil
	})
	if err != nil {
		return common.Annotate(err, op, id.ContextID, id.UserID, folderID, objectID)
	}

	s.log.Info(ctx, "object deleted", "context", id.ContextID, "user", id.UserID, "folder", folderID, "object", objectID)
	return s.notified(ctx, op, id, deleted, s.notifier.Delete(ctx, id, deleted))
}

// ProjectedRead lists the objects of folderID in the window [from, to). A
// zero orderField selects the special sort. to <= 0 means no upper bound.
func (s *ObjectService) ProjectedRead(ctx context.Context, id models.Identity, folderID int, cols []models.Field,
	from, to int, orderField models.Field, dir models.OrderDirection) (*cursor.Iterator[*models.Object], error) {
	const op = "objects.ProjectedRead"
	if err := validateFields(op, cols); err != nil {
		return nil, err
	}
	if from < 0 || (to > 0 && to < from) {
		return nil, common.Malformed(op, "invalid window").With(id.ContextID, id.UserID, folderID, 0)
	}
	if orderField != 0 && (!orderField.Valid() || orderField == models.FieldAttributes) {
		return nil, common.Malformed(op, "field cannot be ordered by").With(id.ContextID, id.UserID, folderID, 0)
	}
	a, err := s.readable(ctx, op, id, folderID)
	if err != nil {
		return nil, err
	}

	q := objects.Query{ContextID: id.ContextID, Fields: cols, Offset: from}
	a.scope(&q, id.UserID)
	if to > 0 {
		q.Limit = to - from
		if q.Limit == 0 {
			return cursor.Empty[*models.Object](), nil
		}
	}
	if orderField == 0 {
		q.SpecialSort = true
	} else {
		q.Order = []objects.Order{{Field: orderField, Dir: dir}}
	}

	it, err := s.openQuery(ctx, q)
	if err != nil {
		return nil, common.Annotate(err, op, id.ContextID, id.UserID, folderID, 0)
	}
	return it, nil
}

// ByIDs looks up a batch of objects. Missing ids are omitted, unless exactly
// one id was requested: then a miss is NotFound. Ids are queried in blocks of
// the configured size.
func (s *ObjectService) ByIDs(ctx context.Context, id models.Identity, refs []models.ObjectRef, cols []models.Field) (*cursor.Iterator[*models.Object], error) {
	const op = "objects.ByIDs"
	if len(refs) == 0 {
		return nil, common.Malformed(op, "empty id batch").With(id.ContextID, id.UserID, 0, 0)
	}
	if err := validateFields(op, cols); err != nil {
		return nil, err
	}
	if len(refs) == 1 {
		o, err := s.Get(ctx, id, refs[0].ObjectID, refs[0].FolderID, cols)
		if err != nil {
			return nil, err
		}
		return cursor.FromSlice([]*models.Object{o}), nil
	}

	granted := make(map[int]*access)
	var valid []models.ObjectRef
	for _, r := range refs {
		if r.ObjectID <= 0 {
			continue
		}
		if _, ok := granted[r.FolderID]; !ok {
			a, err := s.readable(ctx, op, id, r.FolderID)
			if err != nil {
				return nil, err
			}
			granted[r.FolderID] = a
		}
		valid = append(valid, r)
	}

	return cursor.Chunked(valid, s.blockSize, func(block []models.ObjectRef) (*cursor.Iterator[*models.Object], error) {
		want := make(map[int][]int, len(block))
		q := objects.Query{ContextID: id.ContextID, Fields: cols}
		for _, r := range block {
			if _, seen := want[r.ObjectID]; !seen {
				q.IDs = append(q.IDs, r.ObjectID)
			}
			want[r.ObjectID] = append(want[r.ObjectID], r.FolderID)
		}
		it, err := s.openQuery(ctx, q)
		if err != nil {
			return nil, common.Annotate(err, op, id.ContextID, id.UserID, 0, 0)
		}
		return cursor.Filter(it, func(o *models.Object) bool {
			for _, fid := range want[o.ID] {
				a := granted[fid]
				if a.contains(o) && a.eff.CanRead(id.UserID, o.CreatedBy) {
					return true
				}
			}
			return false
		}), nil
	}), nil
}

// Get reads one object of folderID.
func (s *ObjectService) Get(ctx context.Context, id models.Identity, objectID, folderID int, cols []models.Field) (*models.Object, error) {
	const op = "objects.Get"
	if objectID <= 0 {
		return nil, common.NotFound(op, "invalid object id").With(id.ContextID, id.UserID, folderID, objectID)
	}
	if err := validateFields(op, cols); err != nil {
		return nil, err
	}
	a, err := s.readable(ctx, op, id, folderID)
	if err != nil {
		return nil, common.Annotate(err, op, id.ContextID, id.UserID, folderID, objectID)
	}

	it, err := s.openQuery(ctx, objects.Query{ContextID: id.ContextID, IDs: []int{objectID}, Fields: cols})
	if err != nil {
		return nil, common.Annotate(err, op, id.ContextID, id.UserID, folderID, objectID)
	}
	rows, err := cursor.Collect(it)
	if err != nil {
		return nil, common.Annotate(err, op, id.ContextID, id.UserID, folderID, objectID)
	}
	if len(rows) == 0 || !a.contains(rows[0]) {
		return nil, common.NotFound(op, "no such object").With(id.ContextID, id.UserID, folderID, objectID)
	}
	if !a.eff.CanRead(id.UserID, rows[0].CreatedBy) {
		return nil, common.Conflict(op, "no permission to read the object").With(id.ContextID, id.UserID, folderID, objectID)
	}
	return rows[0], nil
}

// notified turns a failed notification into an error of kind Notification,
// unless notifications are lenient, in which case it is only logged. The
// mutation is committed either way.
func (s *ObjectService) notified(ctx context.Context, op string, id models.Identity, o *models.Object, err error) error {
	if err == nil {
		return nil
	}
	if !s.strictNotifications {
		s.log.Warn(ctx, "event notification failed", "context", id.ContextID, "folder", o.FolderID, "object", o.ID, "error", err)
		return nil
	}
	return &common.Error{
		Kind:      common.KindNotification,
		Op:        op,
		ContextID: id.ContextID,
		UserID:    id.UserID,
		FolderID:  o.FolderID,
		ObjectID:  o.ID,
		Reason:    "change committed",
		Err:       err,
	}
}

func validateValues(op string, values map[models.Field]string) error {
	for f := range values {
		if !f.IsText() {
			return common.Malformed(op, "field cannot be written")
		}
	}
	return nil
}
