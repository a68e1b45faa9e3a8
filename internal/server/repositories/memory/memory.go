// Package memory implements every repository in process memory. It backs the
// service and transport tests; the DBTX handed to the factories is ignored,
// so writes are not undone by a rollback.
package memory

import (
	"context"
	"database/sql"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/groupware/internal/common"
	"github.com/dmitrijs2005/groupware/internal/dbx"
	"github.com/dmitrijs2005/groupware/internal/server/cursor"
	"github.com/dmitrijs2005/groupware/internal/server/models"
	"github.com/dmitrijs2005/groupware/internal/server/repositories/aliases"
	"github.com/dmitrijs2005/groupware/internal/server/repositories/folders"
	"github.com/dmitrijs2005/groupware/internal/server/repositories/objects"
	"github.com/dmitrijs2005/groupware/internal/server/repositories/sequences"
	"github.com/dmitrijs2005/groupware/internal/server/repositories/tombstones"
)

type key struct{ cid, id int }

type tombstoneRow struct {
	t            models.Tombstone
	internalUser bool
}

type aliasRow struct {
	cid int
	aliases.Alias
}

// Store holds the rows shared by all repositories of one Manager.
type Store struct {
	mu         sync.Mutex
	folders    map[key]*models.Folder
	objects    map[key]*models.Object
	tombstones []tombstoneRow
	seqs       map[string]int
	aliases    []aliasRow
	tombSeq    int64

	// Queries counts object queries, so tests can assert store round trips.
	Queries int
}

func NewStore() *Store {
	return &Store{
		folders: make(map[key]*models.Folder),
		objects: make(map[key]*models.Object),
		seqs:    make(map[string]int),
	}
}

// PutFolder stores a folder row, replacing any previous one.
func (s *Store) PutFolder(f *models.Folder) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.folders[key{f.ContextID, f.ID}] = f.Clone()
}

// PutObject stores an object row as is.
func (s *Store) PutObject(o *models.Object) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key{o.ContextID, o.ID}] = o.Clone()
}

func (s *Store) PutAlias(contextID, userID int, address string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.aliases = append(s.aliases, aliasRow{cid: contextID, Alias: aliases.Alias{UserID: userID, Address: address}})
}

// Manager vends repositories over one Store.
type Manager struct {
	store *Store
}

func NewManager(s *Store) *Manager { return &Manager{store: s} }

func (m *Manager) RunMigrations(context.Context, *sql.DB) error { return nil }

func (m *Manager) Folders(dbx.DBTX) folders.Repository       { return folderRepo{m.store} }
func (m *Manager) Objects(dbx.DBTX) objects.Repository       { return objectRepo{m.store} }
func (m *Manager) Tombstones(dbx.DBTX) tombstones.Repository { return tombstoneRepo{m.store} }
func (m *Manager) Sequences(dbx.DBTX) sequences.Repository   { return sequenceRepo{m.store} }
func (m *Manager) Aliases(dbx.DBTX) aliases.Repository       { return aliasRepo{m.store} }

type folderRepo struct{ s *Store }

func (r folderRepo) Get(_ context.Context, contextID, id int) (*models.Folder, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	f, ok := r.s.folders[key{contextID, id}]
	if !ok {
		return nil, common.NotFound("", "no such folder")
	}
	return f.Clone(), nil
}

func (r folderRepo) Children(_ context.Context, contextID, parentID int, since time.Time) ([]int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []int
	for k, f := range r.s.folders {
		if k.cid == contextID && f.ParentID == parentID && !f.LastModified.Before(since) {
			out = append(out, f.ID)
		}
	}
	sort.Ints(out)
	return out, nil
}

func (r folderRepo) Candidates(_ context.Context, contextID int, module models.Module, userID int, groupIDs []int) ([]int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	id := models.Identity{UserID: userID, GroupIDs: groupIDs}
	var out []int
	for k, f := range r.s.folders {
		if k.cid != contextID || f.Module != module {
			continue
		}
		for _, p := range f.Permissions {
			if (p.Kind == models.PrincipalUser && p.Principal == userID) ||
				(p.Kind == models.PrincipalGroup && id.InGroup(p.Principal)) {
				out = append(out, f.ID)
				break
			}
		}
	}
	sort.Ints(out)
	return out, nil
}

func (r folderRepo) DefaultFolder(_ context.Context, contextID, userID int, module models.Module) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for k, f := range r.s.folders {
		if k.cid == contextID && f.OwnerID == userID && f.Module == module && f.DefaultFolder {
			return f.ID, nil
		}
	}
	return 0, common.NotFound("", "no default folder")
}

func (r folderRepo) Lock(_ context.Context, contextID, id int) (time.Time, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	f, ok := r.s.folders[key{contextID, id}]
	if !ok {
		return time.Time{}, common.NotFound("", "no such folder")
	}
	return f.LastModified, nil
}

func (r folderRepo) ReplacePermissions(_ context.Context, contextID, id int, entries []models.PermissionEntry) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	f, ok := r.s.folders[key{contextID, id}]
	if !ok {
		return common.NotFound("", "no such folder")
	}
	f.Permissions = nil
	for _, p := range entries {
		p.FolderID = id
		f.Permissions = append(f.Permissions, p)
	}
	return nil
}

func (r folderRepo) Touch(_ context.Context, contextID, id int, lastModified time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	f, ok := r.s.folders[key{contextID, id}]
	if !ok {
		return common.NotFound("", "no such folder")
	}
	f.LastModified = lastModified
	return nil
}

type objectRepo struct{ s *Store }

func (r objectRepo) Insert(_ context.Context, o *models.Object) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	k := key{o.ContextID, o.ID}
	if _, ok := r.s.objects[k]; ok {
		return &common.Error{Kind: common.KindConflict, Reason: "duplicate object id"}
	}
	if o.InternalUserID != 0 {
		for ek, other := range r.s.objects {
			if ek.cid == o.ContextID && other.InternalUserID == o.InternalUserID {
				return &common.Error{Kind: common.KindConflict, Reason: "uniqueness violation on objects_internal_user_key"}
			}
		}
	}
	r.s.objects[k] = o.Clone()
	return nil
}

func (r objectRepo) Update(_ context.Context, o *models.Object) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	k := key{o.ContextID, o.ID}
	if _, ok := r.s.objects[k]; !ok {
		return common.NotFound("", "object row is gone")
	}
	r.s.objects[k] = o.Clone()
	return nil
}

func (r objectRepo) Delete(_ context.Context, contextID, id int) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	k := key{contextID, id}
	if _, ok := r.s.objects[k]; !ok {
		return common.NotFound("", "object row is gone")
	}
	delete(r.s.objects, k)
	return nil
}

func (r objectRepo) Lock(_ context.Context, contextID, id int) (*models.Object, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	o, ok := r.s.objects[key{contextID, id}]
	if !ok {
		return nil, common.NotFound("", "no such object")
	}
	return o.Clone(), nil
}

func (r objectRepo) Query(_ context.Context, q objects.Query) (*cursor.Iterator[*models.Object], error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.Queries++

	var rows []*models.Object
	for k, o := range r.s.objects {
		if k.cid == q.ContextID && matches(o, q) {
			rows = append(rows, o)
		}
	}
	sortObjects(rows, q)

	if q.Offset > 0 {
		if q.Offset >= len(rows) {
			rows = nil
		} else {
			rows = rows[q.Offset:]
		}
	}
	if q.Limit > 0 && len(rows) > q.Limit {
		rows = rows[:q.Limit]
	}

	fields := projected(q.Fields)
	out := make([]*models.Object, len(rows))
	for i, o := range rows {
		out[i] = project(o, fields)
	}
	return cursor.FromSlice(out), nil
}

func contains(ids []int, id int) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func matches(o *models.Object, q objects.Query) bool {
	if len(q.FolderIDs) > 0 || len(q.OwnFolderIDs) > 0 || q.InternalUsers {
		in := contains(q.FolderIDs, o.FolderID) ||
			(contains(q.OwnFolderIDs, o.FolderID) && o.CreatedBy == q.Owner) ||
			(q.InternalUsers && o.InternalUserID != 0)
		if !in {
			return false
		}
	}
	if len(q.IDs) > 0 && !contains(q.IDs, o.ID) {
		return false
	}
	if len(q.InternalUserIDs) > 0 && !contains(q.InternalUserIDs, o.InternalUserID) {
		return false
	}
	if q.CreatedBy != 0 && o.CreatedBy != q.CreatedBy {
		return false
	}
	if !q.ModifiedSince.IsZero() && o.LastModified.Before(q.ModifiedSince) {
		return false
	}
	if len(q.Patterns) > 0 {
		hit := false
		for f, p := range q.Patterns {
			if f.IsText() && objects.MatchLike(o.Value(f), p) {
				hit = true
				break
			}
		}
		if !hit {
			return false
		}
	}
	return true
}

func sortObjects(rows []*models.Object, q objects.Query) {
	var order []objects.Order
	for _, o := range q.Order {
		if o.Field.Valid() && o.Field != models.FieldAttributes {
			order = append(order, o)
		}
	}
	if q.SpecialSort && len(order) == 0 {
		for _, f := range models.SpecialSortFields {
			order = append(order, objects.Order{Field: f})
		}
	}
	sort.SliceStable(rows, func(i, j int) bool {
		for _, o := range order {
			if c := models.CompareField(rows[i], rows[j], o.Field, o.Dir); c != 0 {
				return c < 0
			}
		}
		return rows[i].ID < rows[j].ID
	})
}

func projected(requested []models.Field) map[models.Field]bool {
	m := make(map[models.Field]bool)
	for _, f := range objects.RequiredFields {
		m[f] = true
	}
	for _, f := range requested {
		m[f] = true
	}
	return m
}

func project(o *models.Object, fields map[models.Field]bool) *models.Object {
	c := &models.Object{ContextID: o.ContextID, ID: o.ID, FolderID: o.FolderID, CreatedBy: o.CreatedBy, LastModified: o.LastModified}
	if fields[models.FieldModifiedBy] {
		c.ModifiedBy = o.ModifiedBy
	}
	if fields[models.FieldCreationDate] {
		c.CreatedAt = o.CreatedAt
	}
	if fields[models.FieldInternalUserID] {
		c.InternalUserID = o.InternalUserID
	}
	if fields[models.FieldAttributes] {
		c.Attributes = models.Attributes(nil).Merge(o.Attributes)
	}
	for f, v := range o.Values {
		if fields[f] {
			c.Set(f, v)
		}
	}
	return c
}

type tombstoneRepo struct{ s *Store }

func (r tombstoneRepo) Insert(_ context.Context, t *models.Tombstone, internalUser bool) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.tombSeq++
	t.Seq = r.s.tombSeq
	r.s.tombstones = append(r.s.tombstones, tombstoneRow{t: *t, internalUser: internalUser})
	return nil
}

func (r tombstoneRepo) Since(_ context.Context, q tombstones.Query) (*cursor.Iterator[*models.Tombstone], error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*models.Tombstone
	for _, row := range r.s.tombstones {
		t := row.t
		if t.ContextID != q.ContextID || t.DeletedAt.Before(q.Since) {
			continue
		}
		if q.InternalUsers {
			if !row.internalUser {
				continue
			}
		} else if t.FolderID != q.FolderID {
			continue
		}
		if q.CreatedBy != 0 && t.CreatedBy != q.CreatedBy {
			continue
		}
		out = append(out, &t)
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if !a.DeletedAt.Equal(b.DeletedAt) {
			return a.DeletedAt.Before(b.DeletedAt)
		}
		if a.ObjectID != b.ObjectID {
			return a.ObjectID < b.ObjectID
		}
		return a.Seq < b.Seq
	})
	return cursor.FromSlice(out), nil
}

type sequenceRepo struct{ s *Store }

func (r sequenceRepo) Next(_ context.Context, contextID int, name string, start int) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	k := name + "/" + strconv.Itoa(contextID)
	v, ok := r.s.seqs[k]
	if !ok {
		v = start
	} else {
		v++
	}
	r.s.seqs[k] = v
	return v, nil
}

type aliasRepo struct{ s *Store }

func (r aliasRepo) Search(_ context.Context, contextID int, pattern string, limit int) ([]aliases.Alias, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []aliases.Alias
	for _, a := range r.s.aliases {
		if a.cid == contextID && objects.MatchLike(a.Address, pattern) {
			out = append(out, a.Alias)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return strings.ToLower(out[i].Address) < strings.ToLower(out[j].Address)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
