package grpc

import (
	"context"
	"time"

	"github.com/dmitrijs2005/groupware/internal/common"
	"github.com/dmitrijs2005/groupware/internal/logging"
	"github.com/dmitrijs2005/groupware/internal/server/auth"
	"github.com/dmitrijs2005/groupware/internal/server/cursor"
	"github.com/dmitrijs2005/groupware/internal/server/models"
	"github.com/dmitrijs2005/groupware/internal/server/services"
	"google.golang.org/grpc/metadata"
)

var caller = models.Identity{ContextID: 1, UserID: 5, GroupIDs: []int{41},
	Modules: models.NewModuleSet(models.ModuleContact, models.ModuleSystem)}

// ---- fakes ----

type fakeObjects struct {
	objectService

	got      *models.Object
	gotLM    time.Time
	out      *models.Object
	err      error
	list     []*models.Object
	closed   bool
	gotRefs  []models.ObjectRef
	gotCols  []models.Field
	gotOrder models.Field
	gotDir   models.OrderDirection
}

func (f *fakeObjects) Insert(_ context.Context, _ models.Identity, o *models.Object) (*models.Object, error) {
	f.got = o
	return f.out, f.err
}

func (f *fakeObjects) Update(_ context.Context, _ models.Identity, o *models.Object, _ int, lm time.Time) (*models.Object, error) {
	f.got, f.gotLM = o, lm
	return f.out, f.err
}

func (f *fakeObjects) Delete(_ context.Context, _ models.Identity, _, _ int, lm time.Time) error {
	f.gotLM = lm
	return f.err
}

func (f *fakeObjects) Get(_ context.Context, _ models.Identity, _, _ int, cols []models.Field) (*models.Object, error) {
	f.gotCols = cols
	return f.out, f.err
}

func (f *fakeObjects) iterator() *cursor.Iterator[*models.Object] {
	return cursor.FromSlice(f.list).OnClose(func() error {
		f.closed = true
		return nil
	})
}

func (f *fakeObjects) ProjectedRead(_ context.Context, _ models.Identity, _ int, cols []models.Field,
	_, _ int, order models.Field, dir models.OrderDirection) (*cursor.Iterator[*models.Object], error) {
	f.gotCols, f.gotOrder, f.gotDir = cols, order, dir
	if f.err != nil {
		return nil, f.err
	}
	return f.iterator(), nil
}

func (f *fakeObjects) ByIDs(_ context.Context, _ models.Identity, refs []models.ObjectRef, _ []models.Field) (*cursor.Iterator[*models.Object], error) {
	f.gotRefs = refs
	if f.err != nil {
		return nil, f.err
	}
	return f.iterator(), nil
}

type fakeSync struct {
	syncService

	gotSince time.Time
	modified []*models.Object
	changes  *services.ChangeSet
	err      error
}

func (f *fakeSync) ModifiedSince(_ context.Context, _ models.Identity, _ int, since time.Time, _ []models.Field) (*cursor.Iterator[*models.Object], error) {
	f.gotSince = since
	if f.err != nil {
		return nil, f.err
	}
	return cursor.FromSlice(f.modified), nil
}

func (f *fakeSync) Changes(_ context.Context, _ models.Identity, _ int, since time.Time, _ []models.Field) (*services.ChangeSet, error) {
	f.gotSince = since
	return f.changes, f.err
}

type fakeSearch struct {
	searchService

	got models.SearchCriteria
	out []*models.Object
	err error
}

func (f *fakeSearch) Search(_ context.Context, _ models.Identity, c models.SearchCriteria,
	_ models.Field, _ models.OrderDirection, _ []models.Field) (*cursor.Iterator[*models.Object], error) {
	f.got = c
	if f.err != nil {
		return nil, f.err
	}
	return cursor.FromSlice(f.out), nil
}

type fakeFolders struct {
	byID       map[int]*models.Folder
	children   []*models.Folder
	gotEntries []models.PermissionEntry
	err        error
}

func (f *fakeFolders) Get(_ context.Context, _, id int) (*models.Folder, error) {
	if fo, ok := f.byID[id]; ok {
		return fo, nil
	}
	return nil, common.NotFound("", "no such folder")
}

func (f *fakeFolders) Subfolders(context.Context, int, int, time.Time) (*cursor.Iterator[*models.Folder], error) {
	return cursor.FromSlice(f.children), nil
}

func (f *fakeFolders) UpdatePermissions(_ context.Context, _ models.Identity, _ int, entries []models.PermissionEntry) error {
	f.gotEntries = entries
	return f.err
}

// fakeStream records what a handler sends.
type fakeStream struct {
	ctx     context.Context
	sent    []any
	sendErr error
}

func (s *fakeStream) SetHeader(metadata.MD) error  { return nil }
func (s *fakeStream) SendHeader(metadata.MD) error { return nil }
func (s *fakeStream) SetTrailer(metadata.MD)       {}
func (s *fakeStream) Context() context.Context     { return s.ctx }
func (s *fakeStream) RecvMsg(any) error            { return nil }
func (s *fakeStream) SendMsg(m any) error {
	if s.sendErr != nil {
		return s.sendErr
	}
	s.sent = append(s.sent, m)
	return nil
}

// ---- helpers ----

func newServer(svc Services) *GRPCServer {
	return NewGRPCServer("127.0.0.1:0", logging.Nop(), svc, "k")
}

func authed() context.Context {
	return auth.WithIdentity(context.Background(), caller)
}

func newServerAt(address string) *GRPCServer {
	return NewGRPCServer(address, logging.Nop(), Services{}, "secret")
}
