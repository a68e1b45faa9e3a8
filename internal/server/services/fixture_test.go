package services

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/dmitrijs2005/groupware/internal/logging"
	"github.com/dmitrijs2005/groupware/internal/server/config"
	"github.com/dmitrijs2005/groupware/internal/server/cursor"
	"github.com/dmitrijs2005/groupware/internal/server/folders"
	"github.com/dmitrijs2005/groupware/internal/server/models"
	"github.com/dmitrijs2005/groupware/internal/server/repositories/memory"
	"github.com/dmitrijs2005/groupware/internal/server/repositories/repomanager"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

// Folders of the fixture context.
const (
	aliceFolder    = 30 // alice administers; group 41 may create and read own
	bobFolder      = 31 // bob administers; alice may read all, write and delete own
	aliceSecond    = 32 // alice administers
	hiddenFolder   = 33 // bob only
	calendarFolder = 40 // alice, calendar module
)

var (
	alice = models.Identity{ContextID: 1, UserID: 5, GroupIDs: []int{41},
		Modules: models.NewModuleSet(models.ModuleContact, models.ModuleCalendar, models.ModuleSystem)}
	bob = models.Identity{ContextID: 1, UserID: 7, GroupIDs: []int{41},
		Modules: models.NewModuleSet(models.ModuleContact, models.ModuleSystem)}
	carol = models.Identity{ContextID: 1, UserID: 8,
		Modules: models.NewModuleSet(models.ModuleCalendar, models.ModuleSystem)}
)

var contactCols = []models.Field{models.FieldSurname, models.FieldDisplayName, models.FieldEmail1}

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

// tick advances the clock by a second and returns the new time.
func (c *clock) tick() time.Time {
	c.t = c.t.Add(time.Second)
	return c.t
}

type recordingNotifier struct {
	actions []string
	before  []*models.Object
	after   []*models.Object
	err     error
}

func (n *recordingNotifier) Create(_ context.Context, _ models.Identity, o *models.Object) error {
	n.actions = append(n.actions, "create")
	n.after = append(n.after, o)
	return n.err
}

func (n *recordingNotifier) Modify(_ context.Context, _ models.Identity, before, after *models.Object) error {
	n.actions = append(n.actions, "modify")
	n.before = append(n.before, before)
	n.after = append(n.after, after)
	return n.err
}

func (n *recordingNotifier) Delete(_ context.Context, _ models.Identity, o *models.Object) error {
	n.actions = append(n.actions, "delete")
	n.before = append(n.before, o)
	return n.err
}

type fixture struct {
	db       *sql.DB
	store    *memory.Store
	catalog  *folders.Catalog
	notifier *recordingNotifier
	clock    *clock
	cfg      *config.Config

	objects *ObjectService
	sync    *SyncService
	search  *SearchService
}

func entry(principal int, kind models.PrincipalKind, f models.FolderLevel, r, w, d models.ObjectLevel, admin bool) models.PermissionEntry {
	return models.PermissionEntry{Principal: principal, Kind: kind, Folder: f, Read: r, Write: w, Delete: d, Admin: admin}
}

func ownerEntry(user int) models.PermissionEntry {
	return entry(user, models.PrincipalUser, models.FolderMax, models.ObjectMax, models.ObjectMax, models.ObjectMax, true)
}

func contactFolder(id, owner int, perms ...models.PermissionEntry) *models.Folder {
	f := &models.Folder{
		ContextID: 1, ID: id, ParentID: models.PrivateRootFolderID, Name: "contacts",
		Type: models.FolderTypePrivate, Module: models.ModuleContact, OwnerID: owner,
	}
	for _, p := range perms {
		p.FolderID = id
		f.Permissions = append(f.Permissions, p)
	}
	return f
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return newFixtureOn(t, db, nil)
}

// newFixtureOn builds the fixture on db. wrap, when set, decorates the
// memory repository manager.
func newFixtureOn(t *testing.T, db *sql.DB, wrap func(repomanager.RepositoryManager) repomanager.RepositoryManager) *fixture {
	t.Helper()
	store := memory.NewStore()

	aliceDefault := contactFolder(aliceFolder, alice.UserID,
		ownerEntry(alice.UserID),
		entry(41, models.PrincipalGroup, models.FolderCreateObjects, models.ObjectOwn, models.ObjectOwn, models.ObjectOwn, false))
	aliceDefault.DefaultFolder = true
	store.PutFolder(aliceDefault)
	store.PutFolder(contactFolder(bobFolder, bob.UserID,
		ownerEntry(bob.UserID),
		entry(alice.UserID, models.PrincipalUser, models.FolderCreateObjects, models.ObjectAll, models.ObjectOwn, models.ObjectOwn, false)))
	store.PutFolder(contactFolder(aliceSecond, alice.UserID, ownerEntry(alice.UserID)))
	store.PutFolder(contactFolder(hiddenFolder, bob.UserID, ownerEntry(bob.UserID)))
	cal := contactFolder(calendarFolder, alice.UserID, ownerEntry(alice.UserID))
	cal.Module = models.ModuleCalendar
	store.PutFolder(cal)

	var repos repomanager.RepositoryManager = memory.NewManager(store)
	if wrap != nil {
		repos = wrap(repos)
	}

	cfg := &config.Config{}
	cfg.LoadDefaults()
	cfg.MaxSearchResults = 100

	clk := &clock{t: time.UnixMilli(1_700_000_000_000).UTC()}
	notifier := &recordingNotifier{}
	catalog := folders.NewCatalog(db, repos, folders.NewCache(0), logging.Nop())

	f := &fixture{
		db:       db,
		store:    store,
		catalog:  catalog,
		notifier: notifier,
		clock:    clk,
		cfg:      cfg,
		objects:  NewObjectService(db, repos, catalog, notifier, logging.Nop(), cfg),
		sync:     NewSyncService(db, repos, catalog, logging.Nop()),
		search:   NewSearchService(db, repos, catalog, logging.Nop(), cfg),
	}
	f.objects.now = clk.now
	f.sync.now = clk.now
	f.search.now = clk.now
	return f
}

// insert creates a contact at the next clock tick.
func (f *fixture) insert(t *testing.T, id models.Identity, folderID int, surname string) *models.Object {
	t.Helper()
	f.clock.tick()
	o := &models.Object{FolderID: folderID}
	o.Set(models.FieldSurname, surname)
	created, err := f.objects.Insert(context.Background(), id, o)
	require.NoError(t, err)
	return created
}

func ids(list []*models.Object) []int {
	out := make([]int, 0, len(list))
	for _, o := range list {
		out = append(out, o.ID)
	}
	return out
}

func drain(t *testing.T) func(*cursor.Iterator[*models.Object], error) []*models.Object {
	return func(it *cursor.Iterator[*models.Object], err error) []*models.Object {
		t.Helper()
		require.NoError(t, err)
		out, err := cursor.Collect(it)
		require.NoError(t, err)
		require.True(t, it.Closed())
		return out
	}
}
