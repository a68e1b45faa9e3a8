package folders

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/groupware/internal/common"
	"github.com/dmitrijs2005/groupware/internal/server/models"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewPostgresRepository(db), mock, db
}

func TestGet_WithPermissions(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`(?s)SELECT id, parent_id, name, type, module, owner_id, default_folder, changing_date\s+FROM folders WHERE cid = \$1 AND id = \$2`).
		WithArgs(1, 30).
		WillReturnRows(sqlmock.NewRows([]string{"id", "parent_id", "name", "type", "module", "owner_id", "default_folder", "changing_date"}).
			AddRow(30, 1, "Contacts", int64(models.FolderTypePrivate), int64(models.ModuleContact), 5, true, int64(1000)))
	mock.ExpectQuery(`(?s)FROM folder_permissions WHERE cid = \$1 AND folder_id = \$2`).
		WithArgs(1, 30).
		WillReturnRows(sqlmock.NewRows([]string{"principal", "is_group", "folder_level", "read_level", "write_level", "delete_level", "admin"}).
			AddRow(5, false, 128, 128, 128, 128, true).
			AddRow(0, true, 1, 1, 0, 0, false))

	f, err := repo.Get(context.Background(), 1, 30)
	require.NoError(t, err)

	want := &models.Folder{
		ContextID: 1, ID: 30, ParentID: 1, Name: "Contacts",
		Type: models.FolderTypePrivate, Module: models.ModuleContact, OwnerID: 5, DefaultFolder: true,
		LastModified: time.UnixMilli(1000).UTC(),
		Permissions: []models.PermissionEntry{
			{FolderID: 30, Principal: 5, Kind: models.PrincipalUser, Folder: models.FolderMax, Read: models.ObjectMax, Write: models.ObjectMax, Delete: models.ObjectMax, Admin: true},
			{FolderID: 30, Principal: 0, Kind: models.PrincipalGroup, Folder: models.FolderVisible, Read: models.ObjectOwn},
		},
	}
	if diff := cmp.Diff(want, f); diff != "" {
		t.Fatalf("folder mismatch (-want +got):\n%s", diff)
	}
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGet_NotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`FROM folders`).WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := repo.Get(context.Background(), 1, 30)
	assert.True(t, errors.Is(err, common.ErrorNotFound))
}

func TestGet_TransientIsNotNotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`FROM folders`).WillReturnError(context.DeadlineExceeded)

	_, err := repo.Get(context.Background(), 1, 30)
	assert.True(t, errors.Is(err, common.ErrorTransient))
	assert.False(t, errors.Is(err, common.ErrorNotFound))
}

func TestChildren(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT id FROM folders WHERE cid = \$1 AND parent_id = \$2 AND changing_date >= \$3 ORDER BY id`).
		WithArgs(1, 30, int64(0)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(31).AddRow(32))

	got, err := repo.Children(context.Background(), 1, 30, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, []int{31, 32}, got)
}

func TestCandidates_GroupPlaceholders(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`(?s)p\.principal = \$3\) OR\s+\(p\.is_group AND p\.principal IN \(0, \$4, \$5\)\)`).
		WithArgs(1, int(models.ModuleContact), 5, 41, 42).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(30))

	got, err := repo.Candidates(context.Background(), 1, models.ModuleContact, 5, []int{0, 41, 42})
	require.NoError(t, err)
	assert.Equal(t, []int{30}, got)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDefaultFolder(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`AND default_folder`).
		WithArgs(1, 5, int(models.ModuleContact)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(30))

	id, err := repo.DefaultFolder(context.Background(), 1, 5, models.ModuleContact)
	require.NoError(t, err)
	assert.Equal(t, 30, id)
}

func TestUpdatePath(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT changing_date FROM folders WHERE cid = \$1 AND id = \$2 FOR UPDATE`).
		WithArgs(1, 30).
		WillReturnRows(sqlmock.NewRows([]string{"changing_date"}).AddRow(int64(1000)))
	mock.ExpectExec(`DELETE FROM folder_permissions`).WithArgs(1, 30).WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(`INSERT INTO folder_permissions`).
		WithArgs(1, 30, 0, true, 1, 4, 0, 0, false).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE folders SET changing_date = \$3`).
		WithArgs(1, 30, int64(1001)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	ctx := context.Background()
	last, err := repo.Lock(ctx, 1, 30)
	require.NoError(t, err)
	require.Equal(t, time.UnixMilli(1000).UTC(), last)

	require.NoError(t, repo.ReplacePermissions(ctx, 1, 30, []models.PermissionEntry{
		{Principal: 0, Kind: models.PrincipalGroup, Folder: models.FolderVisible, Read: models.ObjectAll},
	}))
	require.NoError(t, repo.Touch(ctx, 1, 30, last.Add(time.Millisecond)))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTouch_Missing(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`UPDATE folders`).WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Touch(context.Background(), 1, 30, time.UnixMilli(5))
	assert.True(t, errors.Is(err, common.ErrorNotFound))
}
