package objects

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/groupware/internal/common"
	"github.com/dmitrijs2005/groupware/internal/server/cursor"
	"github.com/dmitrijs2005/groupware/internal/server/models"
	"github.com/jackc/pgx/v5/pgconn"
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

var t1 = time.UnixMilli(1_700_000_000_000).UTC()

func sampleObject() *models.Object {
	o := &models.Object{
		ContextID: 1, ID: 7, FolderID: 30, CreatedBy: 5, ModifiedBy: 5,
		CreatedAt: t1, LastModified: t1,
	}
	o.Set(models.FieldSurname, "Miller")
	o.Set(models.FieldEmail1, "m@example.com")
	return o
}

func TestInsert_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`INSERT INTO objects \(cid, id, created_by, changed_by, creation_date, changing_date, folder_id, display_name, .* attributes\) VALUES \(\$1, .*\$20\)`).
		WithArgs(1, 7, 5, 5, int64(1_700_000_000_000), int64(1_700_000_000_000), 30,
			"", "", "Miller", "", "", nil, "", "", "m@example.com", "", "", "", "{}").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Insert(context.Background(), sampleObject()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsert_UniqueViolationIsConflict(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`INSERT INTO objects`).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "objects_internal_user_key"})

	err := repo.Insert(context.Background(), sampleObject())
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrorConflict))
	assert.Regexp(t, `db error: .*objects_internal_user_key`, err.Error())
}

func TestUpdate_RowsAffected(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `UPDATE objects SET created_by = \$3, .* attributes = \$20 WHERE cid = \$1 AND id = \$2`
	mock.ExpectExec(q).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(q).WillReturnResult(sqlmock.NewErrorResult(errors.New("rows-err")))

	require.NoError(t, repo.Update(context.Background(), sampleObject()))

	err := repo.Update(context.Background(), sampleObject())
	assert.True(t, errors.Is(err, common.ErrorNotFound))

	err = repo.Update(context.Background(), sampleObject())
	assert.Regexp(t, `rows affected error: rows-err`, err.Error())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDelete(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`DELETE FROM objects WHERE cid = \$1 AND id = \$2`).
		WithArgs(1, 7).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`DELETE FROM objects`).
		WithArgs(1, 8).
		WillReturnError(errors.New("db is down"))

	require.NoError(t, repo.Delete(context.Background(), 1, 7))
	err := repo.Delete(context.Background(), 1, 8)
	assert.Regexp(t, `db error: .*db is down`, err.Error())
}

func fullRowColumns() []string {
	cols := []string{}
	for _, f := range allFields {
		c, _ := f.Column()
		cols = append(cols, c)
	}
	return cols
}

func TestLock_ScansFullRow(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	rows := sqlmock.NewRows(fullRowColumns()).AddRow(
		7, 5, 6, int64(1_700_000_000_000), int64(1_700_000_000_500), 30,
		"Ann Miller", "Ann", "Miller", "", "", int64(44), "", "", "a@x", "", "", "ACME",
		[]byte(`{"im":{"jabber":"ann@x"}}`),
	)
	mock.ExpectQuery(`SELECT id, created_by, .* FROM objects WHERE cid = \$1 AND id = \$2 FOR UPDATE`).
		WithArgs(1, 7).
		WillReturnRows(rows)

	o, err := repo.Lock(context.Background(), 1, 7)
	require.NoError(t, err)
	assert.Equal(t, 7, o.ID)
	assert.Equal(t, 6, o.ModifiedBy)
	assert.Equal(t, 44, o.InternalUserID)
	assert.Equal(t, time.UnixMilli(1_700_000_000_500).UTC(), o.LastModified)
	assert.Equal(t, "ACME", o.Value(models.FieldCompany))
	v, ok := o.Attributes.Get("im", "jabber")
	require.True(t, ok)
	assert.Equal(t, "ann@x", v)
}

func TestLock_NotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`FOR UPDATE`).WillReturnRows(sqlmock.NewRows(fullRowColumns()))

	_, err := repo.Lock(context.Background(), 1, 7)
	assert.True(t, errors.Is(err, common.ErrorNotFound))
}

func TestQuery_StreamsProjection(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := regexp.QuoteMeta(`SELECT id, created_by, changing_date, folder_id, surname FROM objects WHERE cid = $1 AND (folder_id IN ($2)) AND created_by = $3 AND changing_date >= $4 ORDER BY id ASC`)
	mock.ExpectQuery(q).
		WithArgs(1, 30, 5, int64(1_700_000_000_000)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_by", "changing_date", "folder_id", "surname"}).
			AddRow(7, 5, int64(1_700_000_000_000), 30, "Miller").
			AddRow(8, 5, int64(1_700_000_000_001), 30, "Adams"))

	it, err := repo.Query(context.Background(), Query{
		ContextID: 1, FolderIDs: []int{30}, CreatedBy: 5, ModifiedSince: t1,
		Fields: []models.Field{models.FieldSurname},
	})
	require.NoError(t, err)

	got, err := cursor.Collect(it)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Miller", got[0].Value(models.FieldSurname))
	assert.Equal(t, 8, got[1].ID)
	assert.Empty(t, got[1].Value(models.FieldEmail1))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestQuery_Error(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT`).WillReturnError(context.DeadlineExceeded)

	_, err := repo.Query(context.Background(), Query{ContextID: 1})
	assert.True(t, errors.Is(err, common.ErrorTransient))
}

func TestBuildSelect(t *testing.T) {
	tests := []struct {
		name     string
		q        Query
		wantSQL  string
		wantArgs []any
	}{
		{
			name:     "internal users with ids",
			q:        Query{ContextID: 1, FolderIDs: []int{6}, InternalUsers: true, IDs: []int{3, 4}},
			wantSQL:  `SELECT id, created_by, changing_date, folder_id FROM objects WHERE cid = $1 AND (folder_id IN ($2) OR internal_user_id IS NOT NULL) AND id IN ($3, $4) ORDER BY id ASC`,
			wantArgs: []any{1, 6, 3, 4},
		},
		{
			name:     "own-only folders",
			q:        Query{ContextID: 1, FolderIDs: []int{30}, OwnFolderIDs: []int{31, 32}, Owner: 5},
			wantSQL:  `SELECT id, created_by, changing_date, folder_id FROM objects WHERE cid = $1 AND (folder_id IN ($2) OR (folder_id IN ($3, $4) AND created_by = $5)) ORDER BY id ASC`,
			wantArgs: []any{1, 30, 31, 32, 5},
		},
		{
			name: "special sort window",
			q:    Query{ContextID: 1, FolderIDs: []int{30, 31}, SpecialSort: true, Offset: 10, Limit: 5},
			wantSQL: `SELECT id, created_by, changing_date, folder_id FROM objects WHERE cid = $1 AND (folder_id IN ($2, $3)) ORDER BY ` +
				`NULLIF(lower(surname), '') ASC NULLS LAST, NULLIF(lower(display_name), '') ASC NULLS LAST, ` +
				`NULLIF(lower(company), '') ASC NULLS LAST, NULLIF(lower(email1), '') ASC NULLS LAST, ` +
				`NULLIF(lower(email2), '') ASC NULLS LAST, id ASC LIMIT $4 OFFSET $5`,
			wantArgs: []any{1, 30, 31, 5, 10},
		},
		{
			name: "patterns and explicit order",
			q: Query{ContextID: 2, Patterns: map[models.Field]string{models.FieldEmail1: "a%", models.FieldSurname: "a%"},
				Order: []Order{{Field: models.FieldLastModified, Dir: models.OrderDesc}}, SpecialSort: true},
			wantSQL: `SELECT id, created_by, changing_date, folder_id FROM objects WHERE cid = $1 AND ` +
				`(lower(surname) LIKE $2 ESCAPE '\' OR lower(email1) LIKE $3 ESCAPE '\') ORDER BY changing_date DESC, id ASC`,
			wantArgs: []any{2, "a%", "a%"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sql, args, _ := buildSelect(tt.q)
			assert.Equal(t, tt.wantSQL, sql)
			assert.Equal(t, tt.wantArgs, args)
		})
	}
}

func TestLikePattern(t *testing.T) {
	assert.Equal(t, "mil%", LikePattern("Mil", models.MatchPrefix))
	assert.Equal(t, "%mil%", LikePattern("mil", models.MatchContains))
	assert.Equal(t, `50\%%`, LikePattern("50%", models.MatchPrefix))
	assert.Equal(t, `a\_b%`, LikePattern("a_b", models.MatchPrefix))
	assert.Equal(t, "m%er%", LikePattern("m*er", models.MatchPrefix))
	assert.Equal(t, "%", LikePattern("*", models.MatchContains))
}

func TestMatchLike(t *testing.T) {
	assert.True(t, MatchLike("Miller", LikePattern("mil", models.MatchPrefix)))
	assert.False(t, MatchLike("Hamill", LikePattern("mil", models.MatchPrefix)))
	assert.True(t, MatchLike("Hamill", LikePattern("mil", models.MatchContains)))
	assert.True(t, MatchLike("50% off", LikePattern("50%", models.MatchPrefix)))
	assert.False(t, MatchLike("500 off", LikePattern("50%", models.MatchPrefix)))
	assert.True(t, MatchLike("mayer", LikePattern("m*er", models.MatchPrefix)))
}
