// Package tombstones provides the PostgreSQL-backed delete log used by delta
// sync. Rows are only ever inserted.
package tombstones

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"

	"github.com/dmitrijs2005/groupware/internal/dbx"
	"github.com/dmitrijs2005/groupware/internal/server/cursor"
	"github.com/dmitrijs2005/groupware/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Insert writes a tombstone and fills its Seq.
func (r *PostgresRepository) Insert(ctx context.Context, t *models.Tombstone, internalUser bool) error {
	query := `INSERT INTO object_tombstones (cid, id, folder_id, internal_user, created_by, changed_by, changing_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING seq`

	err := r.db.QueryRowContext(ctx, query,
		t.ContextID, t.ObjectID, t.FolderID, internalUser, t.CreatedBy, t.ModifiedBy, models.ToMillis(t.DeletedAt),
	).Scan(&t.Seq)
	if err != nil {
		return fmt.Errorf("db error: %w", dbx.Translate(err))
	}
	return nil
}

// Since streams tombstones with deletion time >= q.Since, ordered by
// deletion time, object id and sequence.
func (r *PostgresRepository) Since(ctx context.Context, q Query) (*cursor.Iterator[*models.Tombstone], error) {
	args := []any{q.ContextID, models.ToMillis(q.Since)}
	query := `SELECT seq, id, folder_id, created_by, changed_by, changing_date FROM object_tombstones
		WHERE cid = $1 AND changing_date >= $2`
	if q.InternalUsers {
		query += ` AND internal_user`
	} else {
		args = append(args, q.FolderID)
		query += ` AND folder_id = $` + strconv.Itoa(len(args))
	}
	if q.CreatedBy != 0 {
		args = append(args, q.CreatedBy)
		query += ` AND created_by = $` + strconv.Itoa(len(args))
	}
	query += ` ORDER BY changing_date, id, seq`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", dbx.Translate(err))
	}

	return cursor.FromRows(rows, func(rows *sql.Rows) (*models.Tombstone, error) {
		t := &models.Tombstone{ContextID: q.ContextID}
		var ms int64
		if err := rows.Scan(&t.Seq, &t.ObjectID, &t.FolderID, &t.CreatedBy, &t.ModifiedBy, &ms); err != nil {
			return nil, err
		}
		t.DeletedAt = models.FromMillis(ms)
		return t, nil
	}, nil), nil
}
