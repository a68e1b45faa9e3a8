// Package sequences provides per-context id generators kept in the store, so
// ids are assigned inside the transaction that uses them.
package sequences

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/groupware/internal/dbx"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Next(ctx context.Context, contextID int, name string, start int) (int, error) {
	query :=
		`INSERT INTO sequences (cid, name, value) VALUES ($1, $2, $3)
		 ON CONFLICT (cid, name) DO UPDATE SET value = sequences.value + 1
		 RETURNING value
		 `

	var id int
	err := r.db.QueryRowContext(ctx, query, contextID, name, start).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", dbx.Translate(err))
	}
	return id, nil
}
