// Package aliases reads the secondary addresses of internal users, consulted
// by auto-complete searches.
package aliases

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

func (r *PostgresRepository) Search(ctx context.Context, contextID int, pattern string, limit int) ([]Alias, error) {
	query := `SELECT user_id, alias FROM user_aliases
		WHERE cid = $1 AND lower(alias) LIKE $2 ESCAPE '\'
		ORDER BY lower(alias), user_id
		LIMIT $3`

	rows, err := r.db.QueryContext(ctx, query, contextID, pattern, limit)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", dbx.Translate(err))
	}
	defer rows.Close()

	var result []Alias
	for rows.Next() {
		var a Alias
		if err := rows.Scan(&a.UserID, &a.Address); err != nil {
			return nil, fmt.Errorf("db error: %w", dbx.Translate(err))
		}
		result = append(result, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", dbx.Translate(err))
	}
	return result, nil
}
