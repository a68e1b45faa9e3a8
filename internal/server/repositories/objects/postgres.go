// Package objects provides the PostgreSQL-backed repository of business
// objects: inserts, locked reads for mutation, and projected, filtered,
// ordered and paginated queries.
package objects

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/dmitrijs2005/groupware/internal/common"
	"github.com/dmitrijs2005/groupware/internal/dbx"
	"github.com/dmitrijs2005/groupware/internal/server/cursor"
	"github.com/dmitrijs2005/groupware/internal/server/models"
)

// PostgresRepository implements object storage over a dbx.DBTX.
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

var (
	allFields     = projection(append([]models.Field{models.FieldModifiedBy, models.FieldCreationDate, models.FieldInternalUserID, models.FieldAttributes}, models.TextFields()...))
	insertColumns = "cid, " + columns(allFields)
	updateFields  = withoutField(allFields, models.FieldID)
)

func withoutField(fields []models.Field, drop models.Field) []models.Field {
	var out []models.Field
	for _, f := range fields {
		if f != drop {
			out = append(out, f)
		}
	}
	return out
}

func rowValue(o *models.Object, f models.Field) (any, error) {
	switch f {
	case models.FieldID:
		return o.ID, nil
	case models.FieldFolderID:
		return o.FolderID, nil
	case models.FieldCreatedBy:
		return o.CreatedBy, nil
	case models.FieldModifiedBy:
		return o.ModifiedBy, nil
	case models.FieldCreationDate:
		return models.ToMillis(o.CreatedAt), nil
	case models.FieldLastModified:
		return models.ToMillis(o.LastModified), nil
	case models.FieldInternalUserID:
		return nullableInt(o.InternalUserID), nil
	case models.FieldAttributes:
		raw, err := encodeAttributes(o.Attributes)
		if err != nil {
			return nil, err
		}
		return string(raw), nil
	default:
		return o.Value(f), nil
	}
}

// Insert stores a new object. A uniqueness violation surfaces as a conflict.
func (r *PostgresRepository) Insert(ctx context.Context, o *models.Object) error {
	args := []any{o.ContextID}
	ph := []string{"$1"}
	for _, f := range allFields {
		v, err := rowValue(o, f)
		if err != nil {
			return err
		}
		args = append(args, v)
		ph = append(ph, "$"+strconv.Itoa(len(args)))
	}

	query := "INSERT INTO objects (" + insertColumns + ") VALUES (" + strings.Join(ph, ", ") + ")"
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("db error: %w", dbx.Translate(err))
	}
	return nil
}

// Update overwrites every stored column of o.
func (r *PostgresRepository) Update(ctx context.Context, o *models.Object) error {
	args := []any{o.ContextID, o.ID}
	sets := make([]string, 0, len(updateFields))
	for _, f := range updateFields {
		v, err := rowValue(o, f)
		if err != nil {
			return err
		}
		args = append(args, v)
		col, _ := f.Column()
		sets = append(sets, col+" = $"+strconv.Itoa(len(args)))
	}

	query := "UPDATE objects SET " + strings.Join(sets, ", ") + " WHERE cid = $1 AND id = $2"
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("db error: %w", dbx.Translate(err))
	}
	return expectOne(res)
}

// Delete removes the row of an object.
func (r *PostgresRepository) Delete(ctx context.Context, contextID, id int) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM objects WHERE cid = $1 AND id = $2`, contextID, id)
	if err != nil {
		return fmt.Errorf("db error: %w", dbx.Translate(err))
	}
	return expectOne(res)
}

// Lock reads the full row with SELECT ... FOR UPDATE.
func (r *PostgresRepository) Lock(ctx context.Context, contextID, id int) (*models.Object, error) {
	query := "SELECT " + columns(allFields) + " FROM objects WHERE cid = $1 AND id = $2 FOR UPDATE"

	o := &models.Object{ContextID: contextID}
	dest, finish := scanner(o, allFields)
	if err := r.db.QueryRowContext(ctx, query, contextID, id).Scan(dest...); err != nil {
		return nil, fmt.Errorf("db error: %w", dbx.Translate(err))
	}
	if err := finish(); err != nil {
		return nil, err
	}
	return o, nil
}

// Query runs q and streams its rows. The iterator owns the rows; closing it
// does not release the DBTX the repository is bound to.
func (r *PostgresRepository) Query(ctx context.Context, q Query) (*cursor.Iterator[*models.Object], error) {
	query, args, fields := buildSelect(q)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", dbx.Translate(err))
	}

	return cursor.FromRows(rows, func(rows *sql.Rows) (*models.Object, error) {
		o := &models.Object{ContextID: q.ContextID}
		dest, finish := scanner(o, fields)
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		if err := finish(); err != nil {
			return nil, err
		}
		return o, nil
	}, nil), nil
}

func expectOne(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	switch n {
	case 1:
		return nil
	case 0:
		return common.NotFound("", "object row is gone")
	default:
		return fmt.Errorf("unexpected rows affected: %d", n)
	}
}
