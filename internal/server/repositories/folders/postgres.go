// Package folders provides PostgreSQL-backed access to persisted folders and
// their permission entries.
package folders

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrijs2005/groupware/internal/common"
	"github.com/dmitrijs2005/groupware/internal/dbx"
	"github.com/dmitrijs2005/groupware/internal/server/models"
)

// PostgresRepository implements folder storage over a dbx.DBTX.
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Get returns the folder or a not-found error.
func (r *PostgresRepository) Get(ctx context.Context, contextID, id int) (*models.Folder, error) {
	query := `SELECT id, parent_id, name, type, module, owner_id, default_folder, changing_date
		FROM folders WHERE cid = $1 AND id = $2`

	f := &models.Folder{ContextID: contextID}
	var ms int64
	err := r.db.QueryRowContext(ctx, query, contextID, id).Scan(
		&f.ID, &f.ParentID, &f.Name, &f.Type, &f.Module, &f.OwnerID, &f.DefaultFolder, &ms)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", dbx.Translate(err))
	}
	f.LastModified = models.FromMillis(ms)

	perms, err := r.permissions(ctx, contextID, id)
	if err != nil {
		return nil, err
	}
	f.Permissions = perms
	return f, nil
}

func (r *PostgresRepository) permissions(ctx context.Context, contextID, id int) ([]models.PermissionEntry, error) {
	query := `SELECT principal, is_group, folder_level, read_level, write_level, delete_level, admin
		FROM folder_permissions WHERE cid = $1 AND folder_id = $2
		ORDER BY is_group, principal`

	rows, err := r.db.QueryContext(ctx, query, contextID, id)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", dbx.Translate(err))
	}
	defer rows.Close()

	var result []models.PermissionEntry
	for rows.Next() {
		p := models.PermissionEntry{FolderID: id}
		var isGroup bool
		if err := rows.Scan(&p.Principal, &isGroup, &p.Folder, &p.Read, &p.Write, &p.Delete, &p.Admin); err != nil {
			return nil, fmt.Errorf("db error: %w", dbx.Translate(err))
		}
		p.Kind = models.PrincipalUser
		if isGroup {
			p.Kind = models.PrincipalGroup
		}
		result = append(result, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", dbx.Translate(err))
	}
	return result, nil
}

func (r *PostgresRepository) Children(ctx context.Context, contextID, parentID int, since time.Time) ([]int, error) {
	query := `SELECT id FROM folders WHERE cid = $1 AND parent_id = $2 AND changing_date >= $3 ORDER BY id`
	return r.ids(ctx, query, contextID, parentID, models.ToMillis(since))
}

func (r *PostgresRepository) Candidates(ctx context.Context, contextID int, module models.Module, userID int, groupIDs []int) ([]int, error) {
	args := []any{contextID, int(module), userID}
	groups := []string{"0"}
	for _, g := range groupIDs {
		if g == models.AllUsersGroupID {
			continue
		}
		args = append(args, g)
		groups = append(groups, "$"+strconv.Itoa(len(args)))
	}

	query := `SELECT f.id FROM folders f
		WHERE f.cid = $1 AND f.module = $2 AND EXISTS (
			SELECT 1 FROM folder_permissions p
			WHERE p.cid = f.cid AND p.folder_id = f.id AND (
				(NOT p.is_group AND p.principal = $3) OR
				(p.is_group AND p.principal IN (` + strings.Join(groups, ", ") + `))))
		ORDER BY f.id`
	return r.ids(ctx, query, args...)
}

func (r *PostgresRepository) ids(ctx context.Context, query string, args ...any) ([]int, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", dbx.Translate(err))
	}
	defer rows.Close()

	var result []int
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("db error: %w", dbx.Translate(err))
		}
		result = append(result, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", dbx.Translate(err))
	}
	return result, nil
}

func (r *PostgresRepository) DefaultFolder(ctx context.Context, contextID, userID int, module models.Module) (int, error) {
	query := `SELECT id FROM folders WHERE cid = $1 AND owner_id = $2 AND module = $3 AND default_folder`

	var id int
	if err := r.db.QueryRowContext(ctx, query, contextID, userID, int(module)).Scan(&id); err != nil {
		return 0, fmt.Errorf("db error: %w", dbx.Translate(err))
	}
	return id, nil
}

func (r *PostgresRepository) Lock(ctx context.Context, contextID, id int) (time.Time, error) {
	query := `SELECT changing_date FROM folders WHERE cid = $1 AND id = $2 FOR UPDATE`

	var ms int64
	if err := r.db.QueryRowContext(ctx, query, contextID, id).Scan(&ms); err != nil {
		return time.Time{}, fmt.Errorf("db error: %w", dbx.Translate(err))
	}
	return models.FromMillis(ms), nil
}

// ReplacePermissions deletes every entry of the folder and inserts entries.
func (r *PostgresRepository) ReplacePermissions(ctx context.Context, contextID, id int, entries []models.PermissionEntry) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM folder_permissions WHERE cid = $1 AND folder_id = $2`, contextID, id); err != nil {
		return fmt.Errorf("db error: %w", dbx.Translate(err))
	}

	query := `INSERT INTO folder_permissions (cid, folder_id, principal, is_group, folder_level, read_level, write_level, delete_level, admin)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	for _, p := range entries {
		_, err := r.db.ExecContext(ctx, query, contextID, id, p.Principal, p.Kind == models.PrincipalGroup,
			int(p.Folder), int(p.Read), int(p.Write), int(p.Delete), p.Admin)
		if err != nil {
			return fmt.Errorf("db error: %w", dbx.Translate(err))
		}
	}
	return nil
}

func (r *PostgresRepository) Touch(ctx context.Context, contextID, id int, lastModified time.Time) error {
	res, err := r.db.ExecContext(ctx, `UPDATE folders SET changing_date = $3 WHERE cid = $1 AND id = $2`,
		contextID, id, models.ToMillis(lastModified))
	if err != nil {
		return fmt.Errorf("db error: %w", dbx.Translate(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return common.NotFound("", "folder row is gone")
	}
	return nil
}
