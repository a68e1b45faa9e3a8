package objects

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/dmitrijs2005/groupware/internal/server/models"
)

// builder accumulates a WHERE clause with numbered placeholders.
type builder struct {
	where []string
	args  []any
}

func (b *builder) arg(v any) string {
	b.args = append(b.args, v)
	return "$" + strconv.Itoa(len(b.args))
}

func (b *builder) in(column string, values []int) string {
	ph := make([]string, len(values))
	for i, v := range values {
		ph[i] = b.arg(v)
	}
	return column + " IN (" + strings.Join(ph, ", ") + ")"
}

func (b *builder) add(cond string) { b.where = append(b.where, cond) }

// projection merges the requested fields with RequiredFields, drops unknown
// fields and returns them in ascending field order.
func projection(requested []models.Field) []models.Field {
	seen := make(map[models.Field]bool)
	var out []models.Field
	for _, f := range append(append([]models.Field(nil), RequiredFields...), requested...) {
		if seen[f] || !f.Valid() {
			continue
		}
		seen[f] = true
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func columns(fields []models.Field) string {
	cols := make([]string, len(fields))
	for i, f := range fields {
		cols[i], _ = f.Column()
	}
	return strings.Join(cols, ", ")
}

func orderExpr(f models.Field, dir models.OrderDirection) string {
	col, _ := f.Column()
	d := "ASC"
	if dir == models.OrderDesc {
		d = "DESC"
	}
	if f.IsText() {
		return "NULLIF(lower(" + col + "), '') " + d + " NULLS LAST"
	}
	return col + " " + d
}

// buildSelect renders q as a single SELECT statement.
func buildSelect(q Query) (string, []any, []models.Field) {
	fields := projection(q.Fields)
	b := &builder{}
	b.add("cid = " + b.arg(q.ContextID))

	var scope []string
	if len(q.FolderIDs) > 0 {
		scope = append(scope, b.in("folder_id", q.FolderIDs))
	}
	if len(q.OwnFolderIDs) > 0 {
		scope = append(scope, "("+b.in("folder_id", q.OwnFolderIDs)+" AND created_by = "+b.arg(q.Owner)+")")
	}
	if q.InternalUsers {
		scope = append(scope, "internal_user_id IS NOT NULL")
	}
	if len(scope) > 0 {
		b.add("(" + strings.Join(scope, " OR ") + ")")
	}
	if len(q.IDs) > 0 {
		b.add(b.in("id", q.IDs))
	}
	if len(q.InternalUserIDs) > 0 {
		b.add(b.in("internal_user_id", q.InternalUserIDs))
	}
	if q.CreatedBy != 0 {
		b.add("created_by = " + b.arg(q.CreatedBy))
	}
	if !q.ModifiedSince.IsZero() {
		b.add("changing_date >= " + b.arg(models.ToMillis(q.ModifiedSince)))
	}
	if len(q.Patterns) > 0 {
		keys := make([]models.Field, 0, len(q.Patterns))
		for f := range q.Patterns {
			if f.IsText() {
				keys = append(keys, f)
			}
		}
		sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
		var ors []string
		for _, f := range keys {
			col, _ := f.Column()
			ors = append(ors, "lower("+col+") LIKE "+b.arg(q.Patterns[f])+` ESCAPE '\'`)
		}
		if len(ors) > 0 {
			b.add("(" + strings.Join(ors, " OR ") + ")")
		}
	}

	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(columns(fields))
	sb.WriteString(" FROM objects WHERE ")
	sb.WriteString(strings.Join(b.where, " AND "))

	var order []string
	for _, o := range q.Order {
		if o.Field.Valid() && o.Field != models.FieldAttributes {
			order = append(order, orderExpr(o.Field, o.Dir))
		}
	}
	if q.SpecialSort && len(order) == 0 {
		for _, f := range models.SpecialSortFields {
			order = append(order, orderExpr(f, models.OrderAsc))
		}
	}
	order = append(order, "id ASC")
	sb.WriteString(" ORDER BY ")
	sb.WriteString(strings.Join(order, ", "))

	if q.Limit > 0 {
		sb.WriteString(" LIMIT " + b.arg(q.Limit))
	}
	if q.Offset > 0 {
		sb.WriteString(" OFFSET " + b.arg(q.Offset))
	}
	return sb.String(), b.args, fields
}

// scanner returns scan destinations for fields and a function that copies
// the scanned values into o.
func scanner(o *models.Object, fields []models.Field) ([]any, func() error) {
	dest := make([]any, len(fields))
	var finish []func() error

	for i, f := range fields {
		switch f {
		case models.FieldID:
			dest[i] = &o.ID
		case models.FieldFolderID:
			dest[i] = &o.FolderID
		case models.FieldCreatedBy:
			dest[i] = &o.CreatedBy
		case models.FieldModifiedBy:
			dest[i] = &o.ModifiedBy
		case models.FieldCreationDate:
			var ms int64
			dest[i] = &ms
			finish = append(finish, func() error { o.CreatedAt = models.FromMillis(ms); return nil })
		case models.FieldLastModified:
			var ms int64
			dest[i] = &ms
			finish = append(finish, func() error { o.LastModified = models.FromMillis(ms); return nil })
		case models.FieldInternalUserID:
			var v sql.NullInt64
			dest[i] = &v
			finish = append(finish, func() error { o.InternalUserID = int(v.Int64); return nil })
		case models.FieldAttributes:
			var raw []byte
			dest[i] = &raw
			finish = append(finish, func() error {
				attrs, err := decodeAttributes(raw)
				o.Attributes = attrs
				return err
			})
		default:
			var s string
			dest[i] = &s
			field := f
			finish = append(finish, func() error { o.Set(field, s); return nil })
		}
	}

	return dest, func() error {
		for _, fn := range finish {
			if err := fn(); err != nil {
				return err
			}
		}
		return nil
	}
}

func encodeAttributes(a models.Attributes) ([]byte, error) {
	flat := make(map[string]map[string]string, len(a))
	for ns, kv := range a {
		m := make(map[string]string, len(kv))
		for k, v := range kv {
			if v != nil {
				m[k] = *v
			}
		}
		if len(m) > 0 {
			flat[ns] = m
		}
	}
	return json.Marshal(flat)
}

func decodeAttributes(raw []byte) (models.Attributes, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var flat map[string]map[string]string
	if err := json.Unmarshal(raw, &flat); err != nil {
		return nil, fmt.Errorf("decode attributes: %w", err)
	}
	if len(flat) == 0 {
		return nil, nil
	}
	out := make(models.Attributes, len(flat))
	for ns, kv := range flat {
		m := make(map[string]*string, len(kv))
		for k, v := range kv {
			v := v
			m[k] = &v
		}
		out[ns] = m
	}
	return out, nil
}

func nullableInt(v int) any {
	if v == 0 {
		return nil
	}
	return int64(v)
}
