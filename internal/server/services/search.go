package services

import (
	"context"
	"database/sql"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/dmitrijs2005/groupware/internal/common"
	"github.com/dmitrijs2005/groupware/internal/logging"
	"github.com/dmitrijs2005/groupware/internal/server/config"
	"github.com/dmitrijs2005/groupware/internal/server/cursor"
	"github.com/dmitrijs2005/groupware/internal/server/folders"
	"github.com/dmitrijs2005/groupware/internal/server/models"
	"github.com/dmitrijs2005/groupware/internal/server/repositories/objects"
	"github.com/dmitrijs2005/groupware/internal/server/repositories/repomanager"
)

// SearchService matches objects across the caller's folders.
type SearchService struct {
	base
	minChars   int
	maxResults int
}

func NewSearchService(db *sql.DB, m repomanager.RepositoryManager, catalog *folders.Catalog, log logging.Logger, cfg *config.Config) *SearchService {
	return &SearchService{
		base: base{
			db:          db,
			repomanager: m,
			catalog:     catalog,
			log:         log.With("module", "search"),
			now:         time.Now,
		},
		minChars:   cfg.MinimumSearchCharacters,
		maxResults: cfg.MaxSearchResults,
	}
}

// Search runs c and returns the matches, at most the configured maximum. A
// zero orderField sorts by the special sort.
func (s *SearchService) Search(ctx context.Context, id models.Identity, c models.SearchCriteria,
	orderField models.Field, dir models.OrderDirection, cols []models.Field) (*cursor.Iterator[*models.Object], error) {
	const op = "search.Search"
	if err := validateFields(op, cols); err != nil {
		return nil, err
	}
	if orderField != 0 && (!orderField.Valid() || orderField == models.FieldAttributes) {
		return nil, common.Malformed(op, "field cannot be ordered by").With(id.ContextID, id.UserID, 0, 0)
	}
	patterns, err := s.patterns(op, c)
	if err != nil {
		return nil, common.Annotate(err, op, id.ContextID, id.UserID, 0, 0)
	}

	scope, err := s.scope(ctx, op, id, c)
	if err != nil {
		return nil, err
	}
	if len(scope) == 0 {
		return cursor.Empty[*models.Object](), nil
	}

	sortBy := []models.Field{orderField}
	if orderField == 0 {
		sortBy = models.SpecialSortFields
	}
	// alias matches are merged by address and sort fields, so auto-complete
	// fetches both and trims them again before returning
	fetch, extra := cols, []models.Field(nil)
	if c.AutoComplete {
		fetch, extra = withFields(cols, append(append([]models.Field(nil), sortBy...), models.EmailFields...))
	}

	q := objects.Query{ContextID: id.ContextID, Patterns: patterns, Fields: fetch, Limit: s.maxResults}
	var usersReadable bool
	for _, a := range scope {
		a.scope(&q, id.UserID)
		usersReadable = usersReadable || (a.folder.ID == models.SystemUsersFolderID && a.eff.CanReadAll)
	}
	if orderField != 0 {
		q.Order = []objects.Order{{Field: orderField, Dir: dir}}
	} else {
		q.SpecialSort = true
	}

	it, err := s.openQuery(ctx, q)
	if err != nil {
		return nil, common.Annotate(err, op, id.ContextID, id.UserID, 0, 0)
	}
	found, err := cursor.Collect(it)
	if err != nil {
		return nil, common.Annotate(err, op, id.ContextID, id.UserID, 0, 0)
	}

	if c.AutoComplete && usersReadable && c.Pattern != "" {
		aliases, err := s.aliasMatches(ctx, id, c, found, fetch)
		if err != nil {
			return nil, common.Annotate(err, op, id.ContextID, id.UserID, models.SystemUsersFolderID, 0)
		}
		if len(aliases) > 0 {
			found = append(found, aliases...)
			sortMerged(found, orderField, dir)
		}
	}
	if s.maxResults > 0 && len(found) > s.maxResults {
		found = found[:s.maxResults]
	}
	for _, o := range found {
		trim(o, extra)
	}

	s.log.Debug(ctx, "search served", "context", id.ContextID, "user", id.UserID, "folders", len(scope), "results", len(found))
	return cursor.FromSlice(found), nil
}

// patterns validates the criteria and turns them into per-field LIKE
// patterns. A field pattern wins over the general pattern on its field.
func (s *SearchService) patterns(op string, c models.SearchCriteria) (map[models.Field]string, error) {
	if c.Pattern == "" && len(c.FieldPatterns) == 0 {
		return nil, common.Malformed(op, "empty search")
	}
	out := make(map[models.Field]string)
	if c.Pattern != "" {
		if err := s.checkLength(op, c.Pattern); err != nil {
			return nil, err
		}
		for _, f := range models.SearchFields {
			out[f] = objects.LikePattern(c.Pattern, c.Match)
		}
	}
	for f, p := range c.FieldPatterns {
		if !f.IsText() {
			return nil, common.Malformed(op, "field cannot be searched")
		}
		if err := s.checkLength(op, p); err != nil {
			return nil, err
		}
		out[f] = objects.LikePattern(p, c.Match)
	}
	return out, nil
}

// checkLength rejects patterns shorter than the configured minimum. Wildcards
// do not count.
func (s *SearchService) checkLength(op, pattern string) error {
	n := len([]rune(strings.ReplaceAll(pattern, "*", "")))
	if n < s.minChars {
		return common.Malformed(op, "search pattern too short")
	}
	return nil
}

// scope resolves the folders searched. Named folders must all be readable;
// an empty list or the virtual contact folder stands for every readable
// folder. Auto-complete adds the default folder and the system users folder.
func (s *SearchService) scope(ctx context.Context, op string, id models.Identity, c models.SearchCriteria) ([]*access, error) {
	var out []*access
	seen := make(map[int]bool)
	add := func(a *access) {
		if !seen[a.folder.ID] {
			seen[a.folder.ID] = true
			out = append(out, a)
		}
	}

	all := len(c.Folders) == 0
	for _, fid := range c.Folders {
		if fid == models.VirtualContactFolderID {
			if _, err := s.authorize(ctx, op, id, fid); err != nil {
				return nil, err
			}
			all = true
			continue
		}
		a, err := s.readable(ctx, op, id, fid)
		if err != nil {
			return nil, err
		}
		add(a)
	}

	if all {
		readable, err := s.catalog.ReadableFolders(ctx, id, objectModule)
		if err != nil {
			return nil, common.Annotate(err, op, id.ContextID, id.UserID, 0, 0)
		}
		for _, f := range readable {
			if a, err := s.readable(ctx, op, id, f.ID); err == nil {
				add(a)
			}
		}
	}

	if c.AutoComplete {
		def, err := s.catalog.DefaultFolder(ctx, id.ContextID, id.UserID, objectModule)
		switch {
		case err == nil:
			if a, err := s.readable(ctx, op, id, def); err == nil {
				add(a)
			}
		case common.KindOf(err) != common.KindNotFound:
			return nil, common.Annotate(err, op, id.ContextID, id.UserID, 0, 0)
		}
		if a, err := s.readable(ctx, op, id, models.SystemUsersFolderID); err == nil {
			add(a)
		}
	}
	return out, nil
}

// aliasMatches finds users whose secondary addresses match the pattern and
// returns one entry per address not already among found. Each entry is the
// user's contact carrying the alias as its only address.
func (s *SearchService) aliasMatches(ctx context.Context, id models.Identity, c models.SearchCriteria,
	found []*models.Object, cols []models.Field) ([]*models.Object, error) {
	known := make(map[string]bool)
	for _, o := range found {
		for _, f := range models.EmailFields {
			if v := o.Value(f); v != "" {
				known[strings.ToLower(v)] = true
			}
		}
	}

	matches, err := s.repomanager.Aliases(s.db).Search(ctx, id.ContextID, objects.LikePattern(c.Pattern, c.Match), s.maxResults)
	if err != nil {
		return nil, err
	}
	var userIDs []int
	byUser := make(map[int][]string)
	for _, m := range matches {
		addr := strings.ToLower(m.Address)
		if known[addr] {
			continue
		}
		known[addr] = true
		if _, ok := byUser[m.UserID]; !ok {
			userIDs = append(userIDs, m.UserID)
		}
		byUser[m.UserID] = append(byUser[m.UserID], m.Address)
	}
	if len(userIDs) == 0 {
		return nil, nil
	}

	it, err := s.openQuery(ctx, objects.Query{
		ContextID:       id.ContextID,
		InternalUsers:   true,
		InternalUserIDs: userIDs,
		Fields:          append(append([]models.Field(nil), cols...), models.FieldInternalUserID),
	})
	if err != nil {
		return nil, err
	}
	users, err := cursor.Collect(it)
	if err != nil {
		return nil, err
	}

	var out []*models.Object
	for _, u := range users {
		for _, addr := range byUser[u.InternalUserID] {
			o := u.Clone()
			for _, f := range models.EmailFields {
				delete(o.Values, f)
			}
			o.Set(models.FieldEmail1, addr)
			if !slices.Contains(cols, models.FieldInternalUserID) {
				o.InternalUserID = 0
			}
			out = append(out, o)
		}
	}
	return out, nil
}

// sortMerged restores the store order over found after alias matches were
// appended.
func sortMerged(found []*models.Object, orderField models.Field, dir models.OrderDirection) {
	if orderField == 0 {
		sort.SliceStable(found, func(i, j int) bool { return models.CompareSpecial(found[i], found[j]) < 0 })
		return
	}
	sort.SliceStable(found, func(i, j int) bool {
		if c := models.CompareField(found[i], found[j], orderField, dir); c != 0 {
			return c < 0
		}
		return found[i].ID < found[j].ID
	})
}

// withFields returns cols extended by the valid fields of more it lacks,
// and those added fields.
func withFields(cols, more []models.Field) ([]models.Field, []models.Field) {
	out := append([]models.Field(nil), cols...)
	var added []models.Field
	for _, f := range more {
		if f.Valid() && !slices.Contains(out, f) && !slices.Contains(objects.RequiredFields, f) {
			out = append(out, f)
			added = append(added, f)
		}
	}
	return out, added
}

// trim clears fields of o that were fetched for internal use only.
func trim(o *models.Object, fields []models.Field) {
	for _, f := range fields {
		switch f {
		case models.FieldModifiedBy:
			o.ModifiedBy = 0
		case models.FieldCreationDate:
			o.CreatedAt = time.Time{}
		case models.FieldInternalUserID:
			o.InternalUserID = 0
		case models.FieldAttributes:
			o.Attributes = nil
		default:
			delete(o.Values, f)
		}
	}
}
