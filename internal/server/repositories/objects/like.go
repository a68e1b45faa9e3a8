package objects

import (
	"strings"

	"github.com/dmitrijs2005/groupware/internal/server/models"
)

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// LikePattern turns a user search pattern into a lower-case LIKE pattern.
// LIKE metacharacters are escaped and '*' becomes a wildcard.
func LikePattern(pattern string, mode models.MatchMode) string {
	p := likeEscaper.Replace(strings.ToLower(strings.TrimSpace(pattern)))
	p = strings.ReplaceAll(p, "*", "%")
	if mode == models.MatchContains && !strings.HasPrefix(p, "%") {
		p = "%" + p
	}
	if !strings.HasSuffix(p, "%") || strings.HasSuffix(p, `\%`) {
		p += "%"
	}
	return p
}

// MatchLike is LikePattern's reference semantics, for stores that evaluate
// patterns in process.
func MatchLike(value, pattern string) bool {
	value = strings.ToLower(value)
	var parts []string
	var cur strings.Builder
	for i := 0; i < len(pattern); i++ {
		c := pattern[i]
		switch {
		case c == '\\' && i+1 < len(pattern):
			i++
			cur.WriteByte(pattern[i])
		case c == '%':
			parts = append(parts, cur.String())
			cur.Reset()
		default:
			cur.WriteByte(c)
		}
	}
	parts = append(parts, cur.String())

	if len(parts) == 1 {
		return value == parts[0]
	}
	if !strings.HasPrefix(value, parts[0]) {
		return false
	}
	value = value[len(parts[0]):]
	last := parts[len(parts)-1]
	for _, p := range parts[1 : len(parts)-1] {
		i := strings.Index(value, p)
		if i < 0 {
			return false
		}
		value = value[i+len(p):]
	}
	return strings.HasSuffix(value, last)
}
