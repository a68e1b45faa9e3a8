package models

// MatchMode selects how a pattern is compared to a field value.
type MatchMode int

const (
	MatchPrefix MatchMode = iota
	MatchContains
)

// SearchCriteria describes one search call. Pattern and FieldPatterns are
// OR'd together; an empty Folders slice means every readable folder.
type SearchCriteria struct {
	Pattern       string
	FieldPatterns map[Field]string
	Folders       []int
	Match         MatchMode
	AutoComplete  bool
}
