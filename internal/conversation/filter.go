package conversation

import "strings"

// Filter narrows the result of Index.GetAll. Stages are applied in a
// fixed pipeline order; unset flags are skipped.
type Filter struct {
	OnlyUnread          bool
	NoDistributionLists bool
	NoHiddenChats       bool
	NoInvalid           bool
	OnlyPersonal        bool
	Query               string
}

func (f *Filter) active() bool {
	if f == nil {
		return false
	}
	return f.OnlyUnread || f.NoDistributionLists || f.NoHiddenChats ||
		f.NoInvalid || f.OnlyPersonal || f.Query != ""
}

// matchesQuery reports whether the display name matches the free-text
// search, case-insensitively.
func matchesQuery(query, displayName string) bool {
	if query == "" {
		return true
	}
	return strings.Contains(strings.ToLower(displayName), strings.ToLower(query))
}
