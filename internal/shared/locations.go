package shared

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// LocationSet is a closed set of named locations such as stock zones or godowns.
type LocationSet struct {
	names []string
	index map[string]string
}

// NewLocationSet builds a set from configured names. Empty entries are skipped.
func NewLocationSet(names []string) LocationSet {
	set := LocationSet{index: make(map[string]string, len(names))}
	for _, n := range names {
		canonical := CanonicalLocation(n)
		if canonical == "" {
			continue
		}
		key := strings.ToLower(canonical)
		if _, dup := set.index[key]; dup {
			continue
		}
		set.index[key] = canonical
		set.names = append(set.names, canonical)
	}
	return set
}

// CanonicalLocation trims and title-cases a location name.
func CanonicalLocation(name string) string {
	name = strings.Join(strings.Fields(name), " ")
	if name == "" {
		return ""
	}
	return cases.Title(language.English).String(strings.ToLower(name))
}

// Resolve returns the canonical name when name belongs to the set.
func (s LocationSet) Resolve(name string) (string, bool) {
	canonical, ok := s.index[strings.ToLower(CanonicalLocation(name))]
	return canonical, ok
}

// Names lists the canonical names in configuration order.
func (s LocationSet) Names() []string {
	out := make([]string, len(s.names))
	copy(out, s.names)
	return out
}
