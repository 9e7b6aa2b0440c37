package relation

import (
	"sort"
	"strings"
)

// Activation selects which declared relations are resolved.
// The zero Activation enables none.
type Activation struct {
	all   bool
	names map[string]struct{}
}

// AllRelations enables every declared relation.
func AllRelations() Activation { return Activation{all: true} }

// NoRelations disables every relation.
func NoRelations() Activation { return Activation{} }

// OnlyRelations enables the named relations. Each name may itself be a
// comma separated list.
//
//	relation.OnlyRelations("profile,posts", "tags")
func OnlyRelations(names ...string) Activation {
	a := Activation{names: make(map[string]struct{})}
	for _, n := range splitNames(names) {
		a.names[n] = struct{}{}
	}
	return a
}

// Enabled reports whether the relation called name is active.
func (a Activation) Enabled(name string) bool {
	if a.all {
		return true
	}
	_, ok := a.names[name]
	return ok
}

// IsEmpty reports whether no relation can be active.
func (a Activation) IsEmpty() bool { return !a.all && len(a.names) == 0 }

// Active returns the declared relation names enabled by a, sorted.
func (a Activation) Active(declared Declarations) []string {
	var out []string
	for name := range declared {
		if a.Enabled(name) {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

func splitNames(names []string) []string {
	var out []string
	for _, n := range names {
		for _, part := range strings.Split(n, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
