package relation

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Type is the cardinality of a relation.
type Type int

const (
	OneToOne Type = iota + 1
	BelongsTo
	OneToMany
	ManyToMany
)

func (t Type) String() string {
	switch t {
	case OneToOne:
		return "one_to_one"
	case BelongsTo:
		return "belongs_to"
	case OneToMany:
		return "one_to_many"
	case ManyToMany:
		return "many_to_many"
	default:
		return "Type(" + strconv.Itoa(int(t)) + ")"
	}
}

// IsList reports whether the relation merges as a list.
func (t Type) IsList() bool { return t == OneToMany || t == ManyToMany }

func (t Type) valid() bool { return t >= OneToOne && t <= ManyToMany }

// ParseType accepts a type name or its numeric tag (1 to 4).
//
//	relation.ParseType("has_many") // OneToMany
//	relation.ParseType("4")        // ManyToMany
func ParseType(s string) (Type, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "one_to_one", "has_one", "hasone":
		return OneToOne, nil
	case "belongs_to", "belongsto":
		return BelongsTo, nil
	case "one_to_many", "has_many", "hasmany":
		return OneToMany, nil
	case "many_to_many", "manytomany":
		return ManyToMany, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err == nil && Type(n).valid() {
		return Type(n), nil
	}
	return 0, errors.Errorf("relation: unknown type %q", s)
}
