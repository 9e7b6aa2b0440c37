package relation

import (
	"github.com/mickamy/ormrel/orm"
	"github.com/mickamy/ormrel/scope"
)

// Declaration is a relation as written by the user. Empty fields take
// their defaults when the relation is resolved into a Descriptor.
type Declaration struct {
	Type           Type   // defaults to OneToOne
	Model          string // target model; defaults to the relation name
	Key            string // local key; defaults to the owner's primary key
	ForeignKey     string // defaults to <owner>_id
	JoinTable      string // ManyToMany only
	JoinForeignKey string // ManyToMany only; defaults to <model>_id

	Field Option[[]string]
	Where Option[scope.Cond]
	Order Option[string]
	Limit Option[int]
	Page  Option[orm.Page]

	// Scopes are applied after the options above, so they can narrow
	// the where, extend the order or override the limit.
	Scopes Option[scope.Scopes]

	// Relation overrides the activation of the target entity. Nil keeps
	// the target's relations off.
	Relation *Activation
}

// Declarations maps relation names to their declarations.
type Declarations map[string]Declaration

// Shorthand declares a relation by type alone.
//
//	relation.Declarations{"profile": relation.Shorthand(relation.OneToOne)}
func Shorthand(t Type) Declaration {
	return Declaration{Type: t}
}

func (ds Declarations) clone() Declarations {
	out := make(Declarations, len(ds))
	for name, d := range ds {
		out[name] = d
	}
	return out
}
