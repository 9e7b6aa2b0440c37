package relation

import (
	"strings"

	"github.com/mickamy/ormrel/internal/naming"
	"github.com/mickamy/ormrel/orm"
)

// Descriptor is a relation with every default filled in.
//
// Key is the column read from the base row and ForeignKey the column
// matched against it on the fetched rows. For ManyToMany, ForeignKey and
// JoinForeignKey are columns of JoinTable referencing the owner and the
// target.
type Descriptor struct {
	Name           string
	Type           Type
	Model          string
	Key            string
	ForeignKey     string
	JoinTable      string
	JoinForeignKey string

	decl Declaration
}

// Resolve fills in the defaults that depend only on the owner.
// BelongsTo inversion and join table naming need the target model and
// happen in bind.
func Resolve(name string, d Declaration, owner, pk string) Descriptor {
	desc := Descriptor{
		Name:           name,
		Type:           d.Type,
		Model:          d.Model,
		Key:            d.Key,
		ForeignKey:     d.ForeignKey,
		JoinTable:      d.JoinTable,
		JoinForeignKey: d.JoinForeignKey,
		decl:           d,
	}
	if desc.Type == 0 {
		desc.Type = OneToOne
	}
	if desc.Model == "" {
		desc.Model = name
	}
	if desc.Key == "" {
		desc.Key = pk
	}
	if desc.ForeignKey == "" {
		desc.ForeignKey = naming.ForeignKey(owner)
	}
	return desc
}

// bind applies the defaults that depend on the resolved target.
func (d *Descriptor) bind(owner, target *orm.Model) {
	switch d.Type {
	case BelongsTo:
		// The base row holds the reference: <target>_id points at the
		// target's primary key.
		if d.decl.Key == "" {
			d.Key = naming.ForeignKey(d.Model)
		}
		if d.decl.ForeignKey == "" {
			d.ForeignKey = target.PrimaryKey()
		}
	case ManyToMany:
		if d.JoinForeignKey == "" {
			d.JoinForeignKey = naming.ForeignKey(d.Model)
		}
		prefix := owner.TablePrefix()
		switch {
		case d.JoinTable == "":
			d.JoinTable = naming.JoinTable(prefix, owner.Table(), d.Model)
		case prefix != "" && !strings.HasPrefix(d.JoinTable, prefix):
			d.JoinTable = prefix + d.JoinTable
		}
	}
}
