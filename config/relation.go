package config

import (
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/mickamy/ormrel/orm"
	"github.com/mickamy/ormrel/relation"
	"github.com/mickamy/ormrel/scope"
)

// RelationEntry is one relation of a model. It is either a bare type
// ("has_many", "4") or a mapping.
type RelationEntry struct {
	Type           relation.Type
	Model          string
	Key            string
	ForeignKey     string
	JoinTable      string
	JoinForeignKey string
	Field          []string
	Where          map[string]any
	Order          string
	Limit          int
	Page           *PageEntry
	Relations      *ActivationEntry
}

// PageEntry is a page of a relation's rows.
type PageEntry struct {
	Number int `yaml:"number"`
	Size   int `yaml:"size"`
}

type relationFields struct {
	Type           string           `yaml:"type"`
	Model          string           `yaml:"model"`
	Key            string           `yaml:"key"`
	ForeignKey     string           `yaml:"foreign_key"`
	JoinTable      string           `yaml:"join_table"`
	JoinForeignKey string           `yaml:"join_foreign_key"`
	Field          stringList       `yaml:"field"`
	Where          map[string]any   `yaml:"where"`
	Order          string           `yaml:"order"`
	Limit          int              `yaml:"limit"`
	Page           *PageEntry       `yaml:"page"`
	Relations      *ActivationEntry `yaml:"relations"`
}

func (r *RelationEntry) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		t, err := relation.ParseType(value.Value)
		if err != nil {
			return errors.Wrapf(err, "line %d", value.Line)
		}
		*r = RelationEntry{Type: t}
		return nil
	}

	var f relationFields
	if err := value.Decode(&f); err != nil {
		return err //nolint:wrapcheck // yaml errors carry the line
	}
	t, err := relation.ParseType(f.Type)
	if err != nil {
		return errors.Wrapf(err, "line %d", value.Line)
	}
	*r = RelationEntry{
		Type:           t,
		Model:          f.Model,
		Key:            f.Key,
		ForeignKey:     f.ForeignKey,
		JoinTable:      f.JoinTable,
		JoinForeignKey: f.JoinForeignKey,
		Field:          f.Field,
		Where:          f.Where,
		Order:          f.Order,
		Limit:          f.Limit,
		Page:           f.Page,
		Relations:      f.Relations,
	}
	return nil
}

// Declaration converts the entry to a relation declaration.
func (r RelationEntry) Declaration() relation.Declaration {
	d := relation.Declaration{
		Type:           r.Type,
		Model:          r.Model,
		Key:            r.Key,
		ForeignKey:     r.ForeignKey,
		JoinTable:      r.JoinTable,
		JoinForeignKey: r.JoinForeignKey,
	}
	if len(r.Field) > 0 {
		d.Field = relation.Static(r.Field)
	}
	if len(r.Where) > 0 {
		d.Where = relation.Static(scope.Match(r.Where))
	}
	if r.Order != "" {
		d.Order = relation.Static(r.Order)
	}
	if r.Limit > 0 {
		d.Limit = relation.Static(r.Limit)
	}
	if r.Page != nil {
		d.Page = relation.Static(orm.Page{Number: r.Page.Number, Size: r.Page.Size})
	}
	if r.Relations != nil {
		a := r.Relations.Activation()
		d.Relation = &a
	}
	return d
}

// ActivationEntry is a nested activation: true, false, "a,b" or [a, b].
type ActivationEntry struct {
	All   bool
	Names []string
}

func (a *ActivationEntry) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode && value.Tag == "!!bool" {
		return value.Decode(&a.All) //nolint:wrapcheck // yaml errors carry the line
	}
	var names stringList
	if err := value.Decode(&names); err != nil {
		return err //nolint:wrapcheck // yaml errors carry the line
	}
	a.Names = names
	return nil
}

// Activation converts the entry to a relation activation.
func (a ActivationEntry) Activation() relation.Activation {
	switch {
	case a.All:
		return relation.AllRelations()
	case len(a.Names) > 0:
		return relation.OnlyRelations(a.Names...)
	default:
		return relation.NoRelations()
	}
}

// stringList accepts either a sequence or a comma separated string.
type stringList []string

func (s *stringList) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		var out []string
		for _, part := range strings.Split(value.Value, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		*s = out
		return nil
	}
	var out []string
	if err := value.Decode(&out); err != nil {
		return err //nolint:wrapcheck // yaml errors carry the line
	}
	*s = out
	return nil
}
