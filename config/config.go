// Package config loads model and relation declarations from YAML.
//
//	prefix: app_
//	plural: true
//	models:
//	  user:
//	    relations:
//	      profile: has_one
//	      posts:
//	        type: has_many
//	        model: post
//	        order: id DESC
//	  post:
//	    relations:
//	      tags: many_to_many
//	  tag:
//	    unique: sku
package config

import (
	"io"
	"os"
	"sort"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/mickamy/ormrel/orm"
	"github.com/mickamy/ormrel/relation"
)

// Schema is the top level of a schema file.
type Schema struct {
	Prefix string                `yaml:"prefix"`
	Plural bool                  `yaml:"plural"`
	Models map[string]ModelEntry `yaml:"models"`
}

// ModelEntry describes one model.
type ModelEntry struct {
	Table      string                   `yaml:"table"`
	PrimaryKey string                   `yaml:"primary_key"`
	Unique     string                   `yaml:"unique"`
	Columns    []string                 `yaml:"columns"`
	CreatedAt  string                   `yaml:"created_at"`
	UpdatedAt  string                   `yaml:"updated_at"`
	Relations  map[string]RelationEntry `yaml:"relations"`
}

// Load reads a schema file.
func Load(path string) (*Schema, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "config: open schema")
	}
	defer func() { _ = f.Close() }()

	s, err := Parse(f)
	if err != nil {
		return nil, errors.Wrapf(err, "config: %s", path)
	}
	return s, nil
}

// Parse decodes a schema from r.
func Parse(r io.Reader) (*Schema, error) {
	var s Schema
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil && !errors.Is(err, io.EOF) {
		return nil, errors.Wrap(err, "decode")
	}
	return &s, nil
}

// Options returns the registry options implied by the schema.
func (s *Schema) Options() []relation.RegistryOption {
	var opts []relation.RegistryOption
	if s.Prefix != "" {
		opts = append(opts, relation.WithTablePrefix(s.Prefix))
	}
	if s.Plural {
		opts = append(opts, relation.WithPluralTables())
	}
	return opts
}

// Register registers every model of the schema, in name order.
func (s *Schema) Register(reg *relation.Registry) error {
	names := make([]string, 0, len(s.Models))
	for name := range s.Models {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		m := s.Models[name]
		cfg := orm.ModelConfig{
			Name:        name,
			Table:       m.Table,
			PrimaryKey:  m.PrimaryKey,
			UniqueField: m.Unique,
			Columns:     m.Columns,
			CreatedAt:   m.CreatedAt,
			UpdatedAt:   m.UpdatedAt,
		}
		decls := make(relation.Declarations, len(m.Relations))
		for rel, entry := range m.Relations {
			decls[rel] = entry.Declaration()
		}
		if err := reg.Register(cfg, decls); err != nil {
			return errors.Wrapf(err, "config: model %q", name)
		}
	}
	return nil
}

// NewRegistry builds a registry on db holding every model of the schema.
func (s *Schema) NewRegistry(db orm.Querier, opts ...relation.RegistryOption) (*relation.Registry, error) {
	reg := relation.NewRegistry(db, append(s.Options(), opts...)...)
	if err := s.Register(reg); err != nil {
		return nil, err
	}
	return reg, nil
}
