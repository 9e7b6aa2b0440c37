// Package model declares the example models and their relations.
package model

import (
	"github.com/mickamy/ormrel/orm"
	"github.com/mickamy/ormrel/relation"
)

// Register adds every example model to reg.
func Register(reg *relation.Registry) error {
	for _, m := range []struct {
		cfg   orm.ModelConfig
		decls relation.Declarations
	}{
		{User, UserRelations},
		{Profile, nil},
		{Post, PostRelations},
		{Tag, nil},
	} {
		if err := reg.Register(m.cfg, m.decls); err != nil {
			return err
		}
	}
	return nil
}

func ptr[T any](v T) *T { return &v }
