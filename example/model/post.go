package model

import (
	"github.com/mickamy/ormrel/orm"
	"github.com/mickamy/ormrel/relation"
)

var Post = orm.ModelConfig{Name: "post"}

var PostRelations = relation.Declarations{
	"user": relation.Shorthand(relation.BelongsTo),
	"tags": {Type: relation.ManyToMany, Model: "tag", Order: relation.Static("b.name")},
}

var Tag = orm.ModelConfig{Name: "tag", UniqueField: "name"}
