package model

import (
	"github.com/mickamy/ormrel/orm"
	"github.com/mickamy/ormrel/relation"
)

var User = orm.ModelConfig{
	Name:        "user",
	UniqueField: "email",
	CreatedAt:   "created_at",
}

var UserRelations = relation.Declarations{
	"profile": relation.Shorthand(relation.OneToOne),
	"posts": {
		Type:  relation.OneToMany,
		Model: "post",
		Order: relation.Static("id"),
		// Load each post's tags as well.
		Relation: ptr(relation.OnlyRelations("tags")),
	},
}

var Profile = orm.ModelConfig{Name: "profile"}
