package repo

import (
	"context"

	"github.com/mickamy/ormrel/orm"
	"github.com/mickamy/ormrel/relation"
	"github.com/mickamy/ormrel/scope"
)

// UserRepository wraps the user entity with a repository pattern.
type UserRepository struct {
	reg *relation.Registry
}

func NewUserRepository(reg *relation.Registry) *UserRepository {
	return &UserRepository{reg: reg}
}

// WithTx returns a repository running on tx.
func (r *UserRepository) WithTx(tx *orm.Tx) *UserRepository {
	return &UserRepository{reg: r.reg.WithQuerier(tx)}
}

func (r *UserRepository) users() (*relation.Entity, error) {
	return r.reg.Entity("user")
}

// Create adds a user along with any profile, posts and tags in data.
func (r *UserRepository) Create(ctx context.Context, data orm.Row) (any, error) {
	users, err := r.users()
	if err != nil {
		return nil, err
	}
	return users.Add(ctx, data)
}

func (r *UserRepository) FindByID(ctx context.Context, id any) (orm.Row, error) {
	users, err := r.users()
	if err != nil {
		return nil, err
	}
	return users.Where(scope.Eq("id", id)).Find(ctx)
}

// FindAll returns every user; only the named relations are loaded when
// relations is not empty.
func (r *UserRepository) FindAll(ctx context.Context, relations ...string) ([]orm.Row, error) {
	users, err := r.users()
	if err != nil {
		return nil, err
	}
	if len(relations) > 0 {
		users.SetRelation(relations, true)
	}
	return users.Options(orm.QueryOptions{Order: "id"}).Select(ctx)
}

func (r *UserRepository) Update(ctx context.Context, data orm.Row) error {
	users, err := r.users()
	if err != nil {
		return err
	}
	_, err = users.Update(ctx, data)
	return err
}

func (r *UserRepository) Delete(ctx context.Context, id any) error {
	users, err := r.users()
	if err != nil {
		return err
	}
	_, err = users.Delete(ctx, orm.Row{"id": id})
	return err
}
