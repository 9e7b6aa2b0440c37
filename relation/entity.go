package relation

import (
	"context"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/mickamy/ormrel/orm"
	"github.com/mickamy/ormrel/scope"
)

// Entity is a model handle carrying relation declarations and the
// relations active for the current operation. Setters mutate the
// handle and return it for chaining; get a fresh one from
// Registry.Entity per operation.
type Entity struct {
	model     *orm.Model
	relations Declarations
	active    Activation
	opts      orm.QueryOptions
	values    map[string]any
	reg       *Registry
	log       logrus.FieldLogger
}

// Model returns the underlying model with the entity's query options applied.
func (e *Entity) Model() *orm.Model { return e.model.Options(e.opts) }

// Name returns the model name.
func (e *Entity) Name() string { return e.model.Name() }

// Relations returns a copy of the declared relations.
func (e *Entity) Relations() Declarations { return e.relations.clone() }

// Declare adds or replaces a single relation declaration.
func (e *Entity) Declare(name string, d Declaration) *Entity {
	e.relations[name] = d
	return e
}

// DeclareAll merges ds into the declared relations.
func (e *Entity) DeclareAll(ds Declarations) *Entity {
	for name, d := range ds {
		e.relations[name] = d
	}
	return e
}

// EnableRelations turns every declared relation on or off.
func (e *Entity) EnableRelations(enabled bool) *Entity {
	if enabled {
		e.active = AllRelations()
	} else {
		e.active = NoRelations()
	}
	return e
}

// SetRelation activates exactly the named relations, or with enabled
// false every declared relation except them. Names may be comma separated.
//
//	e.SetRelation([]string{"profile"}, false) // all but profile
func (e *Entity) SetRelation(names []string, enabled bool) *Entity {
	if enabled {
		e.active = OnlyRelations(names...)
		return e
	}
	excluded := OnlyRelations(names...)
	var keep []string
	for name := range e.relations {
		if !excluded.Enabled(name) {
			keep = append(keep, name)
		}
	}
	e.active = OnlyRelations(keep...)
	return e
}

// SetActivation replaces the activation wholesale.
func (e *Entity) SetActivation(a Activation) *Entity {
	e.active = a
	return e
}

// ActiveRelations returns the declared relations that are active, sorted.
func (e *Entity) ActiveRelations() []string {
	if len(e.relations) == 0 || e.active.IsEmpty() {
		return nil
	}
	return e.active.Active(e.relations)
}

// Options sets the query options used by Find and Select.
func (e *Entity) Options(o orm.QueryOptions) *Entity {
	e.opts = o
	return e
}

// Where narrows Find, Select, Update and Delete.
func (e *Entity) Where(c scope.Cond) *Entity {
	e.opts.Where = scope.And(e.opts.Where, c)
	return e
}

// Set stores a value computed options can read with Get.
func (e *Entity) Set(key string, v any) *Entity {
	if e.values == nil {
		e.values = make(map[string]any)
	}
	e.values[key] = v
	return e
}

// Get returns a value stored with Set.
func (e *Entity) Get(key string) any { return e.values[key] }

// describe resolves the relation called name and its target entity.
func (e *Entity) describe(name string) (Descriptor, *Entity, error) {
	desc := Resolve(name, e.relations[name], e.model.Name(), e.model.PrimaryKey())
	target, err := e.reg.Entity(desc.Model)
	if err != nil {
		return Descriptor{}, nil, errors.Wrapf(err, "relation %q", name)
	}
	desc.Model = target.Name()
	target.active = NoRelations()
	if a := desc.decl.Relation; a != nil {
		target.active = *a
	}
	desc.bind(e.model, target.model)
	return desc, target, nil
}

// --- lifecycle hooks ---

// AfterFind resolves the active relations of a row returned by Find.
func (e *Entity) AfterFind(ctx context.Context, row orm.Row) (orm.Row, error) {
	return e.Hydrate(ctx, row)
}

// AfterSelect resolves the active relations of rows returned by Select,
// one query per relation.
func (e *Entity) AfterSelect(ctx context.Context, rows []orm.Row) ([]orm.Row, error) {
	return e.HydrateAll(ctx, rows)
}

// AfterAdd writes the relation payloads of an added row. data must
// already carry the base row's key.
func (e *Entity) AfterAdd(ctx context.Context, data orm.Row) error {
	return e.PostRelation(ctx, PostAdd, data)
}

// AfterUpdate replaces the related rows with the payloads in data.
func (e *Entity) AfterUpdate(ctx context.Context, data orm.Row) error {
	return e.PostRelation(ctx, PostUpdate, data)
}

// AfterDelete replays relations with the delete filter, since the base
// rows are already gone.
func (e *Entity) AfterDelete(ctx context.Context, filter orm.Row) error {
	return e.PostRelation(ctx, PostDelete, filter)
}

// --- base operations ---

// Find returns the first matching row with its relations, or an empty
// Row when nothing matches.
func (e *Entity) Find(ctx context.Context) (orm.Row, error) {
	row, err := e.Model().Find(ctx)
	if err != nil {
		return nil, err //nolint:wrapcheck // pass through
	}
	return e.AfterFind(ctx, row)
}

// Select returns every matching row with its relations.
func (e *Entity) Select(ctx context.Context) ([]orm.Row, error) {
	rows, err := e.Model().Select(ctx)
	if err != nil {
		return nil, err //nolint:wrapcheck // pass through
	}
	return e.AfterSelect(ctx, rows)
}

// Add inserts the base row, then writes its relation payloads. The
// generated primary key is stored on data.
func (e *Entity) Add(ctx context.Context, data orm.Row) (any, error) {
	base := e.baseRow(data)
	id, err := e.model.Add(ctx, base)
	if err != nil {
		return nil, err //nolint:wrapcheck // pass through
	}
	for k, v := range base {
		data[k] = v
	}
	return id, e.AfterAdd(ctx, data)
}

// Update updates the base rows, then replays relation payloads.
func (e *Entity) Update(ctx context.Context, data orm.Row) (int64, error) {
	n, err := e.model.Where(e.opts.Where).Update(ctx, e.baseRow(data))
	if err != nil {
		return 0, err //nolint:wrapcheck // pass through
	}
	return n, e.AfterUpdate(ctx, data)
}

// Delete deletes the rows matching filter, then the related rows.
func (e *Entity) Delete(ctx context.Context, filter orm.Row) (int64, error) {
	n, err := e.model.Where(e.opts.Where).Where(scope.Match(filter)).Delete(ctx)
	if err != nil {
		return 0, err //nolint:wrapcheck // pass through
	}
	return n, e.AfterDelete(ctx, filter)
}

// baseRow copies data without the declared relation attributes.
func (e *Entity) baseRow(data orm.Row) orm.Row {
	out := make(orm.Row, len(data))
	for k, v := range data {
		if _, ok := e.relations[k]; !ok {
			out[k] = v
		}
	}
	return out
}
