package relation

import (
	"context"
	"reflect"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cast"

	"github.com/mickamy/ormrel/orm"
	"github.com/mickamy/ormrel/scope"
)

// PostType is the base write a relation replay follows.
type PostType int

const (
	PostAdd PostType = iota + 1
	PostUpdate
	PostDelete
)

func (p PostType) String() string {
	switch p {
	case PostAdd:
		return "add"
	case PostUpdate:
		return "update"
	case PostDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// PostRelation writes the relation payloads in data after a base write.
// For PostDelete, data is the base delete filter. Relations run one at a
// time in name order; the first error stops the replay.
func (e *Entity) PostRelation(ctx context.Context, post PostType, data orm.Row) error {
	if len(data) == 0 {
		return nil
	}
	for _, name := range e.ActiveRelations() {
		if Resolve(name, e.relations[name], e.model.Name(), e.model.PrimaryKey()).Type == BelongsTo {
			continue
		}
		payload := data[name]
		if post != PostDelete && isEmpty(payload) {
			continue
		}

		desc, target, err := e.describe(name)
		if err != nil {
			return err
		}
		key := data[desc.Key]
		if key == nil {
			return errors.Wrapf(ErrMissingKey, "relation %q: %s", name, desc.Key)
		}

		// The relation's where narrows which target rows an update or
		// delete may touch, as it narrows what a fetch returns.
		scoped := target.model.Where(e.filtersFor(desc).where)
		switch desc.Type {
		case OneToOne:
			err = postOne(ctx, post, desc, scoped, key, payload)
		case OneToMany:
			err = e.postMany(ctx, post, desc, scoped, key, payload)
		case ManyToMany:
			err = e.postJoin(ctx, post, desc, target.model, key, payload)
		}
		if err != nil {
			return errors.Wrapf(err, "relation %q: %s", name, post)
		}
	}
	return nil
}

func postOne(ctx context.Context, post PostType, d Descriptor, target *orm.Model, key, payload any) error {
	byKey := target.Where(scope.Eq(d.ForeignKey, key))
	if post == PostDelete {
		_, err := byKey.Delete(ctx)
		return err //nolint:wrapcheck // pass through
	}

	row, err := toRow(payload)
	if err != nil {
		return err
	}
	if post == PostAdd {
		row[d.ForeignKey] = key
		_, err = target.Add(ctx, row)
		return err //nolint:wrapcheck // pass through
	}
	_, err = byKey.Update(ctx, row)
	return err //nolint:wrapcheck // pass through
}

func (e *Entity) postMany(ctx context.Context, post PostType, d Descriptor, target *orm.Model, key, payload any) error {
	if post == PostDelete {
		_, err := target.Where(scope.Eq(d.ForeignKey, key)).Delete(ctx)
		return err //nolint:wrapcheck // pass through
	}

	rows, err := toRows(payload)
	if err != nil {
		return err
	}
	if post == PostAdd {
		for _, row := range rows {
			row[d.ForeignKey] = key
		}
		return target.AddMany(ctx, rows) //nolint:wrapcheck // pass through
	}

	// Rows with a primary key are updated in place; the rest are created.
	// A failed create is logged and skipped.
	pk := target.PrimaryKey()
	g, gctx := e.group(ctx)
	for _, row := range rows {
		if row[pk] != nil {
			g.Go(func() error {
				_, err := target.Update(gctx, row)
				return err //nolint:wrapcheck // pass through
			})
			continue
		}
		row[d.ForeignKey] = key
		g.Go(func() error {
			if _, err := target.Add(gctx, row); err != nil {
				e.log.WithError(err).WithField("relation", d.Name).Debug("skipping row that could not be added")
			}
			return nil
		})
	}
	return g.Wait() //nolint:wrapcheck // pass through
}

func (e *Entity) postJoin(ctx context.Context, post PostType, d Descriptor, target *orm.Model, key, payload any) error {
	var (
		items  []any
		direct bool
	)
	if post != PostDelete {
		items = toList(payload)
		if len(items) == 0 {
			return nil
		}
		direct = isJoinRow(items[0], d.JoinForeignKey)
		if !direct && target.UniqueField() == "" {
			return errors.Wrapf(ErrNoUniqueField, "table %q", target.TableName())
		}
	}

	join := orm.NewModel(target.Querier(), orm.ModelConfig{Name: d.JoinTable})
	if post != PostAdd {
		if _, err := join.Where(scope.Eq(d.ForeignKey, key)).Delete(ctx); err != nil {
			return err //nolint:wrapcheck // pass through
		}
	}
	if post == PostDelete {
		return nil
	}

	joinRows := make([]orm.Row, len(items))
	if direct {
		for i, item := range items {
			if row, ok := item.(orm.Row); ok {
				item = row[d.JoinForeignKey]
			}
			joinRows[i] = orm.Row{d.ForeignKey: key, d.JoinForeignKey: item}
		}
		return join.AddMany(ctx, joinRows) //nolint:wrapcheck // pass through
	}

	ids := make([]any, len(items))
	g, gctx := e.group(ctx)
	for i, item := range items {
		g.Go(func() error {
			id, err := upsert(gctx, target, item)
			if err != nil {
				return err
			}
			ids[i] = id
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err //nolint:wrapcheck // pass through
	}
	for i, id := range ids {
		joinRows[i] = orm.Row{d.ForeignKey: key, d.JoinForeignKey: id}
	}
	return join.AddMany(ctx, joinRows) //nolint:wrapcheck // pass through
}

// upsert returns the primary key of the target row whose unique field
// equals item, adding the row when there is none. Losing an insert race
// to another writer falls back to a second lookup.
func upsert(ctx context.Context, target *orm.Model, item any) (any, error) {
	unique, pk := target.UniqueField(), target.PrimaryKey()

	row := orm.Row{unique: item}
	value := item
	if m, ok := item.(orm.Row); ok {
		row = copyRow(m)
		value = m[unique]
		if value == nil {
			return nil, errors.Wrapf(ErrInvalidPayload, "item without %q", unique)
		}
	}

	lookup := func() (any, error) {
		found, err := target.Where(scope.Eq(unique, value)).Field(pk).Find(ctx)
		if err != nil {
			return nil, err //nolint:wrapcheck // pass through
		}
		return found[pk], nil
	}

	if id, err := lookup(); err != nil || id != nil {
		return id, err
	}
	id, err := target.Add(ctx, row)
	if err == nil {
		return id, nil
	}
	if !orm.IsUniqueViolation(err) {
		return nil, err //nolint:wrapcheck // pass through
	}
	if id, lerr := lookup(); lerr != nil || id != nil {
		return id, lerr
	}
	return nil, err //nolint:wrapcheck // pass through
}

// isJoinRow reports whether item can be written as a join row without
// resolving a natural key: a number, a numeric string, or a row that
// already carries the target column.
func isJoinRow(item any, targetColumn string) bool {
	switch v := item.(type) {
	case orm.Row:
		_, ok := v[targetColumn]
		return ok
	case string:
		_, err := cast.ToFloat64E(strings.TrimSpace(v))
		return err == nil
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return true
	default:
		return false
	}
}

// toRow copies a single object payload.
func toRow(payload any) (orm.Row, error) {
	m, err := cast.ToStringMapE(payload)
	if err != nil {
		return nil, errors.Wrapf(ErrInvalidPayload, "%T", payload)
	}
	return copyRow(m), nil
}

// toRows normalizes an object or a list of objects, copying each.
func toRows(payload any) ([]orm.Row, error) {
	if _, ok := payload.(orm.Row); ok {
		row, err := toRow(payload)
		if err != nil {
			return nil, err
		}
		return []orm.Row{row}, nil
	}
	items := toList(payload)
	rows := make([]orm.Row, 0, len(items))
	for _, item := range items {
		row, err := toRow(item)
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// toList normalizes a list payload. Strings are split on commas; any
// other non-slice value is a list of one.
func toList(payload any) []any {
	switch v := payload.(type) {
	case nil:
		return nil
	case []any:
		return v
	case []orm.Row:
		out := make([]any, len(v))
		for i, r := range v {
			out[i] = r
		}
		return out
	case string:
		var out []any
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		return out
	}
	rv := reflect.ValueOf(payload)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return []any{payload}
	}
	out := make([]any, rv.Len())
	for i := range rv.Len() {
		out[i] = rv.Index(i).Interface()
	}
	return out
}

// isEmpty reports whether a payload carries nothing to write.
func isEmpty(payload any) bool {
	if payload == nil {
		return true
	}
	rv := reflect.ValueOf(payload)
	switch rv.Kind() {
	case reflect.Map, reflect.Slice, reflect.Array, reflect.String:
		return rv.Len() == 0
	default:
		return false
	}
}

func copyRow(r orm.Row) orm.Row {
	out := make(orm.Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}
