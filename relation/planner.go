package relation

import (
	"fmt"
	"strings"

	"github.com/spf13/cast"

	"github.com/mickamy/ormrel/orm"
	"github.com/mickamy/ormrel/scope"
)

// filters are the per-fetch relation options, evaluated against the
// owning entity. Declared scopes are applied on top of the options.
type filters struct {
	field  []string
	where  scope.Cond
	order  string
	limit  int
	offset int
	page   orm.Page
}

func (e *Entity) filtersFor(d Descriptor) filters {
	f := filters{
		field: d.decl.Field.Eval(e),
		where: d.decl.Where.Eval(e),
		order: d.decl.Order.Eval(e),
		limit: d.decl.Limit.Eval(e),
		page:  d.decl.Page.Eval(e),
	}
	for _, s := range d.decl.Scopes.Eval(e) {
		s.Apply(&f)
	}
	return f
}

func (f *filters) ApplyWhere(c scope.Cond) { f.where = scope.And(f.where, c) }

func (f *filters) ApplyOrderBy(clause string) {
	if f.order != "" {
		clause = f.order + ", " + clause
	}
	f.order = clause
}

func (f *filters) ApplyLimit(n int)  { f.limit = n }
func (f *filters) ApplyOffset(n int) { f.offset = n }

func (f *filters) ApplySelect(columns string) {
	f.field = splitNames([]string{columns})
}

var _ scope.Applier = (*filters)(nil)

// buildWhere returns the condition on column selecting the rows related
// to rows. A single row yields an equality, a batch an IN over the
// distinct key values. Missing keys match nothing.
func buildWhere(d Descriptor, column string, rows []orm.Row, batch bool) scope.Cond {
	if !batch {
		v := rows[0][d.Key]
		if v == nil {
			return scope.Never()
		}
		return scope.Eq(column, v)
	}
	return scope.OneOf(column, keyValues(rows, d.Key))
}

// keyValues returns the distinct non-nil values of column in rows, in
// first-seen order.
func keyValues(rows []orm.Row, column string) []any {
	seen := make(map[string]struct{}, len(rows))
	var out []any
	for _, row := range rows {
		k, ok := keyOf(row[column])
		if !ok {
			continue
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, row[column])
	}
	return out
}

// keyOf normalizes a key value so that 7, int64(7) and "7" match.
// nil never matches anything.
func keyOf(v any) (string, bool) {
	if v == nil {
		return "", false
	}
	s, err := cast.ToStringE(v)
	if err != nil {
		return fmt.Sprint(v), true
	}
	return s, true
}

// targetQuery builds the query for the first three relation types.
func targetQuery(d Descriptor, target *orm.Model, cond scope.Cond, f filters, batch bool) *orm.Model {
	q := target.Where(cond)
	if len(f.field) > 0 {
		field := f.field
		if !contains(field, d.ForeignKey) {
			field = append(append([]string(nil), field...), d.ForeignKey)
		}
		q = q.Field(field...)
	}
	q = q.Options(orm.QueryOptions{
		Where: f.where,
		Order: f.order,
		Limit: f.limit,
		Page:  f.page,
	})
	if f.offset > 0 && f.page.Size == 0 {
		q = q.Offset(f.offset)
	}
	if !batch && !d.Type.IsList() && f.limit == 0 && f.page.Size == 0 {
		q = q.Limit(1)
	}
	return q
}

// manyToManySQL renders the join query for a ManyToMany relation:
//
//	SELECT b.*, a.<fk> FROM <join> AS a, <target> AS b
//	WHERE a.<fk> IN (...) AND a.<join fk> = b.<pk> [AND <where>]
//
// Bare columns in the relation's where are qualified to the target.
func manyToManySQL(d Descriptor, target *orm.Model, rows []orm.Row, f filters, batch bool) (string, []any) {
	dialect := target.Dialect()
	qi := dialect.QuoteIdent

	where := scope.And(
		buildWhere(d, "a."+d.ForeignKey, rows, batch),
		scope.EqColumn("a."+d.JoinForeignKey, "b."+target.PrimaryKey()),
		f.where,
	)
	clause, args := orm.RenderWhere(dialect, "b", where)

	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(orm.RenderFields(dialect, "b", f.field))
	b.WriteString(", ")
	b.WriteString(scope.Column(qi, "a", d.ForeignKey))
	fmt.Fprintf(&b, " FROM %s AS a, %s AS b WHERE %s", qi(d.JoinTable), qi(target.TableName()), clause)
	if f.order != "" {
		b.WriteString(" ORDER BY ")
		b.WriteString(f.order)
	}
	switch {
	case f.page.Size > 0:
		fmt.Fprintf(&b, " LIMIT %d OFFSET %d", f.page.Size, (max(f.page.Number, 1)-1)*f.page.Size)
	case f.limit > 0 && f.offset > 0:
		fmt.Fprintf(&b, " LIMIT %d OFFSET %d", f.limit, f.offset)
	case f.limit > 0:
		fmt.Fprintf(&b, " LIMIT %d", f.limit)
	}
	return b.String(), args
}

func contains(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}
