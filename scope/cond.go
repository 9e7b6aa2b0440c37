package scope

import (
	"sort"
	"strings"
)

type condKind int

const (
	condNone condKind = iota
	condEq
	condIn
	condAnd
	condRaw
	condNever
	condColumns
)

// Cond is a structured WHERE condition. It is built from small pieces
// and rendered once, so callers never splice SQL fragments by hand.
// The zero Cond matches every row and renders to nothing.
type Cond struct {
	kind   condKind
	column string
	value  any
	values []any
	parts  []Cond
	clause string
	args   []any
}

// Eq matches rows where column equals v. A nil v renders as IS NULL.
func Eq(column string, v any) Cond {
	return Cond{kind: condEq, column: column, value: v}
}

// EqColumn matches rows where two columns hold the same value.
//
//	scope.EqColumn("a.tag_id", "b.id") // → a.`tag_id` = b.`id`
func EqColumn(left, right string) Cond {
	return Cond{kind: condColumns, column: left, value: right}
}

// OneOf matches rows where column is one of values.
// An empty list matches no rows.
func OneOf(column string, values []any) Cond {
	if len(values) == 0 {
		return Never()
	}
	return Cond{kind: condIn, column: column, values: values}
}

// Raw wraps a hand-written clause using ? placeholders.
//
//	scope.Raw("age > ?", 18)
func Raw(clause string, args ...any) Cond {
	if clause == "" {
		return Cond{}
	}
	return Cond{kind: condRaw, clause: clause, args: args}
}

// Never matches no rows.
func Never() Cond {
	return Cond{kind: condNever}
}

// And combines conditions. Zero conditions are dropped; a single
// remaining condition is returned as is.
func And(conds ...Cond) Cond {
	parts := make([]Cond, 0, len(conds))
	for _, c := range conds {
		switch {
		case c.IsZero():
		case c.kind == condAnd:
			parts = append(parts, c.parts...)
		default:
			parts = append(parts, c)
		}
	}
	switch len(parts) {
	case 0:
		return Cond{}
	case 1:
		return parts[0]
	}
	return Cond{kind: condAnd, parts: parts}
}

// Match turns a column/value map into an AND of equalities, ordered by
// column name so the rendered SQL is stable.
//
//	scope.Match(map[string]any{"status": 1, "kind": "post"})
//	// → `kind` = ? AND `status` = ?
func Match(m map[string]any) Cond {
	if len(m) == 0 {
		return Cond{}
	}
	cols := make([]string, 0, len(m))
	for c := range m {
		cols = append(cols, c)
	}
	sort.Strings(cols)
	conds := make([]Cond, len(cols))
	for i, c := range cols {
		conds[i] = Eq(c, m[c])
	}
	return And(conds...)
}

// IsZero reports whether c carries no condition at all.
func (c Cond) IsZero() bool { return c.kind == condNone }

// Render returns the clause with ? placeholders and its arguments.
// quote quotes a single identifier. When qualifier is not empty, bare
// column names are prefixed with it ("a" → a.`col`); dotted names keep
// their own qualifier.
func (c Cond) Render(quote func(string) string, qualifier string) (string, []any) {
	var b strings.Builder
	var args []any
	c.render(&b, &args, quote, qualifier, false)
	return b.String(), args
}

func (c Cond) render(b *strings.Builder, args *[]any, quote func(string) string, qualifier string, nested bool) {
	switch c.kind {
	case condNone:
	case condNever:
		b.WriteString("1 = 0")
	case condEq:
		b.WriteString(Column(quote, qualifier, c.column))
		if c.value == nil {
			b.WriteString(" IS NULL")
			return
		}
		b.WriteString(" = ?")
		*args = append(*args, c.value)
	case condColumns:
		b.WriteString(Column(quote, qualifier, c.column))
		b.WriteString(" = ")
		b.WriteString(Column(quote, qualifier, c.value.(string)))
	case condIn:
		b.WriteString(Column(quote, qualifier, c.column))
		b.WriteString(" IN (")
		b.WriteString(repeatJoin("?", len(c.values)))
		b.WriteByte(')')
		*args = append(*args, c.values...)
	case condRaw:
		if nested {
			b.WriteByte('(')
		}
		b.WriteString(c.clause)
		if nested {
			b.WriteByte(')')
		}
		*args = append(*args, c.args...)
	case condAnd:
		for i, p := range c.parts {
			if i > 0 {
				b.WriteString(" AND ")
			}
			p.render(b, args, quote, qualifier, true)
		}
	}
}

// Column quotes a column reference, optionally qualified. Only the
// column part is quoted: "b.status" → b.`status`.
func Column(quote func(string) string, qualifier, column string) string {
	if i := strings.LastIndexByte(column, '.'); i >= 0 {
		return column[:i+1] + quote(column[i+1:])
	}
	if qualifier != "" {
		return qualifier + "." + quote(column)
	}
	return quote(column)
}
