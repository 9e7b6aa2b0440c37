package relation

import (
	"reflect"

	"github.com/mickamy/ormrel/orm"
)

// merge attaches fetched rows to rows under d.Name.
//
// A single base row takes the fetched rows as they are: the whole list,
// or the first row (an empty Row when nothing matched). In a batch every
// base row is matched by key; list relations always get a list.
func merge(d Descriptor, rows, fetched []orm.Row, batch bool) {
	if !batch {
		row := rows[0]
		switch {
		case d.Type.IsList():
			if fetched == nil {
				fetched = []orm.Row{}
			}
			row[d.Name] = fetched
		case len(fetched) > 0:
			row[d.Name] = fetched[0]
		default:
			row[d.Name] = orm.Row{}
		}
		return
	}

	index := make(map[string][]orm.Row, len(fetched))
	for _, f := range fetched {
		if k, ok := keyOf(f[d.ForeignKey]); ok {
			index[k] = append(index[k], f)
		}
	}

	for _, row := range rows {
		var matches []orm.Row
		if k, ok := keyOf(row[d.Key]); ok {
			matches = index[k]
		}
		switch {
		case d.Type.IsList():
			row[d.Name] = append(make([]orm.Row, 0, len(matches)), matches...)
		case len(matches) > 0:
			row[d.Name] = matches[0]
		default:
			row[d.Name] = orm.Row{}
		}
	}
}

// populated reports whether v already holds related data (a map or a
// slice), in which case the relation is not fetched again.
func populated(v any) bool {
	if v == nil {
		return false
	}
	switch reflect.TypeOf(v).Kind() {
	case reflect.Map:
		return true
	case reflect.Slice, reflect.Array:
		_, isBytes := v.([]byte)
		return !isBytes
	default:
		return false
	}
}
