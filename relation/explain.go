package relation

import "github.com/mickamy/ormrel/orm"

// Plan is the fetch a relation would run for one base row.
type Plan struct {
	Name           string `json:"name"`
	Type           string `json:"type"`
	Target         string `json:"target"`
	Key            string `json:"key"`
	ForeignKey     string `json:"foreign_key"`
	JoinTable      string `json:"join_table,omitempty"`
	JoinForeignKey string `json:"join_foreign_key,omitempty"`
	SQL            string `json:"sql"`
	Args           []any  `json:"args"`
}

// Explain plans every active relation for a base row whose key columns
// all hold keyValue, without running anything.
func (e *Entity) Explain(keyValue any) ([]Plan, error) {
	var plans []Plan
	for _, name := range e.ActiveRelations() {
		desc, target, err := e.describe(name)
		if err != nil {
			return nil, err
		}
		rows := []orm.Row{{desc.Key: keyValue}}
		f := e.filtersFor(desc)

		p := Plan{
			Name:           name,
			Type:           desc.Type.String(),
			Target:         target.model.TableName(),
			Key:            desc.Key,
			ForeignKey:     desc.ForeignKey,
			JoinTable:      desc.JoinTable,
			JoinForeignKey: desc.JoinForeignKey,
		}
		if desc.Type == ManyToMany {
			query, args := manyToManySQL(desc, target.model, rows, f, false)
			p.SQL, p.Args = orm.Rebind(target.model.Dialect(), query), args
		} else {
			p.SQL, p.Args = targetQuery(desc, target.model, buildWhere(desc, desc.ForeignKey, rows, false), f, false).SQL()
		}
		plans = append(plans, p)
	}
	return plans, nil
}
