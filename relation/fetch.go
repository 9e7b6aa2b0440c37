package relation

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/mickamy/ormrel/orm"
)

// fetchJob is one relation to resolve in a hydrate call.
type fetchJob struct {
	desc   Descriptor
	target *Entity
	f      filters
}

// Hydrate resolves the active relations of a single base row and
// stores them on it.
func (e *Entity) Hydrate(ctx context.Context, row orm.Row) (orm.Row, error) {
	if len(row) == 0 {
		return row, nil
	}
	if err := e.hydrate(ctx, []orm.Row{row}, false); err != nil {
		return nil, err
	}
	return row, nil
}

// HydrateAll resolves the active relations of every row in rows with at
// most one query per relation.
func (e *Entity) HydrateAll(ctx context.Context, rows []orm.Row) ([]orm.Row, error) {
	if len(rows) == 0 {
		return rows, nil
	}
	if err := e.hydrate(ctx, rows, true); err != nil {
		return nil, err
	}
	return rows, nil
}

func (e *Entity) hydrate(ctx context.Context, rows []orm.Row, batch bool) error {
	names := e.ActiveRelations()
	if len(names) == 0 {
		return nil
	}

	jobs := make([]fetchJob, 0, len(names))
	for _, name := range names {
		if populated(rows[0][name]) {
			e.log.WithField("relation", name).Debug("relation already populated, skipping fetch")
			continue
		}
		desc, target, err := e.describe(name)
		if err != nil {
			return err
		}
		jobs = append(jobs, fetchJob{desc: desc, target: target, f: e.filtersFor(desc)})
	}

	results := make([][]orm.Row, len(jobs))
	g, gctx := e.group(ctx)
	for i, job := range jobs {
		g.Go(func() error {
			fetched, err := e.fetch(gctx, job, rows, batch)
			if err != nil {
				return err
			}
			results[i] = fetched
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err //nolint:wrapcheck // pass through
	}

	for i, job := range jobs {
		merge(job.desc, rows, results[i], batch)
	}
	return nil
}

func (e *Entity) fetch(ctx context.Context, job fetchJob, rows []orm.Row, batch bool) ([]orm.Row, error) {
	target := job.target.model
	var (
		fetched []orm.Row
		err     error
	)
	if job.desc.Type == ManyToMany {
		query, args := manyToManySQL(job.desc, target, rows, job.f, batch)
		fetched, err = orm.Execute(ctx, target.Querier(), query, args...)
	} else {
		q := targetQuery(job.desc, target, buildWhere(job.desc, job.desc.ForeignKey, rows, batch), job.f, batch)
		if c := e.opts.Cache; c != nil {
			cache := *c
			cache.Key = ""
			q = q.Options(orm.QueryOptions{Cache: &cache})
		}
		fetched, err = q.Select(ctx)
	}
	if err != nil {
		return nil, err
	}

	if !job.target.active.IsEmpty() {
		return job.target.HydrateAll(ctx, fetched)
	}
	return fetched, nil
}

// group returns an errgroup for fanning out queries. A transaction owns
// a single connection, so its queries run one at a time.
func (e *Entity) group(ctx context.Context) (*errgroup.Group, context.Context) {
	g, gctx := errgroup.WithContext(ctx)
	if _, ok := e.reg.db.(*orm.Tx); ok {
		g.SetLimit(1)
	}
	return g, gctx
}
