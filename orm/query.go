package orm

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/mickamy/ormrel/scope"
)

// Row is a single record keyed by column name.
type Row = map[string]any

// ModelConfig describes a table as the model registry knows it.
type ModelConfig struct {
	Name        string   // model name, e.g. "user"
	Table       string   // table name without prefix; defaults to Name
	TablePrefix string   // prepended to Table
	PrimaryKey  string   // defaults to "id"
	UniqueField string   // natural key used for upserts; empty if none
	Columns     []string // default SELECT list; * when empty
	CreatedAt   string   // stamped on Add when absent from the row
	UpdatedAt   string   // stamped on Add and Update
}

// Page selects one page of Size rows; Number is 1-based.
type Page struct {
	Number int
	Size   int
}

// CacheOptions is carried along with a query for callers that plug a
// cache in front of the database. Model itself does not cache.
type CacheOptions struct {
	Key string
	TTL time.Duration
}

// QueryOptions bundles the optional parts of a SELECT.
// Zero values leave the corresponding part untouched.
type QueryOptions struct {
	Where scope.Cond
	Field []string
	Order string
	Limit int
	Page  Page
	Cache *CacheOptions
}

// Model represents a pending query against a single table whose rows
// are handled as Row maps.
// All builder methods return a new Model; the receiver is never modified.
type Model struct {
	db  Querier
	cfg ModelConfig

	where    scope.Cond
	orderBys []string
	fields   []string
	limit    *int
	offset   *int
	cache    *CacheOptions
}

// NewModel returns a Model for cfg bound to db.
func NewModel(db Querier, cfg ModelConfig) *Model {
	if cfg.Table == "" {
		cfg.Table = cfg.Name
	}
	if cfg.PrimaryKey == "" {
		cfg.PrimaryKey = "id"
	}
	return &Model{db: db, cfg: cfg}
}

// clone returns a shallow copy with slices copied to avoid aliasing.
func (m *Model) clone() *Model {
	m2 := *m
	m2.orderBys = append([]string(nil), m.orderBys...)
	m2.fields = append([]string(nil), m.fields...)
	return &m2
}

// Name returns the model name.
func (m *Model) Name() string { return m.cfg.Name }

// Table returns the table name without prefix.
func (m *Model) Table() string { return m.cfg.Table }

// TablePrefix returns the configured table prefix.
func (m *Model) TablePrefix() string { return m.cfg.TablePrefix }

// TableName returns the full table name including the prefix.
func (m *Model) TableName() string { return m.cfg.TablePrefix + m.cfg.Table }

// PrimaryKey returns the primary key column.
func (m *Model) PrimaryKey() string { return m.cfg.PrimaryKey }

// UniqueField returns the natural key column, or "" if none is configured.
func (m *Model) UniqueField() string { return m.cfg.UniqueField }

// Config returns the model configuration.
func (m *Model) Config() ModelConfig { return m.cfg }

// Querier returns the Querier the model runs against.
func (m *Model) Querier() Querier { return m.db }

// Dialect returns the dialect of the underlying Querier.
func (m *Model) Dialect() Dialect { return m.db.dialect() }

// CacheOptions returns the pass-through cache options, if any.
func (m *Model) CacheOptions() *CacheOptions { return m.cache }

// --- Builder methods ---

// Where ANDs c with the conditions already set.
func (m *Model) Where(c scope.Cond) *Model {
	m2 := m.clone()
	m2.where = scope.And(m2.where, c)
	return m2
}

// Field overrides the SELECT list.
func (m *Model) Field(columns ...string) *Model {
	m2 := m.clone()
	m2.fields = columns
	return m2
}

func (m *Model) OrderBy(clause string) *Model {
	m2 := m.clone()
	m2.orderBys = append(m2.orderBys, clause)
	return m2
}

func (m *Model) Limit(n int) *Model {
	m2 := m.clone()
	m2.limit = &n
	return m2
}

func (m *Model) Offset(n int) *Model {
	m2 := m.clone()
	m2.offset = &n
	return m2
}

// Page sets LIMIT and OFFSET for the given page.
func (m *Model) Page(p Page) *Model {
	if p.Size <= 0 {
		return m
	}
	number := max(p.Number, 1)
	return m.Limit(p.Size).Offset((number - 1) * p.Size)
}

// Options applies every non-zero part of o.
func (m *Model) Options(o QueryOptions) *Model {
	m2 := m.Where(o.Where)
	if len(o.Field) > 0 {
		m2.fields = o.Field
	}
	if o.Order != "" {
		m2.orderBys = append(m2.orderBys, o.Order)
	}
	if o.Limit > 0 {
		m2 = m2.Limit(o.Limit)
	}
	m2 = m2.Page(o.Page)
	if o.Cache != nil {
		m2.cache = o.Cache
	}
	return m2
}

// Scopes applies the given scope.Scope values to the query.
func (m *Model) Scopes(scopes ...scope.Scope) *Model {
	m2 := m.clone()
	for _, s := range scopes {
		s.Apply(m2)
	}
	return m2
}

// --- scope.Applier implementation ---

func (m *Model) ApplyWhere(c scope.Cond) {
	m.where = scope.And(m.where, c)
}

func (m *Model) ApplyOrderBy(clause string) {
	m.orderBys = append(m.orderBys, clause)
}

func (m *Model) ApplyLimit(n int)  { m.limit = &n }
func (m *Model) ApplyOffset(n int) { m.offset = &n }

func (m *Model) ApplySelect(columns string) {
	m.fields = []string{columns}
}

var _ scope.Applier = (*Model)(nil)

// --- Terminal methods ---

// Select executes a SELECT and returns all matching rows.
// The result is never nil.
func (m *Model) Select(ctx context.Context) ([]Row, error) {
	query, args := m.buildSelect()
	return Execute(ctx, m.db, query, args...)
}

// SQL returns the SELECT statement Select would run, with dialect
// placeholders.
func (m *Model) SQL() (string, []any) {
	query, args := m.buildSelect()
	return rewritePlaceholders(m.db.dialect(), query), args
}

// First executes a SELECT with LIMIT 1 and returns the first row.
// Returns ErrNotFound if no rows match.
func (m *Model) First(ctx context.Context) (Row, error) {
	rows, err := m.Limit(1).Select(ctx)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	return rows[0], nil
}

// Find is First without the not-found error: it returns an empty Row
// when nothing matches.
func (m *Model) Find(ctx context.Context) (Row, error) {
	row, err := m.First(ctx)
	if errors.Is(err, ErrNotFound) {
		return Row{}, nil
	}
	return row, err
}

// Count returns the number of rows matching the current query conditions.
func (m *Model) Count(ctx context.Context) (int64, error) {
	var b strings.Builder
	b.WriteString("SELECT COUNT(*) FROM ")
	b.WriteString(m.qi(m.TableName()))
	args := m.appendWhere(&b)
	query := rewritePlaceholders(m.db.dialect(), b.String())

	rows, err := m.db.QueryContext(ctx, query, args...)
	if err != nil {
		return 0, err //nolint:wrapcheck // pass through
	}
	defer func() { _ = rows.Close() }()
	if !rows.Next() {
		return 0, errors.New("orm: COUNT returned no rows")
	}
	var count int64
	if err := rows.Scan(&count); err != nil {
		return 0, err //nolint:wrapcheck // pass through
	}
	return count, rows.Err() //nolint:wrapcheck // pass through
}

// Exists returns true if at least one row matches the current query conditions.
func (m *Model) Exists(ctx context.Context) (bool, error) {
	count, err := m.Count(ctx)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// Add inserts row and returns its primary key. When the row carries no
// primary key the generated one is fetched via RETURNING (PostgreSQL)
// or LastInsertId (MySQL, SQLite) and stored on row.
func (m *Model) Add(ctx context.Context, row Row) (any, error) {
	m.stampCreate(ctx, row)
	columns, values := splitRow(row)
	if len(columns) == 0 {
		return nil, fmt.Errorf("orm: nothing to insert into %s", m.TableName())
	}

	pk := m.cfg.PrimaryKey
	if id, ok := row[pk]; ok && id != nil {
		query := rewritePlaceholders(m.db.dialect(), m.buildInsert(columns, 1))
		if _, err := m.db.ExecContext(ctx, query, values...); err != nil {
			return nil, err //nolint:wrapcheck // pass through
		}
		return id, nil
	}

	query := rewritePlaceholders(m.db.dialect(), m.buildInsert(columns, 1))

	d := m.db.dialect()
	if d.UseReturning() {
		query += d.ReturningClause(pk)
		rows, err := m.db.QueryContext(ctx, query, values...)
		if err != nil {
			return nil, err //nolint:wrapcheck // pass through
		}
		defer func() { _ = rows.Close() }()
		if !rows.Next() {
			return nil, errors.New("orm: INSERT RETURNING returned no rows")
		}
		var id any
		if err := rows.Scan(&id); err != nil {
			return nil, err //nolint:wrapcheck // pass through
		}
		row[pk] = id
		return id, rows.Err() //nolint:wrapcheck // pass through
	}

	result, err := m.db.ExecContext(ctx, query, values...)
	if err != nil {
		return nil, err //nolint:wrapcheck // pass through
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, err //nolint:wrapcheck // pass through
	}
	row[pk] = id
	return id, nil
}

// AddMany inserts rows in a single INSERT statement. The column list is
// the union of all row keys; keys missing from a row insert NULL.
func (m *Model) AddMany(ctx context.Context, rows []Row) error {
	if len(rows) == 0 {
		return nil
	}

	seen := make(map[string]struct{})
	var columns []string
	for _, row := range rows {
		m.stampCreate(ctx, row)
		for col := range row {
			if _, ok := seen[col]; !ok {
				seen[col] = struct{}{}
				columns = append(columns, col)
			}
		}
	}
	sort.Strings(columns)

	values := make([]any, 0, len(columns)*len(rows))
	for _, row := range rows {
		for _, col := range columns {
			values = append(values, row[col])
		}
	}

	query := rewritePlaceholders(m.db.dialect(), m.buildInsert(columns, len(rows)))
	_, err := m.db.ExecContext(ctx, query, values...)
	return err //nolint:wrapcheck // pass through
}

// Update sets every column of row on the matching rows and returns the
// number of rows affected. A primary key in row is used as a condition,
// not as a value to set.
// Returns an error if there is no condition at all (safety guard).
func (m *Model) Update(ctx context.Context, row Row) (int64, error) {
	pk := m.cfg.PrimaryKey
	where := m.where
	set := make(Row, len(row))
	for col, v := range row {
		if col == pk {
			if v != nil {
				where = scope.And(where, scope.Eq(pk, v))
			}
			continue
		}
		set[col] = v
	}
	if where.IsZero() {
		return 0, errors.New("orm: Update without WHERE clause is not allowed")
	}
	if m.cfg.UpdatedAt != "" {
		set[m.cfg.UpdatedAt] = now(ctx)
	}
	columns, values := splitRow(set)
	if len(columns) == 0 {
		return 0, nil
	}

	sets := make([]string, len(columns))
	for i, col := range columns {
		sets[i] = m.qi(col) + " = ?"
	}
	clause, args := where.Render(m.qi, "")
	query := fmt.Sprintf("UPDATE %s SET %s WHERE %s", m.qi(m.TableName()), strings.Join(sets, ", "), clause)
	query = rewritePlaceholders(m.db.dialect(), query)

	result, err := m.db.ExecContext(ctx, query, append(values, args...)...)
	if err != nil {
		return 0, err //nolint:wrapcheck // pass through
	}
	return result.RowsAffected() //nolint:wrapcheck // pass through
}

// Delete deletes rows matching the accumulated conditions and returns
// the number of rows affected.
// Returns an error if no condition is set (safety guard).
func (m *Model) Delete(ctx context.Context) (int64, error) {
	if m.where.IsZero() {
		return 0, errors.New("orm: Delete without WHERE clause is not allowed")
	}
	var b strings.Builder
	b.WriteString("DELETE FROM ")
	b.WriteString(m.qi(m.TableName()))
	args := m.appendWhere(&b)
	query := rewritePlaceholders(m.db.dialect(), b.String())

	result, err := m.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err //nolint:wrapcheck // pass through
	}
	return result.RowsAffected() //nolint:wrapcheck // pass through
}

// --- SQL building ---

// qi quotes an identifier (table/column name) using the dialect.
func (m *Model) qi(name string) string {
	return m.db.dialect().QuoteIdent(name)
}

func (m *Model) stampCreate(ctx context.Context, row Row) {
	t := now(ctx)
	if c := m.cfg.CreatedAt; c != "" {
		if _, ok := row[c]; !ok {
			row[c] = t
		}
	}
	if c := m.cfg.UpdatedAt; c != "" {
		if _, ok := row[c]; !ok {
			row[c] = t
		}
	}
}

func (m *Model) buildSelect() (string, []any) {
	var b strings.Builder
	b.WriteString("SELECT ")

	fields := m.fields
	if len(fields) == 0 {
		fields = m.cfg.Columns
	}
	b.WriteString(RenderFields(m.db.dialect(), "", fields))

	b.WriteString(" FROM ")
	b.WriteString(m.qi(m.TableName()))

	args := m.appendWhere(&b)

	if len(m.orderBys) > 0 {
		b.WriteString(" ORDER BY ")
		b.WriteString(strings.Join(m.orderBys, ", "))
	}

	if m.limit != nil {
		fmt.Fprintf(&b, " LIMIT %d", *m.limit)
	}
	if m.offset != nil {
		fmt.Fprintf(&b, " OFFSET %d", *m.offset)
	}

	return b.String(), args
}

func (m *Model) buildInsert(columns []string, rowCount int) string {
	ph := make([]string, len(columns))
	for i := range ph {
		ph[i] = "?"
	}
	oneRow := "(" + strings.Join(ph, ", ") + ")"

	rows := make([]string, rowCount)
	for i := range rows {
		rows[i] = oneRow
	}

	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = m.qi(c)
	}

	return fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES %s",
		m.qi(m.TableName()),
		strings.Join(quoted, ", "),
		strings.Join(rows, ", "),
	)
}

func (m *Model) appendWhere(b *strings.Builder) []any {
	if m.where.IsZero() {
		return nil
	}
	clause, args := m.where.Render(m.qi, "")
	b.WriteString(" WHERE ")
	b.WriteString(clause)
	return args
}

// splitRow returns the row's columns in sorted order and the matching values.
func splitRow(row Row) ([]string, []any) {
	columns := make([]string, 0, len(row))
	for col := range row {
		columns = append(columns, col)
	}
	sort.Strings(columns)
	values := make([]any, len(columns))
	for i, col := range columns {
		values[i] = row[col]
	}
	return columns, values
}
