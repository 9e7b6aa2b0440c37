package orm

import (
	"context"
	"database/sql"
	"regexp"
	"strings"

	"github.com/mickamy/ormrel/scope"
)

// identRe matches plain column names that are safe to quote.
// Anything else (b.*, COUNT(*), expressions) is passed through as is.
var identRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Execute runs a raw SELECT written with ? placeholders and returns the
// rows as column/value maps. Placeholders are rewritten for the dialect.
func Execute(ctx context.Context, db Querier, query string, args ...any) ([]Row, error) {
	query = rewritePlaceholders(db.dialect(), query)

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err //nolint:wrapcheck // pass through
	}
	defer func() { _ = rows.Close() }()
	return scanRows(rows)
}

// RenderFields renders a SELECT list for d. Plain column names are
// quoted and, when qualifier is set, prefixed with it. An empty list
// renders as qualifier.* (or *).
func RenderFields(d Dialect, qualifier string, fields []string) string {
	if len(fields) == 0 {
		if qualifier != "" {
			return qualifier + ".*"
		}
		return "*"
	}
	out := make([]string, len(fields))
	for i, f := range fields {
		f = strings.TrimSpace(f)
		if identRe.MatchString(f) {
			out[i] = scope.Column(d.QuoteIdent, qualifier, f)
		} else {
			out[i] = f
		}
	}
	return strings.Join(out, ", ")
}

// RenderWhere renders c for d with ? placeholders. The result has no
// leading WHERE keyword.
func RenderWhere(d Dialect, qualifier string, c scope.Cond) (string, []any) {
	return c.Render(d.QuoteIdent, qualifier)
}

// scanRows reads every row into a Row. []byte values (MySQL text
// columns) are converted to strings.
func scanRows(rows *sql.Rows) ([]Row, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err //nolint:wrapcheck // pass through
	}

	result := make([]Row, 0)
	for rows.Next() {
		vals := make([]any, len(cols))
		dest := make([]any, len(cols))
		for i := range vals {
			dest[i] = &vals[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, err //nolint:wrapcheck // pass through
		}
		row := make(Row, len(cols))
		for i, col := range cols {
			if b, ok := vals[i].([]byte); ok {
				row[col] = string(b)
			} else {
				row[col] = vals[i]
			}
		}
		result = append(result, row)
	}
	return result, rows.Err() //nolint:wrapcheck // pass through
}

// Rebind converts a query written with ? placeholders to d's style.
func Rebind(d Dialect, query string) string {
	return rewritePlaceholders(d, query)
}

// rewritePlaceholders converts ? to dialect-specific placeholders ($1, $2, …).
func rewritePlaceholders(d Dialect, query string) string {
	if d.Placeholder(1) == "?" {
		return query
	}
	var b strings.Builder
	b.Grow(len(query))
	idx := 1
	for i := range len(query) {
		if query[i] == '?' {
			b.WriteString(d.Placeholder(idx))
			idx++
		} else {
			b.WriteByte(query[i])
		}
	}
	return b.String()
}
