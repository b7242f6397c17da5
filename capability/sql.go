package capability

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"github.com/bcap/stepper/chain"
)

// ErrNoRows is returned by the SQL capability when the query yields no row
var ErrNoRows = errors.New("query returned no rows")

// SQL is a capability that runs a query and returns its first row as a record
// keyed by column name.
//
// Record arguments (map[string]any or chain.Accumulator) are bound as named
// parameters, so the query references them as :name, @name or $name. Any other
// non-nil argument is bound as the single positional parameter.
type SQL struct {
	DB    *sql.DB
	Query string
}

func NewSQL(db *sql.DB, query string) *SQL {
	return &SQL{DB: db, Query: query}
}

func (s *SQL) Invoke(ctx context.Context, arg any) (any, error) {
	rows, err := s.DB.QueryContext(ctx, s.Query, sqlArgs(arg)...)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, ErrNoRows
	}
	values := make([]any, len(columns))
	pointers := make([]any, len(columns))
	for idx := range values {
		pointers[idx] = &values[idx]
	}
	if err := rows.Scan(pointers...); err != nil {
		return nil, err
	}
	record := make(map[string]any, len(columns))
	for idx, column := range columns {
		value := values[idx]
		if b, ok := value.([]byte); ok {
			value = string(b)
		}
		record[column] = value
	}
	return record, nil
}

func sqlArgs(arg any) []any {
	switch v := arg.(type) {
	case nil:
		return nil
	case chain.Accumulator:
		return namedArgs(v)
	case map[string]any:
		return namedArgs(v)
	default:
		return []any{v}
	}
}

func namedArgs(record map[string]any) []any {
	names := make([]string, 0, len(record))
	for name := range record {
		names = append(names, name)
	}
	sort.Strings(names)
	args := make([]any, len(names))
	for idx, name := range names {
		args[idx] = sql.Named(name, record[name])
	}
	return args
}
