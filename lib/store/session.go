package store

import (
	"context"
)

// Row is one result row keyed by column name. Value shapes follow gocql's MapScan:
// text is string, int is int, bigint is int64, timestamp is time.Time, a list of UDTs
// is []map[string]any and a map of UDTs is map[string]map[string]any.
type Row map[string]any

// Statement is a parameterized statement from the query catalog. Name identifies the
// catalog entry; Query is the CQL text; Args are bound positionally.
type Statement struct {
	Name  string
	Query string
	Args  []any
}

// Session is the storage boundary of the subscription store.
//
// Batch must apply all statements atomically. Paginate returns at most fetchSize rows
// through fn and the page state to resume from, or nil when the scan is exhausted.
// A fetchSize of zero or less means the session's default page size.
type Session interface {
	Execute(ctx context.Context, stmt Statement) ([]Row, error)
	Batch(ctx context.Context, stmts []Statement) error
	Paginate(ctx context.Context, stmt Statement, pageState []byte, fetchSize int, fn func(Row) error) ([]byte, error)
}

func statementNames(stmts []Statement) []string {
	names := make([]string, len(stmts))
	for i, s := range stmts {
		names[i] = s.Name
	}
	return names
}
