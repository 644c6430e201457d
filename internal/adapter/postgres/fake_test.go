package postgres

import (
	"context"
	"sync"

	"github.com/guillermoBallester/rowtrail/internal/core/domain"
)

// fakeQuerier scripts Exec/Query behaviour and records every call.
type fakeQuerier struct {
	execFn  func(sql string, args []any) (int64, error)
	queryFn func(sql string, args []any) ([]domain.Snapshot, error)

	mu         sync.Mutex
	execCalls  []queryCall
	queryCalls []queryCall
}

type queryCall struct {
	sql  string
	args []any
}

func (f *fakeQuerier) Exec(_ context.Context, sql string, args ...any) (int64, error) {
	f.mu.Lock()
	f.execCalls = append(f.execCalls, queryCall{sql: sql, args: args})
	f.mu.Unlock()
	if f.execFn != nil {
		return f.execFn(sql, args)
	}
	return 1, nil
}

func (f *fakeQuerier) Query(_ context.Context, sql string, args ...any) ([]domain.Snapshot, error) {
	f.mu.Lock()
	f.queryCalls = append(f.queryCalls, queryCall{sql: sql, args: args})
	f.mu.Unlock()
	if f.queryFn != nil {
		return f.queryFn(sql, args)
	}
	return nil, nil
}

func (f *fakeQuerier) queried() []queryCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]queryCall(nil), f.queryCalls...)
}

func (f *fakeQuerier) executed() []queryCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]queryCall(nil), f.execCalls...)
}

// fakeColumns is a scripted ColumnSource.
type fakeColumns struct {
	cols map[string][]string
	err  error

	mu          sync.Mutex
	invalidated []string
}

func (f *fakeColumns) Columns(_ context.Context, schema, table string) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.cols[cacheKey(schema, table)], nil
}

func (f *fakeColumns) Invalidate(schema, table string) {
	f.mu.Lock()
	f.invalidated = append(f.invalidated, cacheKey(schema, table))
	f.mu.Unlock()
}
