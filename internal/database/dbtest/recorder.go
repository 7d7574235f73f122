// Package dbtest provides an in-memory database.DB that records statements,
// for tests of the layers that generate SQL.
package dbtest

import (
	"context"
	"strings"
	"sync"

	"github.com/koustreak/tablekit/internal/database"
)

// Statement is one recorded Exec or Query call.
type Statement struct {
	SQL  string
	Args []any
	InTx bool
}

// Recorder implements database.DB. It is safe for concurrent use.
type Recorder struct {
	mu         sync.Mutex
	statements []Statement
	failOn     []failRule
	execHook   func(ctx context.Context, sql string) error
	queryRows  map[string]cannedResult
	inTx       bool
	commits    int
	rollbacks  int
}

type cannedResult struct {
	data    []map[string]any
	columns []string
}

type failRule struct {
	substr string
	nth    int // 1-based occurrence to fail on, 0 = every occurrence
	seen   int
	err    error
}

// Option configures a Recorder.
type Option func(*Recorder)

// FailOn makes every Exec whose SQL contains substr return err.
func FailOn(substr string, err error) Option {
	return func(r *Recorder) {
		r.failOn = append(r.failOn, failRule{substr: substr, err: err})
	}
}

// FailOnNth makes only the nth Exec (1-based) containing substr return err.
func FailOnNth(substr string, nth int, err error) Option {
	return func(r *Recorder) {
		r.failOn = append(r.failOn, failRule{substr: substr, nth: nth, err: err})
	}
}

// WithExecHook runs fn before every Exec; a non-nil result fails the call.
func WithExecHook(fn func(ctx context.Context, sql string) error) Option {
	return func(r *Recorder) {
		r.execHook = fn
	}
}

// WithQueryResult returns rows for any Query whose SQL contains substr.
// columns fixes the scan order; without it the sorted keys of the first row
// are used.
func WithQueryResult(substr string, rows []map[string]any, columns ...string) Option {
	return func(r *Recorder) {
		r.queryRows[substr] = cannedResult{data: rows, columns: columns}
	}
}

// New creates a Recorder.
func New(opts ...Option) *Recorder {
	r := &Recorder{queryRows: make(map[string]cannedResult)}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Recorder) record(sql string, args []any) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.statements = append(r.statements, Statement{SQL: sql, Args: args, InTx: r.inTx})
	for i := range r.failOn {
		rule := &r.failOn[i]
		if !strings.Contains(sql, rule.substr) {
			continue
		}
		rule.seen++
		if rule.nth == 0 || rule.nth == rule.seen {
			return rule.err
		}
	}
	return nil
}

// Exec records sql and applies failure rules.
func (r *Recorder) Exec(ctx context.Context, sql string, args ...any) (int64, error) {
	if r.execHook != nil {
		if err := r.execHook(ctx, sql); err != nil {
			r.mu.Lock()
			r.statements = append(r.statements, Statement{SQL: sql, Args: args, InTx: r.inTx})
			r.mu.Unlock()
			return 0, err
		}
	}
	if err := r.record(sql, args); err != nil {
		return 0, err
	}
	return 1, nil
}

// Query records sql and returns the first configured result whose key matches.
func (r *Recorder) Query(_ context.Context, sql string, args ...any) (database.Rows, error) {
	if err := r.record(sql, args); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for substr, res := range r.queryRows {
		if strings.Contains(sql, substr) {
			rows := NewRows(res.data)
			if len(res.columns) > 0 {
				rows.WithColumns(res.columns...)
			}
			return rows, nil
		}
	}
	return NewRows(nil), nil
}

// QueryRow is Query limited to the first row.
func (r *Recorder) QueryRow(ctx context.Context, sql string, args ...any) database.Row {
	rows, err := r.Query(ctx, sql, args...)
	return &row{rows: rows, err: err}
}

// Ping always succeeds.
func (r *Recorder) Ping(context.Context) error { return nil }

// Close is a no-op.
func (r *Recorder) Close() {}

// InTx runs fn against the recorder, marking statements as transactional.
func (r *Recorder) InTx(_ context.Context, fn func(tx database.Execer) error) error {
	r.mu.Lock()
	r.inTx = true
	r.mu.Unlock()

	err := fn(r)

	r.mu.Lock()
	r.inTx = false
	if err != nil {
		r.rollbacks++
	} else {
		r.commits++
	}
	r.mu.Unlock()
	return err
}

// Statements returns a copy of every recorded statement.
func (r *Recorder) Statements() []Statement {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Statement, len(r.statements))
	copy(out, r.statements)
	return out
}

// SQL returns the recorded statement texts.
func (r *Recorder) SQL() []string {
	stmts := r.Statements()
	out := make([]string, len(stmts))
	for i, s := range stmts {
		out[i] = s.SQL
	}
	return out
}

// Count reports how many recorded statements contain substr.
func (r *Recorder) Count(substr string) int {
	n := 0
	for _, s := range r.SQL() {
		if strings.Contains(s, substr) {
			n++
		}
	}
	return n
}

// Commits and Rollbacks report transaction outcomes.
func (r *Recorder) Commits() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.commits
}

func (r *Recorder) Rollbacks() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rollbacks
}
