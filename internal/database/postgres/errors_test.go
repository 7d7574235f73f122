package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/koustreak/tablekit/internal/database"
	"github.com/koustreak/tablekit/internal/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind errs.ErrKind
	}{
		{"deadline", context.DeadlineExceeded, errs.ErrKindTimeout},
		{"no rows", pgx.ErrNoRows, errs.ErrKindNotFound},
		{"connection class", &pgconn.PgError{Code: "08006", Message: "gone"}, errs.ErrKindConnectionFailed},
		{"privilege", &pgconn.PgError{Code: "42501", Message: "denied"}, errs.ErrKindPermissionDenied},
		{"undefined table", &pgconn.PgError{Code: "42P01", Message: "missing"}, errs.ErrKindNotFound},
		{"undefined constraint", &pgconn.PgError{Code: "42704", Message: `constraint "t_pkey" does not exist`}, errs.ErrKindNotFound},
		{"canceled statement", &pgconn.PgError{Code: "57014", Message: "canceled"}, errs.ErrKindTimeout},
		{"syntax", &pgconn.PgError{Code: "42601", Message: "syntax"}, errs.ErrKindQueryFailed},
		{"network", errors.New("dial tcp: refused"), errs.ErrKindConnectionFailed},
		{"already mapped", errs.New(errs.ErrKindInvalidInput, "bad"), errs.ErrKindInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.kind, errs.KindOf(mapError(tt.err, "op")))
		})
	}

	assert.NoError(t, mapError(nil, "op"))
}

func TestMapError_KeepsServerMessage(t *testing.T) {
	err := mapError(&pgconn.PgError{Code: "23505", Message: "duplicate key"}, "insert failed")
	assert.Contains(t, err.Error(), "insert failed: duplicate key")
}

func TestBuildPoolConfig(t *testing.T) {
	cfg := database.DefaultConfig("postgres://u:p@localhost:5432/db")
	cfg.StatementTimeout = 15 * time.Second

	poolCfg, err := buildPoolConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, int32(10), poolCfg.MaxConns)
	assert.Equal(t, "15000", poolCfg.ConnConfig.RuntimeParams["statement_timeout"])
	assert.Equal(t, "tablekit", poolCfg.ConnConfig.RuntimeParams["application_name"])
}

func TestBuildPoolConfig_MissingDSN(t *testing.T) {
	_, err := buildPoolConfig(&database.Config{})
	assert.True(t, errs.IsInvalidInput(err))
}

func TestExecArgs(t *testing.T) {
	assert.Equal(t, []any{pgx.QueryExecModeSimpleProtocol}, execArgs(nil))
	assert.Equal(t, []any{1}, execArgs([]any{1}))
}
