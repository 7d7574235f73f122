package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/koustreak/tablekit/internal/errs"
)

// PostgreSQL SQLSTATE codes that get a dedicated kind.
// Full list: https://www.postgresql.org/docs/current/errcodes-appendix.html
const (
	pgErrInsufficientPrivilege = "42501"
	pgErrUndefinedTable        = "42P01"
	pgErrUndefinedObject       = "42704"
	pgErrQueryCanceled         = "57014"
)

// mapError translates pgx / pgconn native errors into *errs.Error.
// A nil err maps to nil.
func mapError(err error, msg string) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return errs.Wrap(errs.ErrKindTimeout, msg, err)
	}

	if errors.Is(err, pgx.ErrNoRows) {
		return errs.Wrap(errs.ErrKindNotFound, msg, err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		text := fmt.Sprintf("%s: %s", msg, pgErr.Message)
		switch {
		case len(pgErr.Code) >= 2 && pgErr.Code[:2] == "08":
			return errs.Wrap(errs.ErrKindConnectionFailed, text, err)
		case pgErr.Code == pgErrInsufficientPrivilege:
			return errs.Wrap(errs.ErrKindPermissionDenied, text, err)
		case pgErr.Code == pgErrUndefinedTable, pgErr.Code == pgErrUndefinedObject:
			return errs.Wrap(errs.ErrKindNotFound, text, err)
		case pgErr.Code == pgErrQueryCanceled:
			return errs.Wrap(errs.ErrKindTimeout, text, err)
		default:
			return errs.Wrap(errs.ErrKindQueryFailed, text, err)
		}
	}

	// Already mapped further down the stack.
	var mapped *errs.Error
	if errors.As(err, &mapped) {
		return err
	}

	// Fallthrough: connection-level errors (TLS, network, auth)
	return errs.Wrap(errs.ErrKindConnectionFailed, msg, err)
}
