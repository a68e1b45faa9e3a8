package dbx

import (
	"context"
	"database/sql"
	"errors"
	"net"

	"github.com/dmitrijs2005/groupware/internal/common"
	"github.com/jackc/pgx/v5/pgconn"
)

// Postgres SQLSTATE codes we branch on.
const (
	codeUniqueViolation      = "23505"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeQueryCanceled        = "57014"
	codeAdminShutdown        = "57P01"
	codeTooManyConnections   = "53300"
)

// Translate maps a driver or database/sql error into the common taxonomy.
// Errors that already belong to the taxonomy are returned unchanged.
func Translate(err error) error {
	if err == nil {
		return nil
	}

	var ce *common.Error
	if errors.As(err, &ce) {
		return err
	}

	if errors.Is(err, sql.ErrNoRows) {
		return &common.Error{Kind: common.KindNotFound, Err: err}
	}

	if isTransient(err) {
		return &common.Error{Kind: common.KindTransient, Err: err}
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == codeUniqueViolation {
		return &common.Error{Kind: common.KindConflict, Reason: "uniqueness violation on " + pgErr.ConstraintName, Err: err}
	}

	return &common.Error{Kind: common.KindInternal, Err: err}
}

func isTransient(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, sql.ErrConnDone) {
		return true
	}
	if pgconn.Timeout(err) || pgconn.SafeToRetry(err) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeSerializationFailure, codeDeadlockDetected, codeQueryCanceled,
			codeAdminShutdown, codeTooManyConnections:
			return true
		}
		// class 08: connection exception
		return len(pgErr.Code) == 5 && pgErr.Code[:2] == "08"
	}

	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return true
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}
