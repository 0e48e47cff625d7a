package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"

	dErrors "reconciler/pkg/domain-errors"
	"reconciler/pkg/platform/sentinel"
)

// PostgreSQL error codes the store reacts to.
const (
	pqSerializationFailure = "40001"
	pqDeadlockDetected     = "40P01"
	pqAdminShutdown        = "57P01"
	pqTooManyConnections   = "53300"
	pqConnectionException  = "08"
)

// mapErr tags driver failures with the sentinel the service understands.
// Coded domain errors and context errors pass through.
func (s *SQLStore) mapErr(op string, err error) error {
	return mapDriverErr(op, err)
}

func mapDriverErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := dErrors.As(err); ok {
		return err
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return fmt.Errorf("%s: %w", op, err)
	case isConflict(err):
		return fmt.Errorf("%s: %w: %w", op, sentinel.ErrConflict, err)
	case isUnavailable(err):
		return fmt.Errorf("%s: %w: %w", op, sentinel.ErrUnavailable, err)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}

func isConflict(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == pqSerializationFailure || pqErr.Code == pqDeadlockDetected
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.Code == sqlite3.ErrBusy || liteErr.Code == sqlite3.ErrLocked
	}
	return false
}

func isUnavailable(err error) bool {
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		return true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code.Class()) == pqConnectionException ||
			pqErr.Code == pqAdminShutdown ||
			pqErr.Code == pqTooManyConnections
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.Code == sqlite3.ErrCantOpen || liteErr.Code == sqlite3.ErrIoErr
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
