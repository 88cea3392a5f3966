package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"
)

var (
	ErrRecordNotFound = errors.New("record not found")
	ErrTableNotFound  = errors.New("table not found")
	ErrDatabase       = errors.New("database error")
)

// ErrDuplicateKey accompanies ErrDatabase when a unique index rejects a write.
var ErrDuplicateKey = errors.New("duplicate key")

const (
	pgUndefinedTable  = "42P01"
	pgUniqueViolation = "23505"
)

// translate maps a driver error onto the store taxonomy. The driver error
// is folded into the message and is not reachable through errors.As.
func translate(op, table string, id any, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrRecordNotFound), errors.Is(err, ErrTableNotFound), errors.Is(err, ErrDatabase):
		return err
	case errors.Is(err, sql.ErrNoRows):
		if id == nil {
			return fmt.Errorf("%w: no matching %s", ErrRecordNotFound, table)
		}
		return fmt.Errorf("%w: %s with id %v not found", ErrRecordNotFound, table, id)
	case isMissingTable(err):
		return fmt.Errorf("%w: %s", ErrTableNotFound, table)
	case isUniqueViolation(err):
		return fmt.Errorf("%w: %s %s failed: %w: %v", ErrDatabase, op, table, ErrDuplicateKey, err)
	default:
		return fmt.Errorf("%w: %s %s failed: %v", ErrDatabase, op, table, err)
	}
}

func isMissingTable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUndefinedTable
	}
	return strings.Contains(err.Error(), "no such table")
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			liteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

func isNotFound(err error) bool {
	return errors.Is(err, ErrRecordNotFound)
}
