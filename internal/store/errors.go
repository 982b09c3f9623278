package store

import (
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"resourcegraph/internal/apierr"
)

// MySQL error numbers for constraint violations.
const (
	mysqlErrDupEntry           = 1062
	mysqlErrRowIsReferenced    = 1451
	mysqlErrNoReferencedRow    = 1452
	mysqlErrBadNull            = 1048
	mysqlErrNoDefaultForField  = 1364
	mysqlErrCheckConstraintHit = 3819
)

// classify reclassifies constraint violations reported by the driver as
// ConflictException (uniqueness, foreign keys) or ValidationException
// (not-null, check). Other errors are returned unchanged.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *apierr.Error
	if errors.As(err, &apiErr) {
		return err
	}

	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		switch mysqlErr.Number {
		case mysqlErrDupEntry, mysqlErrRowIsReferenced, mysqlErrNoReferencedRow:
			return apierr.Wrap(apierr.ConflictException, err, "constraint violation")
		case mysqlErrBadNull, mysqlErrNoDefaultForField, mysqlErrCheckConstraintHit:
			return apierr.Wrap(apierr.ValidationException, err, "invalid value")
		}
		return err
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505", "23503": // unique_violation, foreign_key_violation
			return apierr.Wrap(apierr.ConflictException, err, "constraint violation").WithField(pgErr.ColumnName)
		case "23502", "23514": // not_null_violation, check_violation
			return apierr.Wrap(apierr.ValidationException, err, "invalid value").WithField(pgErr.ColumnName)
		}
		return err
	}

	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		switch liteErr.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY:
			return apierr.Wrap(apierr.ConflictException, err, "constraint violation")
		case sqlite3.SQLITE_CONSTRAINT_NOTNULL, sqlite3.SQLITE_CONSTRAINT_CHECK:
			return apierr.Wrap(apierr.ValidationException, err, "invalid value")
		}
		if liteErr.Code()&0xff == sqlite3.SQLITE_CONSTRAINT {
			// Without extended result codes only the message tells them apart.
			msg := liteErr.Error()
			if strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "FOREIGN KEY constraint failed") {
				return apierr.Wrap(apierr.ConflictException, err, "constraint violation")
			}
			return apierr.Wrap(apierr.ValidationException, err, "invalid value")
		}
	}
	return err
}
