package sqlxrepos

import (
	"database/sql"
	"fmt"
	"regexp"
	"strings"

	"github.com/lib/pq"
	"github.com/pkg/errors"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/trezcool/escolar/core"
)

type violation int

const (
	noViolation violation = iota
	uniqueViolation
	foreignKeyViolation
	checkViolation
)

var (
	pqKeyRgx         = regexp.MustCompile(`Key \(([^)]+)\)=`)
	sqliteUniqueRgx  = regexp.MustCompile(`UNIQUE constraint failed: ([\w.]+(?:, [\w.]+)*)`)
	errMissingRef    = errors.New("a referenced row does not exist")
	errValueOutRange = errors.New("value out of range")
)

// lastColumn returns the last column of a (possibly composite, possibly table-qualified) column list.
func lastColumn(cols string) string {
	parts := strings.Split(cols, ",")
	col := strings.TrimSpace(parts[len(parts)-1])
	if i := strings.LastIndex(col, "."); i >= 0 {
		col = col[i+1:]
	}
	return strings.Trim(col, `"`)
}

// classify tells which constraint err violates, and on which column when the driver says so.
func classify(err error) (violation, string) {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		var col string
		if m := pqKeyRgx.FindStringSubmatch(pqErr.Detail); m != nil {
			col = lastColumn(m[1])
		}
		switch pqErr.Code.Name() {
		case "unique_violation":
			return uniqueViolation, col
		case "foreign_key_violation":
			return foreignKeyViolation, col
		case "check_violation":
			return checkViolation, col
		}
		return noViolation, ""
	}

	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		msg := liteErr.Error()
		switch {
		case liteErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE, liteErr.Code() == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY,
			strings.Contains(msg, "UNIQUE constraint failed"):
			var col string
			if m := sqliteUniqueRgx.FindStringSubmatch(msg); m != nil {
				col = lastColumn(m[1])
			}
			return uniqueViolation, col
		case liteErr.Code() == sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY, strings.Contains(msg, "FOREIGN KEY constraint failed"):
			return foreignKeyViolation, ""
		case liteErr.Code() == sqlite3.SQLITE_CONSTRAINT_CHECK, strings.Contains(msg, "CHECK constraint failed"):
			return checkViolation, ""
		}
	}
	return noViolation, ""
}

// trapNoRowsErr maps "no rows" errors to notFoundErr.
func trapNoRowsErr(err error, notFoundErr error, msg string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return notFoundErr
	}
	return errors.Wrap(err, msg)
}

// trapWriteErr maps constraint violations of inserts and updates to domain errors.
func trapWriteErr(err error, resource, msg string) error {
	if err == nil {
		return nil
	}
	v, col := classify(err)
	switch v {
	case uniqueViolation:
		if col == "" {
			return core.NewConflictError("", fmt.Sprintf("%s already exists", resource))
		}
		return core.NewConflictError(col, fmt.Sprintf("%s with this %s already exists", resource, col))
	case foreignKeyViolation:
		if col == "" {
			return core.NewValidationError(errMissingRef)
		}
		return core.NewFieldError(col, "does not exist")
	case checkViolation:
		return core.NewValidationError(errValueOutRange)
	}
	return errors.Wrap(err, msg)
}

// trapDeleteErr maps restricted deletes to a conflict.
func trapDeleteErr(err error, resource, msg string) error {
	if err == nil {
		return nil
	}
	if v, _ := classify(err); v == foreignKeyViolation {
		return core.NewConflictError("", fmt.Sprintf("%s is still referenced by other records", resource))
	}
	return errors.Wrap(err, msg)
}

// checkAffected returns notFoundErr when res reports no affected row.
func checkAffected(res sql.Result, notFoundErr error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "counting affected rows")
	}
	if n == 0 {
		return notFoundErr
	}
	return nil
}
