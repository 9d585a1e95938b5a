package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"

	"github.com/platinummonkey/atrium/pkg/apperrors"
)

// PostgreSQL error codes we translate
const (
	pqUniqueViolation      = "23505"
	pqForeignKeyViolation  = "23503"
	pqCheckViolation       = "23514"
	pqNotNullViolation     = "23502"
	pqSerializationFailure = "40001"
	pqDeadlockDetected     = "40P01"
)

// ConstraintError is a constraint violation translated into the error taxonomy.
// Constraint holds the index/constraint name (PostgreSQL) or the column list (SQLite).
type ConstraintError struct {
	Kind       error
	Constraint string
	Err        error
}

func (e *ConstraintError) Error() string {
	if e.Constraint == "" {
		return e.Kind.Error()
	}
	return fmt.Sprintf("%s: constraint %s", e.Kind, e.Constraint)
}

// Unwrap exposes both the taxonomy sentinel and the driver error
func (e *ConstraintError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

// Involves reports whether the violated constraint mentions name
func (e *ConstraintError) Involves(name string) bool {
	return strings.Contains(e.Constraint, name)
}

// TranslateError converts driver errors into the apperrors taxonomy. Errors it does not
// recognise are returned unchanged.
func TranslateError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %v", apperrors.ErrNotFound, err)
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return translatePostgres(pqErr)
	}

	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return translateSQLite(liteErr)
	}

	return err
}

func translatePostgres(e *pq.Error) error {
	switch string(e.Code) {
	case pqUniqueViolation:
		return &ConstraintError{Kind: apperrors.ErrDuplicate, Constraint: e.Constraint, Err: e}
	case pqForeignKeyViolation:
		return &ConstraintError{Kind: apperrors.ErrInvalidReference, Constraint: e.Constraint, Err: e}
	case pqCheckViolation, pqNotNullViolation:
		return &ConstraintError{Kind: apperrors.ErrValidation, Constraint: e.Constraint, Err: e}
	case pqSerializationFailure, pqDeadlockDetected:
		return &ConstraintError{Kind: apperrors.ErrConflict, Err: e}
	default:
		return e
	}
}

func translateSQLite(e sqlite3.Error) error {
	if e.Code != sqlite3.ErrConstraint {
		return e
	}
	constraint := sqliteConstraint(e.Error())
	switch e.ExtendedCode {
	case sqlite3.ErrConstraintUnique, sqlite3.ErrConstraintPrimaryKey:
		return &ConstraintError{Kind: apperrors.ErrDuplicate, Constraint: constraint, Err: e}
	case sqlite3.ErrConstraintForeignKey:
		return &ConstraintError{Kind: apperrors.ErrInvalidReference, Constraint: constraint, Err: e}
	case sqlite3.ErrConstraintCheck, sqlite3.ErrConstraintNotNull:
		return &ConstraintError{Kind: apperrors.ErrValidation, Constraint: constraint, Err: e}
	default:
		return e
	}
}

// sqliteConstraint extracts "table.col, table.col" from "UNIQUE constraint failed: table.col, table.col"
func sqliteConstraint(msg string) string {
	if _, after, ok := strings.Cut(msg, "constraint failed: "); ok {
		return strings.TrimSpace(after)
	}
	return ""
}

// AsConstraintError returns the ConstraintError inside err, if any
func AsConstraintError(err error) (*ConstraintError, bool) {
	var ce *ConstraintError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}
