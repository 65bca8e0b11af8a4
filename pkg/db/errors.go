package db

import (
	"strings"

	pkgerrors "github.com/angelmondragon/marketcore/pkg/errors"
)

const uniqueViolationState = "23505"

// IsUniqueViolation reports whether err is a unique constraint violation on
// either Postgres or sqlite. When constraintName is provided the error must
// mention it.
func IsUniqueViolation(err error, constraintName string) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	unique := pkgerrors.SQLState(err) == uniqueViolationState ||
		strings.Contains(msg, "duplicate key value") ||
		strings.Contains(msg, "UNIQUE constraint failed")
	if !unique {
		return false
	}
	if constraintName != "" {
		return strings.Contains(msg, constraintName)
	}
	return true
}
