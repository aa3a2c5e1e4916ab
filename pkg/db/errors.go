package db

import (
	"errors"
	"strings"

	"github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun/driver/pgdriver"
)

const pgUniqueViolation = "23505"

// UniqueViolation reports whether err is a unique constraint violation and,
// if so, returns the driver's description of the violated constraint
// (the Postgres constraint name, or SQLite's "table.column" list).
func UniqueViolation(err error) (string, bool) {
	var pgErr pgdriver.Error
	if errors.As(err, &pgErr) {
		if pgErr.Field('C') != pgUniqueViolation {
			return "", false
		}
		return pgErr.Field('n') + " " + pgErr.Field('D'), true
	}

	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		if liteErr.ExtendedCode != sqlite3.ErrConstraintUnique &&
			liteErr.ExtendedCode != sqlite3.ErrConstraintPrimaryKey {
			return "", false
		}
		return liteErr.Error(), true
	}

	return "", false
}

// UniqueViolationOn reports whether err violates a unique constraint that
// covers column.
func UniqueViolationOn(err error, column string) bool {
	detail, ok := UniqueViolation(err)
	return ok && strings.Contains(detail, column)
}
