// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import (
	"errors"

	"modernc.org/sqlite"
	sqlitelib "modernc.org/sqlite/lib"
)

func sqliteCode(err error) (int, bool) {
	var sqlErr *sqlite.Error
	if errors.As(err, &sqlErr) {
		return sqlErr.Code(), true
	}
	return 0, false
}

func isUniqueConstraintError(err error) bool {
	code, ok := sqliteCode(err)
	return ok && code == sqlitelib.SQLITE_CONSTRAINT_UNIQUE
}

func isForeignKeyConstraintError(err error) bool {
	code, ok := sqliteCode(err)
	return ok && code == sqlitelib.SQLITE_CONSTRAINT_FOREIGNKEY
}

func isCheckConstraintError(err error) bool {
	code, ok := sqliteCode(err)
	return ok && code == sqlitelib.SQLITE_CONSTRAINT_CHECK
}

type sqlScanner interface {
	Scan(dest ...any) error
}
