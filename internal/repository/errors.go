// Package repository defines error types that are reused across multiple
// repositories. These sentinel values allow higher layers such as the
// chat service to distinguish between different failure scenarios without
// inspecting driver errors.
package repository

import (
	"errors"
	"time"

	"github.com/go-sql-driver/mysql"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// ErrNotFound is returned when the requested row does not exist, or exists
// but is inactive and must be treated as absent.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a write loses a uniqueness race and cannot be
// resolved by re-reading, which callers should treat as a storage failure.
var ErrConflict = errors.New("conflict")

// isDuplicateKey reports whether err is a unique-constraint violation from
// either supported driver.
func isDuplicateKey(err error) bool {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == 1062 // ER_DUP_ENTRY
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		switch liteErr.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return true
		}
	}
	return false
}

func toMillis(t time.Time) int64 { return t.UTC().UnixMilli() }

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }
