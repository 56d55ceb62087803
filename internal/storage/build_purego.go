//go:build !cgo_sqlite

package storage

// This file is compiled by default. It uses a pure Go SQLite implementation.
//
// Build command:
//   CGO_ENABLED=0 go build ./...
//
// Driver used: modernc.org/sqlite

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

const (
	// DriverName is the SQLite driver to use
	DriverName = "sqlite"

	// BuildMode describes the current build configuration
	BuildMode = "purego"
)

// buildDSN appends the connection pragmas understood by modernc.org/sqlite
func buildDSN(dbPath string, busyTimeout time.Duration) string {
	params := url.Values{}
	params.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", busyTimeout.Milliseconds()))
	params.Add("_pragma", "foreign_keys(1)")
	if !isMemoryPath(dbPath) {
		params.Add("_pragma", "journal_mode(WAL)")
		params.Add("_pragma", "synchronous(NORMAL)")
	}
	params.Set("_txlock", "immediate")
	return joinParams(dbPath, params)
}

// primaryCode extracts the primary SQLite result code from a driver error
func primaryCode(err error) (int, bool) {
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code() & 0xff, true
	}
	return 0, false
}

func isBusyError(err error) bool {
	code, ok := primaryCode(err)
	return ok && (code == sqlite3.SQLITE_BUSY || code == sqlite3.SQLITE_LOCKED)
}

func isConstraintError(err error) bool {
	code, ok := primaryCode(err)
	return ok && code == sqlite3.SQLITE_CONSTRAINT
}
