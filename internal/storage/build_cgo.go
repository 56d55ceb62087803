//go:build cgo_sqlite

package storage

// This file is compiled when building with CGO and the cgo_sqlite tag.
//
// Build command:
//   CGO_ENABLED=1 go build -tags "cgo_sqlite" ./...
//
// Driver used: github.com/mattn/go-sqlite3

import (
	"errors"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
)

const (
	// DriverName is the SQLite driver to use
	DriverName = "sqlite3"

	// BuildMode describes the current build configuration
	BuildMode = "cgo"
)

// buildDSN appends the connection parameters understood by mattn/go-sqlite3
func buildDSN(dbPath string, busyTimeout time.Duration) string {
	params := url.Values{}
	params.Set("_busy_timeout", strconv.FormatInt(busyTimeout.Milliseconds(), 10))
	params.Set("_foreign_keys", "on")
	if !isMemoryPath(dbPath) {
		params.Set("_journal_mode", "WAL")
		params.Set("_synchronous", "NORMAL")
	}
	params.Set("_txlock", "immediate")
	if !strings.HasPrefix(dbPath, "file:") {
		dbPath = "file:" + dbPath
	}
	return joinParams(dbPath, params)
}

func isBusyError(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked
	}
	return false
}

func isConstraintError(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrConstraint
	}
	return false
}
