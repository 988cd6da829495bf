//go:build cgosqlite

package store

import (
	_ "github.com/mattn/go-sqlite3" // cgo SQLite driver, opt-in via -tags cgosqlite
)

// sqlDriverName selects the database/sql driver. Builds tagged cgosqlite use
// the cgo driver for its faster write path on busy hosts.
const sqlDriverName = "sqlite3"
