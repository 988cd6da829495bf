//go:build !cgosqlite

package store

import (
	_ "modernc.org/sqlite" // pure-Go SQLite driver, default build
)

// sqlDriverName selects the database/sql driver. The default build uses the
// transpiled pure-Go driver so the module cross-compiles without a C
// toolchain.
const sqlDriverName = "sqlite"
