//go:build cgo

package arsenal

import (
	_ "github.com/mattn/go-sqlite3"
)

// driverName selects the cgo SQLite driver. Building with the
// sqlite_vec tag additionally registers the sqlite-vec extension on
// every connection (see vec_ext.go); without it the version probe in
// detectVectorExt fails and similarity search ranks in process.
const driverName = "sqlite3"
