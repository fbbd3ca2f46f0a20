//go:build !cgo

package arsenal

import (
	_ "modernc.org/sqlite"
)

// driverName selects the pure-Go SQLite driver for builds without cgo.
// The sqlite-vec extension is unavailable here, so similarity search
// falls back to in-process cosine ranking over stored embeddings.
const driverName = "sqlite"
