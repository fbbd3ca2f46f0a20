//go:build sqlite_vec && cgo

package arsenal

import (
	vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
)

// vec.Auto registers sqlite-vec as an auto-loaded extension on every
// new go-sqlite3 connection, which makes the vec0 virtual table
// available for KNN queries.
func init() {
	vec.Auto()
}
