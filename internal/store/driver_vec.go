//go:build sqlite_vec && cgo

package store

import (
	vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"
)

const driverName = "sqlite3"

func dsn(path string) string {
	return path + "?_journal_mode=WAL&_busy_timeout=5000"
}

func init() {
	// Registers sqlite-vec as an auto-loaded extension for go-sqlite3,
	// which provides vec_distance_cosine natively.
	vec.Auto()
}
