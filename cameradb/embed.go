package cameradb

import (
	_ "embed"
	"sync"
)

//go:embed data/cameras.toml
var embeddedTOML []byte

// embeddedOnce caches the parsed built-in database.
var (
	embeddedOnce sync.Once
	embedded     *DB
)

// Embedded returns the compiled-in camera database. Panics if the embedded TOML
// fails to parse, since that would indicate a build-time asset error
// rather than a runtime condition callers should handle.
func Embedded() *DB {
	embeddedOnce.Do(func() {
		db, err := Parse(embeddedTOML)
		if err != nil {
			panic(err)
		}
		embedded = db
	})
	return embedded
}
