package project

import (
	"fmt"

	"github.com/dgraph-io/badger/v4"
)

// dbOptions returns the on-disk options. Every commit step relies on the badger
// transaction being durable before the next file is touched.
func dbOptions(path string) badger.Options {
	return badger.DefaultOptions(path).
		WithSyncWrites(true).
		WithNumVersionsToKeep(1).
		WithLogger(nil)
}

// memoryDBOptions keeps everything in memory. Used with fsys.MemoryFS.
func memoryDBOptions() badger.Options {
	return badger.DefaultOptions("").
		WithValueDir("").
		WithDir("").
		WithInMemory(true).
		WithNumVersionsToKeep(1).
		WithNumGoroutines(1).
		WithLogger(nil)
}

// OpenMemoryDB returns an in-memory database that can be shared between
// Initialize and Open through Options.DB.
func OpenMemoryDB() (*badger.DB, error) {
	db, err := badger.Open(memoryDBOptions())
	if err != nil {
		return nil, fmt.Errorf("opening in-memory database: %w", err)
	}
	return db, nil
}
