// Package dbtest opens throwaway sqlite databases for tests.
package dbtest

import (
	"path/filepath"
	"testing"

	"github.com/thep200/dothub-crawler/cfg"
	"github.com/thep200/dothub-crawler/pkg/db"
)

// NewSqlite returns a database backed by a file in t's temp dir, closed when
// the test ends.
func NewSqlite(t testing.TB) (*db.Database, *cfg.Config) {
	t.Helper()
	loader, _ := cfg.NewMockLoader()
	config, err := loader.Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	config.Database.Dsn = filepath.Join(t.TempDir(), "dothub.sqlite")

	database, err := db.NewDatabase(config)
	if err != nil {
		t.Fatalf("new database: %v", err)
	}
	t.Cleanup(func() { _ = database.Close() })
	return database, config
}
