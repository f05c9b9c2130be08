// Package testing provides testing utilities and helpers for the famledger project.
package testing

import (
	"path/filepath"
	"testing"

	"github.com/aristath/famledger/internal/database"
)

// NewTestDB creates a temporary SQLite database for testing with automatic schema migration.
// Known names ("records") get their schema applied; unknown names yield an empty database.
// The database is closed when the test ends.
func NewTestDB(t *testing.T, name string) *database.DB {
	t.Helper()

	db, err := database.New(database.Config{
		Path:    filepath.Join(t.TempDir(), "test_"+name+".db"),
		Profile: database.ProfileStandard,
		Name:    name,
	})
	if err != nil {
		t.Fatalf("Failed to create test database %s: %v", name, err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Logf("Warning: Failed to close test database %s: %v", name, err)
		}
	})

	if err := db.Migrate(); err != nil {
		t.Fatalf("Failed to migrate test database %s: %v", name, err)
	}
	return db
}
