package testutil

import (
	"testing"

	"github.com/Napageneral/onboard/internal/db"
)

// OpenTestDB creates an in-memory SQLite DB with the onboard schema applied.
// The database is closed when the test finishes.
func OpenTestDB(t *testing.T) *db.DB {
	t.Helper()

	database, err := db.Open(":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return database
}
