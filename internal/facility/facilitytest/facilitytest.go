// Package facilitytest provides a migrated, seeded in-memory facility store
// for tests in other packages.
package facilitytest

import (
	"context"
	"testing"

	"github.com/doorwatch/doorwatch-core/internal/facility"
	"github.com/doorwatch/doorwatch-core/internal/infrastructure/clock"
	"github.com/doorwatch/doorwatch-core/internal/infrastructure/database"
	_ "github.com/doorwatch/doorwatch-core/migrations" // registers schema and seed
)

// Seeded door IDs.
const (
	MainEntrance  = "1" // closed, online
	SideDoor      = "2" // open, online
	EmergencyExit = "3" // locked, offline
	BackDoor      = "4" // closed, online
)

// NewRepository opens an in-memory database, applies all migrations and
// returns a repository over it. The database is closed on test cleanup.
// A nil clk uses the real clock.
func NewRepository(t testing.TB, clk clock.Clock) *facility.SQLiteRepository {
	t.Helper()

	db, err := database.Open(database.Config{Path: database.MemoryPath})
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // test cleanup

	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("migrating test database: %v", err)
	}
	return facility.NewSQLiteRepository(db.DB, clk)
}
