// Package database provides SQLite connectivity for Doorwatch Core.
//
// This package manages:
//   - Database connection with WAL mode and a single writer connection
//   - Embedded schema migrations applied at startup
//   - Lifecycle and health checks
//
// All queries use parameterised statements. The database file is created
// with 0600 permissions because it holds password hashes.
//
// Usage:
//
//	db, err := database.Open(database.Config{Path: cfg.Database.Path, WALMode: true})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// Migration files are named YYYYMMDD_HHMMSS_description.{up,down}.sql and
// are registered by the migrations package through MigrationsFS.
package database
