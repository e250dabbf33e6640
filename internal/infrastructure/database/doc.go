// Package database provides SQLite connectivity for the VitalSync
// journal.
//
// The journal records sync pass history for diagnostics. It is
// deliberately not a checkpoint: sync progress is always re-derived
// from the time-series store, and deleting the journal file never
// changes sync behavior.
//
// This package manages:
//   - Database connection with WAL mode
//   - Embedded schema migrations
//   - Connection lifecycle and health checks
//
// Security Considerations:
//   - All queries use parameterised statements
//   - Database file permissions are set to 0600 (owner read/write only)
//
// Usage:
//
//	db, err := database.Open(database.Config{Path: cfg.Journal.Path, WALMode: true, BusyTimeout: 5})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// Migrations are additive-only; each file has both .up.sql and
// .down.sql, named YYYYMMDD_HHMMSS_description.{up,down}.sql.
package database
