// Package database provides SQLite connectivity for the thermostat service.
//
// This package manages:
//   - Database connection with WAL mode for concurrent access
//   - Forward-only schema migrations embedded in the binary
//   - Connection lifecycle and health checks
//
// Security Considerations:
//   - All queries use parameterised statements
//   - Database file permissions are set to 0600 (owner read/write only)
//
// Usage:
//
//	db, err := database.Open(ctx, database.Config{Path: cfg.Database.Path, WALMode: true})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// Migrations are additive only: new columns must be NULLABLE or carry a
// DEFAULT, and existing columns are never dropped or renamed.
package database
