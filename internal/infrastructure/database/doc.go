// Package database provides the SQLite store shared by the device,
// project, rule, notification and history repositories.
//
// This package manages:
//   - The connection, with WAL mode and a single-writer pool
//   - Versioned schema migrations loaded from an fs.FS
//   - Health checks and a transaction helper
//
// All queries elsewhere use parameterised statements. The database file is
// created with 0600 permissions.
//
// Usage:
//
//	db, err := database.Open(cfg.Database)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// Migrations are additive: new columns are nullable or defaulted, and each
// .up.sql has a matching .down.sql for development rollbacks.
package database
