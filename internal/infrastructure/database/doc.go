// Package database provides SQLite connectivity for wtap-core.
//
// It owns the connection settings (WAL, busy timeout, single writer) and a
// small forward-only migration runner. Migration files are embedded by the
// migrations package and passed in explicitly:
//
//	db, err := database.Open(cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
//
// Migrations are additive: new columns must be nullable or defaulted, and
// every .up.sql has a matching .down.sql.
package database
