// Package migration applies versioned SQL files to a SQLite database.
//
// Migration files are named {version}_{description}.sql (for example
// "001_init.sql") and are read from an fs.FS, usually an embed.FS compiled
// into the binary. Applied versions are tracked in schema_migrations, each
// file runs once inside its own transaction, and files are applied in
// ascending numeric version order.
//
//	db, err := migration.NewConnectionManager(cfg).GetConnection()
//	...
//	applied, err := migration.NewManager(db, migrations.FS, logger).Run(ctx)
package migration
