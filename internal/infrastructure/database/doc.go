// Package database opens the SQLite file behind the command audit log.
//
// The database is optional and off by default. Open applies WAL mode and
// a busy timeout; Migrate applies the embedded *.up.sql files in name
// order and records each in schema_migrations.
//
// Only device names, command tags and outcomes are stored. Command
// arguments never reach the database, and the file is created 0600.
//
// Migrations only add: a new column must be NULLABLE or carry a DEFAULT.
package database
