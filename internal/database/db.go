// Package database stores sent messages, listener cursors and logon tokens in SQLite.
package database

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"

	"github.com/edgard/scposter/migrations"

	_ "modernc.org/sqlite" //revive:disable:blank-imports
)

// busyTimeout is how long a connection waits on a lock held by another
// scposter process (a CLI send while "run" is polling) before SQLITE_BUSY.
const busyTimeout = 5 * time.Second

// connPragmas are applied by the driver to every new connection.
var connPragmas = []string{
	fmt.Sprintf("busy_timeout(%d)", busyTimeout.Milliseconds()),
	"journal_mode(WAL)",
	"foreign_keys(1)",
}

// NewDB opens the SQLite file at path in WAL mode and migrates it to the
// latest schema.
func NewDB(path string, logger *slog.Logger) (*sqlx.DB, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	db, err := sqlx.Connect("sqlite", withPragmas(path))
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", path, err)
	}
	// One writer per process; WAL lets other processes keep reading.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxIdleTime(10 * time.Minute)

	file := ExtractDBNameFromPath(path)
	applied, err := migrateUp(db.DB, file)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("migrate %s: %w", file, err), db.Close())
	}
	logger.Info("Database ready", "path", file, "migrated", applied)
	return db, nil
}

// CloseDB closes db and logs a failure; nil is ignored.
func CloseDB(db *sqlx.DB, logger *slog.Logger) {
	if db == nil {
		return
	}
	if err := db.Close(); err != nil && logger != nil {
		logger.Error("Failed to close database", "error", err)
	}
}

// migrateUp applies the embedded migrations and reports whether any ran.
func migrateUp(db *sql.DB, name string) (bool, error) {
	src, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return false, fmt.Errorf("load migrations: %w", err)
	}
	target, err := sqlite3.WithInstance(db, &sqlite3.Config{DatabaseName: name})
	if err != nil {
		return false, fmt.Errorf("migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", target)
	if err != nil {
		return false, fmt.Errorf("migrator: %w", err)
	}

	switch err := m.Up(); {
	case errors.Is(err, migrate.ErrNoChange):
		return false, nil
	case err != nil:
		return false, err
	}
	return true, nil
}

// withPragmas adds the connection pragmas to path, keeping any query the
// caller already set.
func withPragmas(path string) string {
	base, query, _ := strings.Cut(path, "?")
	values, err := url.ParseQuery(query)
	if err != nil {
		values = url.Values{}
	}
	have := strings.Join(values["_pragma"], ",")
	for _, p := range connPragmas {
		name, _, _ := strings.Cut(p, "(")
		if !strings.Contains(have, name+"(") {
			values.Add("_pragma", p)
		}
	}
	return base + "?" + values.Encode()
}

// ExtractDBNameFromPath returns the file name part of a path that may carry
// a "file:" prefix, a query string or percent-encoding.
func ExtractDBNameFromPath(path string) string {
	path, _, _ = strings.Cut(strings.TrimPrefix(path, "file:"), "?")
	if decoded, err := url.PathUnescape(path); err == nil {
		return decoded
	}
	return path
}
