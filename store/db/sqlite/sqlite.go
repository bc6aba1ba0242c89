package sqlite

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"

	// Import the SQLite driver.
	_ "modernc.org/sqlite"

	"github.com/nestmate/nestmate/internal/profile"
	"github.com/nestmate/nestmate/store"
)

// SQLite is supported on a best-effort basis for development and testing only.
// The vector search backend requires postgres/pgvector; a sqlite instance can
// hold user records but cannot serve nearest-neighbor retrieval.

type DB struct {
	db      *sql.DB
	profile *profile.Profile
}

// NewDB opens a database specified by the profile DSN.
func NewDB(profile *profile.Profile) (store.Driver, error) {
	if profile.DSN == "" {
		return nil, errors.New("dsn required")
	}

	// WAL journal mode with a busy timeout prevents most locking issues for
	// the single-writer usage this driver targets.
	sqliteDB, err := sql.Open("sqlite", profile.DSN+"?_pragma=foreign_keys(0)&_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open db with dsn: %s", profile.DSN)
	}

	// SQLite: a single connection is optimal with WAL.
	sqliteDB.SetMaxOpenConns(1)
	sqliteDB.SetMaxIdleConns(1)
	sqliteDB.SetConnMaxLifetime(0)
	sqliteDB.SetConnMaxIdleTime(0)

	driver := DB{db: sqliteDB, profile: profile}

	return &driver, nil
}

func (d *DB) GetDB() *sql.DB {
	return d.db
}

func (d *DB) Close() error {
	return d.db.Close()
}

// Migrate creates the schema. Idempotent.
func (d *DB) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			first_name TEXT NOT NULL DEFAULT '',
			last_name TEXT NOT NULL DEFAULT '',
			email TEXT NOT NULL UNIQUE,
			date_of_birth INTEGER,
			gender TEXT NOT NULL DEFAULT '',
			zip_code TEXT NOT NULL DEFAULT '',
			more_about_me TEXT NOT NULL DEFAULT '',
			avatar_path TEXT NOT NULL DEFAULT '',
			budget_min INTEGER,
			budget_max INTEGER,
			ls_pet_friendly INTEGER,
			ls_smoking INTEGER,
			ls_night_owl INTEGER,
			ls_guest_frequency TEXT NOT NULL DEFAULT '',
			pref_pet_friendly INTEGER,
			pref_smoking INTEGER,
			pref_night_owl INTEGER,
			pref_guest_frequency TEXT NOT NULL DEFAULT '',
			pref_min_age INTEGER,
			pref_max_age INTEGER,
			pref_gender TEXT NOT NULL DEFAULT '',
			pref_more_about TEXT NOT NULL DEFAULT '',
			created_ts INTEGER NOT NULL,
			updated_ts INTEGER NOT NULL
		)`,
	}

	for _, stmt := range stmts {
		if _, err := d.db.ExecContext(ctx, stmt); err != nil {
			return errors.Wrapf(err, "failed to run migration: %s", stmt)
		}
	}
	return nil
}
