package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	// Import the PostgreSQL driver.
	_ "github.com/lib/pq"

	"github.com/nestmate/nestmate/internal/profile"
	"github.com/nestmate/nestmate/store"
)

type DB struct {
	db      *sql.DB
	profile *profile.Profile
}

// NewDB opens a PostgreSQL database specified by its connection string.
func NewDB(profile *profile.Profile) (store.Driver, error) {
	if profile.DSN == "" {
		return nil, errors.New("dsn required")
	}

	postgresDB, err := sql.Open("postgres", profile.DSN)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open db with dsn: %s", profile.DSN)
	}

	postgresDB.SetMaxOpenConns(25)
	postgresDB.SetMaxIdleConns(5)

	driver := DB{db: postgresDB, profile: profile}

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
			date_of_birth BIGINT,
			gender TEXT NOT NULL DEFAULT '',
			zip_code TEXT NOT NULL DEFAULT '',
			more_about_me TEXT NOT NULL DEFAULT '',
			avatar_path TEXT NOT NULL DEFAULT '',
			budget_min INTEGER,
			budget_max INTEGER,
			ls_pet_friendly BOOLEAN,
			ls_smoking BOOLEAN,
			ls_night_owl BOOLEAN,
			ls_guest_frequency TEXT NOT NULL DEFAULT '',
			pref_pet_friendly BOOLEAN,
			pref_smoking BOOLEAN,
			pref_night_owl BOOLEAN,
			pref_guest_frequency TEXT NOT NULL DEFAULT '',
			pref_min_age INTEGER,
			pref_max_age INTEGER,
			pref_gender TEXT NOT NULL DEFAULT '',
			pref_more_about TEXT NOT NULL DEFAULT '',
			created_ts BIGINT NOT NULL,
			updated_ts BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_users_zip_prefix ON users (left(zip_code, 3))`,
		`CREATE EXTENSION IF NOT EXISTS vector`,
		`CREATE TABLE IF NOT EXISTS user_embedding (
			datapoint_id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			vector_type TEXT NOT NULL,
			city_code TEXT NOT NULL DEFAULT '',
			embedding vector(` + strconv.Itoa(d.profile.EmbeddingDimensions) + `) NOT NULL,
			updated_ts BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_user_embedding_type_city ON user_embedding (vector_type, city_code)`,
	}

	for _, stmt := range stmts {
		if _, err := d.db.ExecContext(ctx, stmt); err != nil {
			return errors.Wrapf(err, "failed to run migration: %s", stmt)
		}
	}
	return nil
}

// placeholder returns the positional parameter for the given 1-based index.
func placeholder(n int) string {
	return "$" + fmt.Sprint(n)
}

// placeholders returns a comma-joined list of positional parameters $1..$n.
func placeholders(n int) string {
	list := make([]string, 0, n)
	for i := 1; i <= n; i++ {
		list = append(list, placeholder(i))
	}
	return strings.Join(list, ", ")
}
