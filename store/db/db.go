// Package db provides the database driver constructor.
package db

import (
	"github.com/pkg/errors"

	"github.com/nestmate/nestmate/internal/profile"
	"github.com/nestmate/nestmate/store"
	"github.com/nestmate/nestmate/store/db/postgres"
	"github.com/nestmate/nestmate/store/db/sqlite"
)

// NewDBDriver creates a new database driver based on the profile.
func NewDBDriver(profile *profile.Profile) (store.Driver, error) {
	switch profile.Driver {
	case "postgres":
		return postgres.NewDB(profile)
	case "sqlite":
		return sqlite.NewDB(profile)
	default:
		return nil, errors.Errorf("unknown db driver %q", profile.Driver)
	}
}
