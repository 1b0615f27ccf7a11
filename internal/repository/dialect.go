package repository

import (
	"context"

	"github.com/jmoiron/sqlx"
	"golang.org/x/xerrors"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
)

var tableExistsQueries = map[string]string{
	DriverPostgres: `SELECT EXISTS (
        SELECT 1 FROM information_schema.tables
        WHERE table_schema = current_schema() AND table_name = ?)`,
	DriverSQLite: `SELECT EXISTS (
        SELECT 1 FROM sqlite_master
        WHERE type = 'table' AND name = ?)`,
}

// TableExists reports whether name is a table in the current schema.
func TableExists(ctx context.Context, q sqlx.QueryerContext, driver, name string) (bool, error) {
	query, ok := tableExistsQueries[driver]
	if !ok {
		return false, xerrors.Errorf("unsupported driver %q", driver)
	}

	var exists bool
	if err := sqlx.GetContext(ctx, q, &exists, sqlx.Rebind(sqlx.BindType(driver), query), name); err != nil {
		return false, xerrors.Errorf("check table %s: %w", name, err)
	}
	return exists, nil
}
