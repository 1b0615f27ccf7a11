// Package schema holds the table layouts the running-quota migration reads
// and recreates, and applies the 5.5.80 baseline to empty databases.
package schema

import (
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/lib/pq"
	"go.uber.org/zap"
	"golang.org/x/xerrors"

	"onedbquota/internal/domain"
)

const migrationsDir = "migrations"

//go:embed migrations/*.sql
var embeddedMigrations embed.FS

// CreateQuotaTableSQL returns the DDL for a quota table with the given
// layout. It matches the baseline definition of user_quotas/group_quotas.
func CreateQuotaTableSQL(table domain.QuotaTable) string {
	return fmt.Sprintf("CREATE TABLE %s (%s INTEGER PRIMARY KEY, body TEXT)",
		pq.QuoteIdentifier(table.Name),
		pq.QuoteIdentifier(table.OwnerColumn),
	)
}

// Bootstrap brings the database at databaseURL up to the 5.5.80 layout.
// It is a no-op on databases that already carry it.
func Bootstrap(databaseURL string, log *zap.Logger) error {
	src, err := iofs.New(embeddedMigrations, migrationsDir)
	if err != nil {
		return xerrors.Errorf("open embedded migrations: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", src, databaseURL)
	if err != nil {
		return xerrors.Errorf("create migrate instance: %w", err)
	}
	defer m.Close()

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return xerrors.Errorf("get schema version: %w", err)
	}

	if dirty {
		log.Warn("found dirty schema state, forcing version", zap.Uint("version", version))
		if err := m.Force(int(version)); err != nil {
			return xerrors.Errorf("force version: %w", err)
		}
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return xerrors.Errorf("apply baseline schema: %w", err)
	}

	log.Info("baseline schema ready")
	return nil
}
