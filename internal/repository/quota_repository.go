package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"golang.org/x/xerrors"

	"onedbquota/internal/document"
	"onedbquota/internal/domain"
	"onedbquota/internal/schema"
)

type QuotaRepository struct {
	db *sqlx.DB
}

func NewQuotaRepository(db *sqlx.DB) *QuotaRepository {
	return &QuotaRepository{db: db}
}

func (r *QuotaRepository) BeginTx(ctx context.Context) (*sqlx.Tx, error) {
	return r.db.BeginTxx(ctx, nil)
}

func (r *QuotaRepository) TableExists(ctx context.Context, name string) (bool, error) {
	return TableExists(ctx, r.db, r.db.DriverName(), name)
}

func (r *QuotaRepository) RenameTable(ctx context.Context, from, to string) error {
	query := fmt.Sprintf("ALTER TABLE %s RENAME TO %s", pq.QuoteIdentifier(from), pq.QuoteIdentifier(to))
	if _, err := r.db.ExecContext(ctx, query); err != nil {
		return xerrors.Errorf("rename %s to %s: %w", from, to, err)
	}
	return nil
}

func (r *QuotaRepository) CreateTable(ctx context.Context, table domain.QuotaTable) error {
	if _, err := r.db.ExecContext(ctx, schema.CreateQuotaTableSQL(table)); err != nil {
		return xerrors.Errorf("create %s: %w", table.Name, err)
	}
	return nil
}

func (r *QuotaRepository) DropTable(ctx context.Context, name string) error {
	if _, err := r.db.ExecContext(ctx, "DROP TABLE "+pq.QuoteIdentifier(name)); err != nil {
		return xerrors.Errorf("drop %s: %w", name, err)
	}
	return nil
}

// CountMigrated counts rows whose body already carries running usage.
func (r *QuotaRepository) CountMigrated(ctx context.Context, table domain.QuotaTable) (int, error) {
	query := r.db.Rebind(fmt.Sprintf(
		"SELECT COUNT(*) FROM %s WHERE body LIKE ?", pq.QuoteIdentifier(table.Name)))

	var n int
	if err := r.db.GetContext(ctx, &n, query, "%<"+document.RunningVMsUsed+">%"); err != nil {
		return 0, xerrors.Errorf("count migrated rows in %s: %w", table.Name, err)
	}
	return n, nil
}

func (r *QuotaRepository) Count(ctx context.Context, q sqlx.QueryerContext, name string) (int, error) {
	var n int
	if err := sqlx.GetContext(ctx, q, &n, "SELECT COUNT(*) FROM "+pq.QuoteIdentifier(name)); err != nil {
		return 0, xerrors.Errorf("count rows in %s: %w", name, err)
	}
	return n, nil
}

// SystemRows returns the oneadmin row(s) of table.
func (r *QuotaRepository) SystemRows(ctx context.Context, tx *sqlx.Tx, table domain.QuotaTable) ([]domain.QuotaRecord, error) {
	return r.selectRows(ctx, tx, table, "=")
}

// OwnerRows returns every non-system row of table ordered by owner id.
func (r *QuotaRepository) OwnerRows(ctx context.Context, tx *sqlx.Tx, table domain.QuotaTable) ([]domain.QuotaRecord, error) {
	return r.selectRows(ctx, tx, table, "<>")
}

func (r *QuotaRepository) selectRows(ctx context.Context, tx *sqlx.Tx, table domain.QuotaTable, op string) ([]domain.QuotaRecord, error) {
	owner := pq.QuoteIdentifier(table.OwnerColumn)
	query := tx.Rebind(fmt.Sprintf(
		"SELECT %s AS owner_oid, body FROM %s WHERE %s %s ? ORDER BY %s",
		owner, pq.QuoteIdentifier(table.Name), owner, op, owner))

	var rows []domain.QuotaRecord
	if err := tx.SelectContext(ctx, &rows, query, domain.SystemOwnerID); err != nil {
		return nil, xerrors.Errorf("select rows from %s: %w", table.Name, err)
	}
	return rows, nil
}

func (r *QuotaRepository) Insert(ctx context.Context, tx *sqlx.Tx, table domain.QuotaTable, rec domain.QuotaRecord) error {
	query := tx.Rebind(fmt.Sprintf(
		"INSERT INTO %s (%s, body) VALUES (?, ?)",
		pq.QuoteIdentifier(table.Name), pq.QuoteIdentifier(table.OwnerColumn)))

	if _, err := tx.ExecContext(ctx, query, rec.OwnerID, rec.Body); err != nil {
		return xerrors.Errorf("insert owner %d into %s: %w", rec.OwnerID, table.Name, err)
	}
	return nil
}
