package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"golang.org/x/xerrors"

	"onedbquota/internal/domain"
)

const DefaultVMTable = "vm_pool"

type VMRepository struct {
	table string
}

func NewVMRepository(table string) *VMRepository {
	if table == "" {
		table = DefaultVMTable
	}
	return &VMRepository{table: table}
}

func (r *VMRepository) Table() string {
	return r.table
}

// ForEachByOwner calls fn for every VM of the owner that is not DONE, in oid
// order. The result set is drained before ForEachByOwner returns.
func (r *VMRepository) ForEachByOwner(ctx context.Context, tx *sqlx.Tx, ownerColumn string, ownerID int64, fn func(domain.VMRecord) error) error {
	query := tx.Rebind(fmt.Sprintf(
		"SELECT oid, body FROM %s WHERE %s = ? AND state <> ? ORDER BY oid",
		pq.QuoteIdentifier(r.table), pq.QuoteIdentifier(ownerColumn)))

	rows, err := tx.QueryxContext(ctx, query, ownerID, int(domain.VMStateDone))
	if err != nil {
		return xerrors.Errorf("query vms of owner %d: %w", ownerID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var vm domain.VMRecord
		if err := rows.StructScan(&vm); err != nil {
			return xerrors.Errorf("scan vm of owner %d: %w", ownerID, err)
		}
		if err := fn(vm); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return xerrors.Errorf("iterate vms of owner %d: %w", ownerID, err)
	}
	return nil
}
