// Package testutil provides SQLite databases laid out like a 5.5.80
// OpenNebula install.
package testutil

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"onedbquota/internal/domain"
	"onedbquota/internal/repository"
	"onedbquota/internal/schema"
)

// NewSQLiteDB returns a file-backed database with the baseline schema.
func NewSQLiteDB(t testing.TB) *sqlx.DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "one.db")
	require.NoError(t, schema.Bootstrap("sqlite3://"+path, zap.NewNop()))

	db, err := sqlx.Connect(repository.DriverSQLite, path)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = db.Close()
	})
	return db
}

func InsertQuota(t testing.TB, db *sqlx.DB, table domain.QuotaTable, ownerID int64, body string) {
	t.Helper()

	query := fmt.Sprintf("INSERT INTO %s (%s, body) VALUES (?, ?)", table.Name, table.OwnerColumn)
	_, err := db.Exec(query, ownerID, body)
	require.NoError(t, err)
}

type VM struct {
	OID   int64
	UID   int64
	GID   int64
	State domain.VMState
	CPU   string
	Mem   string
}

func (vm VM) Body() string {
	return fmt.Sprintf(
		"<VM><ID>%d</ID><UID>%d</UID><GID>%d</GID><STATE>%d</STATE><LCM_STATE>0</LCM_STATE>"+
			"<TEMPLATE><CPU><![CDATA[%s]]></CPU><MEMORY><![CDATA[%s]]></MEMORY></TEMPLATE></VM>",
		vm.OID, vm.UID, vm.GID, vm.State, vm.CPU, vm.Mem)
}

func InsertVM(t testing.TB, db *sqlx.DB, vm VM) {
	t.Helper()

	_, err := db.Exec(
		`INSERT INTO vm_pool (oid, name, body, uid, gid, last_poll, state, lcm_state, owner_u, group_u, other_u)
         VALUES (?, ?, ?, ?, ?, 0, ?, 0, 1, 0, 0)`,
		vm.OID, fmt.Sprintf("vm-%d", vm.OID), vm.Body(), vm.UID, vm.GID, int(vm.State))
	require.NoError(t, err)
}

// QuotaBodies returns owner id -> body for every row of name.
func QuotaBodies(t testing.TB, db *sqlx.DB, table domain.QuotaTable) map[int64]string {
	t.Helper()

	var rows []domain.QuotaRecord
	query := fmt.Sprintf("SELECT %s AS owner_oid, body FROM %s", table.OwnerColumn, table.Name)
	require.NoError(t, db.Select(&rows, query))

	bodies := make(map[int64]string, len(rows))
	for _, r := range rows {
		bodies[r.OwnerID] = r.Body
	}
	return bodies
}
