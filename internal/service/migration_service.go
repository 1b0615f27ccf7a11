package service

import (
	"context"
	"strconv"
	"strings"

	units "github.com/docker/go-units"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
	"golang.org/x/xerrors"

	"onedbquota/internal/document"
	"onedbquota/internal/domain"
	"onedbquota/internal/repository"
)

const (
	PriorDBVersion    = "5.5.80"
	DBVersion         = "5.6.0"
	OneVersion        = "OpenNebula 5.6.0"
	DefaultTempPrefix = "old_"
)

// Phase is the layout a quota table has reached during the swap. A table
// left in PhaseRenamed has its source rows under the temporary name and an
// empty table under the original one.
type Phase string

const (
	PhasePending Phase = "PENDING"
	PhaseRenamed Phase = "RENAMED"
	PhaseRebuilt Phase = "REBUILT"
	PhaseDone    Phase = "DONE"
)

type TableReport struct {
	Table      string
	Phase      Phase
	Rows       int
	SystemRows int
	Rewritten  int
	Untouched  int
}

// Result is what the migration reports back to its caller.
type Result struct {
	Success   bool
	DBVersion string
	Label     string
	Tables    []TableReport
	Err       error
}

type MigrationOptions struct {
	Tables     []domain.QuotaTable
	TempPrefix string
	Log        *zap.Logger
}

type MigrationService struct {
	quotas     *repository.QuotaRepository
	vms        *repository.VMRepository
	tables     []domain.QuotaTable
	tempPrefix string
	log        *zap.Logger
}

func NewMigrationService(quotas *repository.QuotaRepository, vms *repository.VMRepository, opts MigrationOptions) *MigrationService {
	if len(opts.Tables) == 0 {
		opts.Tables = []domain.QuotaTable{domain.UserQuotas}
	}
	if opts.TempPrefix == "" {
		opts.TempPrefix = DefaultTempPrefix
	}
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}
	return &MigrationService{
		quotas:     quotas,
		vms:        vms,
		tables:     opts.Tables,
		tempPrefix: opts.TempPrefix,
		log:        opts.Log,
	}
}

// Run performs the migration and never returns an error directly; failures
// are reported through Result.
func (s *MigrationService) Run(ctx context.Context) Result {
	reports, err := s.Up(ctx)
	return Result{
		Success:   err == nil,
		DBVersion: DBVersion,
		Label:     OneVersion,
		Tables:    reports,
		Err:       err,
	}
}

// Up rewrites every configured quota table in turn and stops at the first
// failure. The reports of tables already processed are returned either way.
func (s *MigrationService) Up(ctx context.Context) ([]TableReport, error) {
	log := s.log.With(
		zap.String("run_id", uuid.NewString()),
		zap.String("from", PriorDBVersion),
		zap.String("to", DBVersion),
	)
	log.Info("starting running quota migration", zap.Int("tables", len(s.tables)))

	reports := make([]TableReport, 0, len(s.tables))
	for _, table := range s.tables {
		report, err := s.migrateTable(ctx, log.With(zap.String("table", table.Name)), table)
		reports = append(reports, report)
		if err != nil {
			log.Error("migration failed",
				zap.String("table", table.Name),
				zap.String("phase", string(report.Phase)),
				zap.Error(err))
			return reports, xerrors.Errorf("migrate %s: %w", table.Name, err)
		}
	}

	log.Info("running quota migration finished", zap.String("label", OneVersion))
	return reports, nil
}

func (s *MigrationService) migrateTable(ctx context.Context, log *zap.Logger, table domain.QuotaTable) (TableReport, error) {
	report := TableReport{Table: table.Name, Phase: PhasePending}
	old := table.WithName(s.tempPrefix + table.Name)

	if err := s.preflight(ctx, table, old); err != nil {
		return report, err
	}

	if err := s.quotas.RenameTable(ctx, table.Name, old.Name); err != nil {
		return report, err
	}
	report.Phase = PhaseRenamed
	log.Info("quota table renamed", zap.String("temporary", old.Name))

	if err := s.quotas.CreateTable(ctx, table); err != nil {
		return report, err
	}

	if err := s.rebuild(ctx, log, table, old, &report); err != nil {
		return report, err
	}
	report.Phase = PhaseRebuilt
	log.Info("quota table rebuilt",
		zap.Int("rows", report.Rows),
		zap.Int("system_rows", report.SystemRows),
		zap.Int("rewritten", report.Rewritten),
		zap.Int("untouched", report.Untouched))

	if err := s.quotas.DropTable(ctx, old.Name); err != nil {
		return report, err
	}
	report.Phase = PhaseDone
	log.Info("temporary quota table dropped", zap.String("temporary", old.Name))

	return report, nil
}

func (s *MigrationService) preflight(ctx context.Context, table, old domain.QuotaTable) error {
	for _, name := range []string{table.Name, old.Name, table.OwnerColumn, table.VMOwnerColumn, s.vms.Table()} {
		if err := repository.ValidateIdentifier(name); err != nil {
			return err
		}
	}

	exists, err := s.quotas.TableExists(ctx, table.Name)
	if err != nil {
		return err
	}
	if !exists {
		return &repository.SchemaError{Table: table.Name, Reason: "table does not exist"}
	}

	exists, err = s.quotas.TableExists(ctx, old.Name)
	if err != nil {
		return err
	}
	if exists {
		return &repository.SchemaError{Table: old.Name, Reason: "temporary table already exists, a previous run was interrupted"}
	}

	exists, err = s.quotas.TableExists(ctx, s.vms.Table())
	if err != nil {
		return err
	}
	if !exists {
		return &repository.SchemaError{Table: s.vms.Table(), Reason: "table does not exist"}
	}

	migrated, err := s.quotas.CountMigrated(ctx, table)
	if err != nil {
		return err
	}
	if migrated > 0 {
		return &repository.SchemaError{
			Table:  table.Name,
			Reason: strconv.Itoa(migrated) + " rows already carry running usage",
		}
	}
	return nil
}

// rebuild fills table from old inside a single transaction.
func (s *MigrationService) rebuild(ctx context.Context, log *zap.Logger, table, old domain.QuotaTable, report *TableReport) error {
	tx, err := s.quotas.BeginTx(ctx)
	if err != nil {
		return xerrors.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	system, err := s.quotas.SystemRows(ctx, tx, old)
	if err != nil {
		return err
	}
	for _, rec := range system {
		if err := s.quotas.Insert(ctx, tx, table, rec); err != nil {
			return err
		}
		report.SystemRows++
	}

	owners, err := s.quotas.OwnerRows(ctx, tx, old)
	if err != nil {
		return err
	}
	for _, rec := range owners {
		doc, err := document.Parse(rec.Body)
		if err != nil {
			return xerrors.Errorf("%s %d: %w", strings.ToLower(table.Resource), rec.OwnerID, err)
		}
		checkDocumentID(log, doc, rec.OwnerID)

		totals, err := AggregateVMs(func(fn func(domain.VMRecord) error) error {
			return s.vms.ForEachByOwner(ctx, tx, table.VMOwnerColumn, rec.OwnerID, fn)
		})
		if err != nil {
			return xerrors.Errorf("%s %d: %w", strings.ToLower(table.Resource), rec.OwnerID, err)
		}

		body := rec.Body
		if InjectRunningUsage(doc, totals) {
			if body, err = doc.String(); err != nil {
				return err
			}
			report.Rewritten++
		} else {
			report.Untouched++
		}

		log.Debug("owner quota computed",
			zap.Int64("owner", rec.OwnerID),
			zap.Int64("vms", totals.VMsUsed),
			zap.Int64("running_vms", totals.RunningVMsUsed),
			zap.String("running_cpu", FormatHundredths(totals.RunningCPUUsed)),
			zap.String("running_memory", units.BytesSize(float64(totals.RunningMemUsed)*units.MiB)))

		if err := s.quotas.Insert(ctx, tx, table, domain.QuotaRecord{OwnerID: rec.OwnerID, Body: body}); err != nil {
			return err
		}
	}

	if err := s.checkRowCount(ctx, tx, table, old, report); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return xerrors.Errorf("commit %s: %w", table.Name, err)
	}
	return nil
}

// checkRowCount verifies that the new table holds exactly the rows of the
// temporary one before the rebuild is committed.
func (s *MigrationService) checkRowCount(ctx context.Context, tx *sqlx.Tx, table, old domain.QuotaTable, report *TableReport) error {
	want, err := s.quotas.Count(ctx, tx, old.Name)
	if err != nil {
		return err
	}
	got, err := s.quotas.Count(ctx, tx, table.Name)
	if err != nil {
		return err
	}
	if got != want {
		return xerrors.Errorf("row count mismatch: %s has %d rows, %s has %d", old.Name, want, table.Name, got)
	}
	report.Rows = got
	return nil
}

func checkDocumentID(log *zap.Logger, doc *document.Document, ownerID int64) {
	ids := doc.Find(document.ID)
	if len(ids) == 0 {
		return
	}
	id, err := strconv.ParseInt(strings.TrimSpace(ids[0].Text()), 10, 64)
	if err != nil || id != ownerID {
		log.Warn("quota document ID does not match owner",
			zap.Int64("owner", ownerID),
			zap.String("id", ids[0].Text()))
	}
}
