package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/xerrors"

	"onedbquota/internal/config"
	"onedbquota/internal/logger"
	"onedbquota/internal/repository"
	"onedbquota/internal/schema"
	"onedbquota/internal/service"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:          "onedb-quota",
		Short:        "Add running VM usage to OpenNebula quota tables",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", ".onedb.yaml", "path to the configuration file")

	root.AddCommand(
		newUpgradeCmd(&configPath),
		newBootstrapCmd(&configPath),
		newVersionCmd(),
	)
	return root
}

func newUpgradeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "upgrade",
		Short: "Rewrite quota tables from " + service.PriorDBVersion + " to " + service.DBVersion,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := load(*configPath)
			if err != nil {
				return err
			}
			defer log.Sync()

			db, err := connectWithRetry(cmd.Context(), cfg.Database, log, 5, 5*time.Second)
			if err != nil {
				return err
			}
			defer db.Close()

			tables, err := cfg.Migration.QuotaTables()
			if err != nil {
				return err
			}

			svc := service.NewMigrationService(
				repository.NewQuotaRepository(db),
				repository.NewVMRepository(cfg.Migration.VMTable),
				service.MigrationOptions{
					Tables:     tables,
					TempPrefix: cfg.Migration.TempPrefix,
					Log:        log,
				},
			)

			res := svc.Run(cmd.Context())
			for _, t := range res.Tables {
				fmt.Fprintf(cmd.OutOrStdout(), "%-16s %-8s system=%d rewritten=%d untouched=%d\n",
					t.Table, t.Phase, t.SystemRows, t.Rewritten, t.Untouched)
			}
			if !res.Success {
				return xerrors.Errorf("migration to %s failed: %w", res.DBVersion, res.Err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Database migrated from %s to %s (%s)\n",
				service.PriorDBVersion, res.DBVersion, res.Label)
			return nil
		},
	}
}

func newBootstrapCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "bootstrap",
		Short: "Create the " + service.PriorDBVersion + " quota and VM tables on an empty database",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := load(*configPath)
			if err != nil {
				return err
			}
			defer log.Sync()

			return schema.Bootstrap(cfg.Database.GetMigrateURL(), log)
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the schema version this tool migrates to",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s (%s)\n", service.DBVersion, service.OneVersion)
		},
	}
}

func load(path string) (*config.Config, *zap.Logger, error) {
	cfg, err := config.NewConfig(path)
	if err != nil {
		return nil, nil, xerrors.Errorf("failed to load config: %w", err)
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		return nil, nil, err
	}
	return cfg, log, nil
}

func connectWithRetry(ctx context.Context, cfg config.DatabaseConfig, log *zap.Logger, maxAttempts int, delay time.Duration) (*sqlx.DB, error) {
	var (
		db  *sqlx.DB
		err error
	)
	for i := 0; i < maxAttempts; i++ {
		db, err = sqlx.ConnectContext(ctx, cfg.Driver, cfg.GetDSN())
		if err == nil {
			return db, nil
		}

		log.Warn("failed to connect to database",
			zap.Int("attempt", i+1),
			zap.Int("max_attempts", maxAttempts),
			zap.Error(err))

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}

	return nil, xerrors.Errorf("failed to connect after %d attempts: %w", maxAttempts, err)
}
