package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"migration-service/config"
	"migration-service/internal/domain"
	"migration-service/internal/infra"
	"migration-service/internal/migrations"
	"migration-service/internal/repository"
	"migration-service/internal/usecase"
)

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage database migrations",
		Long:  "Apply, roll back and inspect schema migrations directly against DATABASE_URL",
	}
	cmd.AddCommand(migrateUpCmd())
	cmd.AddCommand(migrateDownCmd())
	cmd.AddCommand(migrateResetCmd())
	cmd.AddCommand(migrateStatusCmd())
	return cmd
}

// openService はDATABASE_URLに接続し、登録済みマイグレーションを持つサービスを返す。
func openService(ctx context.Context) (*usecase.MigrationService, func(), error) {
	// .envファイルを読み込む（存在しない場合は無視）
	_ = godotenv.Load()
	cfg := config.Load()

	shutdownTracer, err := infra.InitTracer(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to init tracer: %w", err)
	}
	// CLIのログは標準エラー出力へ
	infra.SetupLogger(cfg, os.Stderr)

	if cfg.DatabaseURL == "" {
		_ = shutdownTracer(ctx)
		return nil, nil, fmt.Errorf("DATABASE_URL environment variable is required")
	}

	db, err := infra.NewDB(ctx, cfg.DatabaseURL, cfg)
	if err != nil {
		_ = shutdownTracer(ctx)
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	cleanup := func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
		if err := shutdownTracer(ctx); err != nil {
			slog.Error("failed to shutdown tracer", "error", err)
		}
	}

	migrationRepo := repository.NewMigrationRepository(db)
	return usecase.NewMigrationService(migrationRepo, db, migrations.All()), cleanup, nil
}

func printRun(w io.Writer, run *domain.MigrationRun, verb string) {
	if run == nil {
		return
	}
	if len(run.Versions) == 0 {
		fmt.Fprintf(w, "No migrations %s.\n", verb)
		return
	}
	for _, v := range run.Versions {
		fmt.Fprintf(w, "%s %s\n", verb, v)
	}
	fmt.Fprintf(w, "%s %d migration(s) (run %s).\n", verb, len(run.Versions), run.RunID)
}

func migrateUpCmd() *cobra.Command {
	var steps int
	cmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		Long:  "Apply pending migrations in version order (all of them unless --steps is given)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			service, cleanup, err := openService(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			run, err := service.ApplyMigrations(ctx, steps)
			printRun(cmd.OutOrStdout(), run, "Applied")
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&steps, "steps", 0, "Number of migrations to apply (0 = all)")
	return cmd
}

func migrateDownCmd() *cobra.Command {
	var steps int
	cmd := &cobra.Command{
		Use:   "down",
		Short: "Roll back applied migrations",
		Long:  "Roll back the most recently applied migrations, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			if steps < 1 {
				return fmt.Errorf("--steps must be at least 1 (use reset to roll back everything)")
			}
			return rollback(cmd, steps)
		},
	}
	cmd.Flags().IntVar(&steps, "steps", 1, "Number of migrations to roll back")
	return cmd
}

func migrateResetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Roll back all applied migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return rollback(cmd, 0)
		},
	}
}

func rollback(cmd *cobra.Command, steps int) error {
	ctx := context.Background()
	service, cleanup, err := openService(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	run, err := service.RollbackMigrations(ctx, steps)
	if errors.Is(err, domain.ErrNoAppliedMigrations) {
		fmt.Fprintln(cmd.OutOrStdout(), "No applied migrations.")
		return nil
	}
	printRun(cmd.OutOrStdout(), run, "Rolled back")
	if err != nil {
		return fmt.Errorf("rollback failed: %w", err)
	}
	return nil
}

func migrateStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		Long:  "Show the status of all migrations (applied/pending)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			service, cleanup, err := openService(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			all, err := service.GetMigrationStatus(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}
			return writeStatusTable(cmd.OutOrStdout(), all)
		},
	}
}

// writeStatusTable はマイグレーション状況をテーブル形式で出力する。
func writeStatusTable(out io.Writer, all []*domain.Migration) error {
	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "VERSION\tNAME\tSTATUS\tAPPLIED AT")
	fmt.Fprintln(w, "-------\t----\t------\t----------")

	for _, migration := range all {
		appliedAt := "-"
		if migration.AppliedAt != nil {
			appliedAt = migration.AppliedAt.Format("2006-01-02 15:04:05")
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", migration.Version, migration.Name, migration.Status, appliedAt)
	}

	if err := w.Flush(); err != nil {
		return fmt.Errorf("failed to flush output: %w", err)
	}
	return nil
}
