// Package usecase はアプリケーションのユースケースを実装する。
package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"migration-service/internal/domain"
	"migration-service/internal/migrations"
	"migration-service/internal/schema"
)

var tracer = otel.Tracer("migration-service/internal/usecase")

// MigrationRepository はマイグレーション履歴を管理するリポジトリのインターフェース。
type MigrationRepository interface {
	EnsureTable(ctx context.Context) error
	FindAllApplied(ctx context.Context) ([]*domain.Migration, error)
	RecordMigration(ctx context.Context, tx *gorm.DB, version, name string) error
	DeleteMigration(ctx context.Context, tx *gorm.DB, version string) error
	IsMigrationApplied(ctx context.Context, tx *gorm.DB, version string) (bool, error)
	LockHistory(ctx context.Context, tx *gorm.DB) error
}

// MigrationService はマイグレーション実行のビジネスロジックを提供する。
// Apply/Rollback は同一プロセス内では mu で直列に実行される。
type MigrationService struct {
	mu         sync.Mutex
	repo       MigrationRepository
	db         *gorm.DB
	migrations []migrations.Migration
}

// NewMigrationService は新しいMigrationServiceを生成する。
func NewMigrationService(repo MigrationRepository, db *gorm.DB, registered []migrations.Migration) *MigrationService {
	return &MigrationService{
		repo:       repo,
		db:         db,
		migrations: registered,
	}
}

// registeredMigrations は登録済みマイグレーションをバージョン順に並べて返す。
func (s *MigrationService) registeredMigrations() ([]migrations.Migration, error) {
	sorted := make([]migrations.Migration, len(s.migrations))
	copy(sorted, s.migrations)

	// バージョン順にソート
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Version() < sorted[j].Version()
	})

	for i := 1; i < len(sorted); i++ {
		if sorted[i-1].Version() == sorted[i].Version() {
			return nil, fmt.Errorf("%w: %s", domain.ErrDuplicateMigration, sorted[i].Version())
		}
	}
	return sorted, nil
}

// loadState は登録済みマイグレーションと適用履歴を読み込み、整合性を確認する。
func (s *MigrationService) loadState(ctx context.Context, operation string) ([]migrations.Migration, map[string]*domain.Migration, error) {
	registered, err := s.registeredMigrations()
	if err != nil {
		slog.ErrorContext(ctx, "invalid migration registry",
			"operation", operation,
			"error", err,
		)
		return nil, nil, err
	}

	if err := s.repo.EnsureTable(ctx); err != nil {
		return nil, nil, fmt.Errorf("failed to prepare schema_migrations: %w", err)
	}

	appliedMigrations, err := s.repo.FindAllApplied(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to fetch applied migrations",
			"operation", operation,
			"error", err,
		)
		return nil, nil, fmt.Errorf("failed to fetch applied migrations: %w", err)
	}

	known := make(map[string]bool, len(registered))
	for _, m := range registered {
		known[m.Version()] = true
	}

	// 適用済みマイグレーションのマップを作成
	appliedMap := make(map[string]*domain.Migration, len(appliedMigrations))
	for _, applied := range appliedMigrations {
		if !known[applied.Version] {
			slog.ErrorContext(ctx, "applied migration is not registered",
				"operation", operation,
				"version", applied.Version,
			)
			return nil, nil, fmt.Errorf("%w: %s", domain.ErrUnknownMigration, applied.Version)
		}
		appliedMap[applied.Version] = applied
	}

	return registered, appliedMap, nil
}

// ApplyMigrations は未適用マイグレーションをバージョン順に実行する。
// steps が0の場合は全件、正の場合は最大 steps 件を適用する。
// 失敗した時点で停止し、それまでに適用した分を返す。
func (s *MigrationService) ApplyMigrations(ctx context.Context, steps int) (*domain.MigrationRun, error) {
	if steps < 0 {
		return nil, fmt.Errorf("%w: %d", domain.ErrInvalidSteps, steps)
	}

	run := &domain.MigrationRun{RunID: uuid.NewString(), Direction: domain.MigrationDirectionUp}
	ctx, span := tracer.Start(ctx, "MigrationService.ApplyMigrations",
		trace.WithAttributes(
			attribute.String("migration.run_id", run.RunID),
			attribute.Int("migration.steps", steps),
		),
	)
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	registered, appliedMap, err := s.loadState(ctx, "apply_migrations")
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	// 未適用マイグレーションをフィルタリング
	var pendingMigrations []migrations.Migration
	for _, migration := range registered {
		if _, ok := appliedMap[migration.Version()]; !ok {
			pendingMigrations = append(pendingMigrations, migration)
		}
	}

	if steps > 0 && len(pendingMigrations) > steps {
		pendingMigrations = pendingMigrations[:steps]
	}

	for _, migration := range pendingMigrations {
		ran, err := s.runMigration(ctx, run, migration)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return run, fmt.Errorf("%w: version %s: %w", domain.ErrMigrationFailed, migration.Version(), err)
		}
		if ran {
			run.Versions = append(run.Versions, migration.Version())
		}
	}

	span.SetAttributes(attribute.Int("migration.applied", len(run.Versions)))
	return run, nil
}

// RollbackMigrations は直近に適用したマイグレーションから逆順に取り消す。
// steps が0の場合は全件を取り消す。
func (s *MigrationService) RollbackMigrations(ctx context.Context, steps int) (*domain.MigrationRun, error) {
	if steps < 0 {
		return nil, fmt.Errorf("%w: %d", domain.ErrInvalidSteps, steps)
	}

	run := &domain.MigrationRun{RunID: uuid.NewString(), Direction: domain.MigrationDirectionDown}
	ctx, span := tracer.Start(ctx, "MigrationService.RollbackMigrations",
		trace.WithAttributes(
			attribute.String("migration.run_id", run.RunID),
			attribute.Int("migration.steps", steps),
		),
	)
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	registered, appliedMap, err := s.loadState(ctx, "rollback_migrations")
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	// 適用済みのものを新しい順に並べる
	var targets []migrations.Migration
	for i := len(registered) - 1; i >= 0; i-- {
		if _, ok := appliedMap[registered[i].Version()]; ok {
			targets = append(targets, registered[i])
		}
	}
	if len(targets) == 0 {
		return nil, domain.ErrNoAppliedMigrations
	}
	if steps > 0 && len(targets) > steps {
		targets = targets[:steps]
	}

	for _, migration := range targets {
		ran, err := s.runMigration(ctx, run, migration)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return run, fmt.Errorf("%w: version %s: %w", domain.ErrRollbackFailed, migration.Version(), err)
		}
		if ran {
			run.Versions = append(run.Versions, migration.Version())
		}
	}

	span.SetAttributes(attribute.Int("migration.rolled_back", len(run.Versions)))
	return run, nil
}

// runMigration は単一のマイグレーションを run の方向に実行し、履歴を同じトランザクションで更新する。
// トランザクション内で履歴を確認し直し、別の実行が先に済ませていれば何もせず false を返す。
func (s *MigrationService) runMigration(ctx context.Context, run *domain.MigrationRun, migration migrations.Migration) (bool, error) {
	ctx, span := tracer.Start(ctx, "migration."+string(run.Direction),
		trace.WithAttributes(
			attribute.String("migration.run_id", run.RunID),
			attribute.String("migration.version", migration.Version()),
			attribute.String("migration.name", migration.Name()),
		),
	)
	defer span.End()

	started := time.Now()
	ran := false

	// トランザクション内で実行
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.LockHistory(ctx, tx); err != nil {
			return fmt.Errorf("failed to lock migration history: %w", err)
		}
		applied, err := s.repo.IsMigrationApplied(ctx, tx, migration.Version())
		if err != nil {
			return fmt.Errorf("failed to check migration status: %w", err)
		}

		manager := schema.NewSchemaManager(tx)

		if run.Direction == domain.MigrationDirectionDown {
			if !applied {
				return nil
			}
			if err := migration.Down(ctx, manager); err != nil {
				return err
			}
			// 履歴を削除（同じtxを使用）
			if err := s.repo.DeleteMigration(ctx, tx, migration.Version()); err != nil {
				return fmt.Errorf("failed to delete migration record: %w", err)
			}
			ran = true
			return nil
		}

		if applied {
			return nil
		}
		if err := migration.Up(ctx, manager); err != nil {
			return err
		}
		// 履歴を記録（同じtxを使用）
		if err := s.repo.RecordMigration(ctx, tx, migration.Version(), migration.Name()); err != nil {
			return fmt.Errorf("failed to record migration: %w", err)
		}
		ran = true
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		slog.ErrorContext(ctx, "failed to run migration",
			"operation", "run_migration",
			"run_id", run.RunID,
			"direction", run.Direction,
			"version", migration.Version(),
			"error", err,
		)
		return false, err
	}

	if !ran {
		span.SetAttributes(attribute.Bool("migration.skipped", true))
		slog.InfoContext(ctx, "migration already handled by another run",
			"run_id", run.RunID,
			"direction", run.Direction,
			"version", migration.Version(),
		)
		return false, nil
	}

	slog.InfoContext(ctx, "migration completed",
		"run_id", run.RunID,
		"direction", run.Direction,
		"version", migration.Version(),
		"name", migration.Name(),
		"duration_ms", time.Since(started).Milliseconds(),
	)
	return true, nil
}

// GetMigrationStatus は現在のマイグレーション状況を取得する。
func (s *MigrationService) GetMigrationStatus(ctx context.Context) ([]*domain.Migration, error) {
	registered, appliedMap, err := s.loadState(ctx, "get_migration_status")
	if err != nil {
		return nil, err
	}

	// ステータスを設定
	result := make([]*domain.Migration, len(registered))
	for i, migration := range registered {
		status := &domain.Migration{
			Version: migration.Version(),
			Name:    migration.Name(),
			Status:  domain.MigrationStatusPending,
		}
		if applied, exists := appliedMap[migration.Version()]; exists {
			status.Status = domain.MigrationStatusApplied
			status.AppliedAt = applied.AppliedAt
		}
		result[i] = status
	}

	return result, nil
}

// GetMigration は指定バージョンのマイグレーション状況を取得する。
func (s *MigrationService) GetMigration(ctx context.Context, version string) (*domain.Migration, error) {
	all, err := s.GetMigrationStatus(ctx)
	if err != nil {
		return nil, err
	}
	for _, m := range all {
		if m.Version == version {
			return m, nil
		}
	}
	return nil, domain.ErrMigrationNotFound
}
