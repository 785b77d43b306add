// Package repository はデータアクセス層の実装を提供する。
package repository

import (
	"context"
	"log/slog"
	"time"

	"migration-service/internal/domain"

	"gorm.io/gorm"
)

// SchemaMigrationModel はschema_migrationsテーブルのモデル。
type SchemaMigrationModel struct {
	Version   string    `gorm:"column:version;primaryKey;type:varchar(14)"`
	Name      string    `gorm:"column:name;type:varchar(255);not null;default:''"`
	AppliedAt time.Time `gorm:"column:applied_at;not null;autoCreateTime"`
}

// TableName はテーブル名を指定。
func (SchemaMigrationModel) TableName() string {
	return "schema_migrations"
}

// MigrationRepository はマイグレーション履歴を管理するリポジトリ。
type MigrationRepository struct {
	db *gorm.DB
}

// NewMigrationRepository は新しいMigrationRepositoryを生成する。
func NewMigrationRepository(db *gorm.DB) *MigrationRepository {
	return &MigrationRepository{db: db}
}

// conn はトランザクションが渡されていればそれを、なければ通常の接続を返す。
func (r *MigrationRepository) conn(ctx context.Context, tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx.WithContext(ctx)
	}
	return r.db.WithContext(ctx)
}

// EnsureTable はschema_migrationsテーブルがなければ作成する。
func (r *MigrationRepository) EnsureTable(ctx context.Context) error {
	if err := r.db.WithContext(ctx).AutoMigrate(&SchemaMigrationModel{}); err != nil {
		slog.ErrorContext(ctx, "failed to ensure schema_migrations table",
			"operation", "ensure_table",
			"error", err,
		)
		return err
	}
	return nil
}

// FindAllApplied は適用済みマイグレーション一覧をバージョン昇順で取得する。
func (r *MigrationRepository) FindAllApplied(ctx context.Context) ([]*domain.Migration, error) {
	var models []SchemaMigrationModel
	if err := r.db.WithContext(ctx).Order("version ASC").Find(&models).Error; err != nil {
		slog.ErrorContext(ctx, "failed to find all applied migrations",
			"operation", "find_all_applied",
			"error", err,
		)
		return nil, err
	}

	migrations := make([]*domain.Migration, len(models))
	for i, model := range models {
		appliedAt := model.AppliedAt
		migrations[i] = &domain.Migration{
			Version:   model.Version,
			Name:      model.Name,
			AppliedAt: &appliedAt,
			Status:    domain.MigrationStatusApplied,
		}
	}

	return migrations, nil
}

// RecordMigration はマイグレーション適用履歴を記録する。
// tx を渡すとスキーマ変更と同じトランザクションで記録される。
func (r *MigrationRepository) RecordMigration(ctx context.Context, tx *gorm.DB, version, name string) error {
	model := &SchemaMigrationModel{
		Version: version,
		Name:    name,
	}
	if err := r.conn(ctx, tx).Create(model).Error; err != nil {
		slog.ErrorContext(ctx, "failed to record migration",
			"operation", "record_migration",
			"version", version,
			"error", err,
		)
		return err
	}
	return nil
}

// DeleteMigration はロールバックしたマイグレーションの履歴を削除する。
func (r *MigrationRepository) DeleteMigration(ctx context.Context, tx *gorm.DB, version string) error {
	err := r.conn(ctx, tx).
		Where("version = ?", version).
		Delete(&SchemaMigrationModel{}).Error
	if err != nil {
		slog.ErrorContext(ctx, "failed to delete migration record",
			"operation", "delete_migration",
			"version", version,
			"error", err,
		)
		return err
	}
	return nil
}

// IsMigrationApplied はマイグレーションが適用済みか確認する。
// tx を渡すと同じトランザクション内で確認する。
func (r *MigrationRepository) IsMigrationApplied(ctx context.Context, tx *gorm.DB, version string) (bool, error) {
	var count int64
	if err := r.conn(ctx, tx).Model(&SchemaMigrationModel{}).Where("version = ?", version).Count(&count).Error; err != nil {
		slog.ErrorContext(ctx, "failed to check if migration is applied",
			"operation", "is_migration_applied",
			"version", version,
			"error", err,
		)
		return false, err
	}
	return count > 0, nil
}

// historyLockKey は schema_migrations 更新を直列化するアドバイザリロックのキー。
const historyLockKey int64 = 0x736368656d61

// LockHistory は tx が終わるまで他プロセスのマイグレーション実行を待たせる。
// PostgreSQL 以外では何もしない。
func (r *MigrationRepository) LockHistory(ctx context.Context, tx *gorm.DB) error {
	conn := r.conn(ctx, tx)
	if conn.Dialector.Name() != "postgres" {
		return nil
	}
	if err := conn.Exec("SELECT pg_advisory_xact_lock(?)", historyLockKey).Error; err != nil {
		slog.ErrorContext(ctx, "failed to lock schema_migrations",
			"operation", "lock_history",
			"error", err,
		)
		return err
	}
	return nil
}
