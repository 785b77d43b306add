package schema

import (
	"context"
	"log/slog"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SchemaManager はマイグレーションからスキーマ変更を実行するためのハンドル。
// 通常はマイグレーションのトランザクションをラップして渡される。
type SchemaManager struct {
	db *gorm.DB
}

// NewSchemaManager は新しいSchemaManagerを生成する。
func NewSchemaManager(db *gorm.DB) *SchemaManager {
	return &SchemaManager{db: db}
}

// Dialect は接続先のダイアレクト名を返す。
func (m *SchemaManager) Dialect() string {
	return m.db.Dialector.Name()
}

// AlterTable は ALTER TABLE を実行する。リトライは行わず、失敗はそのまま DatabaseError として返す。
func (m *SchemaManager) AlterTable(ctx context.Context, alter *TableAlter) error {
	stmts, err := alter.Statements(m.Dialect())
	if err != nil {
		return err
	}

	for _, stmt := range stmts {
		if err := m.db.WithContext(ctx).Exec(stmt.SQL, stmt.Vars...).Error; err != nil {
			dbErr := newDatabaseError(stmt.Op, alter.Table(), stmt.Column, err)
			slog.ErrorContext(ctx, "failed to alter table",
				"operation", stmt.Op,
				"table", alter.Table(),
				"column", stmt.Column,
				"reason", dbErr.Reason,
				"error", err,
			)
			return dbErr
		}
	}
	return nil
}

// CreateTable はモデル定義からテーブルを作成する。
func (m *SchemaManager) CreateTable(ctx context.Context, model interface{ TableName() string }) error {
	if err := m.db.WithContext(ctx).Migrator().CreateTable(model); err != nil {
		dbErr := newDatabaseError("create_table", model.TableName(), "", err)
		slog.ErrorContext(ctx, "failed to create table",
			"operation", "create_table",
			"table", model.TableName(),
			"error", err,
		)
		return dbErr
	}
	return nil
}

// DropTable はテーブルを削除する。存在しない場合は何もしない。
func (m *SchemaManager) DropTable(ctx context.Context, table string) error {
	if err := m.db.WithContext(ctx).Migrator().DropTable(table); err != nil {
		dbErr := newDatabaseError("drop_table", table, "", err)
		slog.ErrorContext(ctx, "failed to drop table",
			"operation", "drop_table",
			"table", table,
			"error", err,
		)
		return dbErr
	}
	return nil
}

// HasTable はテーブルが存在するか確認する。
func (m *SchemaManager) HasTable(ctx context.Context, table string) bool {
	return m.db.WithContext(ctx).Migrator().HasTable(table)
}

// Columns はテーブルのカラム名を定義順で返す。
func (m *SchemaManager) Columns(ctx context.Context, table string) ([]string, error) {
	rows, err := m.db.WithContext(ctx).Raw("SELECT * FROM ? LIMIT 1", clause.Table{Name: table}).Rows()
	if err != nil {
		return nil, newDatabaseError("columns", table, "", err)
	}
	defer rows.Close()

	names, err := rows.Columns()
	if err != nil {
		return nil, newDatabaseError("columns", table, "", err)
	}
	return names, nil
}

// HasColumn はカラムが存在するか確認する。
func (m *SchemaManager) HasColumn(ctx context.Context, table, column string) (bool, error) {
	names, err := m.Columns(ctx, table)
	if err != nil {
		return false, err
	}
	for _, name := range names {
		if name == column {
			return true, nil
		}
	}
	return false, nil
}
