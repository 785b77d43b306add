// Package migrations は登録済みのスキーマ変更を定義する。
package migrations

import (
	"context"

	"migration-service/internal/schema"
)

// Migration はバージョン付きのスキーマ変更1件を表す。
// Up/Down は状態を持たず、渡された SchemaManager を通じてのみスキーマを変更する。
type Migration interface {
	// Version は14桁のタイムスタンプ（例: "20250228000001"）。
	Version() string
	Name() string
	Up(ctx context.Context, manager *schema.SchemaManager) error
	Down(ctx context.Context, manager *schema.SchemaManager) error
}

// All は登録済みマイグレーションを適用順で返す。
func All() []Migration {
	return []Migration{
		&createSnapshotTable{},
		&dropSnapshotStatusColumn{},
	}
}
