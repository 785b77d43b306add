// Package domain はドメインモデルとビジネスルールを定義する。
package domain

import "time"

// MigrationStatus はマイグレーションの適用状態を表す
type MigrationStatus string

const (
	MigrationStatusPending MigrationStatus = "pending"
	MigrationStatusApplied MigrationStatus = "applied"
)

// MigrationDirection はマイグレーションの実行方向を表す
type MigrationDirection string

const (
	MigrationDirectionUp   MigrationDirection = "up"
	MigrationDirectionDown MigrationDirection = "down"
)

// Migration はデータベースマイグレーションを表すドメインモデル
type Migration struct {
	Version   string          // マイグレーションバージョン（例: "20250228000001"）
	Name      string          // マイグレーション名
	AppliedAt *time.Time      // 適用日時（未適用の場合はnil）
	Status    MigrationStatus // 適用状態
}

// MigrationRun は1回の up/down 実行結果を表す
type MigrationRun struct {
	RunID     string
	Direction MigrationDirection
	Versions  []string // 実行順
}
