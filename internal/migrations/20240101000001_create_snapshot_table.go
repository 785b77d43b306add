package migrations

import (
	"context"
	"time"

	"migration-service/internal/schema"
)

// snapshotV1 は作成時点の snapshot テーブル定義。
// 後続のマイグレーションに影響されないよう、ここで固定して持つ。
type snapshotV1 struct {
	ID         string     `gorm:"column:id;type:varchar(255);primaryKey"`
	Version    int64      `gorm:"column:version;not null"`
	Status     *string    `gorm:"column:status;type:text"`
	TaskID     *string    `gorm:"column:task_id;type:varchar(255)"`
	CreateTime time.Time  `gorm:"column:create_time;not null"`
	UpdateTime *time.Time `gorm:"column:update_time"`
}

func (snapshotV1) TableName() string {
	return snapshotTable
}

const snapshotTable = "snapshot"

type createSnapshotTable struct{}

func (*createSnapshotTable) Version() string { return "20240101000001" }

func (*createSnapshotTable) Name() string { return "create_snapshot_table" }

func (*createSnapshotTable) Up(ctx context.Context, manager *schema.SchemaManager) error {
	return manager.CreateTable(ctx, &snapshotV1{})
}

func (*createSnapshotTable) Down(ctx context.Context, manager *schema.SchemaManager) error {
	return manager.DropTable(ctx, snapshotTable)
}
