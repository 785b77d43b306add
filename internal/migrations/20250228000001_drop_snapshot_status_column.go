package migrations

import (
	"context"

	"migration-service/internal/schema"
)

const snapshotStatusColumn = "status"

// dropSnapshotStatusColumn は snapshot.status を削除する。
// Down は NULL 許容の text カラムとして作り直すだけで、削除前の値は戻らない。
// 元のカラムにデフォルト値・制約・インデックスがあっても再作成しない。
type dropSnapshotStatusColumn struct{}

func (*dropSnapshotStatusColumn) Version() string { return "20250228000001" }

func (*dropSnapshotStatusColumn) Name() string { return "drop_snapshot_status_column" }

func (*dropSnapshotStatusColumn) Up(ctx context.Context, manager *schema.SchemaManager) error {
	return manager.AlterTable(ctx,
		schema.AlterTable(snapshotTable).
			DropColumn(snapshotStatusColumn),
	)
}

func (*dropSnapshotStatusColumn) Down(ctx context.Context, manager *schema.SchemaManager) error {
	return manager.AlterTable(ctx,
		schema.AlterTable(snapshotTable).
			AddColumn(schema.NewColumn(snapshotStatusColumn).Text()),
	)
}
