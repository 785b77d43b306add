package migrations

import (
	"context"
	"database/sql"
	"path/filepath"
	"strings"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"migration-service/internal/domain"
	"migration-service/internal/schema"
)

type columnInfo struct {
	Name    string `gorm:"column:name"`
	Type    string `gorm:"column:type"`
	NotNull int    `gorm:"column:notnull"`
}

type snapshotRow struct {
	ID        int64
	CreatedAt string
	Status    sql.NullString
}

// setupSnapshotDB は status カラムを持つ snapshot テーブルを用意する。
func setupSnapshotDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "snapshot.db")), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	if err := db.Exec("CREATE TABLE snapshot (id INTEGER PRIMARY KEY, status TEXT, created_at TEXT)").Error; err != nil {
		t.Fatalf("failed to create snapshot table: %v", err)
	}
	return db
}

func insertSnapshot(t *testing.T, db *gorm.DB, id int64, status, createdAt string) {
	t.Helper()

	if err := db.Exec("INSERT INTO snapshot (id, status, created_at) VALUES (?, ?, ?)", id, status, createdAt).Error; err != nil {
		t.Fatalf("failed to insert snapshot: %v", err)
	}
}

func tableColumns(t *testing.T, db *gorm.DB) []columnInfo {
	t.Helper()

	var cols []columnInfo
	if err := db.Raw(`SELECT name, type, "notnull" FROM pragma_table_info('snapshot') ORDER BY cid`).Scan(&cols).Error; err != nil {
		t.Fatalf("failed to read table info: %v", err)
	}
	return cols
}

func columnNames(cols []columnInfo) []string {
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.Name
	}
	return names
}

func assertColumns(t *testing.T, db *gorm.DB, expected ...string) {
	t.Helper()

	got := columnNames(tableColumns(t, db))
	if strings.Join(got, ",") != strings.Join(expected, ",") {
		t.Fatalf("expected columns %v, got %v", expected, got)
	}
}

func readSnapshots(t *testing.T, db *gorm.DB, withStatus bool) []snapshotRow {
	t.Helper()

	query := "SELECT id, created_at FROM snapshot ORDER BY id"
	if withStatus {
		query = "SELECT id, created_at, status FROM snapshot ORDER BY id"
	}
	rows, err := db.Raw(query).Rows()
	if err != nil {
		t.Fatalf("failed to query snapshots: %v", err)
	}
	defer rows.Close()

	var result []snapshotRow
	for rows.Next() {
		var row snapshotRow
		dest := []interface{}{&row.ID, &row.CreatedAt}
		if withStatus {
			dest = append(dest, &row.Status)
		}
		if err := rows.Scan(dest...); err != nil {
			t.Fatalf("failed to scan snapshot: %v", err)
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		t.Fatalf("failed to iterate snapshots: %v", err)
	}
	return result
}

func TestDropSnapshotStatusColumn_UpRemovesColumnOnly(t *testing.T) {
	ctx := context.Background()
	db := setupSnapshotDB(t)
	insertSnapshot(t, db, 1, "pending", "2025-02-28T10:00:00Z")
	insertSnapshot(t, db, 2, "ready", "2025-02-28T11:00:00Z")

	m := &dropSnapshotStatusColumn{}
	if err := m.Up(ctx, schema.NewSchemaManager(db)); err != nil {
		t.Fatalf("Up failed: %v", err)
	}

	assertColumns(t, db, "id", "created_at")

	rows := readSnapshots(t, db, false)
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0].ID != 1 || rows[0].CreatedAt != "2025-02-28T10:00:00Z" {
		t.Errorf("unexpected first row: %+v", rows[0])
	}
	if rows[1].ID != 2 || rows[1].CreatedAt != "2025-02-28T11:00:00Z" {
		t.Errorf("unexpected second row: %+v", rows[1])
	}
}

func TestDropSnapshotStatusColumn_DownAddsNullableText(t *testing.T) {
	ctx := context.Background()
	db := setupSnapshotDB(t)
	insertSnapshot(t, db, 1, "pending", "2025-02-28T10:00:00Z")

	if err := db.Exec("ALTER TABLE snapshot DROP COLUMN status").Error; err != nil {
		t.Fatalf("failed to prepare table without status: %v", err)
	}

	m := &dropSnapshotStatusColumn{}
	if err := m.Down(ctx, schema.NewSchemaManager(db)); err != nil {
		t.Fatalf("Down failed: %v", err)
	}

	cols := tableColumns(t, db)
	status := cols[len(cols)-1]
	if status.Name != "status" {
		t.Fatalf("expected status column to be appended, got %v", columnNames(cols))
	}
	if !strings.EqualFold(status.Type, "text") {
		t.Errorf("expected text type, got %s", status.Type)
	}
	if status.NotNull != 0 {
		t.Error("expected status column to be nullable")
	}

	for _, row := range readSnapshots(t, db, true) {
		if row.Status.Valid {
			t.Errorf("expected NULL status for row %d, got %q", row.ID, row.Status.String)
		}
	}
}

func TestDropSnapshotStatusColumn_UpTwiceFails(t *testing.T) {
	ctx := context.Background()
	db := setupSnapshotDB(t)
	manager := schema.NewSchemaManager(db)

	m := &dropSnapshotStatusColumn{}
	if err := m.Up(ctx, manager); err != nil {
		t.Fatalf("first Up failed: %v", err)
	}

	err := m.Up(ctx, manager)
	if err == nil {
		t.Fatal("expected second Up to fail, got nil")
	}
	if !domain.IsDatabaseErrorReason(err, domain.DatabaseErrorColumnNotFound) {
		t.Errorf("expected column_not_found DatabaseError, got %v", err)
	}
}

func TestDropSnapshotStatusColumn_DownWithExistingColumnFails(t *testing.T) {
	ctx := context.Background()
	db := setupSnapshotDB(t)

	m := &dropSnapshotStatusColumn{}
	err := m.Down(ctx, schema.NewSchemaManager(db))
	if !domain.IsDatabaseErrorReason(err, domain.DatabaseErrorColumnExists) {
		t.Errorf("expected column_exists DatabaseError, got %v", err)
	}
}

func TestDropSnapshotStatusColumn_UpWithoutTableFails(t *testing.T) {
	ctx := context.Background()
	db := setupSnapshotDB(t)
	if err := db.Exec("DROP TABLE snapshot").Error; err != nil {
		t.Fatalf("failed to drop snapshot table: %v", err)
	}

	m := &dropSnapshotStatusColumn{}
	err := m.Up(ctx, schema.NewSchemaManager(db))
	if !domain.IsDatabaseErrorReason(err, domain.DatabaseErrorTableNotFound) {
		t.Errorf("expected table_not_found DatabaseError, got %v", err)
	}
}

func TestDropSnapshotStatusColumn_RoundTripRestoresStructureNotData(t *testing.T) {
	ctx := context.Background()
	db := setupSnapshotDB(t)
	manager := schema.NewSchemaManager(db)
	insertSnapshot(t, db, 1, "pending", "2025-02-28T10:00:00Z")

	before := tableColumns(t, db)

	m := &dropSnapshotStatusColumn{}
	if err := m.Up(ctx, manager); err != nil {
		t.Fatalf("Up failed: %v", err)
	}
	if err := m.Down(ctx, manager); err != nil {
		t.Fatalf("Down failed: %v", err)
	}

	after := tableColumns(t, db)
	var beforeStatus, afterStatus columnInfo
	for _, c := range before {
		if c.Name == "status" {
			beforeStatus = c
		}
	}
	for _, c := range after {
		if c.Name == "status" {
			afterStatus = c
		}
	}
	if afterStatus.Name == "" {
		t.Fatal("expected status column after round trip")
	}
	if !strings.EqualFold(beforeStatus.Type, afterStatus.Type) {
		t.Errorf("expected declared type %s, got %s", beforeStatus.Type, afterStatus.Type)
	}
	if beforeStatus.NotNull != afterStatus.NotNull {
		t.Errorf("expected nullability to match, before=%d after=%d", beforeStatus.NotNull, afterStatus.NotNull)
	}

	rows := readSnapshots(t, db, true)
	if len(rows) != 1 || rows[0].Status.Valid {
		t.Errorf("expected status value to be reset to NULL, got %+v", rows)
	}
}

func TestDropSnapshotStatusColumn_Scenario(t *testing.T) {
	ctx := context.Background()
	db := setupSnapshotDB(t)
	manager := schema.NewSchemaManager(db)

	// (id, status, created_at) に (1, "pending", t0)
	t0 := "2025-02-28T00:00:00Z"
	insertSnapshot(t, db, 1, "pending", t0)
	assertColumns(t, db, "id", "status", "created_at")

	m := &dropSnapshotStatusColumn{}
	if err := m.Up(ctx, manager); err != nil {
		t.Fatalf("Up failed: %v", err)
	}
	assertColumns(t, db, "id", "created_at")
	rows := readSnapshots(t, db, false)
	if len(rows) != 1 || rows[0].ID != 1 || rows[0].CreatedAt != t0 {
		t.Fatalf("unexpected rows after Up: %+v", rows)
	}

	if err := m.Down(ctx, manager); err != nil {
		t.Fatalf("Down failed: %v", err)
	}
	assertColumns(t, db, "id", "created_at", "status")
	rows = readSnapshots(t, db, true)
	if len(rows) != 1 || rows[0].ID != 1 || rows[0].CreatedAt != t0 || rows[0].Status.Valid {
		t.Fatalf("unexpected rows after Down: %+v", rows)
	}
}
