package schema

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/VividCortex/mysqlerr"
	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"migration-service/internal/domain"
)

// setupTestDB はテスト用のSQLiteデータベースを作成する。
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "schema.db")), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	if err := db.Exec("CREATE TABLE items (id INTEGER PRIMARY KEY, label TEXT, created_at DATETIME)").Error; err != nil {
		t.Fatalf("failed to create items table: %v", err)
	}
	return db
}

type widgetModel struct {
	ID   uint   `gorm:"primaryKey"`
	Name string `gorm:"type:text"`
}

func (widgetModel) TableName() string {
	return "widgets"
}

func TestSchemaManager_AlterTable_DropAndAdd(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	manager := NewSchemaManager(db)

	if err := manager.AlterTable(ctx, AlterTable("items").DropColumn("label")); err != nil {
		t.Fatalf("drop column failed: %v", err)
	}

	has, err := manager.HasColumn(ctx, "items", "label")
	if err != nil {
		t.Fatalf("HasColumn failed: %v", err)
	}
	if has {
		t.Error("expected label column to be dropped")
	}

	if err := manager.AlterTable(ctx, AlterTable("items").AddColumn(NewColumn("label").Text())); err != nil {
		t.Fatalf("add column failed: %v", err)
	}

	columns, err := manager.Columns(ctx, "items")
	if err != nil {
		t.Fatalf("Columns failed: %v", err)
	}
	expected := []string{"id", "created_at", "label"}
	if len(columns) != len(expected) {
		t.Fatalf("expected columns %v, got %v", expected, columns)
	}
	for i := range expected {
		if columns[i] != expected[i] {
			t.Errorf("column %d: expected %s, got %s", i, expected[i], columns[i])
		}
	}
}

func TestSchemaManager_AlterTable_DropMissingColumn(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	manager := NewSchemaManager(db)

	err := manager.AlterTable(ctx, AlterTable("items").DropColumn("missing"))
	if err == nil {
		t.Fatal("expected error when dropping missing column, got nil")
	}

	var dbErr *domain.DatabaseError
	if !errors.As(err, &dbErr) {
		t.Fatalf("expected DatabaseError, got %T: %v", err, err)
	}
	if dbErr.Op != "drop_column" || dbErr.Table != "items" || dbErr.Column != "missing" {
		t.Errorf("unexpected error context: %+v", dbErr)
	}
	if dbErr.Reason != domain.DatabaseErrorColumnNotFound {
		t.Errorf("expected reason %s, got %s", domain.DatabaseErrorColumnNotFound, dbErr.Reason)
	}

	var liteErr sqlite3.Error
	if !errors.As(err, &liteErr) {
		t.Fatalf("expected sqlite3.Error in chain, got %T", dbErr.Err)
	}
	if liteErr.Code != sqlite3.ErrError {
		t.Errorf("expected SQLITE_ERROR, got %v", liteErr.Code)
	}
}

func TestSchemaManager_AlterTable_AddExistingColumn(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	manager := NewSchemaManager(db)

	err := manager.AlterTable(ctx, AlterTable("items").AddColumn(NewColumn("label").Text()))
	if !domain.IsDatabaseErrorReason(err, domain.DatabaseErrorColumnExists) {
		t.Errorf("expected column_exists DatabaseError, got %v", err)
	}
}

func TestSchemaManager_AlterTable_MissingTable(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	manager := NewSchemaManager(db)

	err := manager.AlterTable(ctx, AlterTable("nothing").DropColumn("status"))
	if !domain.IsDatabaseErrorReason(err, domain.DatabaseErrorTableNotFound) {
		t.Errorf("expected table_not_found DatabaseError, got %v", err)
	}
}

func TestSchemaManager_CreateAndDropTable(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	manager := NewSchemaManager(db)

	if err := manager.CreateTable(ctx, &widgetModel{}); err != nil {
		t.Fatalf("CreateTable failed: %v", err)
	}
	if !manager.HasTable(ctx, "widgets") {
		t.Fatal("expected widgets table to exist")
	}

	if err := manager.CreateTable(ctx, &widgetModel{}); err == nil {
		t.Error("expected error when creating existing table, got nil")
	}

	if err := manager.DropTable(ctx, "widgets"); err != nil {
		t.Fatalf("DropTable failed: %v", err)
	}
	if manager.HasTable(ctx, "widgets") {
		t.Error("expected widgets table to be dropped")
	}
}

func TestClassify_DriverErrors(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want domain.DatabaseErrorReason
	}{
		{"postgres undefined column", &pgconn.PgError{Code: pgerrcode.UndefinedColumn}, domain.DatabaseErrorColumnNotFound},
		{"postgres duplicate column", &pgconn.PgError{Code: pgerrcode.DuplicateColumn}, domain.DatabaseErrorColumnExists},
		{"postgres undefined table", &pgconn.PgError{Code: pgerrcode.UndefinedTable}, domain.DatabaseErrorTableNotFound},
		{"postgres permission", &pgconn.PgError{Code: pgerrcode.InsufficientPrivilege}, domain.DatabaseErrorOther},
		{"mysql cant drop", &mysql.MySQLError{Number: mysqlerr.ER_CANT_DROP_FIELD_OR_KEY}, domain.DatabaseErrorColumnNotFound},
		{"mysql dup field", &mysql.MySQLError{Number: mysqlerr.ER_DUP_FIELDNAME}, domain.DatabaseErrorColumnExists},
		{"mysql no table", &mysql.MySQLError{Number: mysqlerr.ER_NO_SUCH_TABLE}, domain.DatabaseErrorTableNotFound},
		{"sqlite busy", sqlite3.Error{Code: sqlite3.ErrBusy}, domain.DatabaseErrorOther},
		{"sqlite locked wrapped", fmt.Errorf("exec: %w", sqlite3.Error{Code: sqlite3.ErrLocked}), domain.DatabaseErrorOther},
		{"plain message", errors.New(`no such column: "status"`), domain.DatabaseErrorColumnNotFound},
		{"unknown", errors.New("connection reset"), domain.DatabaseErrorOther},
	}

	for _, tc := range cases {
		if got := classify(tc.err); got != tc.want {
			t.Errorf("%s: expected %s, got %s", tc.name, tc.want, got)
		}
	}
}
