package migrations

import (
	"context"
	"path/filepath"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"migration-service/internal/schema"
)

func TestAll_OrderedAndUnique(t *testing.T) {
	all := All()
	if len(all) == 0 {
		t.Fatal("expected registered migrations")
	}

	seen := make(map[string]bool)
	for i, m := range all {
		if len(m.Version()) != 14 {
			t.Errorf("migration %s: expected 14-digit version", m.Version())
		}
		if m.Name() == "" {
			t.Errorf("migration %s: expected name", m.Version())
		}
		if seen[m.Version()] {
			t.Errorf("duplicate version %s", m.Version())
		}
		seen[m.Version()] = true
		if i > 0 && all[i-1].Version() >= m.Version() {
			t.Errorf("migrations out of order: %s before %s", all[i-1].Version(), m.Version())
		}
	}
}

func TestAll_UpThenDownOnFreshDatabase(t *testing.T) {
	ctx := context.Background()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "fresh.db")), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	manager := schema.NewSchemaManager(db)

	all := All()
	for _, m := range all {
		if err := m.Up(ctx, manager); err != nil {
			t.Fatalf("Up %s failed: %v", m.Version(), err)
		}
	}

	has, err := manager.HasColumn(ctx, "snapshot", "status")
	if err != nil {
		t.Fatalf("HasColumn failed: %v", err)
	}
	if has {
		t.Error("expected status column to be absent after all migrations")
	}
	has, err = manager.HasColumn(ctx, "snapshot", "task_id")
	if err != nil {
		t.Fatalf("HasColumn failed: %v", err)
	}
	if !has {
		t.Error("expected task_id column to remain")
	}

	for i := len(all) - 1; i >= 0; i-- {
		if err := all[i].Down(ctx, manager); err != nil {
			t.Fatalf("Down %s failed: %v", all[i].Version(), err)
		}
	}
	if manager.HasTable(ctx, "snapshot") {
		t.Error("expected snapshot table to be dropped after full rollback")
	}
}
