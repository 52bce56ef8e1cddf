package postgres

import (
	"context"
	"testing"
	"time"
)

func migrationState(t *testing.T, store *Store, ctx context.Context) (int64, int) {
	t.Helper()
	version, applied, err := store.MigrationStatus(ctx)
	if err != nil {
		t.Fatalf("migration status: %v", err)
	}
	return version, applied
}

func TestMigrator_UpDownLifecycle(t *testing.T) {
	store := openRawPostgresStoreForIntegrationTest(t)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	// Чистое состояние перед прогоном.
	if err := store.MigrateDown(ctx, 100); err != nil {
		t.Fatalf("reset schema: %v", err)
	}
	if version, applied := migrationState(t, store, ctx); version != 0 || applied != 0 {
		t.Fatalf("expected clean schema, got version=%d applied=%d", version, applied)
	}

	if err := store.MigrateUp(ctx, 0); err != nil {
		t.Fatalf("migrate up all: %v", err)
	}
	if version, applied := migrationState(t, store, ctx); version != 4 || applied != 4 {
		t.Fatalf("expected all 4 migrations, got version=%d applied=%d", version, applied)
	}

	// Повторный up ничего не меняет.
	if err := store.MigrateUp(ctx, 0); err != nil {
		t.Fatalf("repeated migrate up: %v", err)
	}
	if version, applied := migrationState(t, store, ctx); version != 4 || applied != 4 {
		t.Fatalf("repeated up changed state: version=%d applied=%d", version, applied)
	}

	if err := store.MigrateDown(ctx, 1); err != nil {
		t.Fatalf("migrate down one: %v", err)
	}
	if version, applied := migrationState(t, store, ctx); version != 3 || applied != 3 {
		t.Fatalf("expected version 3 after single down, got version=%d applied=%d", version, applied)
	}

	// steps<=0 откатывает ровно одну миграцию.
	if err := store.MigrateDown(ctx, 0); err != nil {
		t.Fatalf("migrate down default: %v", err)
	}
	if version, applied := migrationState(t, store, ctx); version != 2 || applied != 2 {
		t.Fatalf("expected version 2 after default down, got version=%d applied=%d", version, applied)
	}

	if err := store.MigrateDown(ctx, 100); err != nil {
		t.Fatalf("migrate down rest: %v", err)
	}
	if err := store.MigrateDown(ctx, 1); err != nil {
		t.Fatalf("down on clean schema must be a no-op: %v", err)
	}
}

func TestMigrator_NilStoreGuards(t *testing.T) {
	var store *Store
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := store.MigrateUp(ctx, 0); err == nil {
		t.Fatal("expected error from MigrateUp on nil store")
	}
	if err := store.MigrateDown(ctx, 1); err == nil {
		t.Fatal("expected error from MigrateDown on nil store")
	}
	if _, _, err := store.MigrationStatus(ctx); err == nil {
		t.Fatal("expected error from MigrationStatus on nil store")
	}
}
