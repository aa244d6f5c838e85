package database

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestMigrate_CreatesSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "batagor.sqlite")
	ctx := context.Background()

	db, err := Open(ctx, path, testLogger())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()

	if err := Migrate(path, testLogger()); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	// Повторное применение — ErrNoChange, не ошибка
	if err := Migrate(path, testLogger()); err != nil {
		t.Fatalf("повторный Migrate: %v", err)
	}

	var freed int64
	if err := db.GetContext(ctx, &freed, `SELECT value FROM settings WHERE key = 'lifetime_freed_bytes'`); err != nil {
		t.Fatalf("счётчик освобождённых байт не создан: %v", err)
	}
	if freed != 0 {
		t.Errorf("начальное значение счётчика: хотели 0, получили %d", freed)
	}

	var count int
	if err := db.GetContext(ctx, &count, `SELECT COUNT(*) FROM media_records`); err != nil {
		t.Fatalf("таблица media_records не создана: %v", err)
	}
}

func TestReadinessChecker(t *testing.T) {
	path := filepath.Join(t.TempDir(), "batagor.sqlite")
	db, err := Open(context.Background(), path, testLogger())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	checker := NewReadinessChecker(db)
	if status, msg := checker.CheckReady(); status != "ok" {
		t.Errorf("CheckReady: хотели ok, получили %s (%s)", status, msg)
	}

	db.Close()
	if status, _ := checker.CheckReady(); status != "fail" {
		t.Errorf("CheckReady после Close: хотели fail, получили %s", status)
	}
}

func TestOpenReadOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "batagor.sqlite")
	ctx := context.Background()

	if _, err := OpenReadOnly(ctx, path, testLogger()); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("без базы ожидалась ErrNotInitialized, получено %v", err)
	}

	if err := Migrate(path, testLogger()); err != nil {
		t.Fatalf("Migrate: %v", err)
	}

	db, err := OpenReadOnly(ctx, path, testLogger())
	if err != nil {
		t.Fatalf("OpenReadOnly: %v", err)
	}
	defer db.Close()

	var count int
	if err := db.GetContext(ctx, &count, `SELECT COUNT(*) FROM media_records`); err != nil {
		t.Fatalf("чтение: %v", err)
	}
	if _, err := db.ExecContext(ctx, `UPDATE settings SET value = value + 1`); err == nil {
		t.Error("запись через соединение только для чтения должна завершиться ошибкой")
	}
}
