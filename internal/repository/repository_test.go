package repository

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/ADA-Batagor/batagor/internal/database"
	"github.com/ADA-Batagor/batagor/internal/domain/model"
)

// setupTestDB создаёт SQLite во временном каталоге и применяет миграции.
func setupTestDB(t *testing.T) *sqlx.DB {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	path := filepath.Join(t.TempDir(), "batagor.sqlite")

	db, err := database.Open(context.Background(), path, logger)
	if err != nil {
		t.Fatalf("Ошибка открытия базы: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := database.Migrate(path, logger); err != nil {
		t.Fatalf("Ошибка миграций: %v", err)
	}
	return db
}

func newRecord(created time.Time) *model.MediaRecord {
	rec := model.NewMediaRecord(model.KindPhoto, "main/"+time.Now().Format("150405.000000000")+".jpg",
		"thumbnails/t.jpg", created, time.Minute)
	return rec
}

func TestMediaRepository_InsertAndGet(t *testing.T) {
	db := setupTestDB(t)
	repo := NewMediaRepository(db)
	ctx := context.Background()

	created := time.Date(2026, 5, 1, 10, 0, 0, 123456789, time.UTC)
	rec := newRecord(created)
	size := int64(1000)
	alt := 12.5
	rec.FileSize = &size
	rec.Location = &model.GeoTag{Latitude: -6.3, Longitude: 106.65, Altitude: &alt, Name: "BSD City"}

	if err := repo.Insert(ctx, rec); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	got, err := repo.GetByID(ctx, rec.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if !got.CreatedAt.Equal(rec.CreatedAt) || !got.ExpiredAt.Equal(rec.ExpiredAt) {
		t.Errorf("время не сохранилось: created %v/%v expired %v/%v",
			got.CreatedAt, rec.CreatedAt, got.ExpiredAt, rec.ExpiredAt)
	}
	if got.Size() != 1000 {
		t.Errorf("FileSize: хотели 1000, получили %d", got.Size())
	}
	if got.Location == nil || got.Location.Name != "BSD City" || got.Location.Altitude == nil || *got.Location.Altitude != alt {
		t.Errorf("Location сохранилась некорректно: %+v", got.Location)
	}
	if got.MainPath != rec.MainPath || got.ThumbnailPath != rec.ThumbnailPath || got.Kind != model.KindPhoto {
		t.Errorf("пути или тип не совпадают: %+v", got)
	}
}

func TestMediaRepository_OptionalFieldsAbsent(t *testing.T) {
	db := setupTestDB(t)
	repo := NewMediaRepository(db)
	ctx := context.Background()

	rec := newRecord(time.Now())
	if err := repo.Insert(ctx, rec); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	got, err := repo.GetByID(ctx, rec.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.FileSize != nil {
		t.Errorf("FileSize: ожидался nil, получено %d", *got.FileSize)
	}
	if got.Location != nil {
		t.Errorf("Location: ожидался nil, получено %+v", got.Location)
	}
}

func TestMediaRepository_GetByID_NotFound(t *testing.T) {
	db := setupTestDB(t)
	repo := NewMediaRepository(db)

	_, err := repo.GetByID(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("ожидалась ErrNotFound, получено %v", err)
	}
}

func TestMediaRepository_DeleteIdempotent(t *testing.T) {
	db := setupTestDB(t)
	repo := NewMediaRepository(db)
	ctx := context.Background()

	rec := newRecord(time.Now())
	if err := repo.Insert(ctx, rec); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	removed, err := repo.Delete(ctx, rec.ID)
	if err != nil || !removed {
		t.Fatalf("первое удаление: removed=%v err=%v", removed, err)
	}
	removed, err = repo.Delete(ctx, rec.ID)
	if err != nil {
		t.Fatalf("повторное удаление вернуло ошибку: %v", err)
	}
	if removed {
		t.Error("повторное удаление не должно сообщать removed=true")
	}
}

func TestMediaRepository_FetchAll(t *testing.T) {
	db := setupTestDB(t)
	repo := NewMediaRepository(db)
	ctx := context.Background()

	all, err := repo.FetchAll(ctx)
	if err != nil {
		t.Fatalf("FetchAll пустой базы: %v", err)
	}
	if len(all) != 0 {
		t.Fatalf("ожидалось 0 записей, получено %d", len(all))
	}

	for i := 0; i < 3; i++ {
		if err := repo.Insert(ctx, newRecord(time.Now())); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}
	all, err = repo.FetchAll(ctx)
	if err != nil {
		t.Fatalf("FetchAll: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("ожидалось 3 записи, получено %d", len(all))
	}
}

func TestTxRunner_RollbackOnError(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	runner := NewTxRunner(db)
	rec := newRecord(time.Now())

	boom := errors.New("boom")
	err := runner.RunInTx(ctx, func(tx DBTX) error {
		if err := NewMediaRepository(tx).Insert(ctx, rec); err != nil {
			return err
		}
		if err := NewSettingsRepository(tx).AddInt(ctx, KeyLifetimeFreedBytes, 500); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("ожидалась исходная ошибка, получено %v", err)
	}

	if _, err := NewMediaRepository(db).GetByID(ctx, rec.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("запись не должна пережить откат: %v", err)
	}
	freed, err := NewSettingsRepository(db).GetInt(ctx, KeyLifetimeFreedBytes)
	if err != nil {
		t.Fatalf("GetInt: %v", err)
	}
	if freed != 0 {
		t.Errorf("счётчик после отката: хотели 0, получили %d", freed)
	}
}

func TestSettingsRepository_AddInt(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSettingsRepository(db)
	ctx := context.Background()

	for _, delta := range []int64{1000, 250, 0} {
		if err := repo.AddInt(ctx, KeyLifetimeFreedBytes, delta); err != nil {
			t.Fatalf("AddInt(%d): %v", delta, err)
		}
	}
	got, err := repo.GetInt(ctx, KeyLifetimeFreedBytes)
	if err != nil {
		t.Fatalf("GetInt: %v", err)
	}
	if got != 1250 {
		t.Errorf("хотели 1250, получили %d", got)
	}

	// Неизвестный ключ создаётся при первом AddInt
	if v, _ := repo.GetInt(ctx, "unknown"); v != 0 {
		t.Errorf("неизвестный ключ: хотели 0, получили %d", v)
	}
	if err := repo.AddInt(ctx, "unknown", 7); err != nil {
		t.Fatalf("AddInt нового ключа: %v", err)
	}
	if v, _ := repo.GetInt(ctx, "unknown"); v != 7 {
		t.Errorf("новый ключ: хотели 7, получили %d", v)
	}
}
