package service

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/ADA-Batagor/batagor/internal/database"
	"github.com/ADA-Batagor/batagor/internal/domain/model"
	"github.com/ADA-Batagor/batagor/internal/repository"
	"github.com/ADA-Batagor/batagor/internal/storage/filestore"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// testEnv — один «процесс»: своё подключение к базе и своё хранилище
// поверх общего контейнера.
type testEnv struct {
	dir      string
	db       *sqlx.DB
	tx       *repository.TxRunner
	records  repository.MediaRepository
	settings repository.SettingsRepository
	store    *filestore.LocalStore
}

// setupEnv создаёт новый контейнер во временном каталоге.
func setupEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	if err := database.Migrate(filepath.Join(dir, "batagor.sqlite"), testLogger()); err != nil {
		t.Fatalf("Ошибка миграций: %v", err)
	}
	return openEnv(t, dir)
}

// openEnv открывает уже существующий контейнер.
func openEnv(t *testing.T, dir string) *testEnv {
	t.Helper()

	db, err := database.Open(context.Background(), filepath.Join(dir, "batagor.sqlite"), testLogger())
	if err != nil {
		t.Fatalf("Ошибка открытия базы: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	store, err := filestore.NewLocalStore(dir)
	if err != nil {
		t.Fatalf("Ошибка создания LocalStore: %v", err)
	}

	return &testEnv{
		dir:      dir,
		db:       db,
		tx:       repository.NewTxRunner(db),
		records:  repository.NewMediaRepository(db),
		settings: repository.NewSettingsRepository(db),
		store:    store,
	}
}

func (e *testEnv) sweeper() *SweeperService {
	return NewSweeperService(e.tx, e.records, e.store, nil, nil, testLogger())
}

// putRecord записывает оба артефакта и вставляет запись напрямую.
func (e *testEnv) putRecord(t *testing.T, createdAt time.Time, lifetime time.Duration, size int) *model.MediaRecord {
	t.Helper()
	ctx := context.Background()

	mainRes, err := e.store.Write(ctx, filestore.AreaMain, ".jpg", bytes.NewReader(make([]byte, size)))
	if err != nil {
		t.Fatalf("Ошибка записи основного файла: %v", err)
	}
	thumbRes, err := e.store.Write(ctx, filestore.AreaThumbnails, ".jpg", bytes.NewReader([]byte("thumb")))
	if err != nil {
		t.Fatalf("Ошибка записи миниатюры: %v", err)
	}

	rec := model.NewMediaRecord(model.KindPhoto, mainRes.Key, thumbRes.Key, createdAt, lifetime)
	fileSize := mainRes.Size
	rec.FileSize = &fileSize
	if err := e.records.Insert(ctx, rec); err != nil {
		t.Fatalf("Ошибка вставки записи: %v", err)
	}
	return rec
}

func (e *testEnv) countRecords(t *testing.T) int {
	t.Helper()
	all, err := e.records.FetchAll(context.Background())
	if err != nil {
		t.Fatalf("FetchAll: %v", err)
	}
	return len(all)
}

func (e *testEnv) freedBytes(t *testing.T) int64 {
	t.Helper()
	v, err := e.settings.GetInt(context.Background(), repository.KeyLifetimeFreedBytes)
	if err != nil {
		t.Fatalf("GetInt: %v", err)
	}
	return v
}

func (e *testEnv) exists(t *testing.T, key string) bool {
	t.Helper()
	ok, err := e.store.Exists(context.Background(), key)
	if err != nil {
		t.Fatalf("Exists(%s): %v", key, err)
	}
	return ok
}

func (e *testEnv) countFiles(t *testing.T, area string) int {
	t.Helper()
	objects, err := e.store.List(context.Background(), area)
	if err != nil {
		t.Fatalf("List(%s): %v", area, err)
	}
	return len(objects)
}

// recordingNotifier запоминает полученные события.
type recordingNotifier struct {
	events []ChangeEvent
}

func (n *recordingNotifier) Notify(_ context.Context, ev ChangeEvent) {
	n.events = append(n.events, ev)
}

// blockDelete подменяет артефакт непустым каталогом: os.Remove на нём
// завершается ошибкой. Возвращает функцию, снимающую блокировку.
func (e *testEnv) blockDelete(t *testing.T, key string) func() {
	t.Helper()
	path := e.store.FullPath(key)
	if err := os.Remove(path); err != nil {
		t.Fatalf("Remove(%s): %v", key, err)
	}
	if err := os.MkdirAll(filepath.Join(path, "inner"), 0o750); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	return func() {
		if err := os.RemoveAll(path); err != nil {
			t.Fatalf("RemoveAll(%s): %v", key, err)
		}
	}
}
