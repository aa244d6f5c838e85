package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/jmoiron/sqlx"

	"github.com/ADA-Batagor/batagor/internal/config"
	"github.com/ADA-Batagor/batagor/internal/database"
	"github.com/ADA-Batagor/batagor/internal/repository"
	"github.com/ADA-Batagor/batagor/internal/service"
	"github.com/ADA-Batagor/batagor/internal/storage/filestore"
)

// app — собранные компоненты одного процесса.
type app struct {
	cfg    *config.Config
	logger *slog.Logger

	db       *sqlx.DB
	store    filestore.Store
	s3       *filestore.S3Store
	tx       *repository.TxRunner
	records  repository.MediaRepository
	settings repository.SettingsRepository

	broadcaster *service.Broadcaster
	sweeper     *service.SweeperService
	admission   *service.AdmissionService
	deletion    *service.DeletionService
	library     *service.LibraryService
	reconciler  *service.ReconcileService

	cleanup func()
}

// appMode — права процесса на базу записей.
type appMode int

const (
	// modeReadWrite — миграции и запись (serve, sweep, reconcile, seed)
	modeReadWrite appMode = iota
	// modeReadOnly — только чтение, без миграций (widget, stats)
	modeReadOnly
)

// newApp загружает конфигурацию, открывает базу и собирает сервисы.
// logOut — куда пишет основной обработчик логов.
func newApp(ctx context.Context, logOut io.Writer, mode appMode) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("ошибка конфигурации: %w", err)
	}

	logger, logCleanup, err := config.SetupLogger(cfg, logOut)
	if err != nil {
		return nil, fmt.Errorf("ошибка настройки логгера: %w", err)
	}

	db, err := openDB(ctx, cfg, logger, mode)
	if err != nil {
		logCleanup()
		return nil, err
	}

	a := &app{
		cfg:      cfg,
		logger:   logger,
		db:       db,
		tx:       repository.NewTxRunner(db),
		records:  repository.NewMediaRepository(db),
		settings: repository.NewSettingsRepository(db),
		cleanup: func() {
			db.Close()
			logCleanup()
		},
	}

	switch cfg.StorageBackend {
	case config.BackendS3:
		s3Store, err := filestore.NewS3Store(ctx, filestore.S3Config{
			Region:    cfg.S3Region,
			Bucket:    cfg.S3Bucket,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Endpoint:  cfg.S3Endpoint,
		}, logger)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.store, a.s3 = s3Store, s3Store
	default:
		local, err := filestore.NewLocalStore(cfg.ContainerDir)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.store = local
	}

	a.broadcaster = service.NewBroadcaster()
	notifier := service.Notifiers{a.broadcaster, service.NewMarkerFile(cfg.ContainerDir, logger)}

	thumbs := service.NewThumbnailCache(a.store, cfg.ThumbnailCacheSize, cfg.ThumbnailCacheTTL)

	a.sweeper = service.NewSweeperService(a.tx, a.records, a.store, thumbs, notifier, logger)
	a.admission = service.NewAdmissionService(a.tx, a.records, a.store, notifier,
		cfg.ContainerDir, cfg.MaxLive, cfg.Lifetime, logger)
	a.deletion = service.NewDeletionService(a.tx, a.store, thumbs, notifier, logger)
	a.library = service.NewLibraryService(a.records, a.settings, thumbs, cfg.MaxLive,
		cfg.ContainerDir, cfg.StorageBackend, logger)
	a.reconciler = service.NewReconcileService(a.records, a.store, cfg.ReconcileInterval, cfg.OrphanGrace, logger)

	return a, nil
}

// openDB для пишущих процессов создаёт контейнер и применяет миграции,
// для читающих открывает существующую базу без права записи.
func openDB(ctx context.Context, cfg *config.Config, logger *slog.Logger, mode appMode) (*sqlx.DB, error) {
	if mode == modeReadOnly {
		return database.OpenReadOnly(ctx, cfg.DBPath(), logger)
	}

	if err := os.MkdirAll(cfg.ContainerDir, 0o750); err != nil {
		return nil, fmt.Errorf("ошибка создания контейнера %s: %w", cfg.ContainerDir, err)
	}
	if err := database.Migrate(cfg.DBPath(), logger); err != nil {
		return nil, err
	}
	return database.Open(ctx, cfg.DBPath(), logger)
}

// Close освобождает ресурсы процесса.
func (a *app) Close() {
	if a.cleanup != nil {
		a.cleanup()
	}
}

// printJSON выводит v в stdout для машинных потребителей.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
