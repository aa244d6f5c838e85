package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/ADA-Batagor/batagor/internal/api/handlers"
	"github.com/ADA-Batagor/batagor/internal/database"
	"github.com/ADA-Batagor/batagor/internal/server"
	"github.com/ADA-Batagor/batagor/internal/service"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Запустить демон: очистка по расписанию, сверка и HTTP API",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	a, err := newApp(ctx, os.Stdout, modeReadWrite)
	if err != nil {
		return err
	}
	defer a.Close()

	logger := a.logger
	logger.Info("Запуск batagor",
		slog.String("version", cmd.Root().Version),
		slog.String("container", a.cfg.ContainerDir),
		slog.String("storage_backend", a.cfg.StorageBackend),
		slog.Int("max_live", a.cfg.MaxLive),
		slog.Duration("lifetime", a.cfg.Lifetime),
	)

	// 1. Мониторинг S3 (только для бэкенда s3, отказ не критичен)
	var deps handlers.DependencyHealth
	if a.s3 != nil {
		dh, err := service.NewDephealthService(
			a.cfg.InstanceID, a.cfg.DephealthGroup,
			a.s3.Endpoint(), a.cfg.S3HealthPath,
			a.cfg.DephealthCheckInterval, logger, nil,
		)
		if err != nil {
			logger.Warn("Мониторинг S3 недоступен", slog.String("error", err.Error()))
		} else if err := dh.Start(ctx); err != nil {
			logger.Warn("Ошибка запуска мониторинга S3", slog.String("error", err.Error()))
		} else {
			defer dh.Stop()
			deps = dh
		}
	}

	// 2. Планировщик очистки: первый проход сразу при старте
	scheduler := service.NewScheduler(a.sweeper, a.cfg.SweepInterval, logger)
	scheduler.Start(ctx)
	defer scheduler.Stop()

	// 3. Периодическая сверка контейнера
	a.reconciler.Start(ctx)
	defer a.reconciler.Stop()

	// 4. События изменения медиатеки в журнал
	events, unsubscribe := a.broadcaster.Subscribe(16)
	defer unsubscribe()
	go func() {
		for ev := range events {
			logger.Debug("Медиатека изменена",
				slog.String("reason", ev.Reason),
				slog.Int("added", ev.Added),
				slog.Int("removed", ev.Removed),
			)
		}
	}()

	// 5. HTTP API
	srv := server.New(a.cfg.ListenAddr, a.cfg.ShutdownTimeout, logger, server.Handlers{
		Health:      handlers.NewHealthHandler(a.cfg.ContainerDir, database.NewReadinessChecker(a.db), deps),
		Media:       handlers.NewMediaHandler(a.library, a.admission, a.deletion, a.cfg.WidgetLimit),
		Lifecycle:   handlers.NewLifecycleHandler(a.sweeper, scheduler),
		Maintenance: handlers.NewMaintenanceHandler(a.reconciler),
		Stats:       handlers.NewStatsHandler(a.library),
	})

	if err := srv.Run(ctx); err != nil {
		logger.Error("Сервер завершился с ошибкой", slog.String("error", err.Error()))
		return err
	}

	logger.Info("batagor остановлен")
	return nil
}
