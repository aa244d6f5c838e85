// Пакет server — локальный HTTP-сервер batagor с graceful shutdown.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ADA-Batagor/batagor/internal/api/handlers"
	"github.com/ADA-Batagor/batagor/internal/api/middleware"
)

// Handlers — набор обработчиков, монтируемых в роутер.
type Handlers struct {
	Health      *handlers.HealthHandler
	Media       *handlers.MediaHandler
	Lifecycle   *handlers.LifecycleHandler
	Maintenance *handlers.MaintenanceHandler
	Stats       *handlers.StatsHandler
}

// Server — HTTP-сервер batagor.
type Server struct {
	httpServer      *http.Server
	shutdownTimeout time.Duration
	logger          *slog.Logger
}

// NewRouter собирает маршруты API.
func NewRouter(logger *slog.Logger, h Handlers) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.MetricsMiddleware())

	r.Get("/health/live", h.Health.HealthLive)
	r.Get("/health/ready", h.Health.HealthReady)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/media", func(r chi.Router) {
			r.Get("/", h.Media.List)
			r.Post("/", h.Media.Admit)
			r.Get("/count", h.Media.Count)
			r.Get("/recent", h.Media.Recent)
			r.Post("/delete", h.Media.BulkDelete)
			r.Get("/{id}", h.Media.Get)
			r.Get("/{id}/thumbnail", h.Media.Thumbnail)
			r.Delete("/{id}", h.Media.Delete)
		})
		r.Post("/sweep", h.Lifecycle.Sweep)
		r.Post("/lifecycle/background", h.Lifecycle.Background)
		r.Post("/maintenance/reconcile", h.Maintenance.Reconcile)
		r.Get("/stats", h.Stats.Stats)
	})

	return r
}

// New создаёт сервер на addr.
func New(addr string, shutdownTimeout time.Duration, logger *slog.Logger, h Handlers) *Server {
	srv := &http.Server{
		Addr:         addr,
		Handler:      NewRouter(logger, h),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	return &Server{
		httpServer:      srv,
		shutdownTimeout: shutdownTimeout,
		logger:          logger.With(slog.String("component", "server")),
	}
}

// Run запускает сервер и ждёт сигнала завершения (SIGINT, SIGTERM)
// или отмены ctx, после чего выполняет graceful shutdown.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("HTTP-сервер запущен", slog.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case sig := <-quit:
		s.logger.Info("Получен сигнал завершения", slog.String("signal", sig.String()))
	case <-ctx.Done():
		s.logger.Info("Контекст отменён, остановка сервера")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("ошибка HTTP-сервера: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()

	s.logger.Info("Выполняется graceful shutdown...")
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("ошибка при graceful shutdown: %w", err)
	}

	s.logger.Info("HTTP-сервер остановлен")
	return nil
}
