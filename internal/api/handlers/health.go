// health.go — обработчики /health/live и /health/ready.
package handlers

import (
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/ADA-Batagor/batagor/internal/config"
)

const (
	statusOK   = "ok"
	statusFail = "fail"
)

// DBReadinessChecker — проверка доступности базы записей.
type DBReadinessChecker interface {
	CheckReady() (status string, message string)
}

// DependencyHealth — состояние внешних зависимостей (topologymetrics).
type DependencyHealth interface {
	Health() map[string]bool
}

// HealthHandler реализует health endpoints.
type HealthHandler struct {
	version      string
	containerDir string
	db           DBReadinessChecker
	deps         DependencyHealth
}

// NewHealthHandler создаёт обработчик health endpoints.
// deps может быть nil (бэкенд local).
func NewHealthHandler(containerDir string, db DBReadinessChecker, deps DependencyHealth) *HealthHandler {
	return &HealthHandler{
		version:      config.Version,
		containerDir: containerDir,
		db:           db,
		deps:         deps,
	}
}

// HealthLive обрабатывает GET /health/live.
func (h *HealthHandler) HealthLive(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    statusOK,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   h.version,
		"service":   "batagor",
	})
}

// HealthReady обрабатывает GET /health/ready.
// База и контейнер критичны, внешние зависимости дают статус degraded.
func (h *HealthHandler) HealthReady(w http.ResponseWriter, _ *http.Request) {
	overall := statusOK
	httpStatus := http.StatusOK

	checks := map[string]any{}

	dbStatus, dbMessage := statusOK, ""
	if h.db != nil {
		dbStatus, dbMessage = h.db.CheckReady()
	}
	checks["database"] = map[string]any{"status": dbStatus, "message": dbMessage}
	if dbStatus != statusOK {
		overall = statusFail
		httpStatus = http.StatusServiceUnavailable
	}

	fsCheck := h.checkContainer()
	checks["container"] = fsCheck
	if fsCheck["status"] != statusOK {
		overall = statusFail
		httpStatus = http.StatusServiceUnavailable
	}

	if h.deps != nil {
		deps := h.deps.Health()
		checks["dependencies"] = deps
		for _, ok := range deps {
			if !ok && overall != statusFail {
				overall = "degraded"
			}
		}
	}

	writeJSON(w, httpStatus, map[string]any{
		"status":    overall,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   h.version,
		"service":   "batagor",
		"checks":    checks,
	})
}

// checkContainer проверяет, что контейнер доступен на запись.
func (h *HealthHandler) checkContainer() map[string]any {
	if h.containerDir == "" {
		return map[string]any{"status": statusOK, "message": "Проверка не настроена"}
	}

	testFile := filepath.Join(h.containerDir, ".health_check")
	if err := os.WriteFile(testFile, []byte("ok"), 0o600); err != nil {
		return map[string]any{
			"status":  statusFail,
			"message": "Контейнер недоступен для записи: " + err.Error(),
		}
	}
	_ = os.Remove(testFile)

	return map[string]any{"status": statusOK}
}
