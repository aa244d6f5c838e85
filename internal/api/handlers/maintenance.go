// maintenance.go — обработчик POST /api/v1/maintenance/reconcile.
package handlers

import (
	"context"
	"net/http"

	apierrors "github.com/ADA-Batagor/batagor/internal/api/errors"
	"github.com/ADA-Batagor/batagor/internal/service"
)

// ReconcileRunner — запуск сверки. Позволяет тестировать handler
// без полного ReconcileService.
type ReconcileRunner interface {
	// RunOnce возвращает отчёт и флаг «уже выполняется».
	RunOnce(ctx context.Context) (*service.ReconcileReport, bool, error)
}

// MaintenanceHandler — обработчик endpoints обслуживания.
type MaintenanceHandler struct {
	reconciler ReconcileRunner
}

// NewMaintenanceHandler создаёт обработчик maintenance endpoints.
func NewMaintenanceHandler(reconciler ReconcileRunner) *MaintenanceHandler {
	return &MaintenanceHandler{reconciler: reconciler}
}

// Reconcile выполняет сверку синхронно и возвращает отчёт.
// Если сверка уже идёт — 409 RECONCILE_IN_PROGRESS.
func (h *MaintenanceHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	report, inProgress, err := h.reconciler.RunOnce(r.Context())
	if err != nil {
		apierrors.FromService(w, err)
		return
	}
	if inProgress {
		apierrors.ReconcileInProgress(w, "Сверка уже выполняется")
		return
	}
	writeJSON(w, http.StatusOK, report)
}
