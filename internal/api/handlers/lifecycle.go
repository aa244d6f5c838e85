// lifecycle.go — запуск очистки: синхронный и по смене состояния приложения.
package handlers

import (
	"net/http"
	"time"

	apierrors "github.com/ADA-Batagor/batagor/internal/api/errors"
	"github.com/ADA-Batagor/batagor/internal/service"
)

// SweepTrigger — внеочередной запуск очистки планировщиком.
type SweepTrigger interface {
	Kick(reason string)
}

// LifecycleHandler — обработчики запуска очистки.
type LifecycleHandler struct {
	sweeper service.Sweeper
	trigger SweepTrigger
	now     Clock
}

// NewLifecycleHandler создаёт обработчик. trigger может быть nil,
// тогда переход в фон выполняет очистку синхронно.
func NewLifecycleHandler(sweeper service.Sweeper, trigger SweepTrigger) *LifecycleHandler {
	return &LifecycleHandler{sweeper: sweeper, trigger: trigger, now: time.Now}
}

// Sweep обрабатывает POST /api/v1/sweep — синхронный цикл очистки.
func (h *LifecycleHandler) Sweep(w http.ResponseWriter, r *http.Request) {
	res, err := h.sweeper.Sweep(r.Context(), h.now())
	if err != nil {
		apierrors.FromService(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Background обрабатывает POST /api/v1/lifecycle/background.
// Приложение уходит в фон: очистка ставится в очередь планировщика.
func (h *LifecycleHandler) Background(w http.ResponseWriter, r *http.Request) {
	if h.trigger == nil {
		h.Sweep(w, r)
		return
	}
	h.trigger.Kick("background")
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "scheduled"})
}
