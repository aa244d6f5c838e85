package handlers

import (
	"net/http"
	"time"

	apierrors "github.com/ADA-Batagor/batagor/internal/api/errors"
	"github.com/ADA-Batagor/batagor/internal/service"
)

// StatsHandler — сводка медиатеки для экрана настроек.
type StatsHandler struct {
	library *service.LibraryService
	now     Clock
}

// NewStatsHandler создаёт обработчик GET /api/v1/stats.
func NewStatsHandler(library *service.LibraryService) *StatsHandler {
	return &StatsHandler{library: library, now: time.Now}
}

// Stats обрабатывает GET /api/v1/stats.
func (h *StatsHandler) Stats(w http.ResponseWriter, r *http.Request) {
	st, err := h.library.Stats(r.Context(), h.now())
	if err != nil {
		apierrors.FromService(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}
