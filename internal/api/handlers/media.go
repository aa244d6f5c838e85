// media.go — обработчики /api/v1/media: галерея, добавление, удаление, виджет.
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/ADA-Batagor/batagor/internal/api/errors"
	"github.com/ADA-Batagor/batagor/internal/domain/expiry"
	"github.com/ADA-Batagor/batagor/internal/domain/model"
	"github.com/ADA-Batagor/batagor/internal/service"
)

// maxUploadMemory — объём multipart-формы, который держится в памяти.
const maxUploadMemory = 32 << 20

// mediaResponse — запись с вычисленным остатком жизни.
type mediaResponse struct {
	*model.MediaRecord
	RemainingSeconds int64  `json:"remaining_seconds"`
	RemainingLabel   string `json:"remaining_label"`
	LocationName     string `json:"location_name"`
}

func newMediaResponse(rec *model.MediaRecord, now time.Time) mediaResponse {
	remaining := expiry.TimeRemaining(rec, now)
	return mediaResponse{
		MediaRecord:      rec,
		RemainingSeconds: int64(remaining / time.Second),
		RemainingLabel:   expiry.FormatRemaining(remaining),
		LocationName:     rec.Location.DisplayName(),
	}
}

// MediaHandler — обработчики медиатеки.
type MediaHandler struct {
	library   *service.LibraryService
	admission *service.AdmissionService
	deletion  *service.DeletionService
	widget    int
	now       Clock
}

// NewMediaHandler создаёт обработчик медиатеки.
// widgetLimit — размер ленты /recent по умолчанию.
func NewMediaHandler(
	library *service.LibraryService,
	admission *service.AdmissionService,
	deletion *service.DeletionService,
	widgetLimit int,
) *MediaHandler {
	return &MediaHandler{
		library:   library,
		admission: admission,
		deletion:  deletion,
		widget:    widgetLimit,
		now:       time.Now,
	}
}

// List обрабатывает GET /api/v1/media[?limit=N].
// С limit возвращаются только N новейших живых записей.
func (h *MediaHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(w, r, 0)
	if !ok {
		return
	}

	now := h.now()
	recs, err := h.library.Recent(r.Context(), now, limit)
	if err != nil {
		apierrors.FromService(w, err)
		return
	}

	items := make([]mediaResponse, 0, len(recs))
	for _, rec := range recs {
		items = append(items, newMediaResponse(rec, now))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": items,
		"total": len(items),
	})
}

// Admit обрабатывает POST /api/v1/media (multipart/form-data).
func (h *MediaHandler) Admit(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		apierrors.ValidationError(w, "Ожидается multipart/form-data: "+err.Error())
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	mainFile, err := openPart(r.MultipartForm, "main")
	if err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}
	defer mainFile.Close()

	thumbFile, err := openPart(r.MultipartForm, "thumbnail")
	if err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}
	defer thumbFile.Close()

	req := service.AdmitRequest{
		Kind:      model.MediaKind(r.FormValue("kind")),
		Main:      mainFile,
		Thumbnail: thumbFile,
	}

	if v := r.FormValue("lifetime"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			apierrors.ValidationError(w, "Некорректный lifetime: "+err.Error())
			return
		}
		req.Lifetime = d
	}

	loc, err := parseLocation(r)
	if err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}
	req.Location = loc

	rec, err := h.admission.Admit(r.Context(), req)
	if err != nil {
		apierrors.FromService(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, newMediaResponse(rec, h.now()))
}

// Count обрабатывает GET /api/v1/media/count.
func (h *MediaHandler) Count(w http.ResponseWriter, r *http.Request) {
	snap, err := h.library.Count(r.Context(), h.now())
	if err != nil {
		apierrors.FromService(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// Recent обрабатывает GET /api/v1/media/recent?limit=N — лента виджета.
func (h *MediaHandler) Recent(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(w, r, h.widget)
	if !ok {
		return
	}

	tl, err := h.library.Widget(r.Context(), h.now(), limit)
	if err != nil {
		apierrors.FromService(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tl)
}

// Get обрабатывает GET /api/v1/media/{id}.
func (h *MediaHandler) Get(w http.ResponseWriter, r *http.Request) {
	now := h.now()
	rec, err := h.library.Get(r.Context(), chi.URLParam(r, "id"), now)
	if err != nil {
		apierrors.FromService(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newMediaResponse(rec, now))
}

// Thumbnail обрабатывает GET /api/v1/media/{id}/thumbnail.
func (h *MediaHandler) Thumbnail(w http.ResponseWriter, r *http.Request) {
	data, err := h.library.Thumbnail(r.Context(), chi.URLParam(r, "id"), h.now())
	if err != nil {
		apierrors.FromService(w, err)
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// Delete обрабатывает DELETE /api/v1/media/{id}.
func (h *MediaHandler) Delete(w http.ResponseWriter, r *http.Request) {
	rec, err := h.library.Get(r.Context(), chi.URLParam(r, "id"), h.now())
	if err != nil {
		apierrors.FromService(w, err)
		return
	}
	if err := h.deletion.DeleteOne(r.Context(), rec); err != nil {
		apierrors.FromService(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// bulkDeleteRequest — тело POST /api/v1/media/delete.
type bulkDeleteRequest struct {
	IDs []string `json:"ids"`
}

// BulkDelete обрабатывает POST /api/v1/media/delete.
func (h *MediaHandler) BulkDelete(w http.ResponseWriter, r *http.Request) {
	var req bulkDeleteRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		apierrors.ValidationError(w, "Некорректный JSON: "+err.Error())
		return
	}
	if len(req.IDs) == 0 {
		apierrors.ValidationError(w, "Список ids пуст")
		return
	}

	recs, err := h.library.GetMany(r.Context(), req.IDs, h.now())
	if err != nil {
		apierrors.FromService(w, err)
		return
	}
	n, err := h.deletion.DeleteMany(r.Context(), recs)
	if err != nil {
		var partial *service.DeleteArtifactsError
		if errors.As(err, &partial) {
			apierrors.StorageDeleteError(w, fmt.Sprintf("удалено %d записей; %v", n, err))
			return
		}
		apierrors.FromService(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"deleted": n})
}

// parseLimit читает необязательный параметр limit.
// При ошибке ответ уже записан и ok == false.
func parseLimit(w http.ResponseWriter, r *http.Request, def int) (limit int, ok bool) {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return def, true
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		apierrors.ValidationError(w, "limit должен быть положительным целым числом")
		return 0, false
	}
	return n, true
}

// openPart открывает первый файл multipart-поля.
func openPart(form *multipart.Form, field string) (multipart.File, error) {
	headers := form.File[field]
	if len(headers) == 0 {
		return nil, fmt.Errorf("отсутствует файл %q", field)
	}
	f, err := headers[0].Open()
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения файла %q: %w", field, err)
	}
	return f, nil
}

// parseLocation читает необязательные поля места съёмки.
// Широта и долгота задаются только вместе.
func parseLocation(r *http.Request) (*model.GeoTag, error) {
	latStr, lonStr := r.FormValue("latitude"), r.FormValue("longitude")
	if latStr == "" && lonStr == "" {
		return nil, nil
	}
	if latStr == "" || lonStr == "" {
		return nil, fmt.Errorf("latitude и longitude задаются вместе")
	}

	lat, err := strconv.ParseFloat(latStr, 64)
	if err != nil {
		return nil, fmt.Errorf("некорректная latitude: %w", err)
	}
	lon, err := strconv.ParseFloat(lonStr, 64)
	if err != nil {
		return nil, fmt.Errorf("некорректная longitude: %w", err)
	}

	loc := &model.GeoTag{Latitude: lat, Longitude: lon, Name: r.FormValue("location_name")}
	if v := r.FormValue("altitude"); v != "" {
		alt, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("некорректная altitude: %w", err)
		}
		loc.Altitude = &alt
	}
	return loc, nil
}
