package server

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ADA-Batagor/batagor/internal/api/handlers"
	"github.com/ADA-Batagor/batagor/internal/database"
	"github.com/ADA-Batagor/batagor/internal/repository"
	"github.com/ADA-Batagor/batagor/internal/service"
	"github.com/ADA-Batagor/batagor/internal/storage/filestore"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// setupServer собирает роутер поверх реального контейнера во временном каталоге.
func setupServer(t *testing.T, ceiling int) http.Handler {
	t.Helper()
	logger := testLogger()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "batagor.sqlite")

	if err := database.Migrate(dbPath, logger); err != nil {
		t.Fatalf("Ошибка миграций: %v", err)
	}
	db, err := database.Open(context.Background(), dbPath, logger)
	if err != nil {
		t.Fatalf("Ошибка открытия базы: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	store, err := filestore.NewLocalStore(dir)
	if err != nil {
		t.Fatalf("Ошибка создания LocalStore: %v", err)
	}

	tx := repository.NewTxRunner(db)
	records := repository.NewMediaRepository(db)
	settings := repository.NewSettingsRepository(db)
	notifier := service.NewMarkerFile(dir, logger)

	thumbs := service.NewThumbnailCache(store, 16, time.Minute)
	library := service.NewLibraryService(records, settings, thumbs, ceiling, dir, "local", logger)
	admission := service.NewAdmissionService(tx, records, store, notifier, dir, ceiling, time.Hour, logger)
	deletion := service.NewDeletionService(tx, store, thumbs, notifier, logger)
	sweeper := service.NewSweeperService(tx, records, store, thumbs, notifier, logger)
	reconciler := service.NewReconcileService(records, store, time.Hour, time.Minute, logger)

	return NewRouter(logger, Handlers{
		Health:      handlers.NewHealthHandler(dir, database.NewReadinessChecker(db), nil),
		Media:       handlers.NewMediaHandler(library, admission, deletion, 4),
		Lifecycle:   handlers.NewLifecycleHandler(sweeper, nil),
		Maintenance: handlers.NewMaintenanceHandler(reconciler),
		Stats:       handlers.NewStatsHandler(library),
	})
}

// admitForm строит multipart-запрос на добавление фото.
func admitForm(t *testing.T, fields map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	for name, content := range map[string]string{"main": "main-jpeg", "thumbnail": "thumb-jpeg"} {
		part, err := mw.CreateFormFile(name, name+".jpg")
		if err != nil {
			t.Fatal(err)
		}
		_, _ = part.Write([]byte(content))
	}
	for k, v := range fields {
		_ = mw.WriteField(k, v)
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/media", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func do(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("Ошибка разбора ответа %q: %v", rec.Body.String(), err)
	}
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	decode(t, rec, &body)
	return body.Error.Code
}

func TestMediaLifecycleOverHTTP(t *testing.T) {
	h := setupServer(t, 24)

	resp := do(h, admitForm(t, map[string]string{
		"kind":          "photo",
		"latitude":      "-6.2",
		"longitude":     "106.8",
		"location_name": "Jakarta",
	}))
	if resp.Code != http.StatusCreated {
		t.Fatalf("POST /media: %d %s", resp.Code, resp.Body.String())
	}
	var created struct {
		ID             string `json:"id"`
		RemainingLabel string `json:"remaining_label"`
		LocationName   string `json:"location_name"`
	}
	decode(t, resp, &created)
	if created.ID == "" || created.RemainingLabel != "< 1h" || created.LocationName != "Jakarta" {
		t.Errorf("неожиданный ответ: %+v", created)
	}

	resp = do(h, httptest.NewRequest(http.MethodGet, "/api/v1/media", nil))
	var list struct {
		Total int `json:"total"`
	}
	decode(t, resp, &list)
	if resp.Code != http.StatusOK || list.Total != 1 {
		t.Errorf("GET /media: %d, total=%d", resp.Code, list.Total)
	}

	resp = do(h, httptest.NewRequest(http.MethodGet, "/api/v1/media/"+created.ID+"/thumbnail", nil))
	if resp.Code != http.StatusOK || resp.Body.String() != "thumb-jpeg" {
		t.Errorf("GET thumbnail: %d %q", resp.Code, resp.Body.String())
	}

	resp = do(h, httptest.NewRequest(http.MethodGet, "/api/v1/media/recent?limit=2", nil))
	var tl service.WidgetTimeline
	decode(t, resp, &tl)
	if len(tl.Entries) != 1 || tl.Count.Live != 1 {
		t.Errorf("GET recent: %+v", tl)
	}

	resp = do(h, httptest.NewRequest(http.MethodDelete, "/api/v1/media/"+created.ID, nil))
	if resp.Code != http.StatusNoContent {
		t.Errorf("DELETE: %d", resp.Code)
	}

	resp = do(h, httptest.NewRequest(http.MethodGet, "/api/v1/media/"+created.ID, nil))
	if resp.Code != http.StatusNotFound || errorCode(t, resp) != "NOT_FOUND" {
		t.Errorf("GET после удаления: %d %s", resp.Code, resp.Body.String())
	}

	resp = do(h, httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil))
	var st service.Stats
	decode(t, resp, &st)
	if st.FreedBytes != 0 || st.LastChange == nil || st.LastChange.Reason != "delete" {
		t.Errorf("stats: %+v", st)
	}
}

func TestListLimitOverHTTP(t *testing.T) {
	h := setupServer(t, 24)
	for _, name := range []string{"first", "second"} {
		resp := do(h, admitForm(t, map[string]string{"kind": "photo", "location_name": name}))
		if resp.Code != http.StatusCreated {
			t.Fatalf("POST /media: %d %s", resp.Code, resp.Body.String())
		}
	}

	resp := do(h, httptest.NewRequest(http.MethodGet, "/api/v1/media?limit=1", nil))
	var list struct {
		Total int `json:"total"`
	}
	decode(t, resp, &list)
	if resp.Code != http.StatusOK || list.Total != 1 {
		t.Errorf("GET /media?limit=1: %d, total=%d", resp.Code, list.Total)
	}

	for _, q := range []string{"0", "-3", "много"} {
		resp = do(h, httptest.NewRequest(http.MethodGet, "/api/v1/media?limit="+url.QueryEscape(q), nil))
		if resp.Code != http.StatusBadRequest || errorCode(t, resp) != "VALIDATION_ERROR" {
			t.Errorf("limit=%s: %d %s", q, resp.Code, resp.Body.String())
		}
	}
}

func TestAdmit_CapacityExceededOverHTTP(t *testing.T) {
	h := setupServer(t, 1)

	if resp := do(h, admitForm(t, map[string]string{"kind": "photo"})); resp.Code != http.StatusCreated {
		t.Fatalf("первый снимок: %d %s", resp.Code, resp.Body.String())
	}
	resp := do(h, admitForm(t, map[string]string{"kind": "photo"}))
	if resp.Code != http.StatusConflict || errorCode(t, resp) != "CAPACITY_EXCEEDED" {
		t.Errorf("второй снимок: %d %s", resp.Code, resp.Body.String())
	}

	resp = do(h, httptest.NewRequest(http.MethodGet, "/api/v1/media/count", nil))
	var snap service.CountSnapshot
	decode(t, resp, &snap)
	if snap.Live != 1 || snap.CanAdmit {
		t.Errorf("count: %+v", snap)
	}
}

func TestAdmit_ValidationOverHTTP(t *testing.T) {
	h := setupServer(t, 24)

	tests := []struct {
		name   string
		fields map[string]string
	}{
		{"неизвестный тип", map[string]string{"kind": "gif"}},
		{"только широта", map[string]string{"kind": "photo", "latitude": "1"}},
		{"плохой lifetime", map[string]string{"kind": "photo", "lifetime": "сутки"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := do(h, admitForm(t, tt.fields))
			if resp.Code != http.StatusBadRequest || errorCode(t, resp) != "VALIDATION_ERROR" {
				t.Errorf("%d %s", resp.Code, resp.Body.String())
			}
		})
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/media", strings.NewReader("{}"))
	req.Header.Set("Content-Type", "application/json")
	if resp := do(h, req); resp.Code != http.StatusBadRequest {
		t.Errorf("не multipart: %d", resp.Code)
	}
}

func TestSweepAndBulkDeleteOverHTTP(t *testing.T) {
	h := setupServer(t, 24)

	var ids []string
	for i := 0; i < 3; i++ {
		resp := do(h, admitForm(t, map[string]string{"kind": "movie"}))
		var created struct {
			ID string `json:"id"`
		}
		decode(t, resp, &created)
		ids = append(ids, created.ID)
	}

	// Одна короткоживущая запись
	resp := do(h, admitForm(t, map[string]string{"kind": "photo", "lifetime": "1ns"}))
	if resp.Code != http.StatusCreated {
		t.Fatalf("короткоживущая запись: %d %s", resp.Code, resp.Body.String())
	}
	time.Sleep(5 * time.Millisecond)

	resp = do(h, httptest.NewRequest(http.MethodPost, "/api/v1/sweep", nil))
	var sr service.SweepResult
	decode(t, resp, &sr)
	if resp.Code != http.StatusOK || sr.Deleted != 1 || sr.BytesFreed != int64(len("main-jpeg")) {
		t.Errorf("sweep: %d %+v", resp.Code, sr)
	}

	body, _ := json.Marshal(map[string][]string{"ids": append(ids[:2], "missing")})
	resp = do(h, httptest.NewRequest(http.MethodPost, "/api/v1/media/delete", bytes.NewReader(body)))
	var deleted struct {
		Deleted int `json:"deleted"`
	}
	decode(t, resp, &deleted)
	if resp.Code != http.StatusOK || deleted.Deleted != 2 {
		t.Errorf("bulk delete: %d %+v", resp.Code, deleted)
	}

	resp = do(h, httptest.NewRequest(http.MethodPost, "/api/v1/lifecycle/background", nil))
	if resp.Code != http.StatusOK {
		t.Errorf("background без планировщика выполняет очистку синхронно: %d", resp.Code)
	}
}

func TestHealthAndReconcileOverHTTP(t *testing.T) {
	h := setupServer(t, 24)

	for _, path := range []string{"/health/live", "/health/ready"} {
		if resp := do(h, httptest.NewRequest(http.MethodGet, path, nil)); resp.Code != http.StatusOK {
			t.Errorf("%s: %d %s", path, resp.Code, resp.Body.String())
		}
	}

	resp := do(h, httptest.NewRequest(http.MethodPost, "/api/v1/maintenance/reconcile", nil))
	var report service.ReconcileReport
	decode(t, resp, &report)
	if resp.Code != http.StatusOK || len(report.Issues) != 0 {
		t.Errorf("reconcile: %d %+v", resp.Code, report)
	}

	if resp := do(h, httptest.NewRequest(http.MethodGet, "/metrics", nil)); resp.Code != http.StatusOK ||
		!strings.Contains(resp.Body.String(), "bt_http_requests_total") {
		t.Errorf("/metrics: %d", resp.Code)
	}
}
