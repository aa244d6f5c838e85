package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
)

func TestRequestLogger_LevelByStatus(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	r := chi.NewRouter()
	r.Use(RequestLogger(logger))
	r.Get("/ok", func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte("hi")) })
	r.Get("/fail", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusServiceUnavailable) })

	for _, path := range []string{"/ok", "/fail"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("ожидалось 2 записи лога, получено %d", len(lines))
	}
	if !strings.Contains(lines[0], `"level":"INFO"`) || !strings.Contains(lines[0], `"bytes":2`) ||
		!strings.Contains(lines[0], `"route":"/ok"`) {
		t.Errorf("запрос /ok: %s", lines[0])
	}
	if !strings.Contains(lines[1], `"level":"ERROR"`) || !strings.Contains(lines[1], `"status":503`) {
		t.Errorf("запрос /fail: %s", lines[1])
	}
}

func TestRoutePattern(t *testing.T) {
	var got string
	r := chi.NewRouter()
	r.Get("/api/v1/media/{id}", func(_ http.ResponseWriter, req *http.Request) {
		got = routePattern(req)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/media/abc", nil))
	if got != "/api/v1/media/{id}" {
		t.Errorf("шаблон маршрута: %q", got)
	}

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	if p := routePattern(req); p != "unmatched" {
		t.Errorf("без контекста chi: %q", p)
	}
}

func TestLevelFor(t *testing.T) {
	tests := []struct {
		path   string
		status int
		want   slog.Level
	}{
		{"/api/v1/media", http.StatusOK, slog.LevelInfo},
		{"/health/live", http.StatusOK, slog.LevelDebug},
		{"/metrics", http.StatusOK, slog.LevelDebug},
		{"/health/ready", http.StatusServiceUnavailable, slog.LevelError},
		{"/api/v1/media", http.StatusConflict, slog.LevelWarn},
	}
	for _, tt := range tests {
		if got := levelFor(tt.path, tt.status); got != tt.want {
			t.Errorf("levelFor(%s, %d) = %v, ожидалось %v", tt.path, tt.status, got, tt.want)
		}
	}
}
