// Пакет handlers — HTTP-обработчики локального API batagor.
package handlers

import (
	"encoding/json"
	"net/http"
	"time"
)

// Clock возвращает текущий момент. В тестах подменяется.
type Clock func() time.Time

// writeJSON записывает JSON-ответ с указанным статусом.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
