// Пакет errors — ответы с ошибками в едином формате batagor:
// {"error": {"code": "...", "message": "..."}}.
package errors //nolint:revive // имя совпадает со stdlib, пакет импортируется как apierrors

import (
	"encoding/json"
	stderrors "errors"
	"net/http"

	"github.com/ADA-Batagor/batagor/internal/service"
)

// Коды ошибок API.
const (
	CodeValidationError     = "VALIDATION_ERROR"
	CodeNotFound            = "NOT_FOUND"
	CodeCapacityExceeded    = "CAPACITY_EXCEEDED"
	CodeStorageWriteError   = "STORAGE_WRITE_ERROR"
	CodeStorageDeleteError  = "STORAGE_DELETE_ERROR"
	CodePersistenceError    = "PERSISTENCE_ERROR"
	CodeReconcileInProgress = "RECONCILE_IN_PROGRESS"
	CodeInternalError       = "INTERNAL_ERROR"
)

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WriteError записывает ответ ошибки в стандартном формате.
func WriteError(w http.ResponseWriter, statusCode int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(errorBody{
		Error: errorDetail{
			Code:    code,
			Message: message,
		},
	})
}

// ValidationError — 400 некорректные входные данные.
func ValidationError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, CodeValidationError, message)
}

// NotFound — 404 запись не найдена или истекла.
func NotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, CodeNotFound, message)
}

// CapacityExceeded — 409 медиатека заполнена.
func CapacityExceeded(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusConflict, CodeCapacityExceeded, message)
}

// StorageWriteError — 507 артефакт не записан.
func StorageWriteError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInsufficientStorage, CodeStorageWriteError, message)
}

// StorageDeleteError — 507 часть артефактов не удалена, эти записи остались.
func StorageDeleteError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInsufficientStorage, CodeStorageDeleteError, message)
}

// PersistenceError — 503 хранилище записей недоступно.
func PersistenceError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusServiceUnavailable, CodePersistenceError, message)
}

// ReconcileInProgress — 409 сверка уже выполняется.
func ReconcileInProgress(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusConflict, CodeReconcileInProgress, message)
}

// InternalError — 500 внутренняя ошибка.
func InternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, CodeInternalError, message)
}

// FromService отображает ошибку сервисного слоя на HTTP-ответ.
func FromService(w http.ResponseWriter, err error) {
	var (
		writeErr   *service.StorageWriteError
		deleteErr  *service.DeleteArtifactsError
		persistErr *service.PersistenceError
	)
	switch {
	case stderrors.Is(err, service.ErrCapacityExceeded):
		CapacityExceeded(w, err.Error())
	case stderrors.Is(err, service.ErrInvalidMedia):
		ValidationError(w, err.Error())
	case stderrors.Is(err, service.ErrMediaNotFound):
		NotFound(w, err.Error())
	case stderrors.As(err, &writeErr):
		StorageWriteError(w, err.Error())
	case stderrors.As(err, &deleteErr):
		StorageDeleteError(w, err.Error())
	case stderrors.As(err, &persistErr):
		PersistenceError(w, err.Error())
	default:
		InternalError(w, err.Error())
	}
}
