// Пакет filestore — хранение артефактов медиа (основной файл и миниатюра).
// Две области: main/ и thumbnails/. Каждый артефакт получает новое
// имя UUID и никогда не перезаписывается.
package filestore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Области хранения артефактов.
const (
	AreaMain       = "main"
	AreaThumbnails = "thumbnails"
)

// Areas — все области в порядке обхода.
var Areas = []string{AreaMain, AreaThumbnails}

// TempSuffix — суффикс незавершённой записи.
const TempSuffix = ".tmp"

// ErrFileNotFound — артефакт отсутствует.
var ErrFileNotFound = errors.New("файл не найден")

// ErrInvalidKey — ключ артефакта вне допустимых областей.
var ErrInvalidKey = errors.New("недопустимый ключ артефакта")

// SaveResult — результат сохранения артефакта.
type SaveResult struct {
	// Key — ключ артефакта вида area/uuid.ext
	Key string
	// Size — размер записанных данных в байтах
	Size int64
	// Checksum — SHA-256 хэш содержимого
	Checksum string
}

// ObjectInfo — описание артефакта при обходе области.
type ObjectInfo struct {
	Key     string
	Size    int64
	ModTime time.Time
}

// Store — хранилище артефактов. Delete идемпотентен: отсутствие
// файла не ошибка.
type Store interface {
	Write(ctx context.Context, area, ext string, r io.Reader) (*SaveResult, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	Size(ctx context.Context, key string) (int64, error)
	List(ctx context.Context, area string) ([]ObjectInfo, error)
}

// ReadAll читает артефакт целиком.
func ReadAll(ctx context.Context, s Store, key string) ([]byte, error) {
	rc, err := s.Open(ctx, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения %s: %w", key, err)
	}
	return data, nil
}

// newKey генерирует ключ нового артефакта.
func newKey(area, ext string) (string, error) {
	if !validArea(area) {
		return "", fmt.Errorf("%w: область %q", ErrInvalidKey, area)
	}
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return area + "/" + uuid.New().String() + ext, nil
}

// checkKey проверяет, что ключ лежит внутри одной из областей.
func checkKey(key string) error {
	clean := path.Clean(key)
	if clean != key || strings.HasPrefix(key, "/") {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	area, name, ok := strings.Cut(key, "/")
	if !ok || !validArea(area) || name == "" || strings.Contains(name, "/") {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return nil
}

func validArea(area string) bool {
	return area == AreaMain || area == AreaThumbnails
}
