package filestore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// LocalStore — артефакты в каталоге общего контейнера.
type LocalStore struct {
	// rootDir — корень контейнера; области — подкаталоги
	rootDir string
}

var _ Store = (*LocalStore)(nil)

// NewLocalStore создаёт LocalStore и каталоги областей, если их нет.
func NewLocalStore(rootDir string) (*LocalStore, error) {
	for _, area := range Areas {
		dir := filepath.Join(rootDir, area)
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("не удалось создать каталог %s: %w", dir, err)
		}
	}
	return &LocalStore{rootDir: rootDir}, nil
}

// Write записывает данные из reader с подсчётом SHA-256 на лету.
//
// Паттерн: temp файл → запись + SHA-256 → fsync → atomic rename.
// При ошибке temp файл удаляется.
func (s *LocalStore) Write(_ context.Context, area, ext string, r io.Reader) (*SaveResult, error) {
	key, err := newKey(area, ext)
	if err != nil {
		return nil, err
	}
	fullPath := s.FullPath(key)
	tmpPath := fullPath + TempSuffix

	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o640)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания временного файла: %w", err)
	}

	hasher := sha256.New()
	size, err := io.Copy(f, io.TeeReader(r, hasher))
	if err != nil {
		f.Close()
		os.Remove(tmpPath)
		return nil, fmt.Errorf("ошибка записи данных: %w", err)
	}

	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return nil, fmt.Errorf("ошибка fsync: %w", err)
	}

	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return nil, fmt.Errorf("ошибка закрытия файла: %w", err)
	}

	if err := os.Rename(tmpPath, fullPath); err != nil {
		os.Remove(tmpPath)
		return nil, fmt.Errorf("ошибка атомарного переименования: %w", err)
	}

	return &SaveResult{
		Key:      key,
		Size:     size,
		Checksum: hex.EncodeToString(hasher.Sum(nil)),
	}, nil
}

// Open открывает артефакт для чтения. Вызывающий код обязан закрыть ReadCloser.
func (s *LocalStore) Open(_ context.Context, key string) (io.ReadCloser, error) {
	if err := checkKey(key); err != nil {
		return nil, err
	}
	f, err := os.Open(s.FullPath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrFileNotFound, key)
		}
		return nil, fmt.Errorf("ошибка открытия файла %s: %w", key, err)
	}
	return f, nil
}

// Delete удаляет артефакт. Возвращает nil, если файла уже нет.
func (s *LocalStore) Delete(_ context.Context, key string) error {
	if err := checkKey(key); err != nil {
		return err
	}
	err := os.Remove(s.FullPath(key))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("ошибка удаления файла %s: %w", key, err)
	}
	return nil
}

// Exists проверяет существование артефакта.
func (s *LocalStore) Exists(_ context.Context, key string) (bool, error) {
	if err := checkKey(key); err != nil {
		return false, err
	}
	_, err := os.Stat(s.FullPath(key))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, fmt.Errorf("ошибка проверки файла %s: %w", key, err)
}

// Size возвращает размер артефакта.
func (s *LocalStore) Size(_ context.Context, key string) (int64, error) {
	if err := checkKey(key); err != nil {
		return 0, err
	}
	info, err := os.Stat(s.FullPath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, fmt.Errorf("%w: %s", ErrFileNotFound, key)
		}
		return 0, fmt.Errorf("ошибка получения информации о файле %s: %w", key, err)
	}
	return info.Size(), nil
}

// List возвращает все файлы области, включая незавершённые *.tmp.
// Служебные файлы (с точкой в начале) пропускаются.
func (s *LocalStore) List(_ context.Context, area string) ([]ObjectInfo, error) {
	if !validArea(area) {
		return nil, fmt.Errorf("%w: область %q", ErrInvalidKey, area)
	}
	entries, err := os.ReadDir(filepath.Join(s.rootDir, area))
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения каталога %s: %w", area, err)
	}

	result := make([]ObjectInfo, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || entry.Name()[0] == '.' {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			// Файл удалён между ReadDir и Info
			continue
		}
		result = append(result, ObjectInfo{
			Key:     area + "/" + entry.Name(),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}
	return result, nil
}

// FullPath возвращает абсолютный путь артефакта на диске.
func (s *LocalStore) FullPath(key string) string {
	return filepath.Join(s.rootDir, filepath.FromSlash(key))
}
