// Пакет service — бизнес-логика жизненного цикла медиа:
// допуск новых снимков, автоматическая очистка, ручное удаление,
// выдача медиатеки и сверка артефактов.
package service

import (
	"errors"
	"fmt"
)

// Ошибки сервисного слоя.
var (
	// ErrCapacityExceeded — медиатека заполнена, снимок не принят.
	ErrCapacityExceeded = errors.New("достигнут лимит живых записей")
	// ErrInvalidMedia — некорректный запрос на добавление медиа.
	ErrInvalidMedia = errors.New("некорректные данные медиа")
	// ErrMediaNotFound — запись отсутствует или уже истекла.
	ErrMediaNotFound = errors.New("медиа не найдено")
)

// StorageWriteError — не удалось записать артефакт. Запись не создана,
// уже записанные артефакты удалены.
type StorageWriteError struct {
	// Area — область хранилища (main, thumbnails)
	Area string
	Err  error
}

func (e *StorageWriteError) Error() string {
	return fmt.Sprintf("ошибка записи артефакта (%s): %v", e.Area, e.Err)
}

func (e *StorageWriteError) Unwrap() error { return e.Err }

// PersistenceError — сбой хранилища записей (чтение, вставка, коммит).
type PersistenceError struct {
	// Op — операция: fetch, insert, commit, counter
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("ошибка хранилища записей (%s): %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// DeleteArtifactsError — у части записей не удалось удалить артефакты.
// Такие записи оставлены живыми, остальные удалены.
type DeleteArtifactsError struct {
	// Failed — id записей, оставшихся в медиатеке
	Failed []string
	// Err — первая из ошибок хранилища
	Err error
}

func (e *DeleteArtifactsError) Error() string {
	return fmt.Sprintf("не удалось удалить артефакты %d записей: %v", len(e.Failed), e.Err)
}

func (e *DeleteArtifactsError) Unwrap() error { return e.Err }
