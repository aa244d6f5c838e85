package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// MarkerFileName — файл в контейнере, который перезаписывается при
// каждом изменении медиатеки. По нему другие процессы (виджет)
// узнают о необходимости перечитать данные.
const MarkerFileName = ".library.changed"

// ChangeEvent — уведомление об изменении медиатеки.
type ChangeEvent struct {
	// Reason — источник: sweep, admit, delete
	Reason string `json:"reason"`
	// At — момент изменения (UTC)
	At time.Time `json:"at"`
	// Added, Removed — количество добавленных и удалённых записей
	Added   int `json:"added"`
	Removed int `json:"removed"`
}

// Notifier получает уведомления об изменениях. Реализации не блокируют
// вызывающий код надолго и не возвращают ошибок.
type Notifier interface {
	Notify(ctx context.Context, ev ChangeEvent)
}

// Notifiers рассылает уведомление всем получателям по порядку.
type Notifiers []Notifier

// Notify реализует Notifier.
func (ns Notifiers) Notify(ctx context.Context, ev ChangeEvent) {
	for _, n := range ns {
		if n != nil {
			n.Notify(ctx, ev)
		}
	}
}

// Broadcaster — подписки внутри процесса. Медленный подписчик
// пропускает события, отправка никогда не блокируется.
type Broadcaster struct {
	mu   sync.Mutex
	subs map[chan ChangeEvent]struct{}
}

// NewBroadcaster создаёт пустой Broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[chan ChangeEvent]struct{})}
}

// Subscribe возвращает канал событий и функцию отписки.
func (b *Broadcaster) Subscribe(buffer int) (<-chan ChangeEvent, func()) {
	ch := make(chan ChangeEvent, buffer)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, ch)
			b.mu.Unlock()
			close(ch)
		})
	}
}

// Notify реализует Notifier.
func (b *Broadcaster) Notify(_ context.Context, ev ChangeEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// MarkerFile атомарно перезаписывает marker-файл последним событием.
type MarkerFile struct {
	path   string
	logger *slog.Logger
}

// NewMarkerFile создаёт уведомитель для <containerDir>/.library.changed.
func NewMarkerFile(containerDir string, logger *slog.Logger) *MarkerFile {
	return &MarkerFile{
		path:   filepath.Join(containerDir, MarkerFileName),
		logger: logger.With(slog.String("component", "marker")),
	}
}

// Notify реализует Notifier. Ошибка записи только логируется.
func (m *MarkerFile) Notify(_ context.Context, ev ChangeEvent) {
	if err := writeMarker(m.path, ev); err != nil {
		m.logger.Warn("Не удалось обновить marker-файл",
			slog.String("path", m.path),
			slog.String("error", err.Error()),
		)
	}
}

// ReadMarker читает последнее событие из marker-файла контейнера.
// Возвращает nil, nil, если изменений ещё не было.
func ReadMarker(containerDir string) (*ChangeEvent, error) {
	data, err := os.ReadFile(filepath.Join(containerDir, MarkerFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("ошибка чтения marker-файла: %w", err)
	}
	var ev ChangeEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, fmt.Errorf("ошибка разбора marker-файла: %w", err)
	}
	return &ev, nil
}

// writeMarker: JSON → temp файл → atomic rename.
func writeMarker(path string, ev ChangeEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("ошибка сериализации события: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), MarkerFileName+".*.tmp")
	if err != nil {
		return fmt.Errorf("ошибка создания временного файла: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("ошибка записи: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("ошибка закрытия файла: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("ошибка атомарного переименования: %w", err)
	}
	return nil
}
