// library.go — чтение медиатеки: галерея, виджет, счётчики и статистика.
// Все выборки работают только с живыми записями на момент now.
package service

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/ADA-Batagor/batagor/internal/domain/capacity"
	"github.com/ADA-Batagor/batagor/internal/domain/expiry"
	"github.com/ADA-Batagor/batagor/internal/domain/model"
	"github.com/ADA-Batagor/batagor/internal/repository"
	"github.com/ADA-Batagor/batagor/internal/storage/filestore"
)

// Интервалы обновления виджета.
const (
	DefaultWidgetLimit     = 4
	WidgetRefreshWithItems = time.Minute
	WidgetRefreshEmpty     = 5 * time.Minute
)

// CountSnapshot — заполненность медиатеки.
type CountSnapshot struct {
	Live      int  `json:"live"`
	Ceiling   int  `json:"ceiling"`
	Remaining int  `json:"remaining"`
	CanAdmit  bool `json:"can_admit"`
}

// WidgetEntry — элемент ленты виджета.
type WidgetEntry struct {
	ID             string          `json:"id"`
	Kind           model.MediaKind `json:"kind"`
	CreatedAt      time.Time       `json:"created_at"`
	ExpiredAt      time.Time       `json:"expired_at"`
	RemainingLabel string          `json:"remaining_label"`
	LocationName   string          `json:"location_name"`
	Thumbnail      []byte          `json:"thumbnail"`
}

// WidgetTimeline — содержимое виджета и момент следующего обновления.
type WidgetTimeline struct {
	Entries     []WidgetEntry `json:"entries"`
	Count       CountSnapshot `json:"count"`
	NextRefresh time.Time     `json:"next_refresh"`
}

// DiskStats — заполненность файловой системы контейнера.
type DiskStats struct {
	Total          int64  `json:"total_bytes"`
	Used           int64  `json:"used_bytes"`
	Available      int64  `json:"available_bytes"`
	AvailableHuman string `json:"available_human"`
}

// Stats — сводка для экрана настроек.
type Stats struct {
	Count          CountSnapshot `json:"count"`
	FreedBytes     int64         `json:"lifetime_freed_bytes"`
	FreedHuman     string        `json:"lifetime_freed_human"`
	LiveBytes      int64         `json:"live_bytes"`
	LiveHuman      string        `json:"live_human"`
	Disk           *DiskStats    `json:"disk,omitempty"`
	LastChange     *ChangeEvent  `json:"last_change,omitempty"`
	StorageBackend string        `json:"storage_backend"`
}

// DiskUsageFunc возвращает total, used, available для каталога.
type DiskUsageFunc func(path string) (total, used, available int64, err error)

// LibraryService — чтение медиатеки.
type LibraryService struct {
	records      repository.MediaRepository
	settings     repository.SettingsRepository
	thumbs       *ThumbnailCache
	ceiling      int
	containerDir string
	backend      string
	diskUsage    DiskUsageFunc
	logger       *slog.Logger
}

// NewLibraryService создаёт сервис чтения медиатеки.
func NewLibraryService(
	records repository.MediaRepository,
	settings repository.SettingsRepository,
	thumbs *ThumbnailCache,
	ceiling int,
	containerDir string,
	backend string,
	logger *slog.Logger,
) *LibraryService {
	return &LibraryService{
		records:      records,
		settings:     settings,
		thumbs:       thumbs,
		ceiling:      ceiling,
		containerDir: containerDir,
		backend:      backend,
		diskUsage:    filestore.DiskUsage,
		logger:       logger.With(slog.String("component", "library")),
	}
}

// List возвращает живые записи, новые первыми.
func (s *LibraryService) List(ctx context.Context, now time.Time) ([]*model.MediaRecord, error) {
	all, err := s.records.FetchAll(ctx)
	if err != nil {
		return nil, &PersistenceError{Op: "fetch", Err: err}
	}
	_, live := expiry.Partition(all, now)
	sortNewestFirst(live)
	if live == nil {
		live = []*model.MediaRecord{}
	}
	return live, nil
}

// Get возвращает живую запись. Истёкшая запись считается отсутствующей.
func (s *LibraryService) Get(ctx context.Context, id string, now time.Time) (*model.MediaRecord, error) {
	rec, err := s.records.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrMediaNotFound
		}
		return nil, &PersistenceError{Op: "get", Err: err}
	}
	if expiry.IsExpired(rec, now) {
		return nil, ErrMediaNotFound
	}
	return rec, nil
}

// GetMany возвращает живые записи из списка id, пропуская отсутствующие.
func (s *LibraryService) GetMany(ctx context.Context, ids []string, now time.Time) ([]*model.MediaRecord, error) {
	recs := make([]*model.MediaRecord, 0, len(ids))
	for _, id := range ids {
		rec, err := s.Get(ctx, id, now)
		if errors.Is(err, ErrMediaNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

// Count возвращает заполненность медиатеки.
func (s *LibraryService) Count(ctx context.Context, now time.Time) (CountSnapshot, error) {
	all, err := s.records.FetchAll(ctx)
	if err != nil {
		return CountSnapshot{}, &PersistenceError{Op: "fetch", Err: err}
	}
	return s.snapshot(expiry.CountLive(all, now)), nil
}

// Recent возвращает не более limit новейших живых записей.
func (s *LibraryService) Recent(ctx context.Context, now time.Time, limit int) ([]*model.MediaRecord, error) {
	live, err := s.List(ctx, now)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(live) > limit {
		live = live[:limit]
	}
	return live, nil
}

// Widget строит ленту виджета: до limit новейших живых записей,
// у которых читается миниатюра.
func (s *LibraryService) Widget(ctx context.Context, now time.Time, limit int) (*WidgetTimeline, error) {
	if limit <= 0 {
		limit = DefaultWidgetLimit
	}

	live, err := s.List(ctx, now)
	if err != nil {
		return nil, err
	}

	entries := make([]WidgetEntry, 0, limit)
	for _, rec := range live {
		if len(entries) == limit {
			break
		}
		thumb, err := s.thumbs.Get(ctx, rec.ThumbnailPath)
		if err != nil {
			s.logger.Debug("Виджет: миниатюра недоступна",
				slog.String("id", rec.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		entries = append(entries, WidgetEntry{
			ID:             rec.ID,
			Kind:           rec.Kind,
			CreatedAt:      rec.CreatedAt,
			ExpiredAt:      rec.ExpiredAt,
			RemainingLabel: expiry.FormatRemaining(expiry.TimeRemaining(rec, now)),
			LocationName:   rec.Location.DisplayName(),
			Thumbnail:      thumb,
		})
	}

	next := now.Add(WidgetRefreshEmpty)
	if len(entries) > 0 {
		next = now.Add(WidgetRefreshWithItems)
	}

	return &WidgetTimeline{
		Entries:     entries,
		Count:       s.snapshot(len(live)),
		NextRefresh: next,
	}, nil
}

// Thumbnail возвращает содержимое миниатюры живой записи.
func (s *LibraryService) Thumbnail(ctx context.Context, id string, now time.Time) ([]byte, error) {
	rec, err := s.Get(ctx, id, now)
	if err != nil {
		return nil, err
	}
	data, err := s.thumbs.Get(ctx, rec.ThumbnailPath)
	if errors.Is(err, filestore.ErrFileNotFound) {
		return nil, ErrMediaNotFound
	}
	return data, err
}

// FreedBytes возвращает суммарный объём, освобождённый очисткой.
func (s *LibraryService) FreedBytes(ctx context.Context) (int64, error) {
	v, err := s.settings.GetInt(ctx, repository.KeyLifetimeFreedBytes)
	if err != nil {
		return 0, &PersistenceError{Op: "counter", Err: err}
	}
	return v, nil
}

// Stats собирает сводку. Ошибки диска и marker-файла не фатальны.
func (s *LibraryService) Stats(ctx context.Context, now time.Time) (*Stats, error) {
	live, err := s.List(ctx, now)
	if err != nil {
		return nil, err
	}
	freed, err := s.FreedBytes(ctx)
	if err != nil {
		return nil, err
	}

	var liveBytes int64
	for _, rec := range live {
		liveBytes += rec.Size()
	}

	st := &Stats{
		Count:          s.snapshot(len(live)),
		FreedBytes:     freed,
		FreedHuman:     humanize.IBytes(uint64(freed)),
		LiveBytes:      liveBytes,
		LiveHuman:      humanize.IBytes(uint64(liveBytes)),
		StorageBackend: s.backend,
	}

	if s.diskUsage != nil && s.containerDir != "" {
		total, used, available, err := s.diskUsage(s.containerDir)
		if err != nil {
			s.logger.Warn("Не удалось получить заполненность диска",
				slog.String("error", err.Error()),
			)
		} else {
			st.Disk = &DiskStats{
				Total:          total,
				Used:           used,
				Available:      available,
				AvailableHuman: humanize.IBytes(uint64(available)),
			}
		}
	}

	if s.containerDir != "" {
		ev, err := ReadMarker(s.containerDir)
		if err != nil {
			s.logger.Warn("Не удалось прочитать marker-файл",
				slog.String("error", err.Error()),
			)
		}
		st.LastChange = ev
	}

	return st, nil
}

func (s *LibraryService) snapshot(live int) CountSnapshot {
	return CountSnapshot{
		Live:      live,
		Ceiling:   s.ceiling,
		Remaining: capacity.Remaining(live, s.ceiling),
		CanAdmit:  capacity.CanAdmit(live, s.ceiling),
	}
}

func sortNewestFirst(recs []*model.MediaRecord) {
	sort.SliceStable(recs, func(i, j int) bool {
		return recs[i].CreatedAt.After(recs[j].CreatedAt)
	})
}
