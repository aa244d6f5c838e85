// admission.go — допуск новых снимков в медиатеку.
//
// Проверка лимита и вставка записи выполняются под межпроцессной
// блокировкой <container>/.admission.lock, поэтому два процесса
// не могут одновременно занять последнее свободное место.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ADA-Batagor/batagor/internal/domain/capacity"
	"github.com/ADA-Batagor/batagor/internal/domain/expiry"
	"github.com/ADA-Batagor/batagor/internal/domain/model"
	"github.com/ADA-Batagor/batagor/internal/repository"
	"github.com/ADA-Batagor/batagor/internal/storage/filestore"
	"github.com/ADA-Batagor/batagor/internal/storage/lockfile"
)

// AdmissionLockName — имя lock-файла допуска в контейнере.
const AdmissionLockName = ".admission.lock"

var admissionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "bt_admissions_total",
	Help: "Попытки добавить медиа по результату",
}, []string{"result"})

// AdmitRequest — новый снимок или видео.
type AdmitRequest struct {
	Kind      model.MediaKind
	Main      io.Reader
	Thumbnail io.Reader
	Location  *model.GeoTag
	// CreatedAt — момент съёмки; нулевое значение означает «сейчас»
	CreatedAt time.Time
	// Lifetime — срок жизни; 0 означает значение из конфигурации
	Lifetime time.Duration
}

// AdmissionService — сервис допуска.
type AdmissionService struct {
	tx       *repository.TxRunner
	records  repository.MediaRepository
	store    filestore.Store
	notifier Notifier
	lockPath string
	ceiling  int
	lifetime time.Duration
	now      func() time.Time
	logger   *slog.Logger
}

// NewAdmissionService создаёт сервис допуска.
// lockDir — каталог общего контейнера, где лежит lock-файл.
func NewAdmissionService(
	tx *repository.TxRunner,
	records repository.MediaRepository,
	store filestore.Store,
	notifier Notifier,
	lockDir string,
	ceiling int,
	lifetime time.Duration,
	logger *slog.Logger,
) *AdmissionService {
	return &AdmissionService{
		tx:       tx,
		records:  records,
		store:    store,
		notifier: notifier,
		lockPath: filepath.Join(lockDir, AdmissionLockName),
		ceiling:  ceiling,
		lifetime: lifetime,
		now:      time.Now,
		logger:   logger.With(slog.String("component", "admission")),
	}
}

// Admit сохраняет артефакты и создаёт запись.
//
// Порядок:
//  1. Захват lock-файла допуска
//  2. Повторная проверка лимита — отказ ничего не оставляет на диске
//  3. Запись основного файла, затем миниатюры
//  4. Вставка записи; при ошибке записанные файлы удаляются
func (s *AdmissionService) Admit(ctx context.Context, req AdmitRequest) (*model.MediaRecord, error) {
	if err := validateAdmit(req); err != nil {
		admissionsTotal.WithLabelValues("invalid").Inc()
		return nil, err
	}

	lock, err := lockfile.Acquire(ctx, s.lockPath, 0)
	if err != nil {
		admissionsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("ошибка захвата блокировки допуска: %w", err)
	}
	defer func() {
		if err := lock.Release(); err != nil {
			s.logger.Warn("Ошибка освобождения блокировки допуска",
				slog.String("error", err.Error()),
			)
		}
	}()

	now := s.now().UTC()
	createdAt := req.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	lifetime := req.Lifetime
	if lifetime <= 0 {
		lifetime = s.lifetime
	}

	all, err := s.records.FetchAll(ctx)
	if err != nil {
		admissionsTotal.WithLabelValues("error").Inc()
		return nil, &PersistenceError{Op: "fetch", Err: err}
	}
	live := expiry.CountLive(all, now)
	if !capacity.CanAdmit(live, s.ceiling) {
		admissionsTotal.WithLabelValues("denied").Inc()
		s.logger.Info("Допуск отклонён: медиатека заполнена",
			slog.Int("live", live),
			slog.Int("ceiling", s.ceiling),
		)
		return nil, ErrCapacityExceeded
	}

	mainRes, err := s.store.Write(ctx, filestore.AreaMain, req.Kind.Extension(), req.Main)
	if err != nil {
		admissionsTotal.WithLabelValues("error").Inc()
		return nil, &StorageWriteError{Area: filestore.AreaMain, Err: err}
	}

	thumbRes, err := s.store.Write(ctx, filestore.AreaThumbnails, model.ThumbnailExtension, req.Thumbnail)
	if err != nil {
		admissionsTotal.WithLabelValues("error").Inc()
		s.cleanup(ctx, mainRes.Key)
		return nil, &StorageWriteError{Area: filestore.AreaThumbnails, Err: err}
	}

	rec := model.NewMediaRecord(req.Kind, mainRes.Key, thumbRes.Key, createdAt, lifetime)
	size := mainRes.Size
	rec.FileSize = &size
	rec.Location = req.Location

	err = s.tx.RunInTx(ctx, func(tx repository.DBTX) error {
		return repository.NewMediaRepository(tx).Insert(ctx, rec)
	})
	if err != nil {
		admissionsTotal.WithLabelValues("error").Inc()
		s.cleanup(ctx, mainRes.Key, thumbRes.Key)
		s.logger.Error("Ошибка сохранения записи",
			slog.String("id", rec.ID),
			slog.String("error", err.Error()),
		)
		return nil, &PersistenceError{Op: "insert", Err: err}
	}

	admissionsTotal.WithLabelValues("admitted").Inc()
	s.logger.Info("Медиа добавлено",
		slog.String("id", rec.ID),
		slog.String("kind", string(rec.Kind)),
		slog.Int64("size", size),
		slog.Time("expired_at", rec.ExpiredAt),
	)

	if s.notifier != nil {
		s.notifier.Notify(ctx, ChangeEvent{Reason: "admit", At: now, Added: 1})
	}
	return rec, nil
}

// cleanup удаляет артефакты неудачного допуска.
func (s *AdmissionService) cleanup(ctx context.Context, keys ...string) {
	for _, key := range keys {
		if err := s.store.Delete(ctx, key); err != nil && !errors.Is(err, filestore.ErrFileNotFound) {
			// Останется сиротой до ближайшей сверки
			s.logger.Warn("Не удалось удалить артефакт после ошибки",
				slog.String("key", key),
				slog.String("error", err.Error()),
			)
		}
	}
}

func validateAdmit(req AdmitRequest) error {
	switch {
	case !req.Kind.Valid():
		return fmt.Errorf("%w: неизвестный тип %q", ErrInvalidMedia, req.Kind)
	case req.Main == nil:
		return fmt.Errorf("%w: нет основного файла", ErrInvalidMedia)
	case req.Thumbnail == nil:
		return fmt.Errorf("%w: нет миниатюры", ErrInvalidMedia)
	case req.Lifetime < 0:
		return fmt.Errorf("%w: отрицательный срок жизни", ErrInvalidMedia)
	}
	if loc := req.Location; loc != nil {
		if loc.Latitude < -90 || loc.Latitude > 90 || loc.Longitude < -180 || loc.Longitude > 180 {
			return fmt.Errorf("%w: координаты вне диапазона", ErrInvalidMedia)
		}
	}
	return nil
}
