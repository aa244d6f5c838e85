// sweeper.go — автоматическая очистка истёкших записей.
//
// Один цикл очистки:
//  1. Читает все записи (без фильтрации в запросе)
//  2. Делит их на истёкшие и живые по текущему моменту
//  3. Удаляет артефакты истёкших записей (отсутствие файла не ошибка)
//  4. Одной транзакцией удаляет записи и увеличивает счётчик
//     освобождённых байт на объём, удалённый именно этой транзакцией
//  5. Уведомляет наблюдателей
//
// Несколько процессов могут запускать очистку одновременно:
// удаление файлов идемпотентно, а байты учитывает только тот,
// чей DELETE действительно удалил строку.
package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ADA-Batagor/batagor/internal/domain/expiry"
	"github.com/ADA-Batagor/batagor/internal/domain/model"
	"github.com/ADA-Batagor/batagor/internal/repository"
	"github.com/ADA-Batagor/batagor/internal/storage/filestore"
)

// Prometheus метрики очистки
var (
	sweepRunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bt_sweep_runs_total",
		Help: "Общее количество запусков очистки",
	})

	sweepRecordsDeletedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bt_sweep_records_deleted_total",
		Help: "Общее количество истёкших записей, удалённых очисткой",
	})

	sweepRecordsPurgedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bt_sweep_records_purged_total",
		Help: "Общее количество живых записей без артефактов, удалённых очисткой",
	})

	sweepBytesFreedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bt_sweep_bytes_freed_total",
		Help: "Общий объём освобождённых байт",
	})

	sweepErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bt_sweep_errors_total",
		Help: "Ошибки очистки по типу",
	}, []string{"type"})

	sweepDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "bt_sweep_duration_seconds",
		Help:    "Длительность очистки в секундах",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	})
)

// SweepResult — результат одного цикла очистки.
type SweepResult struct {
	// Deleted — истёкшие записи, удалённые этим циклом
	Deleted int `json:"deleted"`
	// BytesFreed — суммарный FileSize удалённых истёкших записей
	BytesFreed int64 `json:"bytes_freed"`
	// Purged — живые записи с отсутствующими артефактами
	Purged int `json:"purged"`
	// Errors — записи, пропущенные из-за ошибок удаления файлов
	Errors int `json:"errors"`
	// Duration — длительность цикла
	Duration time.Duration `json:"duration"`
}

// SweeperService — сервис автоматической очистки.
type SweeperService struct {
	tx       *repository.TxRunner
	records  repository.MediaRepository
	store    filestore.Store
	thumbs   *ThumbnailCache
	notifier Notifier
	logger   *slog.Logger

	mu sync.Mutex // очистки внутри процесса выполняются последовательно
}

// NewSweeperService создаёт сервис очистки.
// records используется для чтения вне транзакции, thumbs может быть nil.
func NewSweeperService(
	tx *repository.TxRunner,
	records repository.MediaRepository,
	store filestore.Store,
	thumbs *ThumbnailCache,
	notifier Notifier,
	logger *slog.Logger,
) *SweeperService {
	return &SweeperService{
		tx:       tx,
		records:  records,
		store:    store,
		thumbs:   thumbs,
		notifier: notifier,
		logger:   logger.With(slog.String("component", "sweeper")),
	}
}

// Sweep выполняет один цикл очистки на момент now.
// При ошибке чтения или коммита возвращает нулевой результат и
// *PersistenceError: цикл ничего не изменил в записях и будет
// повторён при следующем запуске.
func (s *SweeperService) Sweep(ctx context.Context, now time.Time) (*SweepResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	sweepRunsTotal.Inc()
	defer func() { sweepDurationSeconds.Observe(time.Since(start).Seconds()) }()

	all, err := s.records.FetchAll(ctx)
	if err != nil {
		sweepErrorsTotal.WithLabelValues("fetch").Inc()
		s.logger.Error("Очистка: ошибка чтения записей",
			slog.String("error", err.Error()),
		)
		return &SweepResult{}, &PersistenceError{Op: "fetch", Err: err}
	}

	expired, live := expiry.Partition(all, now)
	broken := s.findBroken(ctx, live)

	if len(expired) == 0 && len(broken) == 0 {
		s.logger.Debug("Очистка: нечего удалять", slog.Int("live", len(live)))
		return &SweepResult{Duration: time.Since(start)}, nil
	}

	result := &SweepResult{}
	marked := make([]*model.MediaRecord, 0, len(expired))
	for _, rec := range expired {
		if err := s.deleteArtifacts(ctx, rec); err != nil {
			sweepErrorsTotal.WithLabelValues("file").Inc()
			s.logger.Error("Очистка: ошибка удаления артефакта, запись пропущена",
				slog.String("id", rec.ID),
				slog.String("error", err.Error()),
			)
			result.Errors++
			continue
		}
		s.thumbs.Forget(rec.ThumbnailPath)
		marked = append(marked, rec)
	}

	for _, rec := range broken {
		s.thumbs.Forget(rec.ThumbnailPath)
		// Артефакты могли остаться частично
		if err := s.deleteArtifacts(ctx, rec); err != nil {
			s.logger.Warn("Очистка: не удалось удалить остаток артефактов",
				slog.String("id", rec.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	var deleted, purged int
	var freed int64
	err = s.tx.RunInTx(ctx, func(tx repository.DBTX) error {
		repo := repository.NewMediaRepository(tx)
		deleted, purged, freed = 0, 0, 0

		for _, rec := range marked {
			removed, err := repo.Delete(ctx, rec.ID)
			if err != nil {
				return err
			}
			if removed {
				deleted++
				freed += rec.Size()
			}
		}
		for _, rec := range broken {
			removed, err := repo.Delete(ctx, rec.ID)
			if err != nil {
				return err
			}
			if removed {
				purged++
			}
		}

		if freed > 0 {
			return repository.NewSettingsRepository(tx).AddInt(ctx, repository.KeyLifetimeFreedBytes, freed)
		}
		return nil
	})
	if err != nil {
		sweepErrorsTotal.WithLabelValues("commit").Inc()
		s.logger.Error("Очистка: ошибка коммита, записи не изменены",
			slog.String("error", err.Error()),
		)
		return &SweepResult{Errors: result.Errors, Duration: time.Since(start)}, &PersistenceError{Op: "commit", Err: err}
	}

	result.Deleted = deleted
	result.Purged = purged
	result.BytesFreed = freed
	result.Duration = time.Since(start)

	sweepRecordsDeletedTotal.Add(float64(deleted))
	sweepRecordsPurgedTotal.Add(float64(purged))
	sweepBytesFreedTotal.Add(float64(freed))

	s.logger.Info("Очистка завершена",
		slog.Int("deleted", result.Deleted),
		slog.Int("purged", result.Purged),
		slog.Int("errors", result.Errors),
		slog.String("freed", humanize.IBytes(uint64(freed))),
		slog.Duration("duration", result.Duration),
	)

	if deleted+purged > 0 && s.notifier != nil {
		s.notifier.Notify(ctx, ChangeEvent{
			Reason:  "sweep",
			At:      now.UTC(),
			Removed: deleted + purged,
		})
	}

	return result, nil
}

// findBroken возвращает живые записи, у которых нет хотя бы одного артефакта.
// Ошибка проверки не делает запись «сломанной».
func (s *SweeperService) findBroken(ctx context.Context, live []*model.MediaRecord) []*model.MediaRecord {
	var broken []*model.MediaRecord
	for _, rec := range live {
		for _, key := range rec.Artifacts() {
			ok, err := s.store.Exists(ctx, key)
			if err != nil {
				s.logger.Warn("Очистка: ошибка проверки артефакта",
					slog.String("id", rec.ID),
					slog.String("key", key),
					slog.String("error", err.Error()),
				)
				continue
			}
			if !ok {
				s.logger.Warn("Очистка: у живой записи нет артефакта",
					slog.String("id", rec.ID),
					slog.String("key", key),
				)
				broken = append(broken, rec)
				break
			}
		}
	}
	return broken
}

// deleteArtifacts удаляет основной файл, затем миниатюру.
func (s *SweeperService) deleteArtifacts(ctx context.Context, rec *model.MediaRecord) error {
	return deleteArtifacts(ctx, s.store, s.logger, rec)
}

// deleteArtifacts — общий для очистки и ручного удаления шаг.
// Отсутствующий файл логируется на уровне debug и не считается ошибкой.
func deleteArtifacts(ctx context.Context, store filestore.Store, logger *slog.Logger, rec *model.MediaRecord) error {
	for _, key := range rec.Artifacts() {
		if key == "" {
			continue
		}
		err := store.Delete(ctx, key)
		switch {
		case err == nil:
		case errors.Is(err, filestore.ErrFileNotFound):
			logger.Debug("Артефакт уже отсутствует",
				slog.String("id", rec.ID),
				slog.String("key", key),
			)
		default:
			return err
		}
	}
	return nil
}
