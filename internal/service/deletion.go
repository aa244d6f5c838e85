package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ADA-Batagor/batagor/internal/domain/model"
	"github.com/ADA-Batagor/batagor/internal/repository"
	"github.com/ADA-Batagor/batagor/internal/storage/filestore"
)

var manualDeletedTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "bt_manual_deleted_total",
	Help: "Записи, удалённые пользователем",
})

// DeletionService — ручное удаление по запросу пользователя.
// Тот же порядок, что у очистки (файлы, затем записи), но счётчик
// освобождённых байт не меняется.
type DeletionService struct {
	tx       *repository.TxRunner
	store    filestore.Store
	notifier Notifier
	thumbs   *ThumbnailCache
	logger   *slog.Logger
}

// NewDeletionService создаёт сервис ручного удаления.
// thumbs может быть nil.
func NewDeletionService(
	tx *repository.TxRunner,
	store filestore.Store,
	thumbs *ThumbnailCache,
	notifier Notifier,
	logger *slog.Logger,
) *DeletionService {
	return &DeletionService{
		tx:       tx,
		store:    store,
		thumbs:   thumbs,
		notifier: notifier,
		logger:   logger.With(slog.String("component", "deletion")),
	}
}

// DeleteOne удаляет одну запись вместе с артефактами.
func (s *DeletionService) DeleteOne(ctx context.Context, rec *model.MediaRecord) error {
	_, err := s.DeleteMany(ctx, []*model.MediaRecord{rec})
	return err
}

// DeleteMany удаляет записи одним коммитом и возвращает число
// действительно удалённых строк. Запись, чьи артефакты удалить не
// удалось, пропускается и остаётся живой; в этом случае вместе с
// числом удалённых возвращается *DeleteArtifactsError.
func (s *DeletionService) DeleteMany(ctx context.Context, recs []*model.MediaRecord) (int, error) {
	if len(recs) == 0 {
		return 0, nil
	}

	var failed *DeleteArtifactsError
	marked := make([]*model.MediaRecord, 0, len(recs))
	for _, rec := range recs {
		if err := deleteArtifacts(ctx, s.store, s.logger, rec); err != nil {
			s.logger.Error("Ошибка удаления артефактов, запись оставлена",
				slog.String("id", rec.ID),
				slog.String("error", err.Error()),
			)
			if failed == nil {
				failed = &DeleteArtifactsError{Err: err}
			}
			failed.Failed = append(failed.Failed, rec.ID)
			continue
		}
		s.thumbs.Forget(rec.ThumbnailPath)
		marked = append(marked, rec)
	}

	removed := 0
	err := s.tx.RunInTx(ctx, func(tx repository.DBTX) error {
		repo := repository.NewMediaRepository(tx)
		removed = 0
		for _, rec := range marked {
			ok, err := repo.Delete(ctx, rec.ID)
			if err != nil {
				return err
			}
			if ok {
				removed++
			}
		}
		return nil
	})
	if err != nil {
		s.logger.Error("Ошибка удаления записей",
			slog.Int("count", len(marked)),
			slog.String("error", err.Error()),
		)
		return 0, &PersistenceError{Op: "commit", Err: err}
	}

	manualDeletedTotal.Add(float64(removed))
	s.logger.Info("Записи удалены пользователем",
		slog.Int("requested", len(recs)),
		slog.Int("removed", removed),
		slog.Int("skipped", len(recs)-len(marked)),
	)

	if removed > 0 && s.notifier != nil {
		s.notifier.Notify(ctx, ChangeEvent{Reason: "delete", At: time.Now().UTC(), Removed: removed})
	}
	if failed != nil {
		return removed, failed
	}
	return removed, nil
}
