// reconcile.go — фоновая сверка артефактов с записями.
//
// Сверка сравнивает содержимое областей main/ и thumbnails/ с
// ключами, на которые ссылаются записи, и обнаруживает:
//   - orphaned_file: артефакт без записи (удаляется, если старше grace)
//   - stale_temp: незавершённая запись *.tmp (удаляется, если старше grace)
//   - missing_file: запись ссылается на отсутствующий артефакт
//   - size_mismatch: размер основного файла не совпадает с FileSize
//
// Grace защищает допуск, который пишет файлы раньше, чем вставляет запись.
package service

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ADA-Batagor/batagor/internal/repository"
	"github.com/ADA-Batagor/batagor/internal/storage/filestore"
)

// Prometheus метрики сверки
var (
	reconcileRunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bt_reconcile_runs_total",
		Help: "Общее количество запусков сверки",
	})

	reconcileIssuesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bt_reconcile_issues_total",
		Help: "Проблемы, обнаруженные сверкой, по типу",
	}, []string{"type"})

	reconcileDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "bt_reconcile_duration_seconds",
		Help:    "Длительность сверки в секундах",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
	})
)

// IssueType — тип проблемы сверки.
type IssueType string

const (
	IssueOrphanedFile IssueType = "orphaned_file"
	IssueStaleTemp    IssueType = "stale_temp"
	IssueMissingFile  IssueType = "missing_file"
	IssueSizeMismatch IssueType = "size_mismatch"
)

// ReconcileIssue — одна обнаруженная проблема.
type ReconcileIssue struct {
	Type        IssueType `json:"type"`
	Key         string    `json:"key"`
	RecordID    string    `json:"record_id,omitempty"`
	Description string    `json:"description"`
	// Repaired — артефакт удалён этой сверкой
	Repaired bool `json:"repaired"`
}

// ReconcileSummary — сводка по типам проблем.
type ReconcileSummary struct {
	OrphanedFiles  int `json:"orphaned_files"`
	StaleTemps     int `json:"stale_temps"`
	MissingFiles   int `json:"missing_files"`
	SizeMismatches int `json:"size_mismatches"`
	Repaired       int `json:"repaired"`
	Ok             int `json:"ok"`
}

// ReconcileReport — результат одной сверки.
type ReconcileReport struct {
	StartedAt     time.Time        `json:"started_at"`
	CompletedAt   time.Time        `json:"completed_at"`
	FilesChecked  int              `json:"files_checked"`
	RecordsLoaded int              `json:"records_loaded"`
	Issues        []ReconcileIssue `json:"issues"`
	Summary       ReconcileSummary `json:"summary"`
}

// ReconcileService — сервис сверки.
type ReconcileService struct {
	records  repository.MediaRepository
	store    filestore.Store
	interval time.Duration
	grace    time.Duration
	now      func() time.Time
	logger   *slog.Logger

	mu        sync.Mutex
	inProcess bool
	cancel    context.CancelFunc
}

// NewReconcileService создаёт сервис сверки.
func NewReconcileService(
	records repository.MediaRepository,
	store filestore.Store,
	interval, grace time.Duration,
	logger *slog.Logger,
) *ReconcileService {
	return &ReconcileService{
		records:  records,
		store:    store,
		interval: interval,
		grace:    grace,
		now:      time.Now,
		logger:   logger.With(slog.String("component", "reconcile")),
	}
}

// Start запускает периодическую сверку.
func (rs *ReconcileService) Start(ctx context.Context) {
	rsCtx, cancel := context.WithCancel(ctx)
	rs.cancel = cancel

	go rs.run(rsCtx)

	rs.logger.Info("Сверка запущена",
		slog.String("interval", rs.interval.String()),
		slog.String("grace", rs.grace.String()),
	)
}

// Stop останавливает периодическую сверку.
func (rs *ReconcileService) Stop() {
	if rs.cancel != nil {
		rs.cancel()
	}
	rs.logger.Info("Сверка остановлена")
}

// IsInProgress возвращает true, если сверка выполняется.
func (rs *ReconcileService) IsInProgress() bool {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.inProcess
}

func (rs *ReconcileService) run(ctx context.Context) {
	ticker := time.NewTicker(rs.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, _, err := rs.RunOnce(ctx); err != nil {
				rs.logger.Error("Ошибка сверки", slog.String("error", err.Error()))
			}
		}
	}
}

// RunOnce выполняет одну сверку.
// Если сверка уже идёт, возвращает nil, true, nil.
func (rs *ReconcileService) RunOnce(ctx context.Context) (*ReconcileReport, bool, error) {
	rs.mu.Lock()
	if rs.inProcess {
		rs.mu.Unlock()
		rs.logger.Warn("Сверка уже выполняется, пропуск")
		return nil, true, nil
	}
	rs.inProcess = true
	rs.mu.Unlock()

	defer func() {
		rs.mu.Lock()
		rs.inProcess = false
		rs.mu.Unlock()
	}()

	startedAt := rs.now().UTC()
	rs.logger.Info("Сверка начата")

	report, err := rs.reconcile(ctx, startedAt)
	if err != nil {
		return nil, false, err
	}

	report.StartedAt = startedAt
	report.CompletedAt = rs.now().UTC()

	for _, issue := range report.Issues {
		switch issue.Type {
		case IssueOrphanedFile:
			report.Summary.OrphanedFiles++
		case IssueStaleTemp:
			report.Summary.StaleTemps++
		case IssueMissingFile:
			report.Summary.MissingFiles++
		case IssueSizeMismatch:
			report.Summary.SizeMismatches++
		}
		if issue.Repaired {
			report.Summary.Repaired++
		}
		reconcileIssuesTotal.WithLabelValues(string(issue.Type)).Inc()
	}
	report.Summary.Ok = report.FilesChecked - report.Summary.OrphanedFiles -
		report.Summary.StaleTemps - report.Summary.SizeMismatches
	if report.Summary.Ok < 0 {
		report.Summary.Ok = 0
	}

	duration := report.CompletedAt.Sub(startedAt)
	reconcileRunsTotal.Inc()
	reconcileDurationSeconds.Observe(duration.Seconds())

	rs.logger.Info("Сверка завершена",
		slog.Int("files_checked", report.FilesChecked),
		slog.Int("issues", len(report.Issues)),
		slog.Int("repaired", report.Summary.Repaired),
		slog.Duration("duration", duration),
	)

	return report, false, nil
}

func (rs *ReconcileService) reconcile(ctx context.Context, now time.Time) (*ReconcileReport, error) {
	records, err := rs.records.FetchAll(ctx)
	if err != nil {
		return nil, &PersistenceError{Op: "fetch", Err: err}
	}

	// key -> id записи
	referenced := make(map[string]string, len(records)*2)
	for _, rec := range records {
		for _, key := range rec.Artifacts() {
			referenced[key] = rec.ID
		}
	}

	report := &ReconcileReport{RecordsLoaded: len(records), Issues: []ReconcileIssue{}}
	present := make(map[string]filestore.ObjectInfo)

	for _, area := range filestore.Areas {
		objects, err := rs.store.List(ctx, area)
		if err != nil {
			return nil, err
		}
		for _, obj := range objects {
			report.FilesChecked++
			present[obj.Key] = obj

			if strings.HasSuffix(obj.Key, filestore.TempSuffix) {
				if now.Sub(obj.ModTime) >= rs.grace {
					report.Issues = append(report.Issues, rs.remove(ctx, IssueStaleTemp, obj.Key,
						"Незавершённая запись артефакта"))
				}
				continue
			}

			if _, ok := referenced[obj.Key]; ok {
				continue
			}
			if now.Sub(obj.ModTime) < rs.grace {
				// Возможно, допуск ещё не вставил запись
				continue
			}
			report.Issues = append(report.Issues, rs.remove(ctx, IssueOrphanedFile, obj.Key,
				"Артефакт без записи"))
		}
	}

	for _, rec := range records {
		for _, key := range rec.Artifacts() {
			if _, ok := present[key]; !ok {
				report.Issues = append(report.Issues, ReconcileIssue{
					Type:        IssueMissingFile,
					Key:         key,
					RecordID:    rec.ID,
					Description: "Запись ссылается на отсутствующий артефакт",
				})
			}
		}
		if obj, ok := present[rec.MainPath]; ok && rec.FileSize != nil && obj.Size != *rec.FileSize {
			report.Issues = append(report.Issues, ReconcileIssue{
				Type:        IssueSizeMismatch,
				Key:         rec.MainPath,
				RecordID:    rec.ID,
				Description: "Размер основного файла не совпадает с записью",
			})
		}
	}

	return report, nil
}

// remove удаляет артефакт и формирует проблему с отметкой о ремонте.
func (rs *ReconcileService) remove(ctx context.Context, typ IssueType, key, description string) ReconcileIssue {
	issue := ReconcileIssue{Type: typ, Key: key, Description: description}
	if err := rs.store.Delete(ctx, key); err != nil {
		rs.logger.Warn("Сверка: не удалось удалить артефакт",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return issue
	}
	rs.logger.Debug("Сверка: артефакт удалён",
		slog.String("type", string(typ)),
		slog.String("key", key),
	)
	issue.Repaired = true
	return issue
}
