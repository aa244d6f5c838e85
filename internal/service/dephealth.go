// dephealth.go — мониторинг зависимостей через topologymetrics SDK.
//
// При бэкенде s3 проверяется HTTP health endpoint S3-совместимого
// сервиса. Зависимость некритичная: при её недоступности допуск
// вернёт StorageWriteError, а очистка повторит цикл позже.
//
// Метрики публикуются на /metrics вместе с остальными:
//   - app_dependency_health
//   - app_dependency_latency_seconds
package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/BigKAA/topologymetrics/sdk-go/dephealth"
	_ "github.com/BigKAA/topologymetrics/sdk-go/dephealth/checks/httpcheck" // регистрация HTTP checker factory
	"github.com/prometheus/client_golang/prometheus"
)

// DephealthService — мониторинг внешних зависимостей.
type DephealthService struct {
	dh     *dephealth.DepHealth
	logger *slog.Logger
}

// NewDephealthService создаёт мониторинг S3 endpoint.
// registerer == nil — глобальный Prometheus registry.
func NewDephealthService(
	serviceID string,
	group string,
	s3Endpoint string,
	healthPath string,
	checkInterval time.Duration,
	logger *slog.Logger,
	registerer prometheus.Registerer,
) (*DephealthService, error) {
	depOpts := []dephealth.DependencyOption{
		dephealth.FromURL(s3Endpoint),
		dephealth.WithHTTPHealthPath(healthPath),
		dephealth.CheckInterval(checkInterval),
		dephealth.Critical(false),
	}

	opts := []dephealth.Option{
		dephealth.WithLogger(logger),
		dephealth.HTTP("s3-storage", depOpts...),
	}
	if registerer != nil {
		opts = append(opts, dephealth.WithRegisterer(registerer))
	}

	dh, err := dephealth.New(serviceID, group, opts...)
	if err != nil {
		return nil, err
	}

	return &DephealthService{
		dh:     dh,
		logger: logger.With(slog.String("component", "dephealth")),
	}, nil
}

// Start запускает периодическую проверку.
func (ds *DephealthService) Start(ctx context.Context) error {
	ds.logger.Info("Мониторинг зависимостей запущен (S3)")
	return ds.dh.Start(ctx)
}

// Stop останавливает проверку.
func (ds *DephealthService) Stop() {
	ds.dh.Stop()
	ds.logger.Info("Мониторинг зависимостей остановлен")
}

// Health возвращает состояние зависимостей: имя → ok.
func (ds *DephealthService) Health() map[string]bool {
	return ds.dh.Health()
}
