package service

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Sweeper — то, что умеет выполнить один цикл очистки.
type Sweeper interface {
	Sweep(ctx context.Context, now time.Time) (*SweepResult, error)
}

// Scheduler запускает очистку по одноразовому таймеру, который
// перевзводится после каждого запуска, и по внешним «пинкам»
// (переход приложения в фон, запрос платформы).
// Все запуски выполняются одной горутиной.
type Scheduler struct {
	sweeper  Sweeper
	interval time.Duration
	now      func() time.Time
	logger   *slog.Logger

	kick   chan string
	cancel context.CancelFunc
	done   chan struct{}
	mu     sync.Mutex
}

// NewScheduler создаёт планировщик очистки.
func NewScheduler(sweeper Sweeper, interval time.Duration, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		sweeper:  sweeper,
		interval: interval,
		now:      time.Now,
		logger:   logger.With(slog.String("component", "scheduler")),
		kick:     make(chan string, 1),
	}
}

// Start запускает фоновую горутину. Первый запуск очистки — сразу.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	go s.run(runCtx)

	s.logger.Info("Планировщик очистки запущен",
		slog.String("interval", s.interval.String()),
	)
}

// Stop останавливает планировщик и дожидается завершения текущего запуска.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel = nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	s.logger.Info("Планировщик очистки остановлен")
}

// Kick запрашивает внеочередной запуск. Не блокируется: если запрос
// уже ожидает обработки, новый поглощается им.
func (s *Scheduler) Kick(reason string) {
	select {
	case s.kick <- reason:
	default:
	}
}

func (s *Scheduler) run(ctx context.Context) {
	defer close(s.done)

	s.invoke(ctx, "startup")

	timer := time.NewTimer(s.interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			s.invoke(ctx, "timer")
		case reason := <-s.kick:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			s.invoke(ctx, reason)
		}
		// Таймер одноразовый: следующий запуск через interval после текущего
		timer.Reset(s.interval)
	}
}

func (s *Scheduler) invoke(ctx context.Context, reason string) {
	res, err := s.sweeper.Sweep(ctx, s.now())
	if err != nil {
		// Ошибка уже залогирована очисткой, следующий запуск повторит цикл
		s.logger.Warn("Запуск очистки завершился ошибкой",
			slog.String("reason", reason),
			slog.String("error", err.Error()),
		)
		return
	}
	s.logger.Debug("Запуск очистки",
		slog.String("reason", reason),
		slog.Int("deleted", res.Deleted),
	)
}
