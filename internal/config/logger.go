package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/getsentry/sentry-go"
	slogmulti "github.com/samber/slog-multi"
	slogsentry "github.com/samber/slog-sentry/v2"
)

// SetupLogger настраивает глобальный slog-логгер на основе конфигурации.
// out — основной поток (stdout для демона, stderr для разовых команд,
// чтобы не смешивать логи с JSON-выводом).
// Дополнительные приёмники (BT_LOG_FILE, BT_SENTRY_DSN) подключаются
// через fanout. Возвращённую функцию нужно вызвать при завершении процесса.
func SetupLogger(cfg *Config, out io.Writer) (*slog.Logger, func(), error) {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	handlers := []slog.Handler{newHandler(cfg.LogFormat, out, opts)}
	var closers []func()

	if cfg.LogFile != "" {
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
		if err != nil {
			return nil, nil, fmt.Errorf("BT_LOG_FILE: не удалось открыть %s: %w", cfg.LogFile, err)
		}
		handlers = append(handlers, slog.NewJSONHandler(f, opts))
		closers = append(closers, func() { _ = f.Close() })
	}

	if cfg.SentryDSN != "" {
		err := sentry.Init(sentry.ClientOptions{
			Dsn:     cfg.SentryDSN,
			Release: "batagor@" + Version,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("BT_SENTRY_DSN: %w", err)
		}
		handlers = append(handlers, slogsentry.Option{
			Level: slog.LevelError,
		}.NewSentryHandler())
		closers = append(closers, func() { sentry.Flush(2 * time.Second) })
	}

	var handler slog.Handler
	if len(handlers) > 1 {
		handler = slogmulti.Fanout(handlers...)
	} else {
		handler = handlers[0]
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)

	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	return logger, cleanup, nil
}

func newHandler(format string, out io.Writer, opts *slog.HandlerOptions) slog.Handler {
	if format == "text" {
		return slog.NewTextHandler(out, opts)
	}
	return slog.NewJSONHandler(out, opts)
}
