// Пакет config — загрузка и валидация конфигурации batagor
// из переменных окружения (и необязательного .env файла).
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Допустимые бэкенды файлового хранилища.
const (
	BackendLocal = "local"
	BackendS3    = "s3"
)

// Config содержит все параметры конфигурации batagor.
type Config struct {
	// Общий контейнер: база записей, артефакты, lock- и marker-файлы
	ContainerDir string
	// Имя файла SQLite внутри контейнера
	DBFile string
	// Время жизни медиа по умолчанию
	Lifetime time.Duration
	// Максимальное число живых записей (ceiling)
	MaxLive int
	// Период fire-once таймера очистки
	SweepInterval time.Duration
	// Интервал поиска осиротевших файлов
	ReconcileInterval time.Duration
	// Минимальный возраст файла без записи, после которого он удаляется
	OrphanGrace time.Duration
	// Адрес локального HTTP API
	ListenAddr string
	// Таймаут graceful shutdown HTTP-сервера
	ShutdownTimeout time.Duration
	// Количество элементов в виджете по умолчанию
	WidgetLimit int

	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string
	// Дополнительный файл логов (JSON), опционально
	LogFile string
	// DSN Sentry для ошибок, опционально
	SentryDSN string

	// Бэкенд артефактов: local или s3
	StorageBackend string
	S3Region       string
	S3Bucket       string
	S3AccessKey    string
	S3SecretKey    string
	S3Endpoint     string
	// Путь проверки доступности S3-совместимого endpoint
	S3HealthPath string

	// Размер и TTL кэша миниатюр виджета
	ThumbnailCacheSize int
	ThumbnailCacheTTL  time.Duration

	// Интервал проверки зависимостей topologymetrics
	DephealthCheckInterval time.Duration
	// Имя группы в метриках topologymetrics
	DephealthGroup string
	// Имя экземпляра (вершина графа в topologymetrics)
	InstanceID string
}

// DBPath возвращает полный путь к файлу SQLite.
func (c *Config) DBPath() string {
	return filepath.Join(c.ContainerDir, c.DBFile)
}

// Load загружает конфигурацию из переменных окружения, валидирует
// обязательные поля и возвращает Config или ошибку.
// Если в рабочей директории есть .env, он читается первым;
// уже заданные переменные окружения не перезаписываются.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf(".env: %w", err)
	}

	cfg := &Config{}
	var err error

	// BT_CONTAINER_DIR — обязательный
	cfg.ContainerDir, err = getEnvRequired("BT_CONTAINER_DIR")
	if err != nil {
		return nil, err
	}

	cfg.DBFile = getEnvDefault("BT_DB_FILE", "batagor.sqlite")
	if strings.ContainsRune(cfg.DBFile, os.PathSeparator) {
		return nil, fmt.Errorf("BT_DB_FILE: ожидается имя файла без каталога, получено %q", cfg.DBFile)
	}

	cfg.Lifetime, err = getEnvDuration("BT_LIFETIME", 24*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("BT_LIFETIME: %w", err)
	}
	if cfg.Lifetime <= 0 {
		return nil, fmt.Errorf("BT_LIFETIME: значение должно быть положительным")
	}

	cfg.MaxLive, err = getEnvInt("BT_MAX_LIVE", 24)
	if err != nil {
		return nil, fmt.Errorf("BT_MAX_LIVE: %w", err)
	}
	if cfg.MaxLive <= 0 {
		return nil, fmt.Errorf("BT_MAX_LIVE: значение должно быть положительным")
	}

	cfg.SweepInterval, err = getEnvPositiveDuration("BT_SWEEP_INTERVAL", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("BT_SWEEP_INTERVAL: %w", err)
	}

	cfg.ReconcileInterval, err = getEnvPositiveDuration("BT_RECONCILE_INTERVAL", 6*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("BT_RECONCILE_INTERVAL: %w", err)
	}

	cfg.OrphanGrace, err = getEnvPositiveDuration("BT_ORPHAN_GRACE", 10*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("BT_ORPHAN_GRACE: %w", err)
	}

	cfg.ListenAddr = getEnvDefault("BT_LISTEN_ADDR", "127.0.0.1:8040")

	cfg.ShutdownTimeout, err = getEnvPositiveDuration("BT_SHUTDOWN_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("BT_SHUTDOWN_TIMEOUT: %w", err)
	}

	cfg.WidgetLimit, err = getEnvInt("BT_WIDGET_LIMIT", 4)
	if err != nil {
		return nil, fmt.Errorf("BT_WIDGET_LIMIT: %w", err)
	}
	if cfg.WidgetLimit <= 0 {
		return nil, fmt.Errorf("BT_WIDGET_LIMIT: значение должно быть положительным")
	}

	cfg.LogLevel, err = parseLogLevel(getEnvDefault("BT_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("BT_LOG_LEVEL: %w", err)
	}

	cfg.LogFormat = getEnvDefault("BT_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("BT_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", cfg.LogFormat)
	}

	cfg.LogFile = getEnvDefault("BT_LOG_FILE", "")
	cfg.SentryDSN = getEnvDefault("BT_SENTRY_DSN", "")

	cfg.StorageBackend = getEnvDefault("BT_STORAGE_BACKEND", BackendLocal)
	switch cfg.StorageBackend {
	case BackendLocal:
	case BackendS3:
		cfg.S3Bucket, err = getEnvRequired("BT_S3_BUCKET")
		if err != nil {
			return nil, err
		}
		cfg.S3Region, err = getEnvRequired("BT_S3_REGION")
		if err != nil {
			return nil, err
		}
		cfg.S3AccessKey = getEnvDefault("BT_S3_ACCESS_KEY", "")
		cfg.S3SecretKey = getEnvDefault("BT_S3_SECRET_KEY", "")
		cfg.S3Endpoint = getEnvDefault("BT_S3_ENDPOINT", "")
		cfg.S3HealthPath = getEnvDefault("BT_S3_HEALTH_PATH", "/minio/health/live")
	default:
		return nil, fmt.Errorf("BT_STORAGE_BACKEND: недопустимое значение %q, допустимые: local, s3", cfg.StorageBackend)
	}

	cfg.ThumbnailCacheSize, err = getEnvInt("BT_THUMBNAIL_CACHE_SIZE", 64)
	if err != nil {
		return nil, fmt.Errorf("BT_THUMBNAIL_CACHE_SIZE: %w", err)
	}
	if cfg.ThumbnailCacheSize <= 0 {
		return nil, fmt.Errorf("BT_THUMBNAIL_CACHE_SIZE: значение должно быть положительным")
	}

	cfg.ThumbnailCacheTTL, err = getEnvPositiveDuration("BT_THUMBNAIL_CACHE_TTL", time.Minute)
	if err != nil {
		return nil, fmt.Errorf("BT_THUMBNAIL_CACHE_TTL: %w", err)
	}

	cfg.DephealthCheckInterval, err = getEnvPositiveDuration("BT_DEPHEALTH_CHECK_INTERVAL", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("BT_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}
	cfg.DephealthGroup = getEnvDefault("BT_DEPHEALTH_GROUP", "batagor")

	cfg.InstanceID = getEnvDefault("BT_INSTANCE_ID", "")
	if cfg.InstanceID == "" {
		host, _ := os.Hostname()
		if host == "" {
			host = "local"
		}
		cfg.InstanceID = "batagor-" + host
	}

	return cfg, nil
}

// --- Вспомогательные функции ---

// getEnvRequired возвращает значение переменной окружения или ошибку, если она не задана.
func getEnvRequired(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("%s: обязательная переменная окружения не задана", key)
	}
	return val, nil
}

// getEnvDefault возвращает значение переменной окружения или значение по умолчанию.
func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

// getEnvInt возвращает целочисленное значение переменной окружения или значение по умолчанию.
func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvPositiveDuration как getEnvDuration, но отвергает нулевые и
// отрицательные значения: тикеры и таймауты с ними не работают.
func getEnvPositiveDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	d, err := getEnvDuration(key, defaultVal)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("значение должно быть положительным, получено %s", d)
	}
	return d, nil
}

// getEnvDuration возвращает time.Duration из переменной окружения или значение по умолчанию.
func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1h, 24h)", val)
	}
	return d, nil
}

// parseLogLevel преобразует строку уровня логирования в slog.Level.
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("недопустимый уровень %q, допустимые: debug, info, warn, error", level)
	}
}
