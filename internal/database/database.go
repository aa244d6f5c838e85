// Пакет database — подключение к SQLite в общем контейнере,
// применение миграций (golang-migrate) и проверка готовности.
//
// Один файл базы открывают несколько независимых процессов (демон,
// разовая очистка, виджет), поэтому используется WAL, busy_timeout
// и немедленный захват блокировки записи при BEGIN.
package database

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite" // драйвер миграций на modernc.org/sqlite
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite" // драйвер database/sql "sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// driverName — имя драйвера modernc.org/sqlite в database/sql.
const driverName = "sqlite"

// DSN формирует строку подключения с pragma для конкурентного доступа.
func DSN(path string) string {
	return path +
		"?_pragma=busy_timeout(5000)" +
		"&_pragma=journal_mode(WAL)" +
		"&_pragma=synchronous(NORMAL)" +
		"&_txlock=immediate"
}

// Open открывает базу записей. Создаёт каталог, если его нет,
// и выполняет ping для проверки доступности.
func Open(ctx context.Context, path string, logger *slog.Logger) (*sqlx.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("не удалось создать каталог базы %s: %w", filepath.Dir(path), err)
	}

	db, err := sqlx.ConnectContext(ctx, driverName, DSN(path))
	if err != nil {
		return nil, fmt.Errorf("ошибка подключения к SQLite %s: %w", path, err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	logger.Debug("Подключение к SQLite установлено", slog.String("path", path))
	return db, nil
}

// ErrNotInitialized — файла базы нет: ни один пишущий процесс
// ещё не применял миграции.
var ErrNotInitialized = errors.New("база записей не инициализирована")

// ReadOnlyDSN — подключение без права записи. journal_mode не задаётся:
// его устанавливают пишущие процессы.
func ReadOnlyDSN(path string) string {
	return path +
		"?_pragma=busy_timeout(5000)" +
		"&_pragma=query_only(1)"
}

// OpenReadOnly открывает существующую базу только для чтения
// (процессы виджета и статистики). Миграции не применяются.
func OpenReadOnly(ctx context.Context, path string, logger *slog.Logger) (*sqlx.DB, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotInitialized, path)
		}
		return nil, fmt.Errorf("ошибка доступа к базе %s: %w", path, err)
	}

	db, err := sqlx.ConnectContext(ctx, driverName, ReadOnlyDSN(path))
	if err != nil {
		return nil, fmt.Errorf("ошибка подключения к SQLite %s: %w", path, err)
	}
	db.SetMaxOpenConns(2)

	logger.Debug("Подключение к SQLite только для чтения", slog.String("path", path))
	return db, nil
}

// Migrate применяет SQL-миграции из embedded FS к базе данных.
func Migrate(path string, logger *slog.Logger) error {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("ошибка создания источника миграций: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, "sqlite://"+path+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return fmt.Errorf("ошибка инициализации миграций: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("ошибка применения миграций: %w", err)
	}

	version, dirty, _ := m.Version()
	logger.Debug("Миграции применены",
		slog.Uint64("version", uint64(version)),
		slog.Bool("dirty", dirty),
	)

	return nil
}

// ReadinessChecker — проверка готовности SQLite для health endpoint.
type ReadinessChecker struct {
	db *sqlx.DB
}

// NewReadinessChecker создаёт проверку готовности базы.
func NewReadinessChecker(db *sqlx.DB) *ReadinessChecker {
	return &ReadinessChecker{db: db}
}

// CheckReady проверяет подключение через ping.
// Возвращает статус ("ok", "fail") и сообщение.
func (c *ReadinessChecker) CheckReady() (status string, message string) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if err := c.db.PingContext(ctx); err != nil {
		return "fail", fmt.Sprintf("SQLite недоступна: %v", err)
	}
	return "ok", "подключение активно"
}
