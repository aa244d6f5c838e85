package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// KeyLifetimeFreedBytes — суммарный объём, освобождённый автоматической очисткой.
const KeyLifetimeFreedBytes = "lifetime_freed_bytes"

// SettingsRepository — целочисленные счётчики в таблице settings.
type SettingsRepository interface {
	// GetInt возвращает значение ключа или 0, если ключа нет.
	GetInt(ctx context.Context, key string) (int64, error)
	// AddInt атомарно прибавляет delta к значению ключа.
	AddInt(ctx context.Context, key string, delta int64) error
}

type settingsRepo struct {
	db DBTX
}

// NewSettingsRepository создаёт репозиторий счётчиков.
func NewSettingsRepository(db DBTX) SettingsRepository {
	return &settingsRepo{db: db}
}

func (r *settingsRepo) GetInt(ctx context.Context, key string) (int64, error) {
	var value int64
	err := r.db.GetContext(ctx, &value, `SELECT value FROM settings WHERE key = ?`, key)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("ошибка чтения %s: %w", key, err)
	}
	return value, nil
}

func (r *settingsRepo) AddInt(ctx context.Context, key string, delta int64) error {
	query := `
		INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT (key) DO UPDATE SET value = value + excluded.value`

	if _, err := r.db.ExecContext(ctx, query, key, delta); err != nil {
		return fmt.Errorf("ошибка обновления %s: %w", key, err)
	}
	return nil
}
