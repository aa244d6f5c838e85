package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ADA-Batagor/batagor/internal/domain/model"
)

// MediaRepository — операции с таблицей media_records.
type MediaRepository interface {
	// Insert добавляет новую запись.
	Insert(ctx context.Context, rec *model.MediaRecord) error
	// FetchAll возвращает все записи без фильтрации и сортировки.
	FetchAll(ctx context.Context) ([]*model.MediaRecord, error)
	// GetByID возвращает запись по UUID или ErrNotFound.
	GetByID(ctx context.Context, id string) (*model.MediaRecord, error)
	// Delete удаляет запись. removed=false, если записи уже нет.
	Delete(ctx context.Context, id string) (removed bool, err error)
}

// mediaRow — строка таблицы media_records.
// Время хранится в наносекундах Unix (UTC).
type mediaRow struct {
	ID            string          `db:"id"`
	Kind          string          `db:"kind"`
	MainPath      string          `db:"main_path"`
	ThumbnailPath string          `db:"thumbnail_path"`
	CreatedAt     int64           `db:"created_at"`
	ExpiredAt     int64           `db:"expired_at"`
	FileSize      sql.NullInt64   `db:"file_size"`
	Latitude      sql.NullFloat64 `db:"latitude"`
	Longitude     sql.NullFloat64 `db:"longitude"`
	Altitude      sql.NullFloat64 `db:"altitude"`
	LocationName  sql.NullString  `db:"location_name"`
}

const mediaColumns = `id, kind, main_path, thumbnail_path, created_at, expired_at,
	file_size, latitude, longitude, altitude, location_name`

func (row *mediaRow) toModel() *model.MediaRecord {
	rec := &model.MediaRecord{
		ID:            row.ID,
		Kind:          model.MediaKind(row.Kind),
		MainPath:      row.MainPath,
		ThumbnailPath: row.ThumbnailPath,
		CreatedAt:     time.Unix(0, row.CreatedAt).UTC(),
		ExpiredAt:     time.Unix(0, row.ExpiredAt).UTC(),
	}
	if row.FileSize.Valid {
		size := row.FileSize.Int64
		rec.FileSize = &size
	}
	if row.Latitude.Valid && row.Longitude.Valid {
		rec.Location = &model.GeoTag{
			Latitude:  row.Latitude.Float64,
			Longitude: row.Longitude.Float64,
			Name:      row.LocationName.String,
		}
		if row.Altitude.Valid {
			alt := row.Altitude.Float64
			rec.Location.Altitude = &alt
		}
	}
	return rec
}

func fromModel(rec *model.MediaRecord) mediaRow {
	row := mediaRow{
		ID:            rec.ID,
		Kind:          string(rec.Kind),
		MainPath:      rec.MainPath,
		ThumbnailPath: rec.ThumbnailPath,
		CreatedAt:     rec.CreatedAt.UnixNano(),
		ExpiredAt:     rec.ExpiredAt.UnixNano(),
	}
	if rec.FileSize != nil {
		row.FileSize = sql.NullInt64{Int64: *rec.FileSize, Valid: true}
	}
	if loc := rec.Location; loc != nil {
		row.Latitude = sql.NullFloat64{Float64: loc.Latitude, Valid: true}
		row.Longitude = sql.NullFloat64{Float64: loc.Longitude, Valid: true}
		if loc.Altitude != nil {
			row.Altitude = sql.NullFloat64{Float64: *loc.Altitude, Valid: true}
		}
		if loc.Name != "" {
			row.LocationName = sql.NullString{String: loc.Name, Valid: true}
		}
	}
	return row
}

// mediaRepo — реализация MediaRepository.
type mediaRepo struct {
	db DBTX
}

// NewMediaRepository создаёт репозиторий медиазаписей.
func NewMediaRepository(db DBTX) MediaRepository {
	return &mediaRepo{db: db}
}

func (r *mediaRepo) Insert(ctx context.Context, rec *model.MediaRecord) error {
	row := fromModel(rec)
	query := `
		INSERT INTO media_records (` + mediaColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		row.ID, row.Kind, row.MainPath, row.ThumbnailPath,
		row.CreatedAt, row.ExpiredAt, row.FileSize,
		row.Latitude, row.Longitude, row.Altitude, row.LocationName,
	)
	if err != nil {
		return fmt.Errorf("ошибка вставки записи %s: %w", rec.ID, err)
	}
	return nil
}

func (r *mediaRepo) FetchAll(ctx context.Context) ([]*model.MediaRecord, error) {
	var rows []mediaRow
	query := `SELECT ` + mediaColumns + ` FROM media_records`

	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("ошибка чтения записей: %w", err)
	}

	records := make([]*model.MediaRecord, 0, len(rows))
	for i := range rows {
		records = append(records, rows[i].toModel())
	}
	return records, nil
}

func (r *mediaRepo) GetByID(ctx context.Context, id string) (*model.MediaRecord, error) {
	var row mediaRow
	query := `SELECT ` + mediaColumns + ` FROM media_records WHERE id = ?`

	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения записи %s: %w", id, err)
	}
	return row.toModel(), nil
}

func (r *mediaRepo) Delete(ctx context.Context, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM media_records WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("ошибка удаления записи %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("ошибка получения числа удалённых строк: %w", err)
	}
	return n > 0, nil
}
