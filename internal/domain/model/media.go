// Пакет model — доменные модели batagor.
// MediaRecord — метаданные одного снимка или видео с ограниченным сроком жизни.
package model

import (
	"time"

	"github.com/google/uuid"
)

// MediaKind — тип медиа, определяет расширение основного файла.
type MediaKind string

const (
	// KindPhoto — фотография
	KindPhoto MediaKind = "photo"
	// KindMovie — видеоролик
	KindMovie MediaKind = "movie"
)

// ThumbnailExtension — расширение файлов миниатюр.
const ThumbnailExtension = ".jpg"

// Valid проверяет, что тип медиа известен.
func (k MediaKind) Valid() bool {
	return k == KindPhoto || k == KindMovie
}

// Extension возвращает расширение основного файла для данного типа.
func (k MediaKind) Extension() string {
	if k == KindMovie {
		return ".mov"
	}
	return ".jpg"
}

// GeoTag — место съёмки. Присваивается при создании записи и не меняется.
type GeoTag struct {
	Latitude  float64  `json:"latitude"`
	Longitude float64  `json:"longitude"`
	Altitude  *float64 `json:"altitude,omitempty"`
	Name      string   `json:"name,omitempty"`
}

// DisplayName возвращает подпись места для интерфейса.
func (g *GeoTag) DisplayName() string {
	if g == nil || g.Name == "" {
		return "Unknown Location"
	}
	return g.Name
}

// MediaRecord — запись о медиа: пара артефактов (основной файл и миниатюра)
// и срок жизни. ExpiredAt вычисляется один раз при создании и не пересчитывается.
type MediaRecord struct {
	// ID — UUID v4, неизменяемый
	ID string `json:"id"`
	// Kind — photo или movie
	Kind MediaKind `json:"kind"`
	// MainPath — ключ основного файла в хранилище артефактов
	MainPath string `json:"main_path"`
	// ThumbnailPath — ключ миниатюры в хранилище артефактов
	ThumbnailPath string `json:"thumbnail_path"`
	// CreatedAt — момент съёмки (UTC)
	CreatedAt time.Time `json:"created_at"`
	// ExpiredAt — CreatedAt + lifetime
	ExpiredAt time.Time `json:"expired_at"`
	// FileSize — размер основного файла в байтах, если известен
	FileSize *int64 `json:"file_size,omitempty"`
	// Location — место съёмки, если известно
	Location *GeoTag `json:"location,omitempty"`
}

// NewMediaRecord создаёт запись с новым UUID и вычисленным сроком истечения.
func NewMediaRecord(kind MediaKind, mainPath, thumbnailPath string, createdAt time.Time, lifetime time.Duration) *MediaRecord {
	createdAt = createdAt.UTC()
	return &MediaRecord{
		ID:            uuid.New().String(),
		Kind:          kind,
		MainPath:      mainPath,
		ThumbnailPath: thumbnailPath,
		CreatedAt:     createdAt,
		ExpiredAt:     createdAt.Add(lifetime),
	}
}

// Size возвращает размер основного файла или 0, если он неизвестен.
func (m *MediaRecord) Size() int64 {
	if m.FileSize == nil {
		return 0
	}
	return *m.FileSize
}

// Artifacts возвращает ключи обоих артефактов записи.
func (m *MediaRecord) Artifacts() []string {
	return []string{m.MainPath, m.ThumbnailPath}
}
