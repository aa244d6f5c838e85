package model

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestNewMediaRecord(t *testing.T) {
	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.FixedZone("MSK", 3*3600))
	rec := NewMediaRecord(KindMovie, "main/x.mov", "thumbnails/x.jpg", created, 24*time.Hour)

	if _, err := uuid.Parse(rec.ID); err != nil {
		t.Errorf("ID не является UUID: %q", rec.ID)
	}
	if rec.CreatedAt.Location() != time.UTC {
		t.Errorf("CreatedAt должен быть в UTC")
	}
	if !rec.ExpiredAt.Equal(created.Add(24 * time.Hour)) {
		t.Errorf("ExpiredAt: хотели %v, получили %v", created.Add(24*time.Hour), rec.ExpiredAt)
	}
	if rec.Size() != 0 {
		t.Errorf("Size без FileSize: хотели 0, получили %d", rec.Size())
	}

	size := int64(1000)
	rec.FileSize = &size
	if rec.Size() != 1000 {
		t.Errorf("Size: хотели 1000, получили %d", rec.Size())
	}
}

func TestMediaKind(t *testing.T) {
	if KindPhoto.Extension() != ".jpg" || KindMovie.Extension() != ".mov" {
		t.Errorf("неожиданные расширения: %q %q", KindPhoto.Extension(), KindMovie.Extension())
	}
	if MediaKind("gif").Valid() {
		t.Error("gif не должен считаться допустимым типом")
	}
}

func TestGeoTag_DisplayName(t *testing.T) {
	var g *GeoTag
	if g.DisplayName() != "Unknown Location" {
		t.Errorf("nil GeoTag: получено %q", g.DisplayName())
	}
	g = &GeoTag{Latitude: -6.3, Longitude: 106.8, Name: "Green Office Park"}
	if g.DisplayName() != "Green Office Park" {
		t.Errorf("получено %q", g.DisplayName())
	}
}
