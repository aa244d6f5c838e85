package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"image/jpeg"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ADA-Batagor/batagor/internal/database"
	"github.com/ADA-Batagor/batagor/internal/domain/model"
	"github.com/ADA-Batagor/batagor/internal/service"
)

func TestRootCmd_Subcommands(t *testing.T) {
	root := newRootCmd()
	for _, name := range []string{"serve", "sweep", "widget", "stats", "reconcile", "seed"} {
		cmd, _, err := root.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Errorf("команда %q не зарегистрирована: %v", name, err)
		}
	}
}

func TestSolidJPEG_Decodes(t *testing.T) {
	data, err := solidJPEG(32, 24, defaultSamples[0].fill)
	if err != nil {
		t.Fatalf("solidJPEG: %v", err)
	}
	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("результат не декодируется как JPEG: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 32 || b.Dy() != 24 {
		t.Errorf("размер %v, ожидался 32x24", b)
	}
}

func TestDefaultSamples_Lifetimes(t *testing.T) {
	want := []time.Duration{10 * time.Second, 30 * time.Second, 60 * time.Second}
	if len(defaultSamples) != len(want) {
		t.Fatalf("ожидалось %d снимков, получено %d", len(want), len(defaultSamples))
	}
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	for i, s := range defaultSamples {
		req, err := s.request(now)
		if err != nil {
			t.Fatalf("request: %v", err)
		}
		if req.Lifetime != want[i] || req.Kind != model.KindPhoto || !req.CreatedAt.Equal(now) {
			t.Errorf("снимок %d: %+v", i, req)
		}
	}
}

func TestSeedAndSweepCommands(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("BT_CONTAINER_DIR", dir)
	t.Setenv("BT_STORAGE_BACKEND", "local")
	t.Setenv("BT_LOG_LEVEL", "error")

	run := func(args ...string) []byte {
		t.Helper()
		root := newRootCmd()
		var out bytes.Buffer
		root.SetOut(&out)
		root.SetArgs(args)
		if err := root.Execute(); err != nil {
			t.Fatalf("%v: %v", args, err)
		}
		return out.Bytes()
	}

	var added []model.MediaRecord
	if err := json.Unmarshal(run("seed"), &added); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if len(added) != 3 {
		t.Fatalf("seed добавил %d снимков", len(added))
	}

	// Повторный seed не добавляет снимки в непустую медиатеку
	if err := json.Unmarshal(run("seed"), &added); err != nil || len(added) != 0 {
		t.Errorf("повторный seed: %d, %v", len(added), err)
	}

	var sr service.SweepResult
	if err := json.Unmarshal(run("sweep"), &sr); err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if sr.Deleted != 0 {
		t.Errorf("сразу после seed истёкших записей нет: %+v", sr)
	}

	var tl service.WidgetTimeline
	if err := json.Unmarshal(run("widget", "--limit", "2", "--omit-thumbnails"), &tl); err != nil {
		t.Fatalf("widget: %v", err)
	}
	if len(tl.Entries) != 2 || tl.Count.Live != 3 || tl.Entries[0].Thumbnail != nil {
		t.Errorf("widget: %+v", tl)
	}
}

func TestReadOnlyCommands_DoNotCreateDatabase(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("BT_CONTAINER_DIR", dir)
	t.Setenv("BT_STORAGE_BACKEND", "local")
	t.Setenv("BT_LOG_LEVEL", "error")

	for _, name := range []string{"widget", "stats"} {
		root := newRootCmd()
		root.SetOut(&bytes.Buffer{})
		root.SetArgs([]string{name})
		if err := root.Execute(); !errors.Is(err, database.ErrNotInitialized) {
			t.Errorf("%s на пустом контейнере: ожидалась ErrNotInitialized, получено %v", name, err)
		}
	}

	if _, err := os.Stat(filepath.Join(dir, "batagor.sqlite")); !os.IsNotExist(err) {
		t.Errorf("команды чтения не должны создавать базу: %v", err)
	}
}
