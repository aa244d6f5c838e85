package main

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ADA-Batagor/batagor/internal/domain/model"
	"github.com/ADA-Batagor/batagor/internal/service"
)

// sampleMedia — демонстрационный снимок для пустой медиатеки.
type sampleMedia struct {
	lifetime time.Duration
	fill     color.RGBA
	location *model.GeoTag
}

var defaultSamples = []sampleMedia{
	{10 * time.Second, color.RGBA{R: 0xd9, G: 0x53, B: 0x4f, A: 0xff}, &model.GeoTag{Latitude: -6.2, Longitude: 106.8167, Name: "Jakarta"}},
	{30 * time.Second, color.RGBA{R: 0x5c, G: 0xb8, B: 0x5c, A: 0xff}, nil},
	{60 * time.Second, color.RGBA{R: 0x42, G: 0x8b, B: 0xca, A: 0xff}, &model.GeoTag{Latitude: -8.65, Longitude: 115.2167}},
}

func newSeedCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Добавить демонстрационные снимки с коротким сроком жизни",
		Long: `Добавляет три снимка со сроком жизни 10s, 30s и 60s.

По умолчанию выполняется только для пустой медиатеки.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context(), os.Stderr, modeReadWrite)
			if err != nil {
				return err
			}
			defer a.Close()

			now := time.Now()
			live, err := a.library.List(cmd.Context(), now)
			if err != nil {
				return err
			}
			if len(live) > 0 && !force {
				a.logger.Info("Медиатека не пуста, демонстрационные снимки не добавлены",
					slog.Int("live", len(live)),
				)
				return printJSON(cmd.OutOrStdout(), []*model.MediaRecord{})
			}

			added := make([]*model.MediaRecord, 0, len(defaultSamples))
			for _, s := range defaultSamples {
				req, err := s.request(now)
				if err != nil {
					return err
				}
				rec, err := a.admission.Admit(cmd.Context(), req)
				if err != nil {
					return fmt.Errorf("ошибка добавления демонстрационного снимка: %w", err)
				}
				added = append(added, rec)
			}
			return printJSON(cmd.OutOrStdout(), added)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Добавить снимки даже в непустую медиатеку")
	return cmd
}

// request кодирует основной файл и миниатюру в JPEG.
func (s sampleMedia) request(now time.Time) (service.AdmitRequest, error) {
	main, err := solidJPEG(640, 480, s.fill)
	if err != nil {
		return service.AdmitRequest{}, err
	}
	thumb, err := solidJPEG(160, 120, s.fill)
	if err != nil {
		return service.AdmitRequest{}, err
	}
	return service.AdmitRequest{
		Kind:      model.KindPhoto,
		Main:      bytes.NewReader(main),
		Thumbnail: bytes.NewReader(thumb),
		Location:  s.location,
		CreatedAt: now,
		Lifetime:  s.lifetime,
	}, nil
}

// solidJPEG рисует одноцветное изображение w×h.
func solidJPEG(w, h int, c color.RGBA) ([]byte, error) {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 80}); err != nil {
		return nil, fmt.Errorf("ошибка кодирования JPEG: %w", err)
	}
	return buf.Bytes(), nil
}
