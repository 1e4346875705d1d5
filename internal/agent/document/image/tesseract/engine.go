// Package tesseract adapts gosseract to the image.Engine interface.
package tesseract

import (
	"bytes"
	"context"
	"fmt"
	stdimage "image"
	"image/png"
	"strings"

	"github.com/otiai10/gosseract/v2"

	"github.com/davibasa/Enter-Fellowship-sub001/internal/agent/document/image"
)

type Config struct {
	Languages []string `mapstructure:"languages"`
	// MinConfidence drops words below it, on tesseract's 0-100 scale.
	MinConfidence float64 `mapstructure:"min_confidence"`
}

func DefaultConfig() Config {
	return Config{Languages: []string{"por", "eng"}, MinConfidence: 60}
}

// Engine creates a tesseract client per call; gosseract clients are not
// safe for concurrent use.
type Engine struct {
	cfg Config
}

func New(cfg Config) *Engine {
	if len(cfg.Languages) == 0 {
		cfg.Languages = DefaultConfig().Languages
	}
	return &Engine{cfg: cfg}
}

func (e *Engine) Recognize(ctx context.Context, img stdimage.Image) (image.Recognition, error) {
	client := gosseract.NewClient()
	defer client.Close()

	if err := client.SetLanguage(e.cfg.Languages...); err != nil {
		return image.Recognition{}, fmt.Errorf("failed to set language: %w", err)
	}
	if err := client.SetPageSegMode(gosseract.PSM_AUTO); err != nil {
		return image.Recognition{}, fmt.Errorf("failed to set page segmentation mode: %w", err)
	}

	buf := new(bytes.Buffer)
	if err := png.Encode(buf, img); err != nil {
		return image.Recognition{}, fmt.Errorf("failed to encode image: %w", err)
	}
	if err := client.SetImageFromBytes(buf.Bytes()); err != nil {
		return image.Recognition{}, fmt.Errorf("failed to set image: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return image.Recognition{}, err
	}

	text, err := client.Text()
	if err != nil {
		return image.Recognition{}, fmt.Errorf("failed to get text: %w", err)
	}

	rec := image.Recognition{Text: strings.TrimSpace(text)}
	boxes, err := client.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		return rec, nil
	}
	var total float64
	for _, box := range boxes {
		if box.Confidence < e.cfg.MinConfidence {
			continue
		}
		total += box.Confidence
		rec.Words++
	}
	if rec.Words > 0 {
		rec.Confidence = total / float64(rec.Words) / 100
	}
	return rec, nil
}

func (e *Engine) Close() error {
	return nil
}
