package image

import (
	"context"
	"fmt"
	"image"
	"io"
	"strings"

	"github.com/disintegration/imaging"

	"github.com/davibasa/Enter-Fellowship-sub001/internal/models"
	"github.com/davibasa/Enter-Fellowship-sub001/pkg/logger"
)

// Recognition is the text an OCR engine read from one image.
type Recognition struct {
	Text string
	// Confidence in [0,1].
	Confidence float64
	Words      int
}

// Engine runs OCR on a preprocessed image.
type Engine interface {
	Recognize(ctx context.Context, img image.Image) (Recognition, error)
	Close() error
}

// Processor runs local OCR: decode, preprocess, then recognize.
type Processor struct {
	engine        Engine
	preprocessors []Preprocessor
	logger        logger.Logger
}

func NewProcessor(engine Engine, cfg PreprocessConfig, log logger.Logger) (*Processor, error) {
	if engine == nil {
		return nil, fmt.Errorf("ocr engine is required")
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Processor{
		engine:        engine,
		preprocessors: Pipeline(cfg),
		logger:        log.Named("ocr"),
	}, nil
}

func (p *Processor) CanProcess(mimeType string) bool {
	return isImageMIME(mimeType)
}

func (p *Processor) Process(ctx context.Context, file io.Reader) ([]models.DocumentChunk, error) {
	img, err := imaging.Decode(file, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	processed, err := p.applyPreprocessing(img)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rec, err := p.engine.Recognize(ctx, processed)
	if err != nil {
		return nil, fmt.Errorf("ocr failed: %w", err)
	}
	p.logger.Debug("Recognized image text",
		logger.Int("words", rec.Words),
		logger.Float64("confidence", rec.Confidence),
	)

	return []models.DocumentChunk{{
		Content: strings.TrimSpace(rec.Text),
		Metadata: map[string]interface{}{
			"source":     "tesseract",
			"pageNumber": 1,
			"confidence": rec.Confidence,
			"words":      rec.Words,
		},
	}}, nil
}

func (p *Processor) applyPreprocessing(img image.Image) (image.Image, error) {
	result := img
	for _, step := range p.preprocessors {
		var err error
		result, err = step.Process(result)
		if err != nil {
			p.logger.Error("Preprocessing failed", logger.Error(err))
			return nil, fmt.Errorf("preprocessing failed: %w", err)
		}
	}
	return result, nil
}

func (p *Processor) Close() error {
	return p.engine.Close()
}

func isImageMIME(mimeType string) bool {
	switch strings.ToLower(mimeType) {
	case "image/jpeg", "image/jpg", "image/png", "image/tiff":
		return true
	default:
		return false
	}
}
