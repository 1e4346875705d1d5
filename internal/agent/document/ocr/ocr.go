// Package ocr picks the image text source: AWS Textract when enabled,
// local tesseract otherwise.
package ocr

import (
	"context"

	"github.com/davibasa/Enter-Fellowship-sub001/config"
	"github.com/davibasa/Enter-Fellowship-sub001/internal/agent/document"
	"github.com/davibasa/Enter-Fellowship-sub001/internal/agent/document/image"
	"github.com/davibasa/Enter-Fellowship-sub001/internal/agent/document/image/tesseract"
	"github.com/davibasa/Enter-Fellowship-sub001/pkg/logger"
)

func NewProcessor(ctx context.Context, log logger.Logger) (document.Processor, error) {
	tc := config.GetTextractConfig()
	if tc.Enabled {
		log.Info("Using Textract for images", logger.String("region", tc.Region))
		p, err := image.NewTextractProcessor(ctx, &image.TextractConfig{
			Region:        tc.Region,
			Endpoint:      tc.Endpoint,
			AccessKey:     tc.AccessKey,
			SecretKey:     tc.SecretKey,
			MinConfidence: 50,
			EnableForms:   true,
		}, log)
		if err != nil {
			return nil, err
		}
		return p, nil
	}

	p, err := image.NewProcessor(tesseract.New(tesseract.DefaultConfig()), image.DefaultPreprocessConfig(), log)
	if err != nil {
		return nil, err
	}
	return p, nil
}
