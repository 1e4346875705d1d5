package text

import (
	"context"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/unicode/norm"

	"github.com/davibasa/Enter-Fellowship-sub001/internal/models"
)

// Processor reads plain text. Input that is not valid UTF-8 is decoded as
// Windows-1252, the usual encoding of legacy exports.
type Processor struct{}

func NewProcessor() *Processor {
	return &Processor{}
}

func (p *Processor) CanProcess(mimeType string) bool {
	return strings.HasPrefix(strings.ToLower(mimeType), "text/plain")
}

func (p *Processor) Process(ctx context.Context, reader io.Reader) ([]models.DocumentChunk, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read text: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	encoding := "utf-8"
	if !utf8.Valid(data) {
		decoded, err := charmap.Windows1252.NewDecoder().Bytes(data)
		if err != nil {
			return nil, fmt.Errorf("failed to decode text: %w", err)
		}
		data = decoded
		encoding = "windows-1252"
	}

	content := norm.NFC.String(strings.ReplaceAll(string(data), "\r\n", "\n"))
	content = strings.TrimPrefix(content, "\ufeff")
	return []models.DocumentChunk{{
		Content: content,
		Metadata: map[string]interface{}{
			"source":     "text",
			"pageNumber": 1,
			"encoding":   encoding,
		},
	}}, nil
}

func (p *Processor) Close() error {
	return nil
}
