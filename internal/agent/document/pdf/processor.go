package pdf

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"
	"golang.org/x/sync/errgroup"

	"github.com/davibasa/Enter-Fellowship-sub001/internal/models"
	"github.com/davibasa/Enter-Fellowship-sub001/pkg/logger"
)

const maxWorkers = 4

type Processor struct {
	logger logger.Logger
}

func NewProcessor(log logger.Logger) *Processor {
	if log == nil {
		log = logger.NewNop()
	}
	return &Processor{logger: log.Named("pdf")}
}

func (p *Processor) CanProcess(mimeType string) bool {
	return mimeType == "application/pdf"
}

func (p *Processor) Process(ctx context.Context, file io.Reader) ([]models.DocumentChunk, error) {
	content, err := io.ReadAll(file)
	if err != nil {
		return nil, err
	}

	reader := bytes.NewReader(content)
	pdfReader, err := pdf.NewReader(reader, reader.Size())
	if err != nil {
		return nil, fmt.Errorf("failed to open pdf: %w", err)
	}

	numPages := pdfReader.NumPage()
	hash := sha256.Sum256(content)
	hashStr := hex.EncodeToString(hash[:])

	// Pages are written by index so the result keeps document order.
	pages := make([]*models.DocumentChunk, numPages)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxWorkers)

	for i := 1; i <= numPages; i++ {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			page := pdfReader.Page(i)
			if page.V.IsNull() {
				return nil
			}

			text, err := page.GetPlainText(nil)
			if err != nil {
				return fmt.Errorf("failed to get text from page %d: %w", i, err)
			}

			pages[i-1] = &models.DocumentChunk{
				Content: cleanText(text),
				Metadata: map[string]interface{}{
					"pageNumber": i,
					"hash":       hashStr,
					"section":    fmt.Sprintf("page_%d", i),
				},
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	chunks := make([]models.DocumentChunk, 0, numPages)
	for _, chunk := range pages {
		if chunk != nil {
			chunks = append(chunks, *chunk)
		}
	}
	p.logger.Debug("Extracted pdf text",
		logger.Int("pages", numPages),
		logger.Int("chunks", len(chunks)),
	)
	return chunks, nil
}

// cleanText drops trailing spaces and runs of blank lines left by the text layer.
func cleanText(text string) string {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	out := make([]string, 0, len(lines))
	blank := false
	for _, line := range lines {
		line = strings.TrimRight(line, " \t")
		if line == "" {
			if blank {
				continue
			}
			blank = true
		} else {
			blank = false
		}
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}

func (p *Processor) Close() error {
	return nil
}
