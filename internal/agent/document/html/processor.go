package html

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/davibasa/Enter-Fellowship-sub001/internal/models"
	"github.com/davibasa/Enter-Fellowship-sub001/pkg/logger"
)

// blockSelector lists elements whose text is kept on its own line.
const blockSelector = "h1, h2, h3, h4, h5, h6, p, li, dt, dd, tr, label, pre, address, blockquote"

// Processor flattens an HTML page into one line per block element.
type Processor struct {
	logger logger.Logger
}

func NewProcessor(log logger.Logger) *Processor {
	if log == nil {
		log = logger.NewNop()
	}
	return &Processor{logger: log.Named("html")}
}

func (p *Processor) CanProcess(mimeType string) bool {
	switch strings.ToLower(mimeType) {
	case "text/html", "application/xhtml+xml":
		return true
	default:
		return false
	}
}

func (p *Processor) Process(ctx context.Context, reader io.Reader) ([]models.DocumentChunk, error) {
	doc, err := goquery.NewDocumentFromReader(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to parse html: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	title := strings.TrimSpace(doc.Find("title").First().Text())
	doc.Find("script, style, noscript, template, head").Remove()

	var lines []string
	doc.Find(blockSelector).Each(func(_ int, s *goquery.Selection) {
		// Nested blocks are emitted by their innermost element.
		if s.Find(blockSelector).Length() > 0 {
			return
		}
		if goquery.NodeName(s) == "tr" {
			var cells []string
			s.Find("th, td").Each(func(_ int, c *goquery.Selection) {
				if text := collapse(c.Text()); text != "" {
					cells = append(cells, text)
				}
			})
			if len(cells) > 0 {
				lines = append(lines, strings.Join(cells, " "))
			}
			return
		}
		if text := collapse(s.Text()); text != "" {
			lines = append(lines, text)
		}
	})

	// Pages without block markup fall back to the body text.
	if len(lines) == 0 {
		for _, line := range strings.Split(doc.Find("body").Text(), "\n") {
			if text := collapse(line); text != "" {
				lines = append(lines, text)
			}
		}
	}

	p.logger.Debug("Flattened html", logger.Int("lines", len(lines)))
	return []models.DocumentChunk{{
		Content: strings.Join(lines, "\n"),
		Metadata: map[string]interface{}{
			"source":     "html",
			"pageNumber": 1,
			"title":      title,
		},
	}}, nil
}

func (p *Processor) Close() error {
	return nil
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
