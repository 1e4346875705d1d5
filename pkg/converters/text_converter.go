package converters

import (
	"errors"
	"sort"
	"strings"

	"github.com/davibasa/Enter-Fellowship-sub001/internal/models"
)

// ErrNoText is returned when every chunk of a document is blank.
var ErrNoText = errors.New("document has no extractable text")

// DocumentConverter turns processor output into pipeline input.
type DocumentConverter interface {
	Convert(fileName string, fileType models.FileType, chunks []models.DocumentChunk) (*models.DocumentText, error)
}

type TextConverter struct{}

func NewTextConverter() *TextConverter {
	return &TextConverter{}
}

// Convert joins chunks in page order. Chunks without a pageNumber keep their
// relative position after the numbered ones.
func (c *TextConverter) Convert(fileName string, fileType models.FileType, chunks []models.DocumentChunk) (*models.DocumentText, error) {
	ordered := make([]models.DocumentChunk, len(chunks))
	copy(ordered, chunks)
	sort.SliceStable(ordered, func(i, j int) bool {
		pi, okI := pageNumber(ordered[i])
		pj, okJ := pageNumber(ordered[j])
		switch {
		case okI && okJ:
			return pi < pj
		case okI:
			return true
		default:
			return false
		}
	})

	doc := &models.DocumentText{
		FileName:   fileName,
		FileType:   fileType,
		Confidence: 1.0,
	}

	parts := make([]string, 0, len(ordered))
	var totalConfidence float64
	var scored int
	for _, chunk := range ordered {
		text := strings.TrimSpace(chunk.Content)
		if text == "" {
			continue
		}
		parts = append(parts, text)

		if _, ok := pageNumber(chunk); ok {
			doc.PageCount++
		}
		if conf, ok := chunk.Metadata["confidence"].(float64); ok {
			totalConfidence += conf
			scored++
		}
	}
	if len(parts) == 0 {
		return nil, ErrNoText
	}

	if scored > 0 {
		doc.Confidence = totalConfidence / float64(scored)
	}
	if doc.PageCount == 0 {
		doc.PageCount = 1
	}
	doc.Text = strings.Join(parts, "\n")
	return doc, nil
}

func pageNumber(chunk models.DocumentChunk) (int, bool) {
	switch v := chunk.Metadata["pageNumber"].(type) {
	case int:
		return v, true
	case int32:
		return int(v), true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	}
	return 0, false
}
