package converters

import (
	"errors"
	"testing"

	"github.com/davibasa/Enter-Fellowship-sub001/internal/models"
)

func TestConvertOrdersPages(t *testing.T) {
	chunks := []models.DocumentChunk{
		{Content: "second page", Metadata: map[string]interface{}{"pageNumber": 2, "confidence": 0.8}},
		{Content: "  first page  ", Metadata: map[string]interface{}{"pageNumber": 1, "confidence": 1.0}},
		{Content: "   ", Metadata: map[string]interface{}{"pageNumber": 3}},
	}

	doc, err := NewTextConverter().Convert("doc.pdf", models.PDF, chunks)
	if err != nil {
		t.Fatalf("Convert() error = %v", err)
	}
	if doc.Text != "first page\nsecond page" {
		t.Errorf("text = %q", doc.Text)
	}
	if doc.PageCount != 2 {
		t.Errorf("page count = %d, want 2", doc.PageCount)
	}
	if doc.Confidence < 0.899 || doc.Confidence > 0.901 {
		t.Errorf("confidence = %v, want 0.9", doc.Confidence)
	}
	if doc.FileName != "doc.pdf" || doc.FileType != models.PDF {
		t.Errorf("doc = %+v", doc)
	}
}

func TestConvertWithoutPages(t *testing.T) {
	doc, err := NewTextConverter().Convert("a.txt", models.Text, []models.DocumentChunk{{Content: "Nome: Ana"}})
	if err != nil {
		t.Fatalf("Convert() error = %v", err)
	}
	if doc.PageCount != 1 || doc.Confidence != 1.0 {
		t.Errorf("doc = %+v", doc)
	}
}

func TestConvertEmpty(t *testing.T) {
	_, err := NewTextConverter().Convert("a.txt", models.Text, []models.DocumentChunk{{Content: " \n "}})
	if !errors.Is(err, ErrNoText) {
		t.Errorf("error = %v, want ErrNoText", err)
	}
}
