package document

import (
	"context"
	"io"

	"github.com/davibasa/Enter-Fellowship-sub001/internal/models"
)

// Processor turns an uploaded file into text chunks.
type Processor interface {
	// CanProcess reports whether the processor handles the MIME type.
	CanProcess(mimeType string) bool

	// Process reads the whole document. Chunks carry a pageNumber when the
	// format has pages.
	Process(ctx context.Context, reader io.Reader) ([]models.DocumentChunk, error)

	Close() error
}
