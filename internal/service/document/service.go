package document

import (
	"context"
	"errors"
	"io"

	agentdoc "github.com/davibasa/Enter-Fellowship-sub001/internal/agent/document"
	"github.com/davibasa/Enter-Fellowship-sub001/internal/models"
	"github.com/davibasa/Enter-Fellowship-sub001/pkg/queue"
)

var (
	// ErrNotFound wraps unknown job ids and missing archived results.
	ErrNotFound = errors.New("not found")
	// ErrUnavailable means an optional backend (queue or archive) is not configured.
	ErrUnavailable = errors.New("backend not configured")
)

// ExtractionService is the application surface shared by the HTTP API, the
// worker and the CLI.
type ExtractionService interface {
	ExtractText(ctx context.Context, req *models.ExtractionRequest) (*models.ExtractionResult, error)
	ExtractFile(ctx context.Context, upload Upload, req *models.ExtractionRequest) (*FileExtraction, error)
	SubmitBatch(ctx context.Context, reqs []models.ExtractionRequest, priority int) ([]*models.ExtractionJob, error)
	HandleJob(ctx context.Context, task *queue.Task) error
	GetJobStatus(ctx context.Context, jobID string) (*models.ExtractionJob, error)
	GetResult(ctx context.Context, traceID string) (*models.ExtractionResult, error)
	CancelJob(ctx context.Context, jobID string) error
	DetectLabels(ctx context.Context, schema models.Schema, text string) (*models.LabelDetection, error)
}

// File is the random-access view of an upload; multipart.File and
// *bytes.Reader both satisfy it.
type File interface {
	io.Reader
	io.ReaderAt
	io.Seeker
}

// Upload is a document whose text feeds one extraction.
type Upload struct {
	Name   string
	Size   int64
	Reader File
}

// FileExtraction pairs the text read from a document with its result.
type FileExtraction struct {
	Document *models.DocumentText     `json:"document"`
	Result   *models.ExtractionResult `json:"result"`
}

// Extractor runs the field extraction pipeline.
type Extractor interface {
	Extract(ctx context.Context, req *models.ExtractionRequest) (*models.ExtractionResult, error)
}

type LabelDetector interface {
	DetectAll(ctx context.Context, schema models.Schema, lines []string) ([]models.DetectedLabel, error)
}

// ProcessorSource resolves the text source for a file name.
type ProcessorSource interface {
	GetProcessor(fileName string) (agentdoc.Processor, string, error)
}
