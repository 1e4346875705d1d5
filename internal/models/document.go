package models

import (
	"time"
)

// FileType groups the accepted upload formats.
type FileType string

const (
	PDF   FileType = "pdf"
	Image FileType = "image"
	HTML  FileType = "html"
	Text  FileType = "text"
)

// DocumentChunk is a piece of text produced by a document processor.
type DocumentChunk struct {
	Content  string                 `json:"content"`
	Metadata map[string]interface{} `json:"metadata"`
}

// DocumentText is the plain text handed to the extraction pipeline.
type DocumentText struct {
	FileName   string   `json:"fileName"`
	FileType   FileType `json:"fileType"`
	Text       string   `json:"text"`
	PageCount  int      `json:"pageCount"`
	Confidence float64  `json:"confidence"`
}

// ExtractionJob tracks a batch extraction queued for the worker.
type ExtractionJob struct {
	ID        string            `json:"id"`
	Status    JobStatus         `json:"status"`
	Type      string            `json:"type"`
	Priority  int               `json:"priority"`
	Progress  float64           `json:"progress"`
	Error     string            `json:"error,omitempty"`
	TraceID   string            `json:"traceId,omitempty"`
	Metadata  map[string]string `json:"metadata"`
	CreatedAt time.Time         `json:"createdAt"`
	UpdatedAt time.Time         `json:"updatedAt,omitempty"`
}

type JobStatus string

const (
	StatusPending   JobStatus = "pending"
	StatusRunning   JobStatus = "running"
	StatusCompleted JobStatus = "completed"
	StatusFailed    JobStatus = "failed"
	StatusCancelled JobStatus = "cancelled"
)
