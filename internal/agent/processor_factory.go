package agent

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/davibasa/Enter-Fellowship-sub001/internal/agent/document"
	"github.com/davibasa/Enter-Fellowship-sub001/internal/agent/document/html"
	"github.com/davibasa/Enter-Fellowship-sub001/internal/agent/document/pdf"
	"github.com/davibasa/Enter-Fellowship-sub001/internal/agent/document/text"
	"github.com/davibasa/Enter-Fellowship-sub001/internal/models"
	"github.com/davibasa/Enter-Fellowship-sub001/pkg/logger"
)

var extToMIME = map[string]string{
	".pdf":  "application/pdf",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".tif":  "image/tiff",
	".tiff": "image/tiff",
	".html": "text/html",
	".htm":  "text/html",
	".txt":  "text/plain",
}

// ProcessorFactory picks the document processor for an uploaded file.
type ProcessorFactory struct {
	processors []document.Processor
	logger     logger.Logger
}

// NewProcessorFactory registers the pdf, html and text processors. Images are
// only accepted when an OCR processor is supplied.
func NewProcessorFactory(log logger.Logger, imageProcessor document.Processor) *ProcessorFactory {
	if log == nil {
		log = logger.NewNop()
	}
	f := &ProcessorFactory{logger: log.Named("processors")}
	f.Register(pdf.NewProcessor(log))
	f.Register(html.NewProcessor(log))
	f.Register(text.NewProcessor())
	if imageProcessor != nil {
		f.Register(imageProcessor)
	}
	return f
}

func (f *ProcessorFactory) Register(p document.Processor) {
	f.processors = append(f.processors, p)
}

// MIMEType maps a file name to the MIME type its extension stands for.
func MIMEType(fileName string) (string, bool) {
	mime, ok := extToMIME[strings.ToLower(filepath.Ext(fileName))]
	return mime, ok
}

// FileType groups a MIME type into one of the accepted upload kinds.
func FileType(mimeType string) models.FileType {
	switch {
	case mimeType == "application/pdf":
		return models.PDF
	case strings.HasPrefix(mimeType, "image/"):
		return models.Image
	case mimeType == "text/html":
		return models.HTML
	default:
		return models.Text
	}
}

// GetProcessor returns the processor for fileName and its MIME type.
func (f *ProcessorFactory) GetProcessor(fileName string) (document.Processor, string, error) {
	mimeType, ok := MIMEType(fileName)
	if !ok {
		f.logger.Warn("Unsupported file type", logger.String("fileName", fileName))
		return nil, "", fmt.Errorf("unsupported file type: %s", filepath.Ext(fileName))
	}

	for _, p := range f.processors {
		if p.CanProcess(mimeType) {
			return p, mimeType, nil
		}
	}
	f.logger.Warn("No processor found", logger.String("mimeType", mimeType))
	return nil, "", fmt.Errorf("no processor found for mime type: %s", mimeType)
}

func (f *ProcessorFactory) Close() error {
	var firstErr error
	for _, p := range f.processors {
		if err := p.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
