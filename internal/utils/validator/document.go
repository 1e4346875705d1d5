package validator

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/davibasa/Enter-Fellowship-sub001/pkg/logger"
)

// DocumentValidator checks uploaded documents before text extraction.
type DocumentValidator struct {
	logger logger.Logger
	config *ValidatorConfig
}

type ValidatorConfig struct {
	MaxFileSize  int64               // bytes
	AllowedTypes map[string][]string // extension -> accepted sniffed MIME types
	MinDimension int                 // pixels, images only
	MaxDimension int
	MaxPageCount int // PDFs only
}

// DefaultValidatorConfig accepts the formats the document text sources can read.
func DefaultValidatorConfig() *ValidatorConfig {
	return &ValidatorConfig{
		MaxFileSize: 50 * 1024 * 1024,
		AllowedTypes: map[string][]string{
			".pdf":  {"application/pdf"},
			".jpg":  {"image/jpeg"},
			".jpeg": {"image/jpeg"},
			".png":  {"image/png"},
			".tiff": {"image/tiff", "application/octet-stream"},
			".tif":  {"image/tiff", "application/octet-stream"},
			".html": {"text/html"},
			".htm":  {"text/html"},
			".txt":  {"text/plain"},
		},
		MinDimension: 32,
		MaxDimension: 10000,
		MaxPageCount: 500,
	}
}

// ValidationResult is the outcome for one uploaded file.
type ValidationResult struct {
	IsValid  bool              `json:"isValid"`
	Errors   []ValidationError `json:"errors,omitempty"`
	FileInfo FileInfo          `json:"fileInfo"`
}

type FileInfo struct {
	Filename  string         `json:"filename"`
	Size      int64          `json:"size"`
	MimeType  string         `json:"mimeType"`
	Extension string         `json:"extension"`
	Hash      string         `json:"hash"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

func NewDocumentValidator(log logger.Logger, config *ValidatorConfig) *DocumentValidator {
	if config == nil {
		config = DefaultValidatorConfig()
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &DocumentValidator{
		logger: log,
		config: config,
	}
}

// Validate checks an already opened document.
func (v *DocumentValidator) Validate(f multipart.File, filename string, size int64) (*ValidationResult, error) {
	result := &ValidationResult{
		IsValid: true,
		Errors:  make([]ValidationError, 0),
		FileInfo: FileInfo{
			Filename:  filename,
			Size:      size,
			Extension: strings.ToLower(filepath.Ext(filename)),
			Metadata:  make(map[string]any),
		},
	}

	hash, err := calculateHash(f)
	if err != nil {
		return nil, fmt.Errorf("failed to calculate hash: %w", err)
	}
	result.FileInfo.Hash = hash

	if errs := v.performBasicValidation(result.FileInfo); len(errs) > 0 {
		result.IsValid = false
		result.Errors = append(result.Errors, errs...)
		return result, nil
	}

	mimeType, err := detectMimeType(f)
	if err != nil {
		return nil, fmt.Errorf("failed to detect mime type: %w", err)
	}
	result.FileInfo.MimeType = mimeType

	if errs := v.validateMimeType(result.FileInfo); len(errs) > 0 {
		result.IsValid = false
		result.Errors = append(result.Errors, errs...)
		return result, nil
	}

	if errs := v.performTypeSpecificValidation(f, &result.FileInfo); len(errs) > 0 {
		result.IsValid = false
		result.Errors = append(result.Errors, errs...)
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("failed to reset file pointer: %w", err)
	}
	return result, nil
}

// AsError converts a failed result into a RequestError.
func (r *ValidationResult) AsError() error {
	if r.IsValid {
		return nil
	}
	return &RequestError{Errors: r.Errors}
}

func (v *DocumentValidator) performBasicValidation(info FileInfo) []ValidationError {
	var errs []ValidationError

	if info.Size <= 0 {
		errs = append(errs, ValidationError{
			Code:    "EMPTY_FILE",
			Message: "File is empty",
			Field:   "size",
		})
	}
	if info.Size > v.config.MaxFileSize {
		errs = append(errs, ValidationError{
			Code:    "FILE_TOO_LARGE",
			Message: fmt.Sprintf("File size exceeds maximum limit of %d bytes", v.config.MaxFileSize),
			Field:   "size",
		})
	}
	if _, ok := v.config.AllowedTypes[info.Extension]; !ok {
		errs = append(errs, ValidationError{
			Code:    "INVALID_FILE_TYPE",
			Message: fmt.Sprintf("File type %s is not allowed", info.Extension),
			Field:   "extension",
		})
	}
	return errs
}

func (v *DocumentValidator) validateMimeType(info FileInfo) []ValidationError {
	allowed := v.config.AllowedTypes[info.Extension]
	for _, m := range allowed {
		if m == info.MimeType {
			return nil
		}
	}
	return []ValidationError{{
		Code:    "INVALID_MIME_TYPE",
		Message: fmt.Sprintf("Invalid MIME type %s for extension %s", info.MimeType, info.Extension),
		Field:   "mimeType",
	}}
}

func (v *DocumentValidator) performTypeSpecificValidation(f multipart.File, info *FileInfo) []ValidationError {
	switch info.Extension {
	case ".pdf":
		return v.validatePDF(f, info)
	case ".jpg", ".jpeg", ".png":
		return v.validateImage(f, info)
	}
	return nil
}

func (v *DocumentValidator) validatePDF(f multipart.File, info *FileInfo) []ValidationError {
	r, err := pdf.NewReader(f, info.Size)
	if err != nil {
		v.logger.Warn("Unreadable PDF upload",
			logger.String("filename", info.Filename),
			logger.Error(err),
		)
		return []ValidationError{{
			Code:    "INVALID_PDF",
			Message: "PDF could not be parsed",
			Field:   "file",
		}}
	}

	pages := r.NumPage()
	info.Metadata["pageCount"] = pages
	if pages > v.config.MaxPageCount {
		return []ValidationError{{
			Code:    "TOO_MANY_PAGES",
			Message: fmt.Sprintf("PDF has %d pages, maximum is %d", pages, v.config.MaxPageCount),
			Field:   "file",
		}}
	}
	return nil
}

func (v *DocumentValidator) validateImage(f multipart.File, info *FileInfo) []ValidationError {
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return []ValidationError{{Code: "INVALID_IMAGE", Message: err.Error(), Field: "file"}}
	}
	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return []ValidationError{{
			Code:    "INVALID_IMAGE",
			Message: "Image could not be decoded",
			Field:   "file",
		}}
	}

	info.Metadata["width"] = cfg.Width
	info.Metadata["height"] = cfg.Height
	if min(cfg.Width, cfg.Height) < v.config.MinDimension || max(cfg.Width, cfg.Height) > v.config.MaxDimension {
		return []ValidationError{{
			Code: "INVALID_DIMENSIONS",
			Message: fmt.Sprintf("Image is %dx%d, allowed range is %d to %d pixels",
				cfg.Width, cfg.Height, v.config.MinDimension, v.config.MaxDimension),
			Field: "file",
		}}
	}
	return nil
}

// detectMimeType sniffs the first 512 bytes and drops parameters such as charset.
func detectMimeType(f multipart.File) (string, error) {
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return "", err
	}
	buffer := make([]byte, 512)
	n, err := f.Read(buffer)
	if err != nil && err != io.EOF {
		return "", err
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return "", err
	}

	detected := http.DetectContentType(buffer[:n])
	mediaType, _, err := mime.ParseMediaType(detected)
	if err != nil {
		return detected, nil
	}
	return mediaType, nil
}

func calculateHash(f multipart.File) (string, error) {
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return "", err
	}
	hash := sha256.New()
	if _, err := io.Copy(hash, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(hash.Sum(nil)), nil
}
