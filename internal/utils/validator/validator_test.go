package validator

import (
	"bytes"
	"errors"
	"image"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/davibasa/Enter-Fellowship-sub001/internal/models"
)

func ptr(v float64) *float64 { return &v }

func TestValidateExtractionRequest(t *testing.T) {
	tests := []struct {
		name  string
		req   *models.ExtractionRequest
		codes []string
	}{
		{"valid", &models.ExtractionRequest{Text: "CPF 1", Schema: models.Schema{"cpf": ""}}, nil},
		{"nil", nil, []string{"EMPTY_REQUEST"}},
		{"blank text", &models.ExtractionRequest{Text: "  \n", Schema: models.Schema{"cpf": ""}}, []string{"EMPTY_TEXT"}},
		{"empty schema", &models.ExtractionRequest{Text: "x"}, []string{"EMPTY_SCHEMA"}},
		{"blank field", &models.ExtractionRequest{Text: "x", Schema: models.Schema{" ": ""}}, []string{"BLANK_FIELD"}},
		{
			"threshold out of range",
			&models.ExtractionRequest{Text: "x", Schema: models.Schema{"a": ""}, Options: models.Options{ThresholdOverride: ptr(1.5)}},
			[]string{"INVALID_THRESHOLD"},
		},
		{"everything wrong", &models.ExtractionRequest{}, []string{"EMPTY_TEXT", "EMPTY_SCHEMA"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateExtractionRequest(tt.req)
			if len(tt.codes) == 0 {
				if err != nil {
					t.Fatalf("ValidateExtractionRequest() error = %v", err)
				}
				return
			}
			if !errors.Is(err, ErrInvalidRequest) {
				t.Fatalf("error = %v, want ErrInvalidRequest", err)
			}
			var reqErr *RequestError
			if !errors.As(err, &reqErr) {
				t.Fatalf("error = %T, want *RequestError", err)
			}
			if len(reqErr.Errors) != len(tt.codes) {
				t.Fatalf("errors = %+v, want codes %v", reqErr.Errors, tt.codes)
			}
			for i, code := range tt.codes {
				if reqErr.Errors[i].Code != code {
					t.Errorf("errors[%d].Code = %s, want %s", i, reqErr.Errors[i].Code, code)
				}
			}
		})
	}
}

func writeTemp(t *testing.T, name string, data []byte) *os.File {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { f.Close() })
	return f
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewGray(image.Rect(0, 0, w, h))); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestValidateDocuments(t *testing.T) {
	v := NewDocumentValidator(nil, nil)

	tests := []struct {
		name     string
		filename string
		data     []byte
		code     string
	}{
		{"plain text", "doc.txt", []byte("Nome: Maria\nCPF: 123.456.789-10\n"), ""},
		{"html", "page.html", []byte("<html><body><p>Nome</p></body></html>"), ""},
		{"png", "scan.png", pngBytes(t, 64, 64), ""},
		{"tiny png", "scan.png", pngBytes(t, 8, 8), "INVALID_DIMENSIONS"},
		{"unsupported extension", "sheet.xlsx", []byte("PK"), "INVALID_FILE_TYPE"},
		{"mismatched content", "doc.pdf", []byte("just some text"), "INVALID_MIME_TYPE"},
		{"empty", "doc.txt", nil, "EMPTY_FILE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := writeTemp(t, tt.filename, tt.data)
			res, err := v.Validate(f, tt.filename, int64(len(tt.data)))
			if err != nil {
				t.Fatalf("Validate() error = %v", err)
			}
			if tt.code == "" {
				if !res.IsValid {
					t.Fatalf("Validate() = %+v, want valid", res.Errors)
				}
				if res.AsError() != nil {
					t.Error("AsError() must be nil for a valid file")
				}
			} else {
				if res.IsValid || res.Errors[0].Code != tt.code {
					t.Fatalf("Validate() = %+v, want %s", res.Errors, tt.code)
				}
				if !errors.Is(res.AsError(), ErrInvalidRequest) {
					t.Error("AsError() must wrap ErrInvalidRequest")
				}
			}
			if pos, _ := f.Seek(0, io.SeekCurrent); pos != 0 && res.IsValid {
				t.Errorf("file offset = %d, want rewound", pos)
			}
		})
	}
}
