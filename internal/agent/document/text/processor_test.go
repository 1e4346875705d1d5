package text

import (
	"bytes"
	"context"
	"testing"
)

func TestProcessUTF8(t *testing.T) {
	chunks, err := NewProcessor().Process(context.Background(), bytes.NewReader([]byte("\ufeffNome: José\r\nCPF 1")))
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if chunks[0].Content != "Nome: José\nCPF 1" {
		t.Errorf("content = %q", chunks[0].Content)
	}
	if chunks[0].Metadata["encoding"] != "utf-8" {
		t.Errorf("encoding = %v", chunks[0].Metadata["encoding"])
	}
}

func TestProcessLegacyEncoding(t *testing.T) {
	// "José" in Windows-1252.
	chunks, err := NewProcessor().Process(context.Background(), bytes.NewReader([]byte{'J', 'o', 's', 0xe9}))
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if chunks[0].Content != "José" {
		t.Errorf("content = %q, want José", chunks[0].Content)
	}
	if chunks[0].Metadata["encoding"] != "windows-1252" {
		t.Errorf("encoding = %v", chunks[0].Metadata["encoding"])
	}
}
