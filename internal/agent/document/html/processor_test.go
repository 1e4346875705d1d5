package html

import (
	"context"
	"strings"
	"testing"
)

func TestProcessFlattensBlocks(t *testing.T) {
	page := `<html><head><title>Ficha</title><style>p{color:red}</style></head>
<body>
  <h1>Cadastro</h1>
  <div><p>Nome:   Maria
     Silva</p><script>var x = 1;</script></div>
  <table><tr><th>CPF</th><td>123.456.789-00</td></tr></table>
  <ul><li>Item <b>um</b></li></ul>
</body></html>`

	chunks, err := NewProcessor(nil).Process(context.Background(), strings.NewReader(page))
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if len(chunks) != 1 {
		t.Fatalf("chunks = %d, want 1", len(chunks))
	}

	want := "Cadastro\nNome: Maria Silva\nCPF 123.456.789-00\nItem um"
	if chunks[0].Content != want {
		t.Errorf("content = %q, want %q", chunks[0].Content, want)
	}
	if chunks[0].Metadata["title"] != "Ficha" {
		t.Errorf("title = %v", chunks[0].Metadata["title"])
	}
}

func TestProcessFallsBackToBody(t *testing.T) {
	chunks, err := NewProcessor(nil).Process(context.Background(), strings.NewReader("<body>Nome: Ana<br>\nCPF 1</body>"))
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if chunks[0].Content != "Nome: Ana\nCPF 1" {
		t.Errorf("content = %q", chunks[0].Content)
	}
}

func TestCanProcess(t *testing.T) {
	p := NewProcessor(nil)
	if !p.CanProcess("text/html") || p.CanProcess("text/plain") {
		t.Error("CanProcess() mismatch")
	}
}
