package extraction

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/davibasa/Enter-Fellowship-sub001/internal/agent/labels"
	"github.com/davibasa/Enter-Fellowship-sub001/internal/agent/nlp"
	"github.com/davibasa/Enter-Fellowship-sub001/internal/models"
	"github.com/davibasa/Enter-Fellowship-sub001/pkg/logger"
	"github.com/davibasa/Enter-Fellowship-sub001/pkg/resilience"
)

type fakeClassifier struct {
	calls atomic.Int32
	resp  *nlp.ClassifyResponse
	err   error
	got   *nlp.ClassifyRequest
}

func (f *fakeClassifier) Classify(_ context.Context, req *nlp.ClassifyRequest) (*nlp.ClassifyResponse, error) {
	f.calls.Add(1)
	f.got = req
	if f.err != nil {
		return nil, f.err
	}
	if f.resp == nil {
		return &nlp.ClassifyResponse{TotalBlocks: len(req.TextBlocks)}, nil
	}
	return f.resp, nil
}

type fakeStructured struct {
	calls  atomic.Int32
	fields map[string]nlp.StructuredField
	err    error
	got    *nlp.StructuredRequest
}

func (f *fakeStructured) Extract(_ context.Context, req *nlp.StructuredRequest) (*nlp.StructuredResponse, error) {
	f.calls.Add(1)
	f.got = req
	if f.err != nil {
		return nil, f.err
	}
	return &nlp.StructuredResponse{Fields: f.fields}, nil
}

type fakeCorrector struct {
	calls  atomic.Int32
	fields map[string]nlp.CorrectedField
	err    error
	got    *nlp.CorrectionRequest
}

func (f *fakeCorrector) Correct(_ context.Context, req *nlp.CorrectionRequest) (*nlp.CorrectionResponse, error) {
	f.calls.Add(1)
	f.got = req
	if f.err != nil {
		return nil, f.err
	}
	return &nlp.CorrectionResponse{Fields: f.fields}, nil
}

type fakeThreshold struct {
	decision *models.ThresholdDecision
	delay    time.Duration
	started  chan struct{}
}

func (f *fakeThreshold) Resolve(ctx context.Context, _ string, fallback float64) models.ThresholdDecision {
	if f.started != nil {
		close(f.started)
	}
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return models.ThresholdDecision{Value: fallback, Reason: models.ReasonDefaultTimeout}
		}
	}
	if f.decision != nil {
		return *f.decision
	}
	return models.ThresholdDecision{Value: fallback, Reason: models.ReasonDefaultUnavailable}
}

func str(s string) *string { return &s }

type fixture struct {
	classifier *fakeClassifier
	structured *fakeStructured
	corrector  *fakeCorrector
	threshold  *fakeThreshold
	log        *logger.TestLogger
	orch       *Orchestrator
}

func newFixture() *fixture {
	f := &fixture{
		classifier: &fakeClassifier{},
		structured: &fakeStructured{},
		corrector:  &fakeCorrector{},
		threshold:  &fakeThreshold{},
		log:        logger.NewTestLogger(),
	}
	f.orch = NewOrchestrator(Deps{
		Classifier: f.classifier,
		Structured: f.structured,
		Corrector:  f.corrector,
		Threshold:  f.threshold,
		Detector:   labels.NewDetector(labels.DefaultOptions(), nil, nil),
	}, DefaultConfig(), f.log)
	return f
}

func assertSchemaKeys(t *testing.T, schema models.Schema, res *models.ExtractionResult) {
	t.Helper()
	if len(res.Fields) != len(schema) {
		t.Fatalf("fields = %v, want exactly the schema keys", res.Fields)
	}
	for name := range schema {
		if _, ok := res.Fields[name]; !ok {
			t.Errorf("field %q missing from result", name)
		}
	}
}

func TestExtractCPFFromPatternOnly(t *testing.T) {
	f := newFixture()
	schema := models.Schema{"cpf": "tax id"}

	res, err := f.orch.Extract(context.Background(), &models.ExtractionRequest{
		Label:  "carteira_oab",
		Schema: schema,
		Text:   "CPF: 123.456.789-10",
	})
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}

	assertSchemaKeys(t, schema, res)
	cpf := res.Fields["cpf"]
	if cpf.Value != "123.456.789-10" || cpf.Confidence != 0.95 || cpf.Method != "pattern:cpf" {
		t.Errorf("cpf = %+v", cpf)
	}
	if f.structured.calls.Load() != 0 || f.corrector.calls.Load() != 0 {
		t.Errorf("structured=%d generative=%d calls, want none", f.structured.calls.Load(), f.corrector.calls.Load())
	}
	if res.StructuredUsed || res.GenerativeUsed {
		t.Errorf("result = %+v, no further stage expected", res)
	}
	if res.Threshold.Value != 0.7 {
		t.Errorf("threshold = %+v, want default 0.7", res.Threshold)
	}
	if res.TraceID == "" {
		t.Error("trace id must be generated")
	}
}

func TestExtractRemovesClassifiedLabels(t *testing.T) {
	f := newFixture()
	f.classifier.resp = &nlp.ClassifyResponse{
		ClassifiedBlocks: []nlp.ClassifiedBlock{
			{Text: "Nome", Label: "LABEL", Confidence: 0.9},
			{Text: "Maria Silva", Label: "value", Confidence: 0.95},
			{Text: "Inscrição", Label: "label", Confidence: 0.5},
		},
		TotalBlocks: 3,
		CacheHits:   1,
	}
	f.structured.fields = map[string]nlp.StructuredField{
		"nome": {Value: str("Maria Silva"), Confidence: 0.9, Method: "memory"},
	}

	schema := models.Schema{"nome": "full name"}
	res, err := f.orch.Extract(context.Background(), &models.ExtractionRequest{
		Schema: schema,
		Text:   "Nome\nMaria Silva\nInscrição",
	})
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}

	if got := f.structured.got.Text; got != "Maria Silva\nInscrição" {
		t.Errorf("structured text = %q", got)
	}
	if f.structured.got.Options.MaxLines != 200 || !f.structured.got.Options.UseMemory {
		t.Errorf("structured options = %+v", f.structured.got.Options)
	}
	if res.Fields["nome"].Value != "Maria Silva" || res.Fields["nome"].Stage != models.StageStructured {
		t.Errorf("nome = %+v", res.Fields["nome"])
	}
	for _, p := range res.Phases {
		if p.Name == PhaseClassification && (!p.Cached || p.Items != 1) {
			t.Errorf("classification phase = %+v", p)
		}
	}
}

func TestExtractRemovesClassifiedLabelsIgnoringCase(t *testing.T) {
	f := newFixture()
	f.classifier.resp = &nlp.ClassifyResponse{
		ClassifiedBlocks: []nlp.ClassifiedBlock{
			{Text: " nome completo ", Label: "label", Confidence: 0.9},
		},
		TotalBlocks: 2,
	}
	f.structured.fields = map[string]nlp.StructuredField{}

	_, err := f.orch.Extract(context.Background(), &models.ExtractionRequest{
		Schema:  models.Schema{"nome": "full name"},
		Text:    "NOME COMPLETO\nMaria Silva",
		Options: models.Options{EnableStructured: true},
	})
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if got := f.structured.got.Text; got != "Maria Silva" {
		t.Errorf("structured text = %q, want label line removed", got)
	}
}

func TestExtractStripsLabelsLocallyWhenClassifierDegrades(t *testing.T) {
	f := newFixture()
	f.classifier.resp = &nlp.ClassifyResponse{}
	f.structured.fields = map[string]nlp.StructuredField{}

	_, err := f.orch.Extract(context.Background(), &models.ExtractionRequest{
		Schema:  models.Schema{"nome": "full name"},
		Text:    "Nome: Maria Silva",
		Options: models.Options{EnableStructured: true},
	})
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if got := f.structured.got.Text; got != "Maria Silva" {
		t.Errorf("structured text = %q, want label stripped", got)
	}
}

func TestExtractSendsOnlyPendingFieldsToStructured(t *testing.T) {
	f := newFixture()
	f.structured.fields = map[string]nlp.StructuredField{
		"nome": {Value: str("Maria"), Confidence: 0.8},
		"cpf":  {Value: str("000.000.000-00"), Confidence: 1},
	}

	schema := models.Schema{"cpf": "", "nome": "", "cidade": "", "uf": ""}
	res, err := f.orch.Extract(context.Background(), &models.ExtractionRequest{
		Schema: schema,
		Text:   "CPF 123.456.789-10 Maria Recife PE",
	})
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}

	if _, asked := f.structured.got.Schema["cpf"]; asked {
		t.Error("cpf was already found by the pattern stage")
	}
	if len(f.structured.got.Schema) != 3 {
		t.Errorf("structured schema = %v, want the 3 pending fields", f.structured.got.Schema)
	}
	if res.Fields["cpf"].Value != "123.456.789-10" {
		t.Errorf("cpf = %+v, pattern result must win", res.Fields["cpf"])
	}
	assertSchemaKeys(t, schema, res)
	if res.Missing != 2 {
		t.Errorf("missing = %d, want 2", res.Missing)
	}
}

func TestExtractStructuredFailure(t *testing.T) {
	t.Run("aborts without generative fallback", func(t *testing.T) {
		f := newFixture()
		f.structured.err = resilience.ErrExhausted

		_, err := f.orch.Extract(context.Background(), &models.ExtractionRequest{
			Schema: models.Schema{"nome": ""},
			Text:   "Maria Silva",
		})
		if !errors.Is(err, ErrUpstreamUnavailable) || !errors.Is(err, resilience.ErrExhausted) {
			t.Fatalf("Extract() error = %v, want ErrUpstreamUnavailable", err)
		}
	})

	t.Run("continues with generative fallback", func(t *testing.T) {
		f := newFixture()
		f.structured.err = resilience.ErrExhausted
		f.corrector.fields = map[string]nlp.CorrectedField{
			"nome": {Value: str("Maria Silva"), Confidence: 0.6, Method: "gpt"},
		}

		res, err := f.orch.Extract(context.Background(), &models.ExtractionRequest{
			Schema:  models.Schema{"nome": ""},
			Text:    "Maria Silva",
			Options: models.Options{EnableGenerative: true},
		})
		if err != nil {
			t.Fatalf("Extract() error = %v", err)
		}
		if res.Fields["nome"].Value != "Maria Silva" || !res.GenerativeUsed {
			t.Errorf("result = %+v", res)
		}
	})
}

func TestExtractGenerativeCorrection(t *testing.T) {
	f := newFixture()
	f.structured.fields = map[string]nlp.StructuredField{
		"apelido": {Value: str("Jose"), Confidence: 0.9},
		"cidade":  {Value: str("Recif"), Confidence: 0.4},
	}
	f.corrector.fields = map[string]nlp.CorrectedField{
		"nome":    {Value: str("Maria Silva"), Confidence: 0.6},
		"apelido": {Value: str("José"), Confidence: 0.5},
		"cidade":  {Value: str("Recife"), Confidence: 0.8},
	}

	schema := models.Schema{"nome": "", "apelido": "", "cidade": ""}
	res, err := f.orch.Extract(context.Background(), &models.ExtractionRequest{
		Label:   "ficha",
		Schema:  schema,
		Text:    "Maria Silva, Jose, Recife",
		Options: models.Options{EnableGenerative: true},
	})
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}

	got := f.corrector.got
	if _, asked := got.Schema["apelido"]; asked {
		t.Error("apelido is above threshold and must not be sent for correction")
	}
	if len(got.Schema) != 2 || got.PartialResults["cidade"].Value != "Recif" {
		t.Errorf("correction request = %+v", got)
	}
	if got.Text != "Maria Silva, Jose, Recife" || got.Options.Model != "gpt-4o-mini" || got.Options.Temperature != 0.2 {
		t.Errorf("correction request = %+v", got)
	}
	if res.Fields["nome"].Value != "Maria Silva" {
		t.Errorf("nome = %+v, empty field must take the correction", res.Fields["nome"])
	}
	if res.Fields["apelido"].Value != "Jose" {
		t.Errorf("apelido = %+v, must keep the more confident value", res.Fields["apelido"])
	}
	if res.Fields["cidade"].Value != "Recife" {
		t.Errorf("cidade = %+v", res.Fields["cidade"])
	}
	if res.Confidence < 0 || res.Confidence > 1 {
		t.Errorf("confidence = %v", res.Confidence)
	}
}

func TestExtractGenerativeFailureDegrades(t *testing.T) {
	f := newFixture()
	f.corrector.err = errors.New("boom")

	res, err := f.orch.Extract(context.Background(), &models.ExtractionRequest{
		Schema:  models.Schema{"nome": ""},
		Text:    "x",
		Options: models.Options{EnableGenerative: true, EnableStructured: true},
	})
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if res.Fields["nome"].Method != models.MethodNotFound || res.Confidence != 0 {
		t.Errorf("result = %+v", res)
	}
}

func TestExtractUsesRemoteThreshold(t *testing.T) {
	f := newFixture()
	f.threshold.decision = &models.ThresholdDecision{Value: 0.99, Reason: models.ReasonRemoteValue}

	_, err := f.orch.Extract(context.Background(), &models.ExtractionRequest{
		Schema: models.Schema{"cpf": ""},
		Text:   "CPF: 123.456.789-10",
	})
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if f.structured.calls.Load() != 0 {
		t.Error("structured must not run when no field is pending")
	}
	if f.structured.got != nil {
		t.Errorf("structured request = %+v", f.structured.got)
	}
}

func TestExtractRunsPatternAndThresholdConcurrently(t *testing.T) {
	f := newFixture()
	f.threshold.delay = 50 * time.Millisecond

	start := time.Now()
	_, err := f.orch.Extract(context.Background(), &models.ExtractionRequest{
		Schema: models.Schema{"cpf": ""},
		Text:   "CPF: 123.456.789-10",
	})
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if time.Since(start) < 50*time.Millisecond {
		t.Error("pipeline must wait for the threshold stage")
	}
}

func TestExtractThresholdOverrideAsFallback(t *testing.T) {
	f := newFixture()
	override := 0.9

	res, err := f.orch.Extract(context.Background(), &models.ExtractionRequest{
		Schema:  models.Schema{"cpf": ""},
		Text:    "CPF: 123.456.789-10",
		Options: models.Options{ThresholdOverride: &override},
	})
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if res.Threshold.Value != 0.9 {
		t.Errorf("threshold = %+v, want override 0.9", res.Threshold)
	}
}

func TestExtractStructuredOnLowPatternConfidence(t *testing.T) {
	schema := models.Schema{"cpf": "tax id", "nome": "full name"}
	tests := []struct {
		name      string
		threshold float64
		wantCalls int32
	}{
		{"pattern confident enough", 0.9, 0},
		{"pattern below threshold", 0.96, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			f.structured.fields = map[string]nlp.StructuredField{
				"nome": {Value: str("Maria Silva"), Confidence: 0.9},
			}
			threshold := tt.threshold

			_, err := f.orch.Extract(context.Background(), &models.ExtractionRequest{
				Schema:  schema,
				Text:    "Maria Silva CPF 123.456.789-10",
				Options: models.Options{ThresholdOverride: &threshold},
			})
			if err != nil {
				t.Fatalf("Extract() error = %v", err)
			}
			if got := f.structured.calls.Load(); got != tt.wantCalls {
				t.Errorf("structured calls = %d, want %d", got, tt.wantCalls)
			}
			if tt.wantCalls == 1 {
				if _, asked := f.structured.got.Schema["cpf"]; asked || len(f.structured.got.Schema) != 1 {
					t.Errorf("structured schema = %v, want only nome", f.structured.got.Schema)
				}
			}
		})
	}
}

func TestExtractGenerativeNotUsedWhenNothingQualifies(t *testing.T) {
	f := newFixture()
	// 0.7 weighted by the structured stage lands a hair under 0.7 while the
	// field itself sits exactly on the threshold.
	f.structured.fields = map[string]nlp.StructuredField{
		"cidade": {Value: str("Recife"), Confidence: 0.7},
	}

	res, err := f.orch.Extract(context.Background(), &models.ExtractionRequest{
		Schema:  models.Schema{"cidade": "city"},
		Text:    "Recife",
		Options: models.Options{EnableGenerative: true},
	})
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if f.corrector.calls.Load() != 0 {
		t.Errorf("corrector calls = %d, want 0", f.corrector.calls.Load())
	}
	if res.GenerativeUsed {
		t.Error("GenerativeUsed = true, want false when no field was sent")
	}
	for _, p := range res.Phases {
		if p.Name == PhaseGenerative && !p.Skipped {
			t.Errorf("generative phase = %+v, want skipped", p)
		}
	}
}

func TestExtractUsesInjectedClock(t *testing.T) {
	f := newFixture()
	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	f.orch.now = func() time.Time { return fixed }

	res, err := f.orch.Extract(context.Background(), &models.ExtractionRequest{
		Schema:  models.Schema{"cpf": "", "nome": ""},
		Text:    "Nome\nMaria\nCPF 123.456.789-10",
		Options: models.Options{EnableStructured: true, EnableGenerative: true},
	})
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if res.ProcessingMs != 0 || !res.CreatedAt.Equal(fixed) {
		t.Errorf("processingMs = %d createdAt = %v", res.ProcessingMs, res.CreatedAt)
	}
	if len(res.Phases) == 0 {
		t.Fatal("no phases recorded")
	}
	for _, p := range res.Phases {
		if p.Elapsed != 0 {
			t.Errorf("phase %s elapsed = %v, want 0 under a frozen clock", p.Name, p.Elapsed)
		}
	}
}

func TestExtractRejectsInvalidRequest(t *testing.T) {
	f := newFixture()
	_, err := f.orch.Extract(context.Background(), &models.ExtractionRequest{Schema: models.Schema{"a": ""}})
	if !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("Extract() error = %v, want ErrInvalidRequest", err)
	}
	if f.classifier.calls.Load() != 0 {
		t.Error("no stage may run for an invalid request")
	}
}

func TestExtractCancellation(t *testing.T) {
	f := newFixture()
	f.threshold.delay = time.Minute
	f.threshold.started = make(chan struct{})

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	var err error
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err = f.orch.Extract(ctx, &models.ExtractionRequest{Schema: models.Schema{"nome": ""}, Text: "x"})
	}()
	<-f.threshold.started
	cancel()
	wg.Wait()

	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Extract() error = %v, want context.Canceled", err)
	}
	if f.classifier.calls.Load() != 0 {
		t.Error("classification must not start after cancellation")
	}
}

func TestExtractPanicBecomesInternalError(t *testing.T) {
	f := newFixture()
	f.orch.deps.Structured = panicking{}

	_, err := f.orch.Extract(context.Background(), &models.ExtractionRequest{Schema: models.Schema{"nome": ""}, Text: "x"})
	if !errors.Is(err, ErrInternal) {
		t.Fatalf("Extract() error = %v, want ErrInternal", err)
	}
	if f.log.Count("Extraction panicked") != 1 {
		t.Error("panic must be logged")
	}
}

type panicking struct{}

func (panicking) Extract(context.Context, *nlp.StructuredRequest) (*nlp.StructuredResponse, error) {
	panic("unexpected")
}

func TestExtractPropagatesTraceID(t *testing.T) {
	f := newFixture()
	ctx := logger.WithTraceID(context.Background(), "trace-123")

	res, err := f.orch.Extract(ctx, &models.ExtractionRequest{Schema: models.Schema{"cpf": ""}, Text: "CPF: 123.456.789-10"})
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if res.TraceID != "trace-123" {
		t.Errorf("trace id = %q", res.TraceID)
	}
	for _, e := range f.log.GetEntries() {
		if e.Message != "Extraction completed" {
			continue
		}
		for _, field := range e.Fields {
			if field.Key == "traceId" && field.String == "trace-123" {
				return
			}
		}
		t.Fatalf("log fields = %v, want traceId", e.Fields)
	}
	t.Error("completion was not logged")
}

// With every remote circuit open the pipeline still answers, with the field
// marked not found.
func TestExtractWithOpenCircuits(t *testing.T) {
	var structuredHits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/smart-extract") {
			structuredHits.Add(1)
		}
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	tripFast := func(p resilience.Policy) resilience.Policy {
		p.Timeout = time.Second
		p.MaxRetries = 0
		p.BaseDelay = time.Millisecond
		p.FailureThreshold = 1
		p.OpenDuration = time.Hour
		return p
	}
	cfg := nlp.DefaultConfig()
	cfg.BaseURL = srv.URL
	cfg.Classifier = tripFast(cfg.Classifier)
	cfg.Structured = tripFast(cfg.Structured)
	cfg.Generative = tripFast(cfg.Generative)
	clients := nlp.NewClients(cfg, srv.Client(), nil)

	orch := NewOrchestrator(DepsFromClients(clients, labels.NewDetector(labels.DefaultOptions(), nil, nil)), DefaultConfig(), nil)
	req := &models.ExtractionRequest{
		Label:  "carteira_oab",
		Schema: models.Schema{"nome": "full name"},
		Text:   "NOME COMPLETO: Maria Silva",
	}

	// The first request trips the breakers; structured exhaustion surfaces.
	if _, err := orch.Extract(context.Background(), req); !errors.Is(err, ErrUpstreamUnavailable) {
		t.Fatalf("first Extract() error = %v, want ErrUpstreamUnavailable", err)
	}
	if clients.Structured.CircuitState() != resilience.StateOpen {
		t.Fatalf("structured circuit = %v, want open", clients.Structured.CircuitState())
	}

	res, err := orch.Extract(context.Background(), req)
	if err != nil {
		t.Fatalf("Extract() with open circuits error = %v", err)
	}
	nome := res.Fields["nome"]
	if nome.Value != "" || nome.Confidence != 0 || nome.Method != models.MethodNotFound {
		t.Errorf("nome = %+v, want not_found", nome)
	}
	if structuredHits.Load() != 1 {
		t.Errorf("structured endpoint hit %d times, want 1", structuredHits.Load())
	}
	if res.Threshold.Reason != models.ReasonDefaultUnavailable || res.Threshold.Value != 0.7 {
		t.Errorf("threshold = %+v", res.Threshold)
	}
}
