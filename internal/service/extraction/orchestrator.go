// Package extraction runs the staged field extraction pipeline: pattern
// matching, threshold lookup, block classification, structured extraction,
// merge and generative correction.
package extraction

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/davibasa/Enter-Fellowship-sub001/internal/agent/labels"
	"github.com/davibasa/Enter-Fellowship-sub001/internal/agent/merge"
	"github.com/davibasa/Enter-Fellowship-sub001/internal/agent/nlp"
	"github.com/davibasa/Enter-Fellowship-sub001/internal/agent/pattern"
	"github.com/davibasa/Enter-Fellowship-sub001/internal/models"
	"github.com/davibasa/Enter-Fellowship-sub001/internal/utils/validator"
	"github.com/davibasa/Enter-Fellowship-sub001/pkg/logger"
)

// Phase names reported in ExtractionResult.Phases.
const (
	PhasePattern        = "pattern"
	PhaseThreshold      = "threshold"
	PhaseClassification = "classification"
	PhaseStructured     = "structured"
	PhaseMerge          = "merge"
	PhaseGenerative     = "generative"
)

// blockLabel is the classifier tag for a text block that is a field label.
const blockLabel = "label"

type Classifier interface {
	Classify(ctx context.Context, req *nlp.ClassifyRequest) (*nlp.ClassifyResponse, error)
}

type StructuredExtractor interface {
	Extract(ctx context.Context, req *nlp.StructuredRequest) (*nlp.StructuredResponse, error)
}

type Corrector interface {
	Correct(ctx context.Context, req *nlp.CorrectionRequest) (*nlp.CorrectionResponse, error)
}

type ThresholdResolver interface {
	Resolve(ctx context.Context, label string, fallback float64) models.ThresholdDecision
}

// LabelDetector finds label spans locally when the classifier is degraded.
type LabelDetector interface {
	DetectAll(ctx context.Context, schema models.Schema, lines []string) ([]models.DetectedLabel, error)
}

// Config holds pipeline tuning that is not tied to a single adapter.
type Config struct {
	DefaultThreshold      float64 `mapstructure:"default_threshold"`
	LabelCutoff           float64 `mapstructure:"label_cutoff"`
	MaxLines              int     `mapstructure:"max_lines"`
	UseMemory             bool    `mapstructure:"use_memory"`
	UseClassifierCache    bool    `mapstructure:"use_classifier_cache"`
	GenerativeModel       string  `mapstructure:"generative_model"`
	GenerativeTemperature float64 `mapstructure:"generative_temperature"`
}

func DefaultConfig() Config {
	return Config{
		DefaultThreshold:      nlp.DefaultThreshold,
		LabelCutoff:           0.7,
		MaxLines:              200,
		UseMemory:             true,
		UseClassifierCache:    true,
		GenerativeModel:       "gpt-4o-mini",
		GenerativeTemperature: 0.2,
	}
}

// Deps are the stage collaborators. Detector may be nil.
type Deps struct {
	Classifier Classifier
	Structured StructuredExtractor
	Corrector  Corrector
	Threshold  ThresholdResolver
	Detector   LabelDetector
}

// DepsFromClients wires the remote adapters and a local label detector.
func DepsFromClients(c *nlp.Clients, detector *labels.Detector) Deps {
	deps := Deps{
		Classifier: c.Classifier,
		Structured: c.Structured,
		Threshold:  c.Threshold,
		Corrector:  c.Generative,
	}
	if detector != nil {
		deps.Detector = detector
	}
	return deps
}

type Orchestrator struct {
	deps   Deps
	config Config
	logger logger.Logger
	now    func() time.Time
}

func NewOrchestrator(deps Deps, cfg Config, log logger.Logger) *Orchestrator {
	if log == nil {
		log = logger.NewNop()
	}
	if cfg.DefaultThreshold <= 0 || cfg.DefaultThreshold > 1 {
		cfg.DefaultThreshold = nlp.DefaultThreshold
	}
	return &Orchestrator{
		deps:   deps,
		config: cfg,
		logger: log.Named("orchestrator"),
		now:    time.Now,
	}
}

// run is the request-scoped state of one pipeline pass.
type run struct {
	req       *models.ExtractionRequest
	log       logger.Logger
	threshold models.ThresholdDecision
	phases    []models.PhaseMetrics
	now       func() time.Time
}

func (r *run) record(name string, started time.Time, items int, mod ...func(*models.PhaseMetrics)) {
	p := models.PhaseMetrics{Name: name, Elapsed: r.now().Sub(started), Items: items}
	p.ElapsedMs = p.Elapsed.Milliseconds()
	for _, m := range mod {
		m(&p)
	}
	r.phases = append(r.phases, p)
	r.log.Debug("Phase finished",
		logger.String("phase", name),
		logger.Int64("elapsedMs", p.ElapsedMs),
		logger.Int("items", items),
		logger.Bool("degraded", p.Degraded),
		logger.Bool("skipped", p.Skipped),
	)
}

func skipped(p *models.PhaseMetrics)  { p.Skipped = true }
func degraded(p *models.PhaseMetrics) { p.Degraded = true }

func cached(hit bool) func(*models.PhaseMetrics) {
	return func(p *models.PhaseMetrics) { p.Cached = hit }
}

// Extract runs the whole pipeline for one request. The returned field map
// always has exactly the schema's keys.
func (o *Orchestrator) Extract(ctx context.Context, req *models.ExtractionRequest) (result *models.ExtractionResult, err error) {
	if err := validator.ValidateExtractionRequest(req); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	traceID := logger.TraceIDFromContext(ctx)
	if traceID == "" {
		traceID = uuid.NewString()
		ctx = logger.WithTraceID(ctx, traceID)
	}
	log := logger.FromContext(ctx, o.logger).With(logger.String("label", req.Label))

	defer func() {
		if p := recover(); p != nil {
			log.Error("Extraction panicked",
				logger.Any("panic", p),
				logger.String("stack", string(debug.Stack())),
			)
			result, err = nil, fmt.Errorf("%w: %v", ErrInternal, p)
		}
	}()

	started := o.now()
	r := &run{req: req, log: log, now: o.now}
	log.Info("Extraction started",
		logger.Int("fields", len(req.Schema)),
		logger.Int("textLength", len(req.Text)),
	)

	patternFields, stripped := o.patternAndThreshold(ctx, r)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	threshold := r.threshold.Value

	working, err := o.classify(ctx, r, stripped)
	if err != nil {
		return nil, err
	}

	structured, structuredUsed, err := o.structured(ctx, r, patternFields, working)
	if err != nil {
		return nil, err
	}

	mergeStarted := o.now()
	fields := merge.Select(req.Schema, patternFields, structured)
	r.record(PhaseMerge, mergeStarted, len(req.Schema)-merge.CountMissing(req.Schema, fields))

	generativeUsed, err := o.correct(ctx, r, fields)
	if err != nil {
		return nil, err
	}

	result = &models.ExtractionResult{
		TraceID:        traceID,
		Label:          req.Label,
		Fields:         fields,
		Confidence:     merge.WeightedConfidence(fields),
		Threshold:      r.threshold,
		Missing:        merge.CountMissing(req.Schema, fields),
		ProcessingMs:   o.now().Sub(started).Milliseconds(),
		Phases:         r.phases,
		StructuredUsed: structuredUsed,
		GenerativeUsed: generativeUsed,
		CreatedAt:      o.now().UTC(),
	}

	log.Info("Extraction completed",
		logger.Int("found", len(req.Schema)-result.Missing),
		logger.Int("total", len(req.Schema)),
		logger.Float64("confidence", result.Confidence),
		logger.Float64("threshold", threshold),
		logger.Int64("elapsedMs", result.ProcessingMs),
	)
	return result, nil
}

// patternAndThreshold runs the two independent leading stages concurrently.
func (o *Orchestrator) patternAndThreshold(ctx context.Context, r *run) (map[string]models.ExtractedField, string) {
	var (
		patternFields    map[string]models.ExtractedField
		stripped         string
		patternStarted   time.Time
		patternElapsed   time.Duration
		thresholdStarted time.Time
		thresholdElapsed time.Duration
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		patternStarted = r.now()
		patternFields, stripped = pattern.Extract(r.req.Text, r.req.Schema)
		patternElapsed = r.now().Sub(patternStarted)
		return nil
	})
	g.Go(func() error {
		thresholdStarted = r.now()
		r.threshold = o.resolveThreshold(gctx, r.req)
		thresholdElapsed = r.now().Sub(thresholdStarted)
		return nil
	})
	_ = g.Wait()

	finished := r.now()
	r.record(PhasePattern, finished.Add(-patternElapsed), len(patternFields))
	r.record(PhaseThreshold, finished.Add(-thresholdElapsed), 1, func(p *models.PhaseMetrics) {
		p.Degraded = r.threshold.Reason != models.ReasonRemoteValue
	})
	r.log.Info("Threshold resolved",
		logger.Float64("threshold", r.threshold.Value),
		logger.String("reason", string(r.threshold.Reason)),
	)
	return patternFields, stripped
}

// resolveThreshold uses the request override as the local default; a remote
// value still wins.
func (o *Orchestrator) resolveThreshold(ctx context.Context, req *models.ExtractionRequest) models.ThresholdDecision {
	fallback := o.config.DefaultThreshold
	if t := req.Options.ThresholdOverride; t != nil && *t > 0 && *t <= 1 {
		fallback = *t
	}
	if o.deps.Threshold == nil {
		return models.ThresholdDecision{Value: fallback, Reason: models.ReasonDefaultUnavailable, Detail: "threshold resolver not configured"}
	}
	return o.deps.Threshold.Resolve(ctx, req.Label, fallback)
}

// classify drops text blocks the classifier tags as labels. When the
// classifier is degraded the local label detector strips labels instead.
func (o *Orchestrator) classify(ctx context.Context, r *run, text string) (string, error) {
	started := r.now()
	lines := nonEmptyLines(text)
	if len(lines) == 0 {
		r.record(PhaseClassification, started, 0, skipped)
		return text, nil
	}

	var resp *nlp.ClassifyResponse
	if o.deps.Classifier != nil {
		var err error
		resp, err = o.deps.Classifier.Classify(ctx, &nlp.ClassifyRequest{
			Label:      r.req.Label,
			Schema:     r.req.Schema,
			TextBlocks: lines,
			UseCache:   o.config.UseClassifierCache,
		})
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return "", ctxErr
			}
			r.log.Warn("Classification failed, continuing degraded", logger.Error(err))
			resp = nil
		}
	}

	if resp == nil || resp.TotalBlocks == 0 {
		working, found, err := o.stripLocally(ctx, r, lines)
		if err != nil {
			return "", err
		}
		r.record(PhaseClassification, started, found, degraded)
		return working, nil
	}

	labelBlocks := make(map[string]struct{})
	for _, b := range resp.ClassifiedBlocks {
		if strings.EqualFold(b.Label, blockLabel) && b.Confidence >= o.config.LabelCutoff {
			labelBlocks[strings.ToLower(strings.TrimSpace(b.Text))] = struct{}{}
		}
	}
	kept := make([]string, 0, len(lines))
	for _, line := range lines {
		if _, isLabel := labelBlocks[strings.ToLower(line)]; isLabel {
			continue
		}
		kept = append(kept, line)
	}

	removed := len(lines) - len(kept)
	r.log.Info("Classification finished",
		logger.Int("blocks", len(lines)),
		logger.Int("labelsRemoved", removed),
		logger.Int("cacheHits", resp.CacheHits),
	)
	r.record(PhaseClassification, started, removed, cached(resp.CacheHits > 0))
	return strings.Join(kept, "\n"), nil
}

func (o *Orchestrator) stripLocally(ctx context.Context, r *run, lines []string) (string, int, error) {
	joined := strings.Join(lines, "\n")
	if o.deps.Detector == nil {
		return joined, 0, nil
	}
	detected, err := o.deps.Detector.DetectAll(ctx, r.req.Schema, lines)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", 0, ctxErr
		}
		r.log.Warn("Local label detection failed", logger.Error(err))
		return joined, 0, nil
	}
	r.log.Info("Labels stripped locally", logger.Int("labels", len(detected)))
	return labels.StripLabels(joined, detected), len(detected), nil
}

// structured asks the structured extractor for the fields the pattern stage
// left empty, when the pattern stage alone is not convincing.
func (o *Orchestrator) structured(ctx context.Context, r *run, patternFields map[string]models.ExtractedField, text string) (map[string]models.ExtractedField, bool, error) {
	started := r.now()
	schema := r.req.Schema
	threshold := r.threshold.Value

	patternAvg := merge.AverageConfidence(patternFields)
	shouldRun := r.req.Options.EnableStructured ||
		patternAvg < threshold ||
		len(patternFields) < len(schema)/2

	if !shouldRun || o.deps.Structured == nil {
		r.log.Info("Structured extraction skipped",
			logger.Float64("patternConfidence", patternAvg),
			logger.Int("patternFields", len(patternFields)),
		)
		r.record(PhaseStructured, started, 0, skipped)
		return nil, false, nil
	}

	var pending []string
	for _, name := range schema.FieldNames() {
		if f, ok := patternFields[name]; !ok || strings.TrimSpace(f.Value) == "" {
			pending = append(pending, name)
		}
	}
	if len(pending) == 0 {
		r.record(PhaseStructured, started, 0, skipped)
		return nil, false, nil
	}
	subset := schema.Subset(pending)

	resp, err := o.deps.Structured.Extract(ctx, &nlp.StructuredRequest{
		Label:                  r.req.Label,
		Schema:                 subset,
		Text:                   text,
		ConfidenceThreshold:    threshold,
		EnableGenerativeAssist: r.req.Options.EnableGenerative,
		Options: nlp.StructuredOptions{
			UseMemory: o.config.UseMemory,
			MaxLines:  o.config.MaxLines,
		},
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, false, ctxErr
		}
		if !r.req.Options.EnableGenerative {
			r.log.Error("Structured extraction failed", logger.Error(err))
			return nil, false, fmt.Errorf("%w: %w", ErrUpstreamUnavailable, err)
		}
		r.log.Warn("Structured extraction failed, relying on generative correction", logger.Error(err))
		r.record(PhaseStructured, started, 0, degraded)
		return nil, true, nil
	}

	fields := resp.ExtractedFields(subset)
	found := 0
	for _, f := range fields {
		if !f.Empty() {
			found++
		}
	}
	r.log.Info("Structured extraction finished",
		logger.Int("pending", len(pending)),
		logger.Int("found", found),
		logger.Bool("cacheHit", resp.CacheHit),
	)
	r.record(PhaseStructured, started, found, cached(resp.CacheHit), func(p *models.PhaseMetrics) {
		p.Degraded = len(resp.Fields) == 0
	})
	return fields, true, nil
}

// correct sends empty and weak fields to the generative corrector and merges
// back the corrections that improve on them.
func (o *Orchestrator) correct(ctx context.Context, r *run, fields map[string]models.ExtractedField) (bool, error) {
	started := r.now()
	threshold := r.threshold.Value
	weighted := merge.WeightedConfidence(fields)
	missing := merge.CountMissing(r.req.Schema, fields)

	if !r.req.Options.EnableGenerative || o.deps.Corrector == nil || (weighted >= threshold && missing == 0) {
		r.record(PhaseGenerative, started, 0, skipped)
		return false, nil
	}

	asked := make(models.Schema)
	partial := make(map[string]nlp.PartialResult)
	for name, f := range fields {
		if f.Empty() || f.Confidence < threshold {
			asked[name] = r.req.Schema[name]
			partial[name] = nlp.PartialResult{Value: f.Value, Confidence: f.Confidence}
		}
	}
	if len(asked) == 0 {
		r.record(PhaseGenerative, started, 0, skipped)
		return false, nil
	}

	r.log.Info("Generative correction started",
		logger.Float64("confidence", weighted),
		logger.Int("missing", missing),
		logger.Int("asked", len(asked)),
	)
	resp, err := o.deps.Corrector.Correct(ctx, &nlp.CorrectionRequest{
		Label:          r.req.Label,
		Schema:         asked,
		PartialResults: partial,
		Text:           r.req.Text,
		Options: nlp.ModelOptions{
			Temperature: o.config.GenerativeTemperature,
			Model:       o.config.GenerativeModel,
		},
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return false, ctxErr
		}
		r.log.Warn("Generative correction failed, keeping merged result", logger.Error(err))
		r.record(PhaseGenerative, started, 0, degraded)
		return true, nil
	}

	applied := merge.ApplyCorrections(fields, resp.ExtractedFields(asked))
	r.log.Info("Generative correction finished",
		logger.Int("returned", len(resp.Fields)),
		logger.Int("applied", len(applied)),
	)
	r.record(PhaseGenerative, started, len(applied), cached(resp.CacheHit), func(p *models.PhaseMetrics) {
		p.Degraded = len(resp.Fields) == 0
	})
	return true, nil
}

func nonEmptyLines(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}
