package models

import (
	"sort"
	"time"
)

// Schema maps a field name to its human-readable description.
type Schema map[string]string

// FieldNames returns the schema keys in sorted order.
func (s Schema) FieldNames() []string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Subset returns a schema restricted to the given field names.
func (s Schema) Subset(names []string) Schema {
	out := make(Schema, len(names))
	for _, name := range names {
		if desc, ok := s[name]; ok {
			out[name] = desc
		}
	}
	return out
}

// Options toggles the optional stages of a single extraction.
type Options struct {
	EnableStructured  bool     `json:"enableStructured"`
	EnableGenerative  bool     `json:"enableGenerative"`
	EnableCaching     bool     `json:"enableCaching"`
	ThresholdOverride *float64 `json:"confidenceThreshold,omitempty"`
}

// ExtractionRequest is created once per inbound call and never mutated afterwards.
type ExtractionRequest struct {
	Label   string  `json:"label"`
	Schema  Schema  `json:"schema"`
	Text    string  `json:"text"`
	Options Options `json:"options"`
}

// SourceStage identifies the pipeline stage that produced a field.
type SourceStage string

const (
	StagePattern    SourceStage = "pattern"
	StageClassifier SourceStage = "classifier"
	StageStructured SourceStage = "structured"
	StageMerge      SourceStage = "merge"
	StageGenerative SourceStage = "generative"
)

// MethodNotFound tags placeholders for fields no stage could fill.
const MethodNotFound = "not_found"

// ExtractedField is a single field value with its provenance.
type ExtractedField struct {
	Value      string      `json:"value"`
	Confidence float64     `json:"confidence"`
	Method     string      `json:"method"`
	Stage      SourceStage `json:"stage"`
	LineIndex  *int        `json:"lineIndex,omitempty"`
}

// Empty reports whether the field carries no value.
func (f ExtractedField) Empty() bool {
	return f.Value == ""
}

// NotFound builds the placeholder for a field that stayed empty.
func NotFound() ExtractedField {
	return ExtractedField{Method: MethodNotFound, Stage: StageMerge}
}

// PhaseMetrics records one stage of a pipeline run.
type PhaseMetrics struct {
	Name      string        `json:"name"`
	Elapsed   time.Duration `json:"-"`
	ElapsedMs int64         `json:"elapsedMs"`
	Items     int           `json:"items"`
	Cached    bool          `json:"cached"`
	Skipped   bool          `json:"skipped,omitempty"`
	Degraded  bool          `json:"degraded,omitempty"`
}

// ThresholdReason explains where a threshold came from.
type ThresholdReason string

const (
	ReasonRemoteValue        ThresholdReason = "remote-value"
	ReasonDefaultTimeout     ThresholdReason = "default-timeout"
	ReasonDefaultError       ThresholdReason = "default-error"
	ReasonDefaultUnavailable ThresholdReason = "default-unavailable"
)

// ThresholdDecision is resolved once per request.
type ThresholdDecision struct {
	Value  float64         `json:"value"`
	Reason ThresholdReason `json:"reason"`
	Detail string          `json:"detail,omitempty"`
}

// LabelStrategy names the detector tier that produced a label span.
type LabelStrategy string

const (
	StrategyExact      LabelStrategy = "exact"
	StrategyNormalized LabelStrategy = "normalized"
	StrategyFuzzy      LabelStrategy = "fuzzy"
	StrategySemantic   LabelStrategy = "semantic"
)

// DetectedLabel is a label span found in one line of the document.
type DetectedLabel struct {
	Field     string        `json:"field"`
	Text      string        `json:"text"`
	LineIndex int           `json:"lineIndex"`
	Start     int           `json:"start"`
	End       int           `json:"end"`
	Score     float64       `json:"score"`
	Strategy  LabelStrategy `json:"strategy"`
}

// ExtractionResult is returned by the pipeline for one request.
type ExtractionResult struct {
	TraceID        string                    `json:"traceId"`
	Label          string                    `json:"label"`
	Fields         map[string]ExtractedField `json:"fields"`
	Confidence     float64                   `json:"confidence"`
	Threshold      ThresholdDecision         `json:"threshold"`
	Missing        int                       `json:"missing"`
	ProcessingMs   int64                     `json:"processingMs"`
	Phases         []PhaseMetrics            `json:"phases"`
	StructuredUsed bool                      `json:"structuredUsed"`
	GenerativeUsed bool                      `json:"generativeUsed"`
	Cached         bool                      `json:"cached"`
	CreatedAt      time.Time                 `json:"createdAt"`
}

// LabelDetection is the outcome of a standalone label detection run.
type LabelDetection struct {
	Labels       []DetectedLabel `json:"labels"`
	StrippedText string          `json:"strippedText"`
}
