package nlp

import (
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ClassifyRequest asks the semantic classifier to tag text blocks.
type ClassifyRequest struct {
	Label      string            `json:"label"`
	Schema     map[string]string `json:"schema"`
	TextBlocks []string          `json:"text_blocks"`
	UseCache   bool              `json:"use_cache"`
}

type ClassifiedBlock struct {
	Text       string  `json:"text"`
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

// ClassifyResponse is degraded when TotalBlocks is zero.
type ClassifyResponse struct {
	ClassifiedBlocks []ClassifiedBlock `json:"classified_blocks"`
	CacheHits        int               `json:"cache_hits"`
	TotalBlocks      int               `json:"total_blocks"`
	ProcessingTimeMs float64           `json:"processing_time_ms"`
}

type StructuredOptions struct {
	UseMemory bool `json:"use_memory"`
	MaxLines  int  `json:"max_lines"`
}

// StructuredRequest asks the structured extractor for the pending fields.
type StructuredRequest struct {
	Label                  string            `json:"label"`
	Schema                 map[string]string `json:"schema"`
	Text                   string            `json:"text"`
	ConfidenceThreshold    float64           `json:"confidence_threshold"`
	EnableGenerativeAssist bool              `json:"enable_gpt_fallback"`
	Options                StructuredOptions `json:"options"`
}

type StructuredField struct {
	Value      *string `json:"value"`
	Confidence float64 `json:"confidence"`
	Method     string  `json:"method"`
	LineIndex  *int    `json:"line_index,omitempty"`
}

type StructuredResponse struct {
	Fields               map[string]StructuredField `json:"fields"`
	AvgConfidence        float64                    `json:"avg_confidence"`
	ProcessingTimeMs     float64                    `json:"processing_time_ms"`
	CacheHit             bool                       `json:"cache_hit"`
	MethodsUsed          map[string]int             `json:"methods_used"`
	GenerativeAssistUsed bool                       `json:"gpt_fallback_used"`
}

type PartialResult struct {
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence"`
}

type ModelOptions struct {
	Temperature float64 `json:"temperature"`
	Model       string  `json:"model"`
}

// CorrectionRequest carries the weak fields and their current values.
type CorrectionRequest struct {
	Label          string                   `json:"label"`
	Schema         map[string]string        `json:"schema"`
	PartialResults map[string]PartialResult `json:"partial_results"`
	Text           string                   `json:"text"`
	Options        ModelOptions             `json:"options"`
}

type CorrectedField struct {
	Value      *string `json:"value"`
	Confidence float64 `json:"confidence"`
	Method     string  `json:"method"`
}

type CorrectionResponse struct {
	Fields           map[string]CorrectedField `json:"fields"`
	ProcessingTimeMs float64                   `json:"processing_time_ms"`
	CacheHit         bool                      `json:"cache_hit"`
}

type ThresholdResponse struct {
	Label     string   `json:"label"`
	Threshold *float64 `json:"threshold"`
	Reason    string   `json:"reason"`
}

// LabelMatchRequest asks the embedding service which document tokens look like schema labels.
type LabelMatchRequest struct {
	Labels              map[string]string `json:"labels"`
	Text                string            `json:"text"`
	TopK                int               `json:"top_k"`
	MinTokenLength      int               `json:"min_token_length"`
	SimilarityThreshold float64           `json:"similarity_threshold"`
}

type CandidateMatch struct {
	CandidateText string  `json:"candidate_text"`
	MatchedLabel  string  `json:"matched_label"`
	Score         float64 `json:"score"`
	Rank          int     `json:"rank"`
}

type LabelMatchResponse struct {
	DetectedLabels   []CandidateMatch `json:"detected_labels"`
	ProcessingTimeMs float64          `json:"processing_time_ms"`
	TotalCandidates  int              `json:"total_candidates"`
	ModelUsed        string           `json:"model_used"`
}

// Response contracts. A payload failing these is treated as a transient failure.
var (
	classifyResponseSchema = jsonschema.MustCompileString("classify_response.json", `{
		"type": "object",
		"required": ["classified_blocks"],
		"properties": {
			"classified_blocks": {
				"type": "array",
				"items": {
					"type": "object",
					"required": ["text", "label", "confidence"],
					"properties": {
						"text": {"type": "string"},
						"label": {"type": "string"},
						"confidence": {"type": "number", "minimum": 0, "maximum": 1}
					}
				}
			},
			"cache_hits": {"type": "integer", "minimum": 0},
			"total_blocks": {"type": "integer", "minimum": 0}
		}
	}`)

	structuredResponseSchema = jsonschema.MustCompileString("structured_response.json", `{
		"type": "object",
		"required": ["fields"],
		"properties": {
			"fields": {
				"type": "object",
				"additionalProperties": {
					"type": "object",
					"required": ["confidence"],
					"properties": {
						"value": {"type": ["string", "null"]},
						"confidence": {"type": "number", "minimum": 0, "maximum": 1},
						"method": {"type": "string"},
						"line_index": {"type": ["integer", "null"]}
					}
				}
			},
			"avg_confidence": {"type": "number"},
			"cache_hit": {"type": "boolean"}
		}
	}`)

	correctionResponseSchema = jsonschema.MustCompileString("correction_response.json", `{
		"type": "object",
		"required": ["fields"],
		"properties": {
			"fields": {
				"type": "object",
				"additionalProperties": {
					"type": "object",
					"required": ["confidence"],
					"properties": {
						"value": {"type": ["string", "null"]},
						"confidence": {"type": "number", "minimum": 0, "maximum": 1},
						"method": {"type": "string"}
					}
				}
			}
		}
	}`)

	thresholdResponseSchema = jsonschema.MustCompileString("threshold_response.json", `{
		"type": "object",
		"required": ["threshold"],
		"properties": {
			"label": {"type": "string"},
			"threshold": {"type": "number", "minimum": 0, "maximum": 1},
			"reason": {"type": "string"}
		}
	}`)

	labelMatchResponseSchema = jsonschema.MustCompileString("label_match_response.json", `{
		"type": "object",
		"required": ["detected_labels"],
		"properties": {
			"detected_labels": {
				"type": "array",
				"items": {
					"type": "object",
					"required": ["candidate_text", "matched_label", "score"],
					"properties": {
						"candidate_text": {"type": "string"},
						"matched_label": {"type": "string"},
						"score": {"type": "number"},
						"rank": {"type": "integer"}
					}
				}
			}
		}
	}`)
)
