package nlp

import (
	"context"
	"net/http"
	"strings"

	"github.com/davibasa/Enter-Fellowship-sub001/internal/models"
	"github.com/davibasa/Enter-Fellowship-sub001/pkg/logger"
	"github.com/davibasa/Enter-Fellowship-sub001/pkg/resilience"
)

// StructuredClient extracts field values through POST /smart-extract.
type StructuredClient struct {
	call *resilience.Call[*StructuredRequest, *StructuredResponse]
}

func NewStructuredClient(baseURL string, httpClient *http.Client, policy resilience.Policy, log logger.Logger) *StructuredClient {
	api := newJSONClient(baseURL, httpClient)
	op := func(ctx context.Context, req *StructuredRequest) (*StructuredResponse, error) {
		var out StructuredResponse
		if err := api.post(ctx, "/smart-extract", req, &out, structuredResponseSchema); err != nil {
			return nil, err
		}
		return &out, nil
	}

	policy.Name = StructuredName
	return &StructuredClient{
		call: resilience.NewCall(policy, op, log,
			resilience.WithFallback[*StructuredRequest, *StructuredResponse](func(*StructuredRequest) *StructuredResponse {
				return &StructuredResponse{Fields: map[string]StructuredField{}}
			}),
		),
	}
}

// Extract returns an error once retries are exhausted; an open circuit
// yields an empty response instead.
func (c *StructuredClient) Extract(ctx context.Context, req *StructuredRequest) (*StructuredResponse, error) {
	return c.call.Execute(ctx, req)
}

func (c *StructuredClient) Name() string { return c.call.Name() }
func (c *StructuredClient) CircuitState() resilience.State { return c.call.State() }

// ExtractedFields converts the response, keeping only schema fields.
func (r *StructuredResponse) ExtractedFields(schema models.Schema) map[string]models.ExtractedField {
	out := make(map[string]models.ExtractedField, len(r.Fields))
	for name, f := range r.Fields {
		if _, ok := schema[name]; !ok {
			continue
		}
		value := ""
		if f.Value != nil {
			value = strings.TrimSpace(*f.Value)
		}
		method := f.Method
		if method == "" {
			method = string(models.StageStructured)
		}
		out[name] = models.ExtractedField{
			Value:      value,
			Confidence: clamp01(f.Confidence),
			Method:     method,
			Stage:      models.StageStructured,
			LineIndex:  f.LineIndex,
		}
	}
	return out
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
