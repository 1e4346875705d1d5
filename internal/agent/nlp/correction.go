package nlp

import (
	"context"
	"net/http"
	"strings"

	"github.com/davibasa/Enter-Fellowship-sub001/internal/models"
	"github.com/davibasa/Enter-Fellowship-sub001/pkg/logger"
	"github.com/davibasa/Enter-Fellowship-sub001/pkg/resilience"
)

// CorrectionClient asks the generative backend through POST /llm/fallback.
type CorrectionClient struct {
	call *resilience.Call[*CorrectionRequest, *CorrectionResponse]
}

func NewCorrectionClient(baseURL string, httpClient *http.Client, policy resilience.Policy, log logger.Logger) *CorrectionClient {
	api := newJSONClient(baseURL, httpClient)
	op := func(ctx context.Context, req *CorrectionRequest) (*CorrectionResponse, error) {
		var out CorrectionResponse
		if err := api.post(ctx, "/llm/fallback", req, &out, correctionResponseSchema); err != nil {
			return nil, err
		}
		return &out, nil
	}

	policy.Name = GenerativeName
	return &CorrectionClient{
		call: resilience.NewCall(policy, op, log,
			resilience.WithFallback[*CorrectionRequest, *CorrectionResponse](emptyCorrection),
		),
	}
}

func emptyCorrection(*CorrectionRequest) *CorrectionResponse {
	return &CorrectionResponse{Fields: map[string]CorrectedField{}}
}

func (c *CorrectionClient) Correct(ctx context.Context, req *CorrectionRequest) (*CorrectionResponse, error) {
	return c.call.Execute(ctx, req)
}

func (c *CorrectionClient) Name() string { return c.call.Name() }
func (c *CorrectionClient) CircuitState() resilience.State { return c.call.State() }

// ExtractedFields converts corrections for the fields that were asked for.
func (r *CorrectionResponse) ExtractedFields(asked models.Schema) map[string]models.ExtractedField {
	out := make(map[string]models.ExtractedField, len(r.Fields))
	for name, f := range r.Fields {
		if _, ok := asked[name]; !ok {
			continue
		}
		value := ""
		if f.Value != nil {
			value = strings.TrimSpace(*f.Value)
		}
		method := f.Method
		if method == "" {
			method = string(models.StageGenerative)
		}
		out[name] = models.ExtractedField{
			Value:      value,
			Confidence: clamp01(f.Confidence),
			Method:     method,
			Stage:      models.StageGenerative,
		}
	}
	return out
}
