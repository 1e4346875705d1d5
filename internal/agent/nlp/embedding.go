package nlp

import (
	"context"
	"net/http"

	"github.com/davibasa/Enter-Fellowship-sub001/internal/agent/labels"
	"github.com/davibasa/Enter-Fellowship-sub001/internal/models"
	"github.com/davibasa/Enter-Fellowship-sub001/pkg/logger"
	"github.com/davibasa/Enter-Fellowship-sub001/pkg/resilience"
)

const (
	labelMatchTopK        = 3
	labelMatchTokenLength = 3
)

// EmbeddingClient asks POST /semantic-label-detect which document tokens
// resemble schema labels. It backs the semantic tier of the label detector.
type EmbeddingClient struct {
	call *resilience.Call[*LabelMatchRequest, *LabelMatchResponse]
}

var _ labels.SemanticMatcher = (*EmbeddingClient)(nil)

func NewEmbeddingClient(baseURL string, httpClient *http.Client, policy resilience.Policy, log logger.Logger) *EmbeddingClient {
	api := newJSONClient(baseURL, httpClient)
	op := func(ctx context.Context, req *LabelMatchRequest) (*LabelMatchResponse, error) {
		var out LabelMatchResponse
		if err := api.post(ctx, "/semantic-label-detect", req, &out, labelMatchResponseSchema); err != nil {
			return nil, err
		}
		return &out, nil
	}

	policy.Name = EmbeddingName
	return &EmbeddingClient{
		call: resilience.NewCall(policy, op, log,
			resilience.WithFallback[*LabelMatchRequest, *LabelMatchResponse](func(*LabelMatchRequest) *LabelMatchResponse {
				return &LabelMatchResponse{DetectedLabels: []CandidateMatch{}}
			}),
		),
	}
}

func (c *EmbeddingClient) MatchLabels(ctx context.Context, schema models.Schema, text string, threshold float64) ([]labels.SemanticCandidate, error) {
	resp, err := c.call.Execute(ctx, &LabelMatchRequest{
		Labels:              schema,
		Text:                text,
		TopK:                labelMatchTopK,
		MinTokenLength:      labelMatchTokenLength,
		SimilarityThreshold: threshold,
	})
	if err != nil {
		return nil, err
	}

	out := make([]labels.SemanticCandidate, 0, len(resp.DetectedLabels))
	for _, m := range resp.DetectedLabels {
		if _, ok := schema[m.MatchedLabel]; !ok || m.CandidateText == "" {
			continue
		}
		out = append(out, labels.SemanticCandidate{
			Text:  m.CandidateText,
			Field: m.MatchedLabel,
			Score: m.Score,
		})
	}
	return out, nil
}

func (c *EmbeddingClient) Name() string { return c.call.Name() }
func (c *EmbeddingClient) CircuitState() resilience.State { return c.call.State() }
