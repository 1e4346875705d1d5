package nlp

import (
	"context"
	"net/http"

	"github.com/davibasa/Enter-Fellowship-sub001/pkg/logger"
	"github.com/davibasa/Enter-Fellowship-sub001/pkg/resilience"
)

// ClassifierClient tags text blocks through POST /nli/classify.
type ClassifierClient struct {
	call *resilience.Call[*ClassifyRequest, *ClassifyResponse]
}

func NewClassifierClient(baseURL string, httpClient *http.Client, policy resilience.Policy, log logger.Logger) *ClassifierClient {
	api := newJSONClient(baseURL, httpClient)
	op := func(ctx context.Context, req *ClassifyRequest) (*ClassifyResponse, error) {
		var out ClassifyResponse
		if err := api.post(ctx, "/nli/classify", req, &out, classifyResponseSchema); err != nil {
			return nil, err
		}
		if out.TotalBlocks == 0 {
			out.TotalBlocks = len(out.ClassifiedBlocks)
		}
		return &out, nil
	}

	policy.Name = ClassifierName
	return &ClassifierClient{
		call: resilience.NewCall(policy, op, log,
			resilience.WithFallback[*ClassifyRequest, *ClassifyResponse](func(*ClassifyRequest) *ClassifyResponse {
				return &ClassifyResponse{ClassifiedBlocks: []ClassifiedBlock{}}
			}),
		),
	}
}

// Classify never fails on transport errors: a degraded response has zero
// TotalBlocks.
func (c *ClassifierClient) Classify(ctx context.Context, req *ClassifyRequest) (*ClassifyResponse, error) {
	return c.call.Execute(ctx, req)
}

func (c *ClassifierClient) Name() string { return c.call.Name() }
func (c *ClassifierClient) CircuitState() resilience.State { return c.call.State() }
