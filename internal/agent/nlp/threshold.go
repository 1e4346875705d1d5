package nlp

import (
	"context"
	"errors"
	"net/http"
	"net/url"

	"github.com/davibasa/Enter-Fellowship-sub001/internal/models"
	"github.com/davibasa/Enter-Fellowship-sub001/pkg/logger"
	"github.com/davibasa/Enter-Fellowship-sub001/pkg/resilience"
)

// DefaultThreshold applies whenever the metrics endpoint cannot answer.
const DefaultThreshold = 0.7

// ThresholdClient resolves per-label confidence thresholds through
// GET /metrics/threshold/{label}.
type ThresholdClient struct {
	call   *resilience.Call[string, *ThresholdResponse]
	logger logger.Logger
}

func NewThresholdClient(baseURL string, httpClient *http.Client, policy resilience.Policy, log logger.Logger) *ThresholdClient {
	if log == nil {
		log = logger.NewNop()
	}
	api := newJSONClient(baseURL, httpClient)
	op := func(ctx context.Context, label string) (*ThresholdResponse, error) {
		var out ThresholdResponse
		if err := api.get(ctx, "/metrics/threshold/"+url.PathEscape(label), &out, thresholdResponseSchema); err != nil {
			return nil, err
		}
		return &out, nil
	}

	policy.Name = ThresholdName
	// a stale threshold is acceptable, so the lookup never retries
	policy.MaxRetries = 0
	policy.FailureThreshold = 0
	policy.PropagateExhaustion = true
	return &ThresholdClient{
		call:   resilience.NewCall(policy, op, log),
		logger: log.Named("threshold"),
	}
}

// Resolve never fails: every failure maps to fallback with a reason tag.
// A fallback <= 0 means DefaultThreshold.
func (c *ThresholdClient) Resolve(ctx context.Context, label string, fallback float64) models.ThresholdDecision {
	if fallback <= 0 || fallback > 1 {
		fallback = DefaultThreshold
	}
	if c == nil {
		return models.ThresholdDecision{Value: fallback, Reason: models.ReasonDefaultUnavailable, Detail: "threshold client not configured"}
	}

	resp, err := c.call.Execute(ctx, label)
	if err == nil && resp != nil && resp.Threshold != nil {
		return models.ThresholdDecision{Value: *resp.Threshold, Reason: models.ReasonRemoteValue, Detail: resp.Reason}
	}

	decision := models.ThresholdDecision{Value: fallback}
	var statusErr *resilience.StatusError
	switch {
	case err == nil:
		decision.Reason = models.ReasonDefaultUnavailable
		decision.Detail = "empty response"
	case errors.Is(err, resilience.ErrTimeout) || errors.Is(err, context.DeadlineExceeded):
		decision.Reason = models.ReasonDefaultTimeout
		decision.Detail = err.Error()
	case errors.As(err, &statusErr), errors.Is(err, resilience.ErrMalformedResponse):
		decision.Reason = models.ReasonDefaultUnavailable
		decision.Detail = err.Error()
	default:
		decision.Reason = models.ReasonDefaultError
		decision.Detail = err.Error()
	}

	logger.FromContext(ctx, c.logger).Info("Using fallback threshold",
		logger.String("label", label),
		logger.Float64("threshold", decision.Value),
		logger.String("reason", string(decision.Reason)),
	)
	return decision
}

func (c *ThresholdClient) Name() string { return c.call.Name() }
func (c *ThresholdClient) CircuitState() resilience.State { return c.call.State() }
