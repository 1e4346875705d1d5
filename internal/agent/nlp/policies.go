package nlp

import (
	"time"

	"github.com/davibasa/Enter-Fellowship-sub001/pkg/resilience"
)

const defaultBaseDelay = 200 * time.Millisecond

// Adapter names, used in logs and health reports.
const (
	ClassifierName = "classifier"
	StructuredName = "structured"
	GenerativeName = "generative"
	ThresholdName  = "threshold"
	EmbeddingName  = "embedding"
)

func DefaultClassifierPolicy() resilience.Policy {
	return resilience.Policy{
		Name:             ClassifierName,
		Timeout:          10 * time.Second,
		MaxRetries:       3,
		BaseDelay:        defaultBaseDelay,
		FailureThreshold: 5,
		OpenDuration:     300 * time.Second,
	}
}

// DefaultStructuredPolicy surfaces exhaustion: the pipeline has no cheaper
// source for the fields this stage is asked for.
func DefaultStructuredPolicy() resilience.Policy {
	return resilience.Policy{
		Name:                StructuredName,
		Timeout:             20 * time.Second,
		MaxRetries:          3,
		BaseDelay:           defaultBaseDelay,
		FailureThreshold:    5,
		OpenDuration:        30 * time.Second,
		PropagateExhaustion: true,
	}
}

func DefaultGenerativePolicy() resilience.Policy {
	return resilience.Policy{
		Name:             GenerativeName,
		Timeout:          30 * time.Second,
		MaxRetries:       2,
		BaseDelay:        defaultBaseDelay,
		FailureThreshold: 3,
		OpenDuration:     60 * time.Second,
	}
}

// DefaultThresholdPolicy is single-shot with no breaker.
func DefaultThresholdPolicy() resilience.Policy {
	return resilience.Policy{
		Name:    ThresholdName,
		Timeout: 1500 * time.Millisecond,
	}
}

func DefaultEmbeddingPolicy() resilience.Policy {
	return resilience.Policy{
		Name:             EmbeddingName,
		Timeout:          5 * time.Second,
		BaseDelay:        defaultBaseDelay,
		FailureThreshold: 3,
		OpenDuration:     60 * time.Second,
	}
}
