// Package nlp holds the adapters for the remote NLP capabilities used by the
// extraction pipeline. Each adapter wraps one endpoint in its own
// resilience.Call.
package nlp

import (
	"context"
	"net/http"

	"github.com/davibasa/Enter-Fellowship-sub001/pkg/health"
	"github.com/davibasa/Enter-Fellowship-sub001/pkg/logger"
	"github.com/davibasa/Enter-Fellowship-sub001/pkg/resilience"
)

// Generative backends.
const (
	BackendRemote = "remote"
	BackendOpenAI = "openai"
)

// Config selects endpoints and tuning for every adapter.
type Config struct {
	BaseURL           string            `mapstructure:"base_url"`
	GenerativeBackend string            `mapstructure:"generative_backend"`
	Classifier        resilience.Policy `mapstructure:"classifier"`
	Structured        resilience.Policy `mapstructure:"structured"`
	Generative        resilience.Policy `mapstructure:"generative"`
	Threshold         resilience.Policy `mapstructure:"threshold"`
	Embedding         resilience.Policy `mapstructure:"embedding"`
	OpenAI            OpenAIConfig      `mapstructure:"openai"`
}

func DefaultConfig() Config {
	return Config{
		BaseURL:           "http://localhost:8000",
		GenerativeBackend: BackendRemote,
		Classifier:        DefaultClassifierPolicy(),
		Structured:        DefaultStructuredPolicy(),
		Generative:        DefaultGenerativePolicy(),
		Threshold:         DefaultThresholdPolicy(),
		Embedding:         DefaultEmbeddingPolicy(),
		OpenAI:            OpenAIConfig{Model: "gpt-4o-mini"},
	}
}

// Generative is implemented by both correction backends.
type Generative interface {
	Correct(ctx context.Context, req *CorrectionRequest) (*CorrectionResponse, error)
	Name() string
	CircuitState() resilience.State
}

// Clients bundles one instance of every adapter. They live for the process
// lifetime so circuit state is shared across requests.
type Clients struct {
	Classifier *ClassifierClient
	Structured *StructuredClient
	Generative Generative
	Threshold  *ThresholdClient
	Embedding  *EmbeddingClient
}

func NewClients(cfg Config, httpClient *http.Client, log logger.Logger) *Clients {
	if log == nil {
		log = logger.NewNop()
	}
	log = log.Named("nlp")

	c := &Clients{
		Classifier: NewClassifierClient(cfg.BaseURL, httpClient, cfg.Classifier, log),
		Structured: NewStructuredClient(cfg.BaseURL, httpClient, cfg.Structured, log),
		Threshold:  NewThresholdClient(cfg.BaseURL, httpClient, cfg.Threshold, log),
		Embedding:  NewEmbeddingClient(cfg.BaseURL, httpClient, cfg.Embedding, log),
	}
	if cfg.GenerativeBackend == BackendOpenAI && cfg.OpenAI.APIKey != "" {
		c.Generative = NewOpenAICorrector(cfg.OpenAI, httpClient, cfg.Generative, log)
	} else {
		c.Generative = NewCorrectionClient(cfg.BaseURL, httpClient, cfg.Generative, log)
	}
	return c
}

// Probes exposes circuit states to the health reporter.
func (c *Clients) Probes() []health.Probe {
	return []health.Probe{c.Classifier, c.Structured, c.Generative, c.Threshold, c.Embedding}
}
