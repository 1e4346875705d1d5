package nlp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/davibasa/Enter-Fellowship-sub001/pkg/logger"
	"github.com/davibasa/Enter-Fellowship-sub001/pkg/resilience"
)

// defaultOpenAIConfidence is assigned to values the model returns without a score.
const defaultOpenAIConfidence = 0.85

const correctionPrompt = `You fill in missing fields of a document extraction.
Reply with a single JSON object. Each key is a field name from the schema and each value is
{"value": <string or null>, "confidence": <number between 0 and 1>}.
Use null when the document does not contain the field. Do not invent values.`

// OpenAIConfig configures the direct OpenAI correction backend.
type OpenAIConfig struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
	Model   string `mapstructure:"model"`
}

// OpenAICorrector performs generative correction against the OpenAI chat API
// instead of the extraction backend.
type OpenAICorrector struct {
	client openai.Client
	call   *resilience.Call[*CorrectionRequest, *CorrectionResponse]
	model  string
}

func NewOpenAICorrector(cfg OpenAIConfig, httpClient *http.Client, policy resilience.Policy, log logger.Logger) *OpenAICorrector {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(httpClient),
		// retries belong to the resilience policy
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	c := &OpenAICorrector{
		client: openai.NewClient(opts...),
		model:  cfg.Model,
	}
	policy.Name = GenerativeName
	c.call = resilience.NewCall(policy, c.complete, log,
		resilience.WithFallback[*CorrectionRequest, *CorrectionResponse](emptyCorrection),
	)
	return c
}

func (c *OpenAICorrector) Correct(ctx context.Context, req *CorrectionRequest) (*CorrectionResponse, error) {
	return c.call.Execute(ctx, req)
}

func (c *OpenAICorrector) Name() string { return c.call.Name() }
func (c *OpenAICorrector) CircuitState() resilience.State { return c.call.State() }

func (c *OpenAICorrector) complete(ctx context.Context, req *CorrectionRequest) (*CorrectionResponse, error) {
	model := req.Options.Model
	if model == "" {
		model = c.model
	}

	prompt, err := buildCorrectionPrompt(req)
	if err != nil {
		return nil, err
	}

	completion, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(correctionPrompt),
			openai.UserMessage(prompt),
		},
		Temperature: openai.Float(req.Options.Temperature),
	})
	if err != nil {
		return nil, mapOpenAIError(err)
	}
	if len(completion.Choices) == 0 {
		return nil, fmt.Errorf("%w: completion has no choices", resilience.ErrMalformedResponse)
	}

	return parseCorrection(completion.Choices[0].Message.Content)
}

func buildCorrectionPrompt(req *CorrectionRequest) (string, error) {
	schema, err := json.Marshal(req.Schema)
	if err != nil {
		return "", fmt.Errorf("failed to marshal schema: %w", err)
	}
	partial, err := json.Marshal(req.PartialResults)
	if err != nil {
		return "", fmt.Errorf("failed to marshal partial results: %w", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Document class: %s\n", req.Label)
	fmt.Fprintf(&b, "Schema: %s\n", schema)
	fmt.Fprintf(&b, "Current values: %s\n", partial)
	b.WriteString("Document:\n")
	b.WriteString(req.Text)
	return b.String(), nil
}

// parseCorrection accepts the JSON object in the model reply, with or
// without a markdown fence around it.
func parseCorrection(content string) (*CorrectionResponse, error) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end < start {
		return nil, fmt.Errorf("%w: no JSON object in completion", resilience.ErrMalformedResponse)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal([]byte(content[start:end+1]), &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", resilience.ErrMalformedResponse, err)
	}

	out := &CorrectionResponse{Fields: make(map[string]CorrectedField, len(raw))}
	for name, msg := range raw {
		var field CorrectedField
		if err := json.Unmarshal(msg, &field); err != nil {
			// plain "field": "value" replies
			var value *string
			if err := json.Unmarshal(msg, &value); err != nil {
				return nil, fmt.Errorf("%w: field %s: %v", resilience.ErrMalformedResponse, name, err)
			}
			field = CorrectedField{Value: value}
		}
		if field.Confidence == 0 && field.Value != nil && *field.Value != "" {
			field.Confidence = defaultOpenAIConfidence
		}
		field.Method = "openai"
		out.Fields[name] = field
	}
	return out, nil
}

func mapOpenAIError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return &resilience.StatusError{Code: apiErr.StatusCode, Body: apiErr.Message}
	}
	return err
}
