package nlp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/davibasa/Enter-Fellowship-sub001/pkg/logger"
	"github.com/davibasa/Enter-Fellowship-sub001/pkg/resilience"
)

const maxErrorBody = 1024

// jsonClient speaks JSON to the extraction backend.
type jsonClient struct {
	baseURL string
	http    *http.Client
}

func newJSONClient(baseURL string, httpClient *http.Client) *jsonClient {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &jsonClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
	}
}

func (c *jsonClient) post(ctx context.Context, path string, in, out any, schema *jsonschema.Schema) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out, schema)
}

func (c *jsonClient) get(ctx context.Context, path string, out any, schema *jsonschema.Schema) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	return c.do(req, out, schema)
}

func (c *jsonClient) do(req *http.Request, out any, schema *jsonschema.Schema) error {
	req.Header.Set("Accept", "application/json")
	if traceID := logger.TraceIDFromContext(req.Context()); traceID != "" {
		req.Header.Set(logger.TraceHeader, traceID)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call %s: %w", req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &resilience.StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read %s response: %w", req.URL.Path, err)
	}
	return decodeValidated(payload, out, schema)
}

func decodeValidated(payload []byte, out any, schema *jsonschema.Schema) error {
	if len(bytes.TrimSpace(payload)) == 0 {
		return fmt.Errorf("%w: empty body", resilience.ErrMalformedResponse)
	}

	if schema != nil {
		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(payload))
		if err != nil {
			return fmt.Errorf("%w: %v", resilience.ErrMalformedResponse, err)
		}
		if err := schema.Validate(doc); err != nil {
			return fmt.Errorf("%w: %v", resilience.ErrMalformedResponse, err)
		}
	}

	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("%w: %v", resilience.ErrMalformedResponse, err)
	}
	return nil
}
