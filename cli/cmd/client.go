package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/satori-chatbots/chatbot-dojo-sub000/internal/domain"
)

// DojoClient handles API calls to the orchestrator.
type DojoClient struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewDojoClient creates a new client with the given base URL.
func NewDojoClient(baseURL string) *DojoClient {
	return &DojoClient{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// APIError represents an error response from the API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (%d): %s", e.StatusCode, e.Message)
}

// do sends a request and decodes a JSON response into out when it is non-nil.
func (c *DojoClient) do(method, path string, body interface{}, want int, out interface{}) error {
	var reader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(bodyBytes)
	}

	httpReq, err := http.NewRequest(method, c.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Add("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != want {
		return &APIError{StatusCode: resp.StatusCode, Message: errorMessage(respBody)}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

// errorMessage extracts {"error": "..."} bodies, falling back to the raw text.
func errorMessage(body []byte) string {
	var payload struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &payload) == nil && payload.Error != "" {
		return payload.Error
	}
	return strings.TrimSpace(string(body))
}

// StartTestRun sends POST /v1/executions/test-runs.
func (c *DojoClient) StartTestRun(req domain.TestRunRequest) (*domain.StartResponse, error) {
	var result domain.StartResponse
	if err := c.do(http.MethodPost, "/v1/executions/test-runs", req, http.StatusAccepted, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// StartGenerationRun sends POST /v1/executions/generation-runs.
func (c *DojoClient) StartGenerationRun(req domain.GenerationRunRequest) (*domain.StartResponse, error) {
	var result domain.StartResponse
	if err := c.do(http.MethodPost, "/v1/executions/generation-runs", req, http.StatusAccepted, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetExecution sends GET /v1/executions/{id}.
func (c *DojoClient) GetExecution(executionID string) (*domain.Execution, error) {
	var result domain.Execution
	if err := c.do(http.MethodGet, "/v1/executions/"+executionID, nil, http.StatusOK, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// CancelExecution sends POST /v1/executions/{id}/cancel.
func (c *DojoClient) CancelExecution(executionID string) (*domain.CancelResponse, error) {
	var result domain.CancelResponse
	if err := c.do(http.MethodPost, "/v1/executions/"+executionID+"/cancel", nil, http.StatusOK, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetResults sends GET /v1/executions/{id}/results.
func (c *DojoClient) GetResults(executionID string) (*domain.ResultTree, error) {
	var result domain.ResultTree
	if err := c.do(http.MethodGet, "/v1/executions/"+executionID+"/results", nil, http.StatusOK, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetGenerationResult sends GET /v1/executions/{id}/generation.
func (c *DojoClient) GetGenerationResult(executionID string) (*domain.GenerationResult, error) {
	var result domain.GenerationResult
	if err := c.do(http.MethodGet, "/v1/executions/"+executionID+"/generation", nil, http.StatusOK, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// WebSocketURL returns the progress feed URL for an execution.
func (c *DojoClient) WebSocketURL(executionID string) string {
	base := c.BaseURL
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base + "/ws?execution_id=" + executionID
}

func printAPIError(printf func(format string, i ...interface{}), action string, err error) {
	if apiErr, ok := err.(*APIError); ok {
		printf("%s failed (%d): %s\n", action, apiErr.StatusCode, apiErr.Message)
		return
	}
	printf("%s failed: %v\n", action, err)
}
