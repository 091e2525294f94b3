package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/eliteGoblin/focusd/access_mon/internal/api"
	"github.com/eliteGoblin/focusd/access_mon/internal/usecase"
)

// apiClient talks to the daemon's loopback HTTP API.
type apiClient struct {
	baseURL string
	http    *http.Client
}

func newAPIClient(addr string) *apiClient {
	return &apiClient{
		baseURL: "http://" + addr,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *apiClient) Health(ctx context.Context) (*api.HealthResponse, error) {
	var out api.HealthResponse
	if err := c.do(ctx, http.MethodGet, "/api/health", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *apiClient) Users(ctx context.Context) ([]usecase.UserView, error) {
	var out []usecase.UserView
	return out, c.do(ctx, http.MethodGet, "/api/users", nil, &out)
}

func (c *apiClient) Enforcers(ctx context.Context) ([]usecase.EnforcerView, error) {
	var out []usecase.EnforcerView
	return out, c.do(ctx, http.MethodGet, "/api/enforcers", nil, &out)
}

// Execute posts one operation. Domain rejections come back as a response
// with a non-success outcome, not as an error.
func (c *apiClient) Execute(ctx context.Context, kind string, args []byte) (*api.OperationResponse, error) {
	var out api.OperationResponse
	if err := c.do(ctx, http.MethodPost, "/api/operations/"+kind, args, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *apiClient) do(ctx context.Context, method, path string, body []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("daemon unreachable at %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	// Operation responses carry their outcome whatever the status code.
	var opResp api.OperationResponse
	if _, isOp := out.(*api.OperationResponse); isOp && json.Unmarshal(data, &opResp) == nil && opResp.Outcome != "" {
		*out.(*api.OperationResponse) = opResp
		return nil
	}

	if resp.StatusCode >= 300 {
		var apiErr api.ErrorResponse
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Message != "" {
			return fmt.Errorf("%s: %s", resp.Status, apiErr.Message)
		}
		return fmt.Errorf("unexpected response: %s", resp.Status)
	}
	return json.Unmarshal(data, out)
}
