// Package dockhand is the HTTP client for the compose executor service.
// Stevedore plans operations and journals them; dockhand runs the actual
// compose commands and reports progress back on the internal callback route.
package dockhand

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/failsafe-go/failsafe-go"

	"frameworks/api_compose/pkg/clients"
	"frameworks/api_compose/pkg/logging"
	"frameworks/api_compose/pkg/version"
)

// Client represents a Dockhand API client
type Client struct {
	baseURL      string
	httpClient   *http.Client
	serviceToken string
	logger       logging.Logger
	executor     failsafe.Executor[*http.Response]
}

// Config represents the configuration for the Dockhand client
type Config struct {
	BaseURL              string
	ServiceToken         string
	Timeout              time.Duration
	Logger               logging.Logger
	ExecutorCfg          *clients.HTTPExecutorConfig
	CircuitBreakerConfig *clients.CircuitBreakerConfig
}

// NewClient creates a new Dockhand client
func NewClient(config Config) *Client {
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}

	executorCfg := clients.DefaultHTTPExecutorConfig()
	if config.ExecutorCfg != nil {
		executorCfg = *config.ExecutorCfg
	}

	// Add circuit breaker if configured
	if config.CircuitBreakerConfig != nil {
		executorCfg.CircuitBreaker = clients.NewCircuitBreaker(*config.CircuitBreakerConfig)
	}

	return &Client{
		baseURL: config.BaseURL,
		httpClient: &http.Client{
			Timeout:   config.Timeout,
			Transport: clients.DefaultTransport(),
		},
		serviceToken: config.ServiceToken,
		logger:       config.Logger,
		executor:     clients.NewHTTPExecutor(executorCfg),
	}
}

// DispatchRequest asks Dockhand to run one compose action.
type DispatchRequest struct {
	OperationID     string   `json:"operation_id"`
	ProjectName     string   `json:"project_name"`
	Action          string   `json:"action"`
	ComposeFilePath string   `json:"compose_file_path,omitempty"`
	Services        []string `json:"services,omitempty"`
	// CallbackURL is where Dockhand posts status updates.
	CallbackURL string `json:"callback_url"`
}

// DispatchResponse acknowledges an accepted operation.
type DispatchResponse struct {
	OperationID string `json:"operation_id"`
	Accepted    bool   `json:"accepted"`
	Message     string `json:"message,omitempty"`
}

// Dispatch submits an operation for execution.
func (c *Client) Dispatch(ctx context.Context, req *DispatchRequest) (*DispatchResponse, error) {
	resp, err := c.doJSON(ctx, http.MethodPost, "/operations", req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("dockhand error (%d): %s", resp.StatusCode, string(body))
	}

	var out DispatchResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode dispatch response: %w", err)
	}
	return &out, nil
}

// Ping checks that Dockhand is reachable.
func (c *Client) Ping(ctx context.Context) error {
	resp, err := c.doJSON(ctx, http.MethodGet, "/health", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("dockhand unhealthy (%d)", resp.StatusCode)
	}
	return nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, payload any) (*http.Response, error) {
	var body []byte
	if payload != nil {
		var err error
		body, err = json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
	}

	resp, err := clients.ExecuteHTTP(ctx, c.executor, func() (*http.Response, error) {
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
		if err != nil {
			return nil, err
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("User-Agent", version.UserAgent("stevedore"))
		if c.serviceToken != "" {
			httpReq.Header.Set("Authorization", "Bearer "+c.serviceToken)
		}
		return c.httpClient.Do(httpReq)
	})
	if err != nil {
		return nil, fmt.Errorf("dockhand request failed: %w", err)
	}
	return resp, nil
}
