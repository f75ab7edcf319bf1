package validation

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// ConnectivityResult represents the result of a connectivity check.
type ConnectivityResult struct {
	Reachable  bool
	StatusCode int
	Message    string
	Latency    time.Duration
	Error      error
}

// ConnectivityChecker probes the prompt enhancer's OpenAI-compatible
// endpoint.
type ConnectivityChecker struct {
	timeout time.Duration
	client  *http.Client
}

// NewConnectivityChecker returns a checker with a 10 second timeout.
func NewConnectivityChecker() *ConnectivityChecker {
	return &ConnectivityChecker{
		timeout: 10 * time.Second,
		client:  &http.Client{},
	}
}

// WithTimeout sets the timeout for connectivity checks.
func (c *ConnectivityChecker) WithTimeout(timeout time.Duration) *ConnectivityChecker {
	c.timeout = timeout
	return c
}

// CheckLLMEndpoint sends GET {baseURL}/models. Any response below 500 means
// the server is up; 401 and 403 are reported as reachable with a hint
// about the key.
func (c *ConnectivityChecker) CheckLLMEndpoint(ctx context.Context, baseURL, apiKey string) ConnectivityResult {
	if err := ValidateEndpointURL(baseURL); err != nil {
		return ConnectivityResult{
			Message: "Invalid endpoint URL",
			Error:   fmt.Errorf("prompt enhancer endpoint %q: %w", baseURL, err),
		}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	endpoint := strings.TrimRight(baseURL, "/") + "/models"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return ConnectivityResult{
			Message: "Failed to create request",
			Error:   fmt.Errorf("prompt enhancer endpoint %q: %w", endpoint, err),
		}
	}
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	latency := time.Since(start)
	if err != nil {
		msg := "Connection failed"
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			msg = fmt.Sprintf("Connection timed out after %v", c.timeout)
		}
		return ConnectivityResult{
			Message: msg,
			Latency: latency,
			Error:   fmt.Errorf("prompt enhancer unreachable at %s: %w", baseURL, err),
		}
	}
	defer resp.Body.Close()

	result := ConnectivityResult{
		StatusCode: resp.StatusCode,
		Latency:    latency,
	}
	switch {
	case resp.StatusCode >= 500:
		result.Message = fmt.Sprintf("Server error (status: %d)", resp.StatusCode)
		result.Error = fmt.Errorf("prompt enhancer at %s returned %s", baseURL, resp.Status)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		result.Reachable = true
		result.Message = fmt.Sprintf("Reachable but rejected the API key (status: %d)", resp.StatusCode)
	default:
		result.Reachable = true
		result.Message = fmt.Sprintf("Reachable (status: %d)", resp.StatusCode)
	}
	return result
}
