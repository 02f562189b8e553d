package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Ahabibm4/chatbot/pkg/clients"
	"github.com/Ahabibm4/chatbot/pkg/logging"
)

const defaultCallTimeout = 10 * time.Second

// OperationsAPI is the NetCourier operations surface the tool adapters call.
type OperationsAPI interface {
	RescheduleJob(ctx context.Context, jobID, newWindow, requestedBy string) error
	TrackJob(ctx context.Context, jobID string) (map[string]any, error)
	CreateTicket(ctx context.Context, tenantID, summary, reportedBy string) error
}

// ClientConfig configures the operations API client.
type ClientConfig struct {
	BaseURL              string
	APIToken             string
	Timeout              time.Duration
	Logger               logging.Logger
	RetryConfig          *clients.RetryConfig
	CircuitBreakerConfig *clients.CircuitBreakerConfig
}

// Client calls the NetCourier operations REST API.
type Client struct {
	baseURL     string
	apiToken    string
	timeout     time.Duration
	httpClient  *http.Client
	logger      logging.Logger
	retryConfig clients.RetryConfig
}

// NewClient builds a client. Every call runs under its own deadline. Writes
// are not retried; reads use the configured retry policy.
func NewClient(cfg ClientConfig) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultCallTimeout
	}
	retryConfig := clients.DefaultRetryConfig()
	if cfg.RetryConfig != nil {
		retryConfig = *cfg.RetryConfig
	}
	if cfg.CircuitBreakerConfig != nil {
		retryConfig.Name = cfg.CircuitBreakerConfig.Name
		retryConfig.CircuitBreaker = clients.NewCircuitBreaker(*cfg.CircuitBreakerConfig)
	}
	return &Client{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		apiToken:    cfg.APIToken,
		timeout:     cfg.Timeout,
		httpClient:  clients.NewHTTPClient(cfg.Timeout),
		logger:      cfg.Logger,
		retryConfig: retryConfig,
	}
}

func (c *Client) RescheduleJob(ctx context.Context, jobID, newWindow, requestedBy string) error {
	payload := map[string]string{
		"jobId":       jobID,
		"newWindow":   newWindow,
		"requestedBy": requestedBy,
	}
	return c.post(ctx, "/jobs/reschedule", payload)
}

func (c *Client) CreateTicket(ctx context.Context, tenantID, summary, reportedBy string) error {
	payload := map[string]string{
		"tenantId":   tenantID,
		"summary":    summary,
		"reportedBy": reportedBy,
	}
	return c.post(ctx, "/tickets", payload)
}

func (c *Client) TrackJob(ctx context.Context, jobID string) (map[string]any, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	endpoint := fmt.Sprintf("%s/jobs/track?jobId=%s", c.baseURL, url.QueryEscape(jobID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	c.authorize(req)

	resp, err := clients.DoWithRetry(ctx, c.httpClient, req, c.retryConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to call operations API: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return nil, err
	}
	var status map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return status, nil
}

func (c *Client) post(ctx context.Context, path string, payload any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	cfg := c.retryConfig
	cfg.MaxRetries = 0
	resp, err := clients.DoWithRetry(ctx, c.httpClient, req, cfg)
	if err != nil {
		return fmt.Errorf("failed to call operations API: %w", err)
	}
	defer resp.Body.Close()
	return checkStatus(resp)
}

func (c *Client) authorize(req *http.Request) {
	if c.apiToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiToken)
	}
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return fmt.Errorf("operations API error (%d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
}
