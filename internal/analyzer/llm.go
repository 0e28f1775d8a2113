package analyzer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// DefaultTimeout bounds one analyzer call. The call is attempted once per
// cycle; on timeout the deterministic fallback substitutes permanently.
const DefaultTimeout = 30 * time.Second

// LLMClient talks to an external LLM analysis service over HTTP. The
// service accepts the classification request as JSON and answers with
// either a canonical JSON object or free text embedding one.
type LLMClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
	timeout    time.Duration
}

// Option configures the LLMClient during construction.
type Option func(*clientConfig) error

type clientConfig struct {
	httpClient *http.Client
	logger     *slog.Logger
	timeout    time.Duration
}

// NewLLMClient creates a client for the analysis service at baseURL.
func NewLLMClient(baseURL string, opts ...Option) (*LLMClient, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("analyzer: baseURL is required")
	}
	baseURL = strings.TrimSuffix(baseURL, "/")

	cfg := &clientConfig{}
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}
	httpClient := cfg.httpClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	logger := cfg.logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	timeout := cfg.timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &LLMClient{
		baseURL:    baseURL,
		httpClient: httpClient,
		logger:     logger,
		timeout:    timeout,
	}, nil
}

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cfg *clientConfig) error {
		cfg.httpClient = c
		return nil
	}
}

// WithLogger configures structured logging.
func WithLogger(l *slog.Logger) Option {
	return func(cfg *clientConfig) error {
		cfg.logger = l
		return nil
	}
}

// WithTimeout bounds each Analyze call.
func WithTimeout(d time.Duration) Option {
	return func(cfg *clientConfig) error {
		cfg.timeout = d
		return nil
	}
}

// Ping probes the analysis service health endpoint. Used by serving
// surfaces to report analyzer availability without spending an analysis
// call.
func (c *LLMClient) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("%w: build request: %v", ErrUnavailable, err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}
	return nil
}

// serviceResponse is the analysis service's envelope. Content carries the
// model output; token accounting is optional.
type serviceResponse struct {
	Content    string `json:"content"`
	TokensUsed int    `json:"tokens_used"`
	Error      string `json:"error"`
}

// Analyze implements Analyzer: one POST to /analyze-failure under the
// client timeout. Every transport or service failure maps to
// ErrUnavailable; the caller substitutes the fallback.
func (c *LLMClient) Analyze(ctx context.Context, req *Request) (*RawResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("%w: marshal request: %v", ErrUnavailable, err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/analyze-failure", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrUnavailable, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.logger.Warn("analyzer call failed", "error", err, "elapsed", time.Since(start))
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Warn("analyzer returned non-2xx", "status", resp.StatusCode)
		return nil, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrUnavailable, err)
	}

	var svc serviceResponse
	if err := json.Unmarshal(data, &svc); err != nil {
		// Not the service envelope; treat the body as the model output.
		return &RawResponse{Body: string(data)}, nil
	}
	if svc.Error != "" {
		return nil, fmt.Errorf("%w: service error: %s", ErrUnavailable, svc.Error)
	}
	if svc.Content == "" {
		// Envelope-shaped but empty; pass the raw body through so Parse can
		// still try a direct canonical object.
		return &RawResponse{Body: string(data), TokensUsed: svc.TokensUsed}, nil
	}
	c.logger.Debug("analyzer responded", "tokens", svc.TokensUsed, "elapsed", time.Since(start))
	return &RawResponse{Body: svc.Content, TokensUsed: svc.TokensUsed}, nil
}
