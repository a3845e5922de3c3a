// Package httpapi is a JSON-over-HTTP provider adapter. One Client fronts
// a single engine endpoint; the engine either returns the finished asset
// reference inline or acknowledges the job for asynchronous completion.
package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sethvargo/go-retry"

	"pixelmint/internal/model"
	"pixelmint/internal/provider"
)

const (
	defaultTimeout    = 60 * time.Second
	retryBase         = 500 * time.Millisecond
	maxRetries        = 2
	maxResponseLength = 1 << 20
)

type Client struct {
	name       string
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

var _ provider.Provider = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func New(name, baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		name:       name,
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Name() string { return c.name }

type generateBody struct {
	Operation string `json:"operation"`
	Prompt    string `json:"prompt"`
	SourceRef string `json:"source_ref,omitempty"`
	Duration  int    `json:"duration_seconds,omitempty"`
}

type generateResponse struct {
	Status   string         `json:"status"`
	AssetURL string         `json:"asset_url"`
	Raw      map[string]any `json:"-"`
}

// Generate posts the request to the engine. Transient transport failures
// and 5xx responses are retried with exponential backoff before the call
// is reported as failed.
func (c *Client) Generate(ctx context.Context, req provider.Request) (provider.Result, error) {
	body, err := json.Marshal(generateBody{
		Operation: string(req.Kind),
		Prompt:    req.Prompt,
		SourceRef: req.SourceRef,
		Duration:  req.DurationSeconds,
	})
	if err != nil {
		return provider.Result{}, fmt.Errorf("%w: encode request: %v", provider.ErrDispatchFailed, err)
	}

	var resp generateResponse
	backoff := retry.WithMaxRetries(maxRetries, retry.NewExponential(retryBase))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		return c.post(ctx, body, &resp)
	})
	if err != nil {
		return provider.Result{}, fmt.Errorf("%w: %v", provider.ErrDispatchFailed, err)
	}

	// An inline asset reference means the engine finished synchronously.
	if resp.AssetURL != "" && resp.Status != "queued" {
		return provider.Result{FinalRef: resp.AssetURL}, nil
	}
	return provider.Result{Queued: true, AcceptancePayload: resp.Raw}, nil
}

func (c *Client) post(ctx context.Context, body []byte, out *generateResponse) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/generate", bytes.NewReader(body))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return retry.RetryableError(err)
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseLength))
	if err != nil {
		return retry.RetryableError(err)
	}

	switch {
	case httpResp.StatusCode >= 500:
		return retry.RetryableError(fmt.Errorf("engine returned %d", httpResp.StatusCode))
	case httpResp.StatusCode >= 400:
		return fmt.Errorf("engine returned %d", httpResp.StatusCode)
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode engine response: %w", err)
	}
	// Keep the raw shape for the tracking resolver.
	raw := make(map[string]any)
	if err := json.Unmarshal(data, &raw); err == nil {
		out.Raw = raw
	}
	return nil
}

// KindSupported reports whether this adapter handles the given kind. All
// kinds share the one engine endpoint today.
func (c *Client) KindSupported(kind model.OperationKind) bool {
	return kind.Valid()
}
