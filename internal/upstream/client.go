// Package upstream talks to the education-administration REST API on behalf of gateway callers.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	appErrors "github.com/noah-isme/atis-gateway/pkg/errors"
	"github.com/noah-isme/atis-gateway/pkg/listquery"
	"github.com/noah-isme/atis-gateway/pkg/middleware/requestid"
	"github.com/noah-isme/atis-gateway/pkg/retry"
)

const maxErrorBody = 64 << 10

// Recorder receives per-call telemetry.
type Recorder interface {
	ObserveUpstream(endpoint, method string, status int, duration time.Duration)
	IncUpstreamRetry(endpoint string)
}

// Options configures a Client.
type Options struct {
	BaseURL      string
	Timeout      time.Duration
	MaxRetries   int
	RetryBackoff time.Duration
	HTTPClient   *http.Client
	// Logger receives fetch-level debug logs; pass a no-op logger to silence them.
	Logger  *zap.Logger
	Metrics Recorder
}

// Client is safe for concurrent use.
type Client struct {
	baseURL    string
	http       *http.Client
	maxRetries int
	backoff    time.Duration
	logger     *zap.Logger
	metrics    Recorder
}

// Blob is a downloaded file.
type Blob struct {
	Filename    string
	ContentType string
	Data        []byte
}

func New(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	backoff := opts.RetryBackoff
	if backoff <= 0 {
		backoff = 200 * time.Millisecond
	}
	maxRetries := opts.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &Client{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		http:       httpClient,
		maxRetries: maxRetries,
		backoff:    backoff,
		logger:     logger,
		metrics:    opts.Metrics,
	}
}

type tokenKey struct{}

// WithToken attaches the caller's bearer token to ctx.
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenKey{}, token)
}

// TokenFrom returns the bearer token stored by WithToken.
func TokenFrom(ctx context.Context) string {
	token, _ := ctx.Value(tokenKey{}).(string)
	return token
}

// Get fetches path and returns the raw body. Network failures and 5xx
// responses are retried with exponential backoff.
func (c *Client) Get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	var body []byte
	err := c.withRetry(ctx, path, func(ctx context.Context) error {
		resp, err := c.do(ctx, http.MethodGet, path, params, nil)
		if err != nil {
			return err
		}
		defer resp.Body.Close() //nolint:errcheck
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrUpstreamUnavailable.Code, appErrors.ErrUpstreamUnavailable.Status, "read upstream response")
		}
		body = data
		return nil
	})
	return body, err
}

// GetJSON fetches path and decodes a single record, unwrapping {data: ...}.
func (c *Client) GetJSON(ctx context.Context, path string, params url.Values, dest interface{}) error {
	body, err := c.Get(ctx, path, params)
	if err != nil {
		return err
	}
	return decodeInto(body, dest)
}

// List fetches path and normalizes the response into a list envelope.
func List[T any](ctx context.Context, c *Client, path string, params url.Values) (listquery.Envelope[T], error) {
	body, err := c.Get(ctx, path, params)
	if err != nil {
		return listquery.Envelope[T]{}, err
	}
	env, err := listquery.DecodeEnvelope[T](body)
	if err != nil {
		if errors.Is(err, listquery.ErrUnsuccessful) {
			return env, appErrors.Wrap(err, appErrors.ErrUpstreamUnavailable.Code, appErrors.ErrUpstreamUnavailable.Status, err.Error())
		}
		return env, appErrors.Wrap(err, appErrors.ErrInternal.Code, http.StatusBadGateway, "unexpected upstream response")
	}
	return env, nil
}

// SendJSON performs a mutation. Mutations are never retried.
func (c *Client) SendJSON(ctx context.Context, method, path string, payload, dest interface{}) error {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode payload: %w", err)
		}
		body = bytes.NewReader(raw)
	}
	resp, err := c.do(ctx, method, path, nil, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close() //nolint:errcheck
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrUpstreamUnavailable.Code, appErrors.ErrUpstreamUnavailable.Status, "read upstream response")
	}
	if dest == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	return decodeInto(data, dest)
}

// Download fetches a binary export.
func (c *Client) Download(ctx context.Context, path string, params url.Values) (*Blob, error) {
	var blob *Blob
	err := c.withRetry(ctx, path, func(ctx context.Context) error {
		resp, err := c.do(ctx, http.MethodGet, path, params, nil)
		if err != nil {
			return err
		}
		defer resp.Body.Close() //nolint:errcheck
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrUpstreamUnavailable.Code, appErrors.ErrUpstreamUnavailable.Status, "read upstream download")
		}
		blob = &Blob{
			Filename:    filenameFrom(resp.Header.Get("Content-Disposition")),
			ContentType: resp.Header.Get("Content-Type"),
			Data:        data,
		}
		return nil
	})
	return blob, err
}

func (c *Client) withRetry(ctx context.Context, path string, fn func(context.Context) error) error {
	endpoint := endpointLabel(path)
	return retry.Do(ctx, retry.Policy{
		MaxRetries: c.maxRetries,
		Backoff:    func() retry.Backoff { return retry.Exponential(c.backoff, 2) },
		Retryable:  Retryable,
		OnRetry: func(attempt int, err error) {
			c.logger.Debug("retrying upstream fetch", zap.String("path", path), zap.Int("attempt", attempt), zap.Error(err))
			if c.metrics != nil {
				c.metrics.IncUpstreamRetry(endpoint)
			}
		},
	}, fn)
}

// do sends one request. Non-2xx responses are returned as classified errors
// with the body already consumed.
func (c *Client) do(ctx context.Context, method, path string, params url.Values, body io.Reader) (*http.Response, error) {
	target := c.baseURL + "/" + strings.TrimLeft(path, "/")
	if len(params) > 0 {
		target += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("build upstream request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := TokenFrom(ctx); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if id := requestid.FromContext(ctx); id != "" {
		req.Header.Set(requestid.Header, id)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	duration := time.Since(start)
	endpoint := endpointLabel(path)
	if err != nil {
		c.observe(endpoint, method, 0, duration)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("upstream %s %s: %w", method, path, ctxErr)
		}
		c.logger.Debug("upstream fetch failed", zap.String("method", method), zap.String("url", target), zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrUpstreamUnavailable.Code, appErrors.ErrUpstreamUnavailable.Status, appErrors.ErrUpstreamUnavailable.Message)
	}
	c.observe(endpoint, method, resp.StatusCode, duration)
	c.logger.Debug("upstream fetch",
		zap.String("method", method),
		zap.String("url", target),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", duration),
	)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}
	defer resp.Body.Close() //nolint:errcheck
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return nil, Classify(resp.StatusCode, raw)
}

func (c *Client) observe(endpoint, method string, status int, d time.Duration) {
	if c.metrics != nil {
		c.metrics.ObserveUpstream(endpoint, method, status, d)
	}
}

func decodeInto(body []byte, dest interface{}) error {
	var probe struct {
		Success *bool           `json:"success"`
		Message string          `json:"message"`
		Data    json.RawMessage `json:"data"`
	}
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '{' && json.Unmarshal(trimmed, &probe) == nil {
		if probe.Success != nil && !*probe.Success {
			return appErrors.Clone(appErrors.ErrUpstreamUnavailable, probe.Message)
		}
		if data := bytes.TrimSpace(probe.Data); len(data) > 0 && !bytes.Equal(data, []byte("null")) {
			trimmed = data
		}
	}
	if err := json.Unmarshal(trimmed, dest); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, http.StatusBadGateway, "unexpected upstream response")
	}
	return nil
}

// endpointLabel keeps metric cardinality bounded by using the first path segment.
func endpointLabel(path string) string {
	trimmed := strings.Trim(path, "/")
	if i := strings.IndexByte(trimmed, '/'); i >= 0 {
		trimmed = trimmed[:i]
	}
	if trimmed == "" {
		return "root"
	}
	return trimmed
}

func filenameFrom(disposition string) string {
	if disposition == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(disposition)
	if err != nil {
		return ""
	}
	return params["filename"]
}
