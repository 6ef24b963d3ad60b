package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/kalambet/persona/internal/keypool"
)

const (
	defaultTimeout     = 30 * time.Second
	defaultMaxAttempts = 6
	maxResponseSize    = 8 << 20 // 8MB
)

var (
	// ErrAllCredentialsExhausted is returned when the pool has no eligible
	// credential left for this call.
	ErrAllCredentialsExhausted = errors.New("all credentials exhausted")
	// ErrUpstreamNotFound is returned when the provider reports that the
	// requested resource does not exist.
	ErrUpstreamNotFound = errors.New("upstream resource not found")
	// ErrUpstreamTransport marks network-level failures.
	ErrUpstreamTransport = errors.New("upstream transport error")
)

// StatusError is returned when every attempt ended with a non-2xx answer.
type StatusError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: unexpected status %d: %s", e.Provider, e.StatusCode, e.Body)
}

// Attacher applies a credential to an outgoing request, as a header or a
// query parameter depending on the provider.
type Attacher func(req *http.Request, secret string)

// HeaderAttacher sets the credential on header name, optionally prefixed
// (e.g. "Bearer ").
func HeaderAttacher(name, prefix string) Attacher {
	return func(req *http.Request, secret string) {
		req.Header.Set(name, prefix+secret)
	}
}

// QueryAttacher sets the credential as a query parameter.
func QueryAttacher(param string) Attacher {
	return func(req *http.Request, secret string) {
		q := req.URL.Query()
		q.Set(param, secret)
		req.URL.RawQuery = q.Encode()
	}
}

// Request is a provider-agnostic template for one outbound call. It is
// re-materialized for every attempt.
type Request struct {
	Method string
	URL    string
	Header http.Header
	Body   []byte
}

// Response is a fully read upstream answer.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Fetcher issues one logical upstream call, rotating credentials from its
// pool across bounded sequential attempts.
type Fetcher struct {
	pool        *keypool.Pool
	attach      Attacher
	client      *retryablehttp.Client
	maxAttempts int
}

// Option customizes a Fetcher.
type Option func(*Fetcher)

// WithMaxAttempts bounds the number of attempts per call. The effective bound
// is min(pool size, n).
func WithMaxAttempts(n int) Option {
	return func(f *Fetcher) {
		if n > 0 {
			f.maxAttempts = n
		}
	}
}

// WithHTTPClient replaces the underlying HTTP client (for testing).
func WithHTTPClient(hc *http.Client) Option {
	return func(f *Fetcher) { f.client.HTTPClient = hc }
}

// New creates a Fetcher bound to pool.
func New(pool *keypool.Pool, attach Attacher, opts ...Option) *Fetcher {
	f := &Fetcher{
		pool:        pool,
		attach:      attach,
		client:      newTransport(),
		maxAttempts: defaultMaxAttempts,
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

// newTransport returns a retryablehttp client with its own retries disabled:
// rotation across the pool is the only retry mechanism.
func newTransport() *retryablehttp.Client {
	c := retryablehttp.NewClient()
	c.RetryMax = 0
	c.HTTPClient.Timeout = defaultTimeout
	c.Logger = slog.Default()
	c.CheckRetry = func(ctx context.Context, _ *http.Response, _ error) (bool, error) {
		return false, ctx.Err()
	}
	c.ErrorHandler = retryablehttp.PassthroughErrorHandler
	return c
}

// Pool returns the credential pool backing this fetcher.
func (f *Fetcher) Pool() *keypool.Pool { return f.pool }

// Fetch performs req with credential rotation. It returns on the first 2xx
// answer. Rate limits, server errors and transport errors are released to the
// pool and retried on the next credential. A 404 is final.
func (f *Fetcher) Fetch(ctx context.Context, req Request) (*Response, error) {
	provider := f.pool.Provider()
	attempts := min(f.pool.Size(), f.maxAttempts)

	var lastErr error
	for attempt := range attempts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		lease, ok := f.pool.Acquire()
		if !ok {
			slog.Warn("credential pool exhausted", "provider", provider, "attempt", attempt+1)
			if lastErr != nil {
				return nil, fmt.Errorf("%s: %w (last error: %v)", provider, ErrAllCredentialsExhausted, lastErr)
			}
			return nil, fmt.Errorf("%s: %w", provider, ErrAllCredentialsExhausted)
		}

		resp, err := f.do(ctx, req, lease.Secret)
		if err != nil {
			if ctx.Err() != nil {
				f.pool.Release(lease, keypool.Neutral)
				return nil, ctx.Err()
			}
			f.pool.Release(lease, keypool.TransportError)
			slog.Warn("upstream transport error",
				"provider", provider,
				"credential", lease.Name,
				"attempt", attempt+1,
				"error", err,
			)
			lastErr = fmt.Errorf("%s: %w: %v", provider, ErrUpstreamTransport, err)
			continue
		}

		outcome := classify(resp.StatusCode)
		f.pool.Release(lease, outcome)

		switch {
		case outcome == keypool.Success:
			return resp, nil
		case resp.StatusCode == http.StatusNotFound:
			return nil, fmt.Errorf("%s: %w", provider, ErrUpstreamNotFound)
		}

		slog.Warn("upstream non-2xx",
			"provider", provider,
			"credential", lease.Name,
			"attempt", attempt+1,
			"status", resp.StatusCode,
			"outcome", outcome.String(),
		)
		lastErr = &StatusError{
			Provider:   provider,
			StatusCode: resp.StatusCode,
			Body:       truncate(resp.Body, 200),
		}
	}

	if lastErr == nil {
		return nil, fmt.Errorf("%s: %w", provider, ErrAllCredentialsExhausted)
	}
	return nil, lastErr
}

func (f *Fetcher) do(ctx context.Context, tmpl Request, secret string) (*Response, error) {
	method := tmpl.Method
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	if tmpl.Body != nil {
		body = bytes.NewReader(tmpl.Body)
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, method, tmpl.URL, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	for k, vs := range tmpl.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if tmpl.Body != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}
	f.attach(req.Request, secret)

	resp, err := f.client.Do(req)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
		}
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       data,
	}, nil
}

// classify maps an HTTP status to a pool outcome.
func classify(status int) keypool.Outcome {
	switch {
	case status >= 200 && status < 300:
		return keypool.Success
	case status == http.StatusTooManyRequests:
		return keypool.RateLimited
	case status == http.StatusNotFound:
		return keypool.Neutral
	default:
		return keypool.ServerError
	}
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
