package eit

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	// DefaultFetchTimeout bounds a single gateway request
	DefaultFetchTimeout = 10 * time.Second

	// DefaultMaxRetries is the number of attempts made before giving up
	DefaultMaxRetries = 3

	defaultBaseBackoff = 250 * time.Millisecond

	// A reading set is a few hundred bytes; anything near this is not one
	maxReadingsBody = 1 << 20
)

// FetchOption configures FetchReadingsFromAPI
type FetchOption func(*gateway)

// WithTimeout sets the per-request timeout of the default client
func WithTimeout(d time.Duration) FetchOption {
	return func(g *gateway) { g.timeout = d }
}

// WithMaxRetries sets the number of attempts
func WithMaxRetries(n int) FetchOption {
	return func(g *gateway) { g.attempts = n }
}

// WithBaseBackoff sets the first retry delay. Each later retry doubles it.
func WithBaseBackoff(d time.Duration) FetchOption {
	return func(g *gateway) { g.backoff = d }
}

// WithHTTPClient replaces the default client
func WithHTTPClient(client *http.Client) FetchOption {
	return func(g *gateway) { g.client = client }
}

// gatewayStatusError is a non-200 reply from the readings gateway
type gatewayStatusError struct {
	url  string
	code int
}

func (e *gatewayStatusError) Error() string {
	return fmt.Sprintf("gateway %s replied with status %d", e.url, e.code)
}

// permanent reports whether retrying cannot change the outcome
func (e *gatewayStatusError) permanent() bool {
	return e.code >= 400 && e.code < 500 && e.code != http.StatusTooManyRequests
}

type gateway struct {
	url      string
	client   *http.Client
	timeout  time.Duration
	attempts int
	backoff  time.Duration
}

// FetchReadingsFromAPI downloads one reading set from a sensor gateway and
// decodes it with DecodeReadings. Transport failures, 5xx and 429 replies are
// retried; other 4xx replies and undecodable payloads fail at once.
func FetchReadingsFromAPI(ctx context.Context, apiURL string, opts ...FetchOption) (*ReadingsMessage, error) {
	if apiURL == "" {
		return nil, fmt.Errorf("fetch readings: API URL is empty")
	}

	g := &gateway{
		url:      apiURL,
		timeout:  DefaultFetchTimeout,
		attempts: DefaultMaxRetries,
		backoff:  defaultBaseBackoff,
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.attempts < 1 {
		g.attempts = 1
	}
	if g.client == nil {
		g.client = &http.Client{Timeout: g.timeout}
	}

	body, err := g.download(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch readings: %w", err)
	}
	msg, err := DecodeReadings(body)
	if err != nil {
		return nil, fmt.Errorf("fetch readings from %s: %w", apiURL, err)
	}
	return msg, nil
}

// download retries get until it succeeds, fails permanently or runs out of attempts
func (g *gateway) download(ctx context.Context) ([]byte, error) {
	delay := g.backoff
	var lastErr error
	for n := 1; n <= g.attempts; n++ {
		body, err := g.get(ctx)
		if err == nil {
			return body, nil
		}
		lastErr = err

		var statusErr *gatewayStatusError
		if errors.As(err, &statusErr) && statusErr.permanent() {
			return nil, err
		}
		if n == g.attempts {
			break
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
		delay *= 2
	}
	return nil, fmt.Errorf("all %d attempts failed: %w", g.attempts, lastErr)
}

func (g *gateway) get(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.url, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "application/json, text/plain")

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, &gatewayStatusError{url: g.url, code: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxReadingsBody))
	if err != nil {
		return nil, fmt.Errorf("reading body from %s: %w", g.url, err)
	}
	return body, nil
}
