// Package geocode holds forward-geocoding adapters for the ports.Geocoder
// contract: Nominatim, OpenRouteService and an in-memory table for tests.
package geocode

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultMaxAttempts = 4
	defaultBackoff     = 200 * time.Millisecond
	defaultTimeout     = 10 * time.Second
)

type httpStatusError struct {
	Code int
	Body string
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("Code %d: %s", e.Code, e.Body)
}

// transport is the HTTP plumbing shared by the geocoders.
type transport struct {
	session     *http.Client
	headers     http.Header
	maxAttempts int
	backoff     time.Duration
	limiter     *rate.Limiter
}

func newTransport(timeout time.Duration, maxAttempts int) transport {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	return transport{
		session:     &http.Client{Timeout: timeout},
		headers:     http.Header{"Accept": []string{"application/json"}},
		maxAttempts: maxAttempts,
		backoff:     defaultBackoff,
	}
}

// PaceRetries makes every retry wait on l as well as the backoff. The first
// attempt is paced by the caller holding the same limiter.
func (t *transport) PaceRetries(l *rate.Limiter) {
	t.limiter = l
}

func (t *transport) newRequest(ctx context.Context, endpoint string, query map[string]string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	for k, v := range t.headers {
		req.Header[k] = v
	}

	q := req.URL.Query()
	for k, v := range query {
		q.Set(k, v)
	}
	req.URL.RawQuery = q.Encode()

	return req, nil
}

func (t *transport) do(req *http.Request) (*http.Response, error) {
	resp, err := t.session.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, &httpStatusError{
			Code: resp.StatusCode,
			Body: strings.TrimSpace(string(b)),
		}
	}
	return resp, nil
}

// get retries transient failures (network errors, 429 and 5xx responses)
// using exponential backoff, and the retry limiter when one is set, while
// respecting context cancellation.
func (t *transport) get(ctx context.Context, endpoint string, query map[string]string) (*http.Response, error) {
	backoff := t.backoff

	var lastErr error

	for attempt := 1; attempt <= t.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		req, err := t.newRequest(ctx, endpoint, query)
		if err != nil {
			return nil, fmt.Errorf("make request: %w", err)
		}

		resp, err := t.do(req)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if !retryable(err) || attempt == t.maxAttempts {
			return nil, lastErr
		}

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
		if t.limiter != nil {
			if err := t.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}

		backoff *= 2
	}

	return nil, lastErr
}

func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var he *httpStatusError
	if errors.As(err, &he) {
		switch he.Code {
		case 429, 500, 502, 503, 504:
			return true
		}
		return false
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}
