package egress

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Deliverer sends a payload to one remote target.
type Deliverer interface {
	Name() string
	Deliver(ctx context.Context, p *Payload) error
}

// HTTPTarget posts the payload to a collection endpoint. The body is JSON
// sent as text/plain, which keeps the request simple enough to cross origins
// without a preflight; the response body is ignored and any HTTP status
// counts as dispatched.
type HTTPTarget struct {
	url    string
	client *http.Client
}

// HTTPOption configures an HTTPTarget.
type HTTPOption func(*HTTPTarget)

// WithHTTPClient overrides the HTTP client, mainly for tests.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(t *HTTPTarget) { t.client = c }
}

// NewHTTPTarget creates a deliverer for the given endpoint URL.
func NewHTTPTarget(url string, opts ...HTTPOption) *HTTPTarget {
	t := &HTTPTarget{
		url:    url,
		client: &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

// Name implements Deliverer.
func (t *HTTPTarget) Name() string { return "http" }

// Deliver implements Deliverer. Only transport failures are errors.
func (t *HTTPTarget) Deliver(ctx context.Context, p *Payload) error {
	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encoding payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building upload request: %w", err)
	}
	req.Header.Set("Content-Type", "text/plain;charset=utf-8")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("posting to %s: %w", t.url, err)
	}
	defer resp.Body.Close() //nolint:errcheck
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
