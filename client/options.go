// Package client builds the outbound HTTP clients used for translation and geo lookups.
package client

import (
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	defaultHTTPTimeout     = 30 * time.Second
	defaultHTTPIdleTimeout = 90 * time.Second
)

// HTTPOption configures HTTP client behavior.
type HTTPOption func(*httpConfig)

type httpConfig struct {
	timeout     time.Duration
	transport   http.RoundTripper
	idleTimeout time.Duration

	traceRequests       bool
	traceRequestHeaders bool
	traceRequestBody    bool
}

// WithHTTPTimeout bounds every request made by the client.
func WithHTTPTimeout(timeout time.Duration) HTTPOption {
	return func(c *httpConfig) {
		c.timeout = timeout
	}
}

// WithHTTPTransport replaces the base transport, for tests mostly.
func WithHTTPTransport(transport http.RoundTripper) HTTPOption {
	return func(c *httpConfig) {
		c.transport = transport
	}
}

func WithHTTPIdleTimeout(timeout time.Duration) HTTPOption {
	return func(c *httpConfig) {
		c.idleTimeout = timeout
	}
}

// WithHTTPTraceRequests logs every request and response.
func WithHTTPTraceRequests(headers, body bool) HTTPOption {
	return func(c *httpConfig) {
		c.traceRequests = true
		c.traceRequestHeaders = headers
		c.traceRequestBody = body
	}
}

// NewHTTPClient creates a client instrumented with otelhttp.
func NewHTTPClient(opts ...HTTPOption) *http.Client {
	cfg := &httpConfig{
		timeout:     defaultHTTPTimeout,
		idleTimeout: defaultHTTPIdleTimeout,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	base := cfg.transport
	if base == nil {
		t := http.DefaultTransport.(*http.Transport).Clone()
		if cfg.idleTimeout > 0 {
			t.IdleConnTimeout = cfg.idleTimeout
		}
		base = t
	}

	var transport http.RoundTripper = otelhttp.NewTransport(base)
	if cfg.traceRequests {
		transport = NewLoggingTransport(transport,
			WithTransportLogHeaders(cfg.traceRequestHeaders),
			WithTransportLogBody(cfg.traceRequestBody))
	}

	return &http.Client{
		Transport: transport,
		Timeout:   cfg.timeout,
	}
}
