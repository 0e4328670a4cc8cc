package client

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pitabwire/util"
)

const defaultMaxBodySize = 1024

// headers never written to logs in clear
var redactedHeaders = map[string]bool{
	"Authorization": true,
	"Cookie":        true,
	"Set-Cookie":    true,
}

type LoggingTransportOption func(*loggingTransport)

type loggingTransport struct {
	transport   http.RoundTripper
	logHeaders  bool
	logBody     bool
	maxBodySize int64
}

// NewLoggingTransport logs each round trip at debug level, and failures at
// error level. Headers and bodies are only logged when enabled.
func NewLoggingTransport(transport http.RoundTripper, opts ...LoggingTransportOption) http.RoundTripper {
	if transport == nil {
		transport = http.DefaultTransport
	}

	t := &loggingTransport{
		transport:   transport,
		maxBodySize: defaultMaxBodySize,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func WithTransportLogHeaders(enabled bool) LoggingTransportOption {
	return func(t *loggingTransport) {
		t.logHeaders = enabled
	}
}

func WithTransportLogBody(enabled bool) LoggingTransportOption {
	return func(t *loggingTransport) {
		t.logBody = enabled
	}
}

func WithTransportMaxBodySize(size int64) LoggingTransportOption {
	return func(t *loggingTransport) {
		t.maxBodySize = size
	}
}

func (t *loggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	ctx := req.Context()

	t.logRequest(ctx, req)
	resp, err := t.transport.RoundTrip(req)
	t.logResponse(ctx, req, resp, err, time.Since(start))

	return resp, err
}

func (t *loggingTransport) logRequest(ctx context.Context, req *http.Request) {
	logger := util.Log(ctx).WithFields(map[string]any{
		"method": req.Method,
		"url":    req.URL.Redacted(),
	})

	if t.logHeaders {
		logger = logger.WithField("headers", flattenHeaders(req.Header))
	}
	if t.logBody && req.Body != nil {
		var logged []byte
		logged, req.Body = peekBody(req.Body, t.maxBodySize)
		if len(logged) > 0 {
			logger = logger.WithField("body", string(logged))
		}
	}

	logger.Debug("http request sent")
}

func (t *loggingTransport) logResponse(
	ctx context.Context,
	req *http.Request,
	resp *http.Response,
	err error,
	duration time.Duration,
) {
	logger := util.Log(ctx).WithFields(map[string]any{
		"url":      req.URL.Redacted(),
		"duration": duration.String(),
	})

	if err != nil {
		logger.WithError(err).Error("http request failed")
		return
	}

	logger = logger.WithField("status", resp.StatusCode)
	if t.logHeaders {
		logger = logger.WithField("headers", flattenHeaders(resp.Header))
	}
	if t.logBody && resp.Body != nil {
		var logged []byte
		logged, resp.Body = peekBody(resp.Body, t.maxBodySize)
		if len(logged) > 0 {
			logger = logger.WithField("body", string(logged))
		}
	}

	logger.Debug("http response received")
}

func flattenHeaders(headers http.Header) map[string]string {
	out := make(map[string]string, len(headers))
	for name, values := range headers {
		if len(values) == 0 {
			continue
		}
		if redactedHeaders[http.CanonicalHeaderKey(name)] {
			out[name] = "[redacted]"
			continue
		}
		out[name] = strings.Join(values, ", ")
	}
	return out
}

// peekBody reads up to limit bytes for logging and returns a body that still
// yields the full original content.
func peekBody(body io.ReadCloser, limit int64) ([]byte, io.ReadCloser) {
	head, err := io.ReadAll(io.LimitReader(body, limit))
	restored := struct {
		io.Reader
		io.Closer
	}{io.MultiReader(bytes.NewReader(head), body), body}
	if err != nil {
		return nil, restored
	}
	return head, restored
}
