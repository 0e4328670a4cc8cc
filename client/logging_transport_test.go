package client //nolint:testpackage // exercises unexported helpers

import (
	"bytes"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/suite"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}

type LoggingTransportSuite struct {
	suite.Suite
}

func TestLoggingTransportSuite(t *testing.T) {
	suite.Run(t, new(LoggingTransportSuite))
}

func (s *LoggingTransportSuite) TestPeekBodyKeepsFullContent() {
	logged, body := peekBody(io.NopCloser(strings.NewReader("hello world")), 5)
	s.Equal("hello", string(logged))

	full, err := io.ReadAll(body)
	s.Require().NoError(err)
	s.Equal("hello world", string(full))
	s.NoError(body.Close())
}

func (s *LoggingTransportSuite) TestRoundTripPreservesBodies() {
	var seen string
	base := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		b, _ := io.ReadAll(req.Body)
		seen = string(b)
		return &http.Response{
			StatusCode: http.StatusOK,
			Body:       io.NopCloser(bytes.NewBufferString("a long response body")),
			Header:     http.Header{"Set-Cookie": []string{"session=1"}},
		}, nil
	})

	rt := NewLoggingTransport(base,
		WithTransportLogHeaders(true),
		WithTransportLogBody(true),
		WithTransportMaxBodySize(4),
	)

	req, err := http.NewRequestWithContext(s.T().Context(), http.MethodPost,
		"https://example.test/v2/translate", strings.NewReader(`{"text":["hola"]}`))
	s.Require().NoError(err)
	req.Header.Set("Authorization", "DeepL-Auth-Key secret")

	resp, err := rt.RoundTrip(req)
	s.Require().NoError(err)
	defer resp.Body.Close()

	s.JSONEq(`{"text":["hola"]}`, seen)
	body, err := io.ReadAll(resp.Body)
	s.Require().NoError(err)
	s.Equal("a long response body", string(body))
}

func (s *LoggingTransportSuite) TestFlattenHeadersRedactsSecrets() {
	h := http.Header{}
	h.Set("Authorization", "DeepL-Auth-Key secret")
	h.Add("Accept", "application/json")
	h.Add("Accept", "text/plain")

	flat := flattenHeaders(h)
	s.Equal("[redacted]", flat["Authorization"])
	s.Equal("application/json, text/plain", flat["Accept"])
}

func (s *LoggingTransportSuite) TestNewHTTPClientAppliesTimeout() {
	c := NewHTTPClient(WithHTTPTimeout(3), WithHTTPTraceRequests(false, false))
	s.EqualValues(3, c.Timeout)
	s.NotNil(c.Transport)
}
