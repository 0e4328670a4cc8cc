package translator

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type MobileBackendSuite struct {
	suite.Suite
	now time.Time
}

func TestMobileBackendSuite(t *testing.T) {
	suite.Run(t, new(MobileBackendSuite))
}

func (s *MobileBackendSuite) SetupTest() {
	s.now = time.UnixMilli(1_700_000_000_123)
}

func (s *MobileBackendSuite) TestTimestampWithoutTrackedLetter() {
	s.Equal(s.now.UnixMilli(), mobileTimestamp("hello world", s.now))
}

func (s *MobileBackendSuite) TestTimestampWithTwoTrackedLetters() {
	t := s.now.UnixMilli()
	s.Equal(t-t%3+3, mobileTimestamp("mini", s.now))
}

func (s *MobileBackendSuite) TestTimestampIsCaseSensitive() {
	s.Equal(s.now.UnixMilli(), mobileTimestamp("IGLOO", s.now))
}

func (s *MobileBackendSuite) TestTarget() {
	cases := map[string]string{
		"EN-US": "en",
		"PT-BR": "pt",
		"de":    "de",
		" ZH ":  "zh",
	}
	for in, want := range cases {
		s.Equal(want, mobileTarget(in), in)
	}
}

func (s *MobileBackendSuite) TestRandomIDRange() {
	for range 1000 {
		id := randomMobileID()
		s.Zero(id % mobileIDScale)
		s.GreaterOrEqual(id/mobileIDScale, int64(mobileIDLow))
		s.Less(id/mobileIDScale, int64(mobileIDHigh))
	}
}

func (s *MobileBackendSuite) TestRequestFieldOrder() {
	payload, err := buildMobileRequest(plainSpacingID(s.T()), "hello", "DE", s.now)
	s.Require().NoError(err)

	s.True(bytes.HasPrefix(payload,
		[]byte(`{"jsonrpc":"2.0","method": "LMT_handle_texts","params":{"texts":[`)), string(payload))
	s.Contains(string(payload), `"splitting":"newlines"`)
	s.Contains(string(payload), `"lang":{"source_lang_user_selected":"AUTO","target_lang":"de"}`)
	s.Contains(string(payload), `"requestAlternatives":0`)
}

func (s *MobileBackendSuite) TestMethodSpacingQuirk() {
	wide := wideSpacingID(s.T())
	payload, err := buildMobileRequest(wide, "hello", "DE", s.now)
	s.Require().NoError(err)
	s.Contains(string(payload), `"method" : "LMT_handle_texts"`)

	narrow := plainSpacingID(s.T())
	payload, err = buildMobileRequest(narrow, "hello", "DE", s.now)
	s.Require().NoError(err)
	s.Contains(string(payload), `"method": "LMT_handle_texts"`)
	s.NotContains(string(payload), `"method" : `)
}

func (s *MobileBackendSuite) TestSpacedPayloadStillDecodes() {
	payload, err := buildMobileRequest(wideSpacingID(s.T()), "mini", "PT-BR", s.now)
	s.Require().NoError(err)

	var decoded mobileRequest
	s.Require().NoError(json.Unmarshal(payload, &decoded))
	s.Equal(mobileMethod, decoded.Method)
	s.Equal("pt", decoded.Params.Lang.TargetLang)
	s.Equal(mobileTimestamp("mini", s.now), decoded.Params.Timestamp)
}

func (s *MobileBackendSuite) TestTranslateBrotliResponse() {
	var gotHeaders http.Header
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeaders = r.Header.Clone()
		gotBody, _ = io.ReadAll(r.Body)

		w.Header().Set("Content-Encoding", "br")
		bw := brotli.NewWriter(w)
		_, _ = bw.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":{"texts":[{"text":"Hallo"}],"lang":"en"}}`))
		_ = bw.Close()
	}))
	defer srv.Close()

	backend := NewMobileBackend(
		WithMobileURL(srv.URL),
		WithMobileHTTPClient(noDecompressClient()),
		WithMobileClock(func() time.Time { return s.now }),
		WithMobileIDSource(func() int64 { return 8300001000 }),
	)

	res, err := backend.Translate(context.Background(), "Hello", "DE")
	s.Require().NoError(err)
	s.Equal("Hallo", res.Text)
	s.Equal("EN", res.SourceLanguage)
	s.Equal("mobile", res.Backend)

	s.Equal("iOS", gotHeaders.Get("x-app-os-name"))
	s.Equal("gzip, deflate, br", gotHeaders.Get("Accept-Encoding"))
	s.Contains(gotHeaders.Get("User-Agent"), "DeepL-iOS")
	s.Contains(string(gotBody), `"id":8300001000`)
}

func (s *MobileBackendSuite) TestTranslateNonSuccessStatus() {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	backend := NewMobileBackend(WithMobileURL(srv.URL))
	_, err := backend.Translate(context.Background(), "Hello", "DE")
	s.Require().Error(err)
	s.ErrorIs(err, ErrTransport)

	var te *TransportError
	s.Require().ErrorAs(err, &te)
	s.Equal(http.StatusTooManyRequests, te.Status)
}

func (s *MobileBackendSuite) TestTranslateRPCError() {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","error":{"code":1042912,"message":"Too many requests"}}`))
	}))
	defer srv.Close()

	backend := NewMobileBackend(WithMobileURL(srv.URL))
	_, err := backend.Translate(context.Background(), "Hello", "DE")
	s.ErrorIs(err, ErrTransport)
	s.Contains(err.Error(), "Too many requests")
}

func noDecompressClient() *http.Client {
	return &http.Client{Transport: &http.Transport{DisableCompression: true}}
}

func wideSpacingID(t *testing.T) int64 {
	t.Helper()
	for id := int64(mobileIDLow) * mobileIDScale; ; id += mobileIDScale {
		if (id+5)%29 == 0 || (id+3)%13 == 0 {
			return id
		}
		require.Less(t, id, int64(mobileIDHigh)*mobileIDScale)
	}
}

func plainSpacingID(t *testing.T) int64 {
	t.Helper()
	for id := int64(mobileIDLow) * mobileIDScale; ; id += mobileIDScale {
		if (id+5)%29 != 0 && (id+3)%13 != 0 {
			return id
		}
		require.Less(t, id, int64(mobileIDHigh)*mobileIDScale)
	}
}

func encodedResponse(t *testing.T, encoding string, body []byte) *http.Response {
	t.Helper()

	var buf bytes.Buffer
	switch encoding {
	case "gzip":
		w := gzip.NewWriter(&buf)
		_, err := w.Write(body)
		require.NoError(t, err)
		require.NoError(t, w.Close())
	case "deflate":
		w := zlib.NewWriter(&buf)
		_, err := w.Write(body)
		require.NoError(t, err)
		require.NoError(t, w.Close())
	case "raw-deflate":
		w, err := flate.NewWriter(&buf, flate.DefaultCompression)
		require.NoError(t, err)
		_, err = w.Write(body)
		require.NoError(t, err)
		require.NoError(t, w.Close())
		encoding = "deflate"
	case "br":
		w := brotli.NewWriter(&buf)
		_, err := w.Write(body)
		require.NoError(t, err)
		require.NoError(t, w.Close())
	default:
		buf.Write(body)
	}

	header := http.Header{}
	if encoding != "" {
		header.Set("Content-Encoding", encoding)
	}
	return &http.Response{StatusCode: http.StatusOK, Header: header, Body: io.NopCloser(&buf)}
}

func TestReadBodyEncodings(t *testing.T) {
	body := []byte(`{"result":{"texts":[{"text":"ok"}]}}`)

	for _, encoding := range []string{"", "identity", "gzip", "deflate", "raw-deflate", "br"} {
		t.Run("encoding="+encoding, func(t *testing.T) {
			got, err := readBody(encodedResponse(t, encoding, body))
			require.NoError(t, err)
			assert.Equal(t, body, got)
		})
	}
}

func TestReadBodyUnsupportedEncoding(t *testing.T) {
	resp := &http.Response{
		Header: http.Header{"Content-Encoding": []string{"zstd"}},
		Body:   io.NopCloser(strings.NewReader("x")),
	}
	_, err := readBody(resp)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "zstd")
}
