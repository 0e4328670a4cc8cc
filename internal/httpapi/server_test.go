package httpapi_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/pitabwire/linguist/data"
	"github.com/pitabwire/linguist/internal/httpapi"
	"github.com/pitabwire/linguist/messages"
	"github.com/pitabwire/linguist/pipeline"
	"github.com/pitabwire/linguist/ratelimiter"
	"github.com/pitabwire/linguist/richtext"
	"github.com/pitabwire/linguist/translator"
)

type fakePipeline struct {
	translateErr error
	lastInbound  pipeline.Inbound
	lastUser     string
	lastKey      string
	lastIP       string
	lastMode     data.AutoMode
	lastForce    bool
}

func (f *fakePipeline) Intercept(_ context.Context, in pipeline.Inbound) pipeline.Outbound {
	f.lastInbound = in
	if in.Body == "" {
		return pipeline.Outbound{Tree: in.Tree}
	}
	return pipeline.Outbound{
		Tree:      richtext.Text("annotated"),
		LookupKey: "key-1",
		Plain:     in.Body,
		Annotated: true,
		Auto:      data.AutoOn,
	}
}

func (f *fakePipeline) Translate(_ context.Context, userID, lookupKey string) (*pipeline.Rendering, error) {
	f.lastUser, f.lastKey = userID, lookupKey
	if f.translateErr != nil {
		return nil, f.translateErr
	}
	return &pipeline.Rendering{
		LookupKey:          lookupKey,
		OriginalText:       "hello",
		OriginalLanguage:   "EN",
		TranslatedText:     "hallo",
		TranslatedLanguage: "DE",
		Tree:               richtext.Text("[EN -> DE] hallo"),
		Display:            "[EN -> DE] hallo (hello)",
	}, nil
}

func (f *fakePipeline) FailureMessage(_ context.Context, _ string, err error) string {
	return "failed: " + err.Error()
}

func (f *fakePipeline) LookupKeyFromCommand(command string) (string, bool) {
	key, ok := strings.CutPrefix(command, "/linguist translate ")
	return key, ok && key != ""
}

func (f *fakePipeline) SetLanguage(_ context.Context, userID, query string) pipeline.Reply {
	f.lastUser = userID
	if query == "klingon" {
		return pipeline.Reply{Text: "no match", Language: "EN-US"}
	}
	return pipeline.Reply{Text: "now DE", Language: "DE", OK: true}
}

func (f *fakePipeline) SetAutoMode(_ context.Context, userID string, mode data.AutoMode, canForce bool) pipeline.Reply {
	f.lastUser, f.lastMode, f.lastForce = userID, mode, canForce
	if mode == data.AutoForce && !canForce {
		return pipeline.Reply{Text: "denied", Language: "EN-US"}
	}
	return pipeline.Reply{Text: "ok", Language: "EN-US", OK: true}
}

func (f *fakePipeline) Join(_ context.Context, userID, name, ip string) pipeline.Joined {
	f.lastUser, f.lastIP = userID, ip
	return pipeline.Joined{IsNew: true, Country: "BR", Language: "PT-BR", Lines: []string{"Bem-vindo, " + name}}
}

func (f *fakePipeline) Languages(_ context.Context) ([]data.Language, error) {
	return []data.Language{{Code: "DE", NativeName: "Deutsch", EnglishName: "German"}}, nil
}

type ServerSuite struct {
	suite.Suite
	fake    *fakePipeline
	healthy error
	handler http.Handler
}

func TestServerSuite(t *testing.T) {
	suite.Run(t, new(ServerSuite))
}

func (s *ServerSuite) SetupTest() {
	s.fake = &fakePipeline{}
	s.healthy = nil
	s.handler = httpapi.New(s.fake,
		httpapi.WithHealthCheck(httpapi.CheckerFunc(func(context.Context) error { return s.healthy })),
	).Handler()
}

func (s *ServerSuite) do(method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func (s *ServerSuite) decode(rec *httptest.ResponseRecorder) map[string]any {
	var out map[string]any
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func (s *ServerSuite) TestHealth() {
	rec := s.do(http.MethodGet, "/healthz", "")
	s.Equal(http.StatusOK, rec.Code)
	s.Equal("ok", rec.Body.String())

	s.healthy = errors.New("db down")
	rec = s.do(http.MethodGet, "/healthz", "")
	s.Equal(http.StatusInternalServerError, rec.Code)
	s.Equal("unhealthy", rec.Body.String())
}

func (s *ServerSuite) TestIntercept() {
	rec := s.do(http.MethodPost, "/v1/messages/intercept",
		`{"message":{"text":"<bob> hi"},"sender":{"id":"u1","name":"bob"},"body":"hi","recipient":"r1"}`)
	s.Require().Equal(http.StatusOK, rec.Code)

	out := s.decode(rec)
	s.Equal(true, out["annotated"])
	s.Equal("key-1", out["lookup_key"])
	s.Equal("on", out["auto"])
	s.Equal(map[string]any{"text": "annotated"}, out["message"])

	s.Equal("bob", s.fake.lastInbound.Sender.Name)
	s.Equal("r1", s.fake.lastInbound.Recipient)
	s.Equal("<bob> hi", richtext.Flatten(s.fake.lastInbound.Tree))
}

func (s *ServerSuite) TestInterceptRejectsMissingMessage() {
	s.Equal(http.StatusBadRequest, s.do(http.MethodPost, "/v1/messages/intercept", `{"sender":{}}`).Code)
	s.Equal(http.StatusBadRequest, s.do(http.MethodPost, "/v1/messages/intercept", `{not json`).Code)
}

func (s *ServerSuite) TestTranslate() {
	rec := s.do(http.MethodPost, "/v1/translations", `{"user_id":"u1","lookup_key":"abc"}`)
	s.Require().Equal(http.StatusOK, rec.Code)

	out := s.decode(rec)
	s.Equal("hallo", out["translated_text"])
	s.Equal("DE", out["translated_language"])
	s.Equal("[EN -> DE] hallo (hello)", out["display"])
	s.Equal("abc", s.fake.lastKey)
}

func (s *ServerSuite) TestTranslateFromCommand() {
	rec := s.do(http.MethodPost, "/v1/translations", `{"user_id":"u1","command":"/linguist translate k9"}`)
	s.Require().Equal(http.StatusOK, rec.Code)
	s.Equal("k9", s.fake.lastKey)

	rec = s.do(http.MethodPost, "/v1/translations", `{"user_id":"u1","command":"/other"}`)
	s.Equal(http.StatusBadRequest, rec.Code)
}

func (s *ServerSuite) TestTranslateFailures() {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{messages.ErrUnknownLookup, http.StatusNotFound, "unknown_lookup"},
		{fmt.Errorf("wait: %w", messages.ErrNotYetAvailable), http.StatusServiceUnavailable, "not_yet_available"},
		{translator.ErrRateLimited, http.StatusTooManyRequests, "rate_limited"},
		{translator.ErrNoTranslation, http.StatusBadGateway, "translation_failed"},
	}

	for _, tc := range cases {
		s.Run(tc.code, func() {
			s.fake.translateErr = tc.err
			rec := s.do(http.MethodPost, "/v1/translations", `{"user_id":"u1","lookup_key":"abc"}`)
			s.Equal(tc.status, rec.Code)

			out := s.decode(rec)
			s.Equal(tc.code, out["code"])
			s.Equal("failed: "+tc.err.Error(), out["error"])
		})
	}
}

func (s *ServerSuite) TestSetLanguage() {
	rec := s.do(http.MethodPut, "/v1/users/u7/language", `{"query":"deutsch"}`)
	s.Require().Equal(http.StatusOK, rec.Code)
	s.Equal("u7", s.fake.lastUser)
	s.Equal("DE", s.decode(rec)["language"])

	rec = s.do(http.MethodPut, "/v1/users/u7/language", `{"query":"klingon"}`)
	s.Equal(http.StatusNotFound, rec.Code)
	s.Equal(false, s.decode(rec)["ok"])

	s.Equal(http.StatusBadRequest, s.do(http.MethodPut, "/v1/users/u7/language", `{"query":" "}`).Code)
}

func (s *ServerSuite) TestSetAutoMode() {
	rec := s.do(http.MethodPut, "/v1/users/u8/auto", `{"mode":"force"}`)
	s.Equal(http.StatusForbidden, rec.Code)
	s.Equal(data.AutoForce, s.fake.lastMode)
	s.False(s.fake.lastForce)

	rec = s.do(http.MethodPut, "/v1/users/u8/auto", `{"mode":"force","can_force":true}`)
	s.Equal(http.StatusOK, rec.Code)

	s.Equal(http.StatusBadRequest, s.do(http.MethodPut, "/v1/users/u8/auto", `{"mode":"sometimes"}`).Code)
}

func (s *ServerSuite) TestJoin() {
	rec := s.do(http.MethodPost, "/v1/users/u9/join", `{"name":"Aya","ip":"200.1.1.1"}`)
	s.Require().Equal(http.StatusOK, rec.Code)
	s.Equal("200.1.1.1", s.fake.lastIP)

	out := s.decode(rec)
	s.Equal(true, out["is_new"])
	s.Equal("PT-BR", out["language"])
	s.Equal([]any{"Bem-vindo, Aya"}, out["lines"])
}

func (s *ServerSuite) TestJoinUsesCallerAddress() {
	req := httptest.NewRequest(http.MethodPost, "/v1/users/u9/join", strings.NewReader(`{"name":"Aya"}`))
	req.Header.Set("X-Forwarded-For", "81.2.2.2")
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)

	s.Equal(http.StatusOK, rec.Code)
	s.Equal("81.2.2.2", s.fake.lastIP)
}

func (s *ServerSuite) TestLanguages() {
	rec := s.do(http.MethodGet, "/v1/languages", "")
	s.Require().Equal(http.StatusOK, rec.Code)

	var out []map[string]string
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &out))
	s.Equal([]map[string]string{{"code": "DE", "native_name": "Deutsch", "english_name": "German"}}, out)
}

func (s *ServerSuite) TestMethodNotAllowed() {
	s.Equal(http.StatusMethodNotAllowed, s.do(http.MethodGet, "/v1/translations", "").Code)
}

func (s *ServerSuite) TestRateLimitedPerIP() {
	limiter := ratelimiter.NewIPRateLimiter(nil, &ratelimiter.WindowConfig{
		WindowDuration: time.Minute,
		MaxPerWindow:   2,
	})
	defer func() { s.NoError(limiter.Close()) }()

	handler := httpapi.New(s.fake, httpapi.WithRateLimiter(limiter)).Handler()
	hit := func(path string) int {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.RemoteAddr = "10.0.0.1:1234"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	s.Equal(http.StatusOK, hit("/v1/languages"))
	s.Equal(http.StatusOK, hit("/v1/languages"))
	s.Equal(http.StatusTooManyRequests, hit("/v1/languages"))
	s.Equal(http.StatusOK, hit("/healthz"))
}
