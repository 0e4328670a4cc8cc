package translator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"net/http"
	"strings"
	"time"
)

const (
	DefaultMobileURL = "https://www2.deepl.com/jsonrpc"

	mobileBackendName = "mobile"
	mobileMethod      = "LMT_handle_texts"

	mobileIDLow   = 8300000
	mobileIDHigh  = 8399998
	mobileIDScale = 1000

	// the endpoint checks the timestamp against the count of this letter
	trackedLetter = "i"
)

// iOS app identity presented to the endpoint.
var mobileHeaders = map[string]string{
	"Content-Type":     "application/json",
	"Accept":           "*/*",
	"x-app-os-name":    "iOS",
	"x-app-os-version": "16.3.0",
	"Accept-Language":  "en-US,en;q=0.9",
	"Accept-Encoding":  "gzip, deflate, br",
	"x-app-device":     "iPhone13,2",
	"User-Agent":       "DeepL-iOS/2.11.2 iOS 16.3.0 (iPhone13,1)",
	"x-app-build":      "510265",
	"x-app-version":    "2.11.2",
}

type mobileRequest struct {
	JSONRPC string       `json:"jsonrpc"`
	Method  string       `json:"method"`
	Params  mobileParams `json:"params"`
	ID      int64        `json:"id"`
}

type mobileParams struct {
	Texts     []mobileText `json:"texts"`
	Splitting string       `json:"splitting"`
	Lang      mobileLang   `json:"lang"`
	Timestamp int64        `json:"timestamp"`
}

type mobileText struct {
	Text                string `json:"text"`
	RequestAlternatives int    `json:"requestAlternatives"`
}

type mobileLang struct {
	SourceLangUserSelected string `json:"source_lang_user_selected"`
	TargetLang             string `json:"target_lang"`
}

type mobileResponse struct {
	Result *struct {
		Texts []struct {
			Text string `json:"text"`
		} `json:"texts"`
		Lang string `json:"lang"`
	} `json:"result"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// MobileBackend speaks the JSON-RPC protocol of the mobile app.
type MobileBackend struct {
	url    string
	client *http.Client
	now    func() time.Time
	nextID func() int64
}

type MobileOption func(*MobileBackend)

func WithMobileURL(url string) MobileOption {
	return func(m *MobileBackend) {
		if url != "" {
			m.url = url
		}
	}
}

func WithMobileHTTPClient(c *http.Client) MobileOption {
	return func(m *MobileBackend) {
		if c != nil {
			m.client = c
		}
	}
}

func WithMobileClock(now func() time.Time) MobileOption {
	return func(m *MobileBackend) {
		m.now = now
	}
}

// WithMobileIDSource fixes request ids, for tests.
func WithMobileIDSource(next func() int64) MobileOption {
	return func(m *MobileBackend) {
		m.nextID = next
	}
}

func NewMobileBackend(opts ...MobileOption) *MobileBackend {
	m := &MobileBackend{
		url:    DefaultMobileURL,
		client: http.DefaultClient,
		now:    time.Now,
		nextID: randomMobileID,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *MobileBackend) Name() string {
	return mobileBackendName
}

func (m *MobileBackend) Translate(ctx context.Context, text, target string) (*Result, error) {
	payload, err := buildMobileRequest(m.nextID(), text, target, m.now())
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	for name, value := range mobileHeaders {
		req.Header.Set(name, value)
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, &TransportError{Backend: mobileBackendName, Err: err}
	}
	defer resp.Body.Close()

	body, err := readBody(resp)
	if err != nil {
		return nil, &TransportError{Backend: mobileBackendName, Status: resp.StatusCode, Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &TransportError{Backend: mobileBackendName, Status: resp.StatusCode}
	}

	var decoded mobileResponse
	if err = json.Unmarshal(body, &decoded); err != nil {
		return nil, &TransportError{Backend: mobileBackendName, Status: resp.StatusCode, Err: err}
	}
	if decoded.Error != nil {
		return nil, &TransportError{
			Backend: mobileBackendName,
			Status:  resp.StatusCode,
			Err:     fmt.Errorf("rpc error %d: %s", decoded.Error.Code, decoded.Error.Message),
		}
	}
	if decoded.Result == nil || len(decoded.Result.Texts) == 0 {
		return nil, fmt.Errorf("%s: %w", mobileBackendName, ErrNoTranslation)
	}

	return &Result{
		Text:           decoded.Result.Texts[0].Text,
		SourceLanguage: strings.ToUpper(decoded.Result.Lang),
		Backend:        mobileBackendName,
	}, nil
}

func randomMobileID() int64 {
	return (mobileIDLow + rand.Int64N(mobileIDHigh-mobileIDLow)) * mobileIDScale
}

// mobileTarget drops the region: the endpoint only knows two letter codes.
func mobileTarget(target string) string {
	target = strings.TrimSpace(target)
	if len(target) > 2 {
		target = target[:2]
	}
	return strings.ToLower(target)
}

// mobileTimestamp rounds now (in ms) up past a multiple of one more than the
// number of tracked letters in text. Text without the letter keeps the real time.
func mobileTimestamp(text string, now time.Time) int64 {
	ts := now.UnixMilli()
	count := int64(strings.Count(text, trackedLetter))
	if count == 0 {
		return ts
	}
	count++
	return ts - ts%count + count
}

// buildMobileRequest encodes the request with the method spacing the endpoint
// expects for the given id.
func buildMobileRequest(id int64, text, target string, now time.Time) ([]byte, error) {
	payload, err := json.Marshal(mobileRequest{
		JSONRPC: "2.0",
		Method:  mobileMethod,
		Params: mobileParams{
			Texts:     []mobileText{{Text: text}},
			Splitting: "newlines",
			Lang: mobileLang{
				SourceLangUserSelected: "AUTO",
				TargetLang:             mobileTarget(target),
			},
			Timestamp: mobileTimestamp(text, now),
		},
		ID: id,
	})
	if err != nil {
		return nil, err
	}

	spaced := []byte(`"method": "`)
	if (id+5)%29 == 0 || (id+3)%13 == 0 {
		spaced = []byte(`"method" : "`)
	}
	return bytes.Replace(payload, []byte(`"method":"`), spaced, 1), nil
}
