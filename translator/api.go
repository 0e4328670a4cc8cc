package translator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/pitabwire/util"

	"github.com/pitabwire/linguist/config"
)

const (
	DefaultAPIURL = "https://api-free.deepl.com/v2/translate"

	apiBackendName = "api"
)

type apiRequest struct {
	Text       []string `json:"text"`
	TargetLang string   `json:"target_lang"`
}

type apiResponse struct {
	Translations []struct {
		DetectedSourceLanguage string `json:"detected_source_language"`
		Text                   string `json:"text"`
	} `json:"translations"`
}

// APIBackend calls the authenticated translation API.
type APIBackend struct {
	url    string
	key    string
	client *http.Client

	warnOnce sync.Once
}

type APIOption func(*APIBackend)

func WithAPIURL(url string) APIOption {
	return func(a *APIBackend) {
		if url != "" {
			a.url = url
		}
	}
}

func WithAPIHTTPClient(c *http.Client) APIOption {
	return func(a *APIBackend) {
		if c != nil {
			a.client = c
		}
	}
}

// NewAPIBackend returns a backend authenticating with key. An empty or
// placeholder key makes every call fail with ErrNotConfigured.
func NewAPIBackend(key string, opts ...APIOption) *APIBackend {
	a := &APIBackend{
		url:    DefaultAPIURL,
		key:    strings.TrimSpace(key),
		client: http.DefaultClient,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *APIBackend) Name() string {
	return apiBackendName
}

func (a *APIBackend) Configured() bool {
	return config.IsAPIKeySet(a.key)
}

func (a *APIBackend) Translate(ctx context.Context, text, target string) (*Result, error) {
	if !a.Configured() {
		a.warnOnce.Do(func() {
			util.Log(ctx).Warn("translation api key is not set, api backend disabled")
		})
		return nil, fmt.Errorf("%s: %w", apiBackendName, ErrNotConfigured)
	}

	payload, err := json.Marshal(apiRequest{Text: []string{text}, TargetLang: strings.ToUpper(target)})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "DeepL-Auth-Key "+a.key)
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, &TransportError{Backend: apiBackendName, Err: err}
	}
	defer resp.Body.Close()

	body, err := readBody(resp)
	if err != nil {
		return nil, &TransportError{Backend: apiBackendName, Status: resp.StatusCode, Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &TransportError{Backend: apiBackendName, Status: resp.StatusCode}
	}

	var decoded apiResponse
	if err = json.Unmarshal(body, &decoded); err != nil {
		return nil, &TransportError{Backend: apiBackendName, Status: resp.StatusCode, Err: err}
	}
	if len(decoded.Translations) == 0 {
		return nil, fmt.Errorf("%s: %w", apiBackendName, ErrNoTranslation)
	}

	return &Result{
		Text:           decoded.Translations[0].Text,
		SourceLanguage: strings.ToUpper(decoded.Translations[0].DetectedSourceLanguage),
		Backend:        apiBackendName,
	}, nil
}
