// Package localization renders user facing strings in the user's language and
// provides the catalog of languages users can pick from.
package localization

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"net/http"
	"path"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/nicksnyder/go-i18n/v2/i18n"
	"github.com/pitabwire/util"
	"golang.org/x/text/language"
)

// Message ids.
const (
	TranslateHover        = "TranslateHover"
	TranslateFailed       = "TranslateFailed"
	TranslatePending      = "TranslatePending"
	TranslateRateLimited  = "TranslateRateLimited"
	WelcomeFirst          = "WelcomeFirst"
	WelcomeSecond         = "WelcomeSecond"
	WelcomeThird          = "WelcomeThird"
	LanguageChangeSuccess = "LanguageChangeSuccess"
	LanguageChangeFailed  = "LanguageChangeFailed"
	AutoOn                = "AutoOn"
	AutoOff               = "AutoOff"
	AutoForce             = "AutoForce"
	AutoForceDenied       = "AutoForceDenied"
)

//go:embed locales
var embedded embed.FS

const localesDir = "locales"

type contextKey string

func (c contextKey) String() string {
	return "linguist/localization/" + string(c)
}

const ctxKeyLanguage = contextKey("languageKey")

// ToContext adds language preferences to the supplied context.
func ToContext(ctx context.Context, lang []string) context.Context {
	return context.WithValue(ctx, ctxKeyLanguage, lang)
}

// FromContext extracts language preferences from the supplied context if any exist.
func FromContext(ctx context.Context) []string {
	languages, ok := ctx.Value(ctxKeyLanguage).([]string)
	if !ok {
		return nil
	}
	return languages
}

type Manager interface {
	Bundle() *i18n.Bundle
	Translate(ctx context.Context, request any, messageID string) string
	TranslateWithMap(ctx context.Context, request any, messageID string, variables map[string]any) string
}

type managerImpl struct {
	bundle *i18n.Bundle
}

type Option func(*options)

type options struct {
	files fs.FS
	dir   string
}

// WithMessageFiles loads messages.<lang>.toml files from dir in files on top
// of the built in messages.
func WithMessageFiles(files fs.FS, dir string) Option {
	return func(o *options) {
		o.files = files
		o.dir = dir
	}
}

// NewManager loads the built in messages and any extra message files.
func NewManager(opts ...Option) (Manager, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	bundle := i18n.NewBundle(language.English)
	bundle.RegisterUnmarshalFunc("toml", toml.Unmarshal)

	if err := loadMessageFiles(bundle, embedded, localesDir); err != nil {
		return nil, err
	}
	if o.files != nil {
		if err := loadMessageFiles(bundle, o.files, o.dir); err != nil {
			return nil, err
		}
	}

	return &managerImpl{bundle: bundle}, nil
}

func loadMessageFiles(bundle *i18n.Bundle, files fs.FS, dir string) error {
	matches, err := fs.Glob(files, path.Join(dir, "messages.*.toml"))
	if err != nil {
		return err
	}

	for _, name := range matches {
		if _, err = bundle.LoadMessageFileFS(files, name); err != nil {
			return fmt.Errorf("load message file %s: %w", name, err)
		}
	}
	return nil
}

// Bundle Access the translation bundle instantiated in the system.
func (s *managerImpl) Bundle() *i18n.Bundle {
	return s.bundle
}

// Translate performs a quick translation based on the supplied message id.
func (s *managerImpl) Translate(ctx context.Context, request any, messageID string) string {
	return s.TranslateWithMap(ctx, request, messageID, nil)
}

// TranslateWithMap translates messageID for request, which is a language code
// such as "PT-BR", a list of codes, an *http.Request or a context carrying
// languages set by ToContext.
func (s *managerImpl) TranslateWithMap(
	ctx context.Context,
	request any,
	messageID string,
	variables map[string]any,
) string {
	var languageSlice []string

	switch v := request.(type) {
	case *http.Request:
		languageSlice = ExtractLanguageFromHTTPRequest(v)
	case context.Context:
		languageSlice = FromContext(v)
	case string:
		languageSlice = []string{v}
	case []string:
		languageSlice = v
	default:
		util.Log(ctx).WithField("messageID", messageID).
			Warn("no valid request object found, use string, []string, context or http.Request")
		return messageID
	}

	tags := make([]string, 0, len(languageSlice))
	for _, l := range languageSlice {
		tags = append(tags, Tag(l).String())
	}

	localizer := i18n.NewLocalizer(s.bundle, tags...)
	translated, err := localizer.Localize(&i18n.LocalizeConfig{
		MessageID:      messageID,
		DefaultMessage: &i18n.Message{ID: messageID},
		TemplateData:   variables,
	})
	if err != nil {
		util.Log(ctx).WithError(err).WithField("messageID", messageID).Error("could not perform translation")
	}

	return translated
}

// Tag maps a catalog code such as "PT-BR" or "ZH" to its BCP 47 tag. Unknown
// codes map to English.
func Tag(code string) language.Tag {
	code = strings.TrimSpace(code)
	if i := strings.IndexByte(code, ';'); i >= 0 {
		code = code[:i]
	}

	tag, err := language.Parse(strings.ReplaceAll(code, "_", "-"))
	if err != nil {
		return language.English
	}
	return tag
}

func ExtractLanguageFromHTTPRequest(req *http.Request) []string {
	var languages []string
	if lang := req.URL.Query().Get("lang"); lang != "" {
		languages = append(languages, lang)
	}

	return append(languages, ExtractLanguageFromHTTPHeader(req.Header)...)
}

func ExtractLanguageFromHTTPHeader(req http.Header) []string {
	header := req.Get("Accept-Language")
	if header == "" {
		return nil
	}
	return strings.Split(header, ",")
}

// LanguageHTTPMiddleware stores the request's language preferences in its context.
func LanguageHTTPMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := ToContext(r.Context(), ExtractLanguageFromHTTPRequest(r))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
