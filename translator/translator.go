// Package translator resolves text into a target language through a chain of
// remote backends guarded by a character budget.
package translator

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrRateLimited   = errors.New("translation budget exhausted")
	ErrNotConfigured = errors.New("translation backend is not configured")
	ErrNoTranslation = errors.New("no translation available")
	ErrTransport     = errors.New("translation transport failure")
)

// Result is a translated text with the source language the backend detected.
type Result struct {
	Text           string
	SourceLanguage string
	Backend        string
}

// Provider translates text into target, a language code such as "PT-BR".
type Provider interface {
	Translate(ctx context.Context, text, target string) (*Result, error)
}

// ProviderFunc adapts a function to the Provider interface.
type ProviderFunc func(ctx context.Context, text, target string) (*Result, error)

func (f ProviderFunc) Translate(ctx context.Context, text, target string) (*Result, error) {
	return f(ctx, text, target)
}

// Backend is a single remote translation service.
type Backend interface {
	Provider
	Name() string
}

// TransportError describes a failed exchange with a backend. It matches ErrTransport.
type TransportError struct {
	Backend string
	Status  int
	Err     error
}

func (e *TransportError) Error() string {
	switch {
	case e.Status != 0 && e.Err != nil:
		return fmt.Sprintf("%s: status %d: %v", e.Backend, e.Status, e.Err)
	case e.Status != 0:
		return fmt.Sprintf("%s: unexpected status %d %s", e.Backend, e.Status, http.StatusText(e.Status))
	default:
		return fmt.Sprintf("%s: %v", e.Backend, e.Err)
	}
}

func (e *TransportError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrTransport}
	}
	return []error{ErrTransport, e.Err}
}

type originKey struct{}

// OriginToContext tags ctx with the identity whose budget pays for translations.
func OriginToContext(ctx context.Context, origin string) context.Context {
	return context.WithValue(ctx, originKey{}, origin)
}

func OriginFromContext(ctx context.Context) string {
	origin, _ := ctx.Value(originKey{}).(string)
	return origin
}
