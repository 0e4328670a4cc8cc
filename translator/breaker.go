package translator

import (
	"context"
	"errors"
	"time"

	"github.com/pitabwire/util"
	"github.com/sony/gobreaker/v2"
)

const (
	breakerConsecutiveFailures = 5
	breakerOpenTimeout         = 30 * time.Second
	breakerHalfOpenRequests    = 1
)

// breakerBackend stops calling a backend that keeps failing, so the chain moves
// on to the next backend without waiting out a timeout on every call.
type breakerBackend struct {
	backend Backend
	cb      *gobreaker.CircuitBreaker[*Result]
}

// WithCircuitBreaker wraps b in a circuit breaker that opens after consecutive
// transport failures. Empty results and missing configuration do not count.
func WithCircuitBreaker(b Backend) Backend {
	st := gobreaker.Settings{
		Name:        b.Name(),
		MaxRequests: breakerHalfOpenRequests,
		Timeout:     breakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerConsecutiveFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrNoTranslation) || errors.Is(err, ErrNotConfigured) ||
				errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			util.Log(context.Background()).
				WithField("backend", name).
				WithField("from", from.String()).
				WithField("to", to.String()).
				Warn("translation backend circuit changed state")
		},
	}

	return &breakerBackend{backend: b, cb: gobreaker.NewCircuitBreaker[*Result](st)}
}

func (b *breakerBackend) Name() string {
	return b.backend.Name()
}

func (b *breakerBackend) Translate(ctx context.Context, text, target string) (*Result, error) {
	res, err := b.cb.Execute(func() (*Result, error) {
		return b.backend.Translate(ctx, text, target)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, &TransportError{Backend: b.backend.Name(), Err: err}
	}
	return res, err
}
