// Package pipeline ties message interception, storage, translation and user
// preferences together for the host chat system.
package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/pitabwire/util"

	"github.com/pitabwire/linguist/config"
	"github.com/pitabwire/linguist/data"
	"github.com/pitabwire/linguist/geoip"
	"github.com/pitabwire/linguist/localization"
	"github.com/pitabwire/linguist/messages"
	"github.com/pitabwire/linguist/preferences"
	"github.com/pitabwire/linguist/richtext"
	"github.com/pitabwire/linguist/translator"
	"github.com/pitabwire/linguist/workerpool"
)

const (
	defaultCommand     = "/linguist translate "
	defaultResolveWait = 2 * time.Second
)

type MessageStore interface {
	Register(ctx context.Context, rendered, plain string) string
	AwaitResolve(ctx context.Context, lookupKey string) (*messages.Resolved, error)
	GetOrCreateTranslation(
		ctx context.Context,
		msg *data.Message,
		lang string,
		provider translator.Provider,
	) (*messages.Translated, error)
}

type PreferenceStore interface {
	DefaultLanguage() string
	Peek(ctx context.Context, userID string) (preferences.Prefs, bool)
	Warm(ctx context.Context, userID string)
	GetDefaultLanguage(ctx context.Context, userID string) string
	SetDefaultLanguage(ctx context.Context, userID, code string) error
	GetAutoMode(ctx context.Context, userID string) data.AutoMode
	SetAutoMode(ctx context.Context, userID string, mode data.AutoMode) error
	FindLanguage(ctx context.Context, query string) (data.Language, bool)
	Languages(ctx context.Context) ([]data.Language, error)
	Welcome(ctx context.Context, userID, name, country string) (bool, string)
}

type Pipeline struct {
	messages MessageStore
	prefs    PreferenceStore
	provider translator.Provider
	locale   localization.Manager
	locator  geoip.CountryLocator
	pool     workerpool.WorkerPool

	rules       *config.Rules
	extractor   *richtext.Extractor
	filter      *richtext.Filter
	command     string
	resolveWait time.Duration

	malformedSeen sync.Map
	warming       sync.Map
}

type Option func(*Pipeline)

// WithRules replaces the default match and blacklist rules.
func WithRules(rules *config.Rules) Option {
	return func(p *Pipeline) {
		if rules != nil {
			p.rules = rules
		}
	}
}

// WithCommand sets the command prefix attached to translatable messages.
func WithCommand(command string) Option {
	return func(p *Pipeline) {
		if command != "" {
			p.command = command
		}
	}
}

// WithResolveWait bounds how long a translate request waits for a message
// that is still being stored.
func WithResolveWait(d time.Duration) Option {
	return func(p *Pipeline) {
		if d > 0 {
			p.resolveWait = d
		}
	}
}

func WithLocator(l geoip.CountryLocator) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.locator = l
		}
	}
}

// WithWorkerPool runs preference cache warm-ups on pool instead of bare
// goroutines.
func WithWorkerPool(pool workerpool.WorkerPool) Option {
	return func(p *Pipeline) {
		p.pool = pool
	}
}

func New(
	msgs MessageStore,
	prefs PreferenceStore,
	provider translator.Provider,
	locale localization.Manager,
	opts ...Option,
) (*Pipeline, error) {
	p := &Pipeline{
		messages:    msgs,
		prefs:       prefs,
		provider:    provider,
		locale:      locale,
		locator:     geoip.Disabled{},
		rules:       config.DefaultRules(),
		command:     defaultCommand,
		resolveWait: defaultResolveWait,
	}
	for _, opt := range opts {
		opt(p)
	}

	var err error
	if p.extractor, err = richtext.NewExtractor(p.rules.Include); err != nil {
		return nil, err
	}
	if p.filter, err = richtext.NewFilter(p.rules.Blacklist); err != nil {
		return nil, err
	}
	return p, nil
}

// Command returns the command attached to a message registered under lookupKey.
func (p *Pipeline) Command(lookupKey string) string {
	return p.command + lookupKey
}

// LookupKeyFromCommand is the inverse of Command.
func (p *Pipeline) LookupKeyFromCommand(command string) (string, bool) {
	key, ok := strings.CutPrefix(command, p.command)
	key = strings.TrimSpace(key)
	return key, ok && key != ""
}

// logMalformed reports each malformed tag once per process.
func (p *Pipeline) logMalformed(ctx context.Context, err error) {
	var malformed *richtext.MalformedError
	tag := "unknown"
	if errors.As(err, &malformed) {
		tag = malformed.Type
	}

	if _, seen := p.malformedSeen.LoadOrStore(tag, struct{}{}); seen {
		return
	}
	util.Log(ctx).WithError(err).WithField("tag", tag).Warn("passing malformed rich text through unmodified")
}

// warmPreferences loads userID's preferences in the background so the next
// message to them finds the cache populated. Concurrent requests for the same
// user share one load.
func (p *Pipeline) warmPreferences(ctx context.Context, userID string) {
	if _, busy := p.warming.LoadOrStore(userID, struct{}{}); busy {
		return
	}

	bgCtx := context.WithoutCancel(ctx)
	warm := func(jobCtx context.Context) error {
		defer p.warming.Delete(userID)
		p.prefs.Warm(jobCtx, userID)
		return nil
	}

	if p.pool == nil {
		go func() { _ = warm(bgCtx) }()
		return
	}
	if err := workerpool.SubmitJob(bgCtx, p.pool, workerpool.NewJob(warm, 0)); err != nil {
		p.warming.Delete(userID)
		util.Log(ctx).WithError(err).WithField("user", userID).Warn("could not schedule preference warm-up")
	}
}
