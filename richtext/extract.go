package richtext

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
)

// UsernamePlaceholder in a match rule is replaced by the quoted sender name.
const UsernamePlaceholder = "%username%"

// Sender identifies who a message is attributed to.
type Sender struct {
	ID   string
	Name string
}

type matchRule struct {
	source    string
	static    *regexp.Regexp
	perSender bool
}

type senderPattern struct {
	name    string
	pattern *regexp.Regexp
}

type senderKey struct {
	rule int
	id   string
}

// Extractor pulls the eligible body out of a decorated chat line using an
// ordered list of rules. Rules match the entire flattened text; the first
// rule that matches wins and its first capture group is the body.
type Extractor struct {
	rules     []matchRule
	flattener *Flattener
	compiled  sync.Map // senderKey -> senderPattern
}

// ExtractorOption configures an Extractor.
type ExtractorOption func(*Extractor)

// WithFlattener overrides the flattener used before matching.
func WithFlattener(f *Flattener) ExtractorOption {
	return func(e *Extractor) {
		if f != nil {
			e.flattener = f
		}
	}
}

func anchor(pattern string) string {
	return `^(?:` + pattern + `)$`
}

// NewExtractor compiles rules. Rules with the username placeholder are
// validated here and compiled per sender on first use.
func NewExtractor(patterns []string, opts ...ExtractorOption) (*Extractor, error) {
	e := &Extractor{flattener: defaultFlattener}
	for _, opt := range opts {
		opt(e)
	}

	for _, p := range patterns {
		rule := matchRule{source: p}
		if strings.Contains(p, UsernamePlaceholder) {
			probe := strings.ReplaceAll(p, UsernamePlaceholder, "probe")
			if _, err := regexp.Compile(anchor(probe)); err != nil {
				return nil, fmt.Errorf("match rule %q: %w", p, err)
			}
			rule.perSender = true
		} else {
			re, err := regexp.Compile(anchor(p))
			if err != nil {
				return nil, fmt.Errorf("match rule %q: %w", p, err)
			}
			rule.static = re
		}
		e.rules = append(e.rules, rule)
	}

	return e, nil
}

// Extract flattens n and runs Match on the result.
func (e *Extractor) Extract(n Node, sender Sender) (string, bool) {
	return e.Match(e.flattener.Flatten(n), sender)
}

// Match returns the body captured by the first matching rule. An empty body
// counts as no match.
func (e *Extractor) Match(text string, sender Sender) (string, bool) {
	for i := range e.rules {
		re := e.patternFor(i, sender)
		if re == nil {
			continue
		}

		m := re.FindStringSubmatch(text)
		if m == nil {
			continue
		}

		body := m[0]
		if len(m) > 1 {
			body = m[1]
		}
		if strings.TrimSpace(body) == "" {
			return "", false
		}
		return body, true
	}
	return "", false
}

func (e *Extractor) patternFor(i int, sender Sender) *regexp.Regexp {
	rule := e.rules[i]
	if !rule.perSender {
		return rule.static
	}
	if sender.Name == "" {
		return nil
	}

	key := senderKey{rule: i, id: sender.ID}
	if cached, ok := e.compiled.Load(key); ok {
		sp := cached.(senderPattern)
		if sp.name == sender.Name {
			return sp.pattern
		}
	}

	src := strings.ReplaceAll(rule.source, UsernamePlaceholder, regexp.QuoteMeta(sender.Name))
	re, err := regexp.Compile(anchor(src))
	if err != nil {
		return nil
	}
	e.compiled.Store(key, senderPattern{name: sender.Name, pattern: re})
	return re
}

// Rules returns the configured rule sources in order.
func (e *Extractor) Rules() []string {
	out := make([]string, 0, len(e.rules))
	for _, r := range e.rules {
		out = append(out, r.source)
	}
	return out
}
