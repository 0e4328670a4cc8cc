package richtext

import (
	"errors"
	"fmt"
	"regexp"
)

// ErrMalformedContent marks a tree the filter refused to walk.
var ErrMalformedContent = errors.New("malformed rich-text content")

// MalformedError names the tag that stopped the walk.
type MalformedError struct {
	Type string
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("unrecognised rich-text node %q", e.Type)
}

func (e *MalformedError) Unwrap() error {
	return ErrMalformedContent
}

// Filter removes blacklisted substrings from the text of a tree without
// disturbing its structure. Translation keys, selectors and keybinds are
// never rewritten.
type Filter struct {
	patterns []*regexp.Regexp
}

// NewFilter compiles the blacklist.
func NewFilter(patterns []string) (*Filter, error) {
	f := &Filter{}
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("blacklist rule %q: %w", p, err)
		}
		f.patterns = append(f.patterns, re)
	}
	return f, nil
}

// FilterText strips every blacklist match, repeating until no pattern
// matches, since one removal can join text into a new match.
func (f *Filter) FilterText(s string) string {
	for {
		before := s
		for _, re := range f.patterns {
			s = re.ReplaceAllString(s, "")
		}
		if s == before {
			return s
		}
	}
}

// Apply returns a filtered copy of n. When the tree holds a node the filter
// cannot classify it returns n itself together with a *MalformedError, and
// the caller should use the original content unchanged.
func (f *Filter) Apply(n Node) (Node, error) {
	if n == nil || len(f.patterns) == 0 {
		return n, nil
	}

	out, err := f.walk(n)
	if err != nil {
		return n, err
	}
	return out, nil
}

func (f *Filter) walk(n Node) (Node, error) {
	var out Node

	switch v := n.(type) {
	case *Plain:
		c := v.clone().(*Plain)
		c.Text = f.FilterText(v.Text)
		out = c
	case *Translatable:
		c := v.clone().(*Translatable)
		for i, arg := range v.Args {
			filtered, err := f.walk(arg)
			if err != nil {
				return nil, err
			}
			c.Args[i] = filtered
		}
		out = c
	case *Selector:
		c := v.clone().(*Selector)
		if v.Separator != nil {
			sep, err := f.walk(v.Separator)
			if err != nil {
				return nil, err
			}
			c.Separator = sep
		}
		out = c
	case *NbtRef:
		c := v.clone().(*NbtRef)
		if v.Separator != nil {
			sep, err := f.walk(v.Separator)
			if err != nil {
				return nil, err
			}
			c.Separator = sep
		}
		out = c
	case *Keybind:
		out = v.clone()
	case *Unknown:
		return nil, &MalformedError{Type: v.Type}
	default:
		return nil, &MalformedError{Type: n.Kind().String()}
	}

	b := out.base()
	for i, child := range n.Children() {
		filtered, err := f.walk(child)
		if err != nil {
			return nil, err
		}
		b.Extra[i] = filtered
	}
	return out, nil
}
