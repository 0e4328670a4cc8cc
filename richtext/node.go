// Package richtext models the tagged rich-text trees carried by chat messages
// and the pure transforms applied to them before a message is offered for
// translation: flattening, body extraction, blacklist filtering, link
// annotation and the translate affordance.
//
// Nodes form a closed set. Every transform switches over Plain, Translatable,
// Selector, Keybind, NbtRef and Unknown; Unknown carries the raw encoded form
// of any shape the decoder did not recognise so it can be passed through
// unmodified.
package richtext

import (
	"encoding/json"
	"maps"
	"slices"
)

// Kind identifies the tag of a Node.
type Kind int

const (
	KindPlain Kind = iota
	KindTranslatable
	KindSelector
	KindKeybind
	KindNbt
	KindUnknown
)

func (k Kind) String() string {
	switch k {
	case KindPlain:
		return "text"
	case KindTranslatable:
		return "translatable"
	case KindSelector:
		return "selector"
	case KindKeybind:
		return "keybind"
	case KindNbt:
		return "nbt"
	default:
		return "unknown"
	}
}

// Node is one element of a rich-text tree. Children are rendered after the
// node's own content.
type Node interface {
	Kind() Kind
	Children() []Node
	base() *Base
	clone() Node
}

// Base holds what every tag shares: trailing children and style attributes
// (colour, decorations, click and hover actions) kept as raw JSON.
type Base struct {
	Extra []Node
	Style map[string]json.RawMessage
}

func (b *Base) base() *Base { return b }

func (b *Base) Children() []Node { return b.Extra }

func (b *Base) copyBase() Base {
	return Base{
		Extra: slices.Clone(b.Extra),
		Style: maps.Clone(b.Style),
	}
}

// SetStyle sets a raw style attribute.
func (b *Base) SetStyle(key string, value json.RawMessage) {
	if b.Style == nil {
		b.Style = make(map[string]json.RawMessage)
	}
	b.Style[key] = value
}

// HasStyle reports whether the style attribute is present.
func (b *Base) HasStyle(key string) bool {
	_, ok := b.Style[key]
	return ok
}

type Plain struct {
	Base
	Text string
}

func (n *Plain) Kind() Kind { return KindPlain }

func (n *Plain) clone() Node {
	c := *n
	c.Base = n.copyBase()
	return &c
}

// Translatable renders a client-side translation key with positional args.
type Translatable struct {
	Base
	Key      string
	Args     []Node
	Fallback string
}

func (n *Translatable) Kind() Kind { return KindTranslatable }

func (n *Translatable) clone() Node {
	c := *n
	c.Base = n.copyBase()
	c.Args = slices.Clone(n.Args)
	return &c
}

type Selector struct {
	Base
	Pattern   string
	Separator Node
}

func (n *Selector) Kind() Kind { return KindSelector }

func (n *Selector) clone() Node {
	c := *n
	c.Base = n.copyBase()
	return &c
}

type Keybind struct {
	Base
	Keybind string
}

func (n *Keybind) Kind() Kind { return KindKeybind }

func (n *Keybind) clone() Node {
	c := *n
	c.Base = n.copyBase()
	return &c
}

// NbtRef points at data resolved by the client; it has no renderable text here.
type NbtRef struct {
	Base
	Path      string
	Interpret bool
	Separator Node
	Source    map[string]json.RawMessage
}

func (n *NbtRef) Kind() Kind { return KindNbt }

func (n *NbtRef) clone() Node {
	c := *n
	c.Base = n.copyBase()
	c.Source = maps.Clone(n.Source)
	return &c
}

// Unknown preserves a node the decoder could not classify. Raw is re-emitted
// verbatim by Encode.
type Unknown struct {
	Base
	Type string
	Raw  json.RawMessage
}

func (n *Unknown) Kind() Kind { return KindUnknown }

func (n *Unknown) clone() Node {
	c := *n
	c.Base = n.copyBase()
	c.Raw = slices.Clone(n.Raw)
	return &c
}

// Text builds a plain node.
func Text(text string, children ...Node) *Plain {
	return &Plain{Base: Base{Extra: children}, Text: text}
}

// Translate builds a translatable node.
func Translate(key string, args ...Node) *Translatable {
	return &Translatable{Key: key, Args: args}
}
