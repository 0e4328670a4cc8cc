package richtext

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Content keys per tag. Anything else on an object is style and is carried
// through untouched.
const (
	keyType      = "type"
	keyExtra     = "extra"
	keyText      = "text"
	keyTranslate = "translate"
	keyWith      = "with"
	keyFallback  = "fallback"
	keySelector  = "selector"
	keySeparator = "separator"
	keyKeybind   = "keybind"
	keyNbt       = "nbt"
	keyInterpret = "interpret"
)

var nbtSourceKeys = []string{"block", "entity", "storage", "source"}

// ErrEmptyDocument is returned when decoding zero bytes.
var ErrEmptyDocument = errors.New("empty rich-text document")

// Decode parses the JSON text component format. Bare strings become Plain
// nodes, arrays become an empty Plain parent holding every element as a
// child, and objects are classified by their "type" field or by the content
// key they carry. Objects that cannot be classified, or whose content fields
// have the wrong shape, decode to Unknown.
func Decode(raw []byte) (Node, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, ErrEmptyDocument
	}
	return decodeValue(raw)
}

func decodeValue(raw json.RawMessage) (Node, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, ErrEmptyDocument
	}

	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, fmt.Errorf("decode text: %w", err)
		}
		return Text(s), nil
	case '[':
		children, err := decodeList(raw)
		if err != nil {
			return nil, err
		}
		return Text("", children...), nil
	case '{':
		return decodeObject(raw)
	default:
		if !json.Valid(raw) {
			return nil, fmt.Errorf("decode node: invalid json %q", truncate(string(raw), 32))
		}
		// Numbers and booleans render as their literal text.
		return Text(string(raw)), nil
	}
}

func decodeList(raw json.RawMessage) ([]Node, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("decode list: %w", err)
	}

	nodes := make([]Node, 0, len(items))
	for i, item := range items {
		n, err := decodeValue(item)
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		nodes = append(nodes, n)
	}
	return nodes, nil
}

func detectTag(fields map[string]json.RawMessage) string {
	if rawType, ok := fields[keyType]; ok {
		var t string
		if json.Unmarshal(rawType, &t) == nil && t != "" {
			return t
		}
	}

	for _, candidate := range []struct{ key, tag string }{
		{keyText, "text"},
		{keyTranslate, "translatable"},
		{keySelector, "selector"},
		{keyKeybind, "keybind"},
		{keyNbt, "nbt"},
		{"score", "score"},
		{"object", "object"},
	} {
		if _, ok := fields[candidate.key]; ok {
			return candidate.tag
		}
	}
	return ""
}

func decodeObject(raw json.RawMessage) (Node, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("decode object: %w", err)
	}

	tag := detectTag(fields)
	unknown := func() (Node, error) {
		return &Unknown{Type: tag, Raw: compact(raw)}, nil
	}

	consumed := map[string]bool{keyType: true, keyExtra: true}
	var node Node

	switch tag {
	case "text":
		text, ok := stringField(fields, keyText)
		if !ok {
			return unknown()
		}
		consumed[keyText] = true
		node = &Plain{Text: text}

	case "translatable":
		key, ok := stringField(fields, keyTranslate)
		if !ok {
			return unknown()
		}
		t := &Translatable{Key: key}
		if fb, hasFallback := stringField(fields, keyFallback); hasFallback {
			t.Fallback = fb
			consumed[keyFallback] = true
		}
		if rawArgs, hasArgs := fields[keyWith]; hasArgs {
			args, err := decodeList(rawArgs)
			if err != nil {
				return unknown()
			}
			t.Args = args
			consumed[keyWith] = true
		}
		consumed[keyTranslate] = true
		node = t

	case "selector":
		pattern, ok := stringField(fields, keySelector)
		if !ok {
			return unknown()
		}
		s := &Selector{Pattern: pattern}
		if rawSep, hasSep := fields[keySeparator]; hasSep {
			sep, err := decodeValue(rawSep)
			if err != nil {
				return unknown()
			}
			s.Separator = sep
			consumed[keySeparator] = true
		}
		consumed[keySelector] = true
		node = s

	case "keybind":
		kb, ok := stringField(fields, keyKeybind)
		if !ok {
			return unknown()
		}
		consumed[keyKeybind] = true
		node = &Keybind{Keybind: kb}

	case "nbt":
		path, ok := stringField(fields, keyNbt)
		if !ok {
			return unknown()
		}
		n := &NbtRef{Path: path}
		if rawInterpret, has := fields[keyInterpret]; has {
			if json.Unmarshal(rawInterpret, &n.Interpret) != nil {
				return unknown()
			}
			consumed[keyInterpret] = true
		}
		if rawSep, hasSep := fields[keySeparator]; hasSep {
			sep, err := decodeValue(rawSep)
			if err != nil {
				return unknown()
			}
			n.Separator = sep
			consumed[keySeparator] = true
		}
		for _, k := range nbtSourceKeys {
			if v, has := fields[k]; has {
				if n.Source == nil {
					n.Source = make(map[string]json.RawMessage)
				}
				n.Source[k] = v
				consumed[k] = true
			}
		}
		consumed[keyNbt] = true
		node = n

	default:
		return unknown()
	}

	b := node.base()
	if rawExtra, ok := fields[keyExtra]; ok {
		extra, err := decodeList(rawExtra)
		if err != nil {
			return unknown()
		}
		b.Extra = extra
	}

	for k, v := range fields {
		if !consumed[k] {
			b.SetStyle(k, compact(v))
		}
	}

	return node, nil
}

func stringField(fields map[string]json.RawMessage, key string) (string, bool) {
	raw, ok := fields[key]
	if !ok {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

func compact(raw []byte) json.RawMessage {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return append(json.RawMessage(nil), raw...)
	}
	return buf.Bytes()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// Encode renders n in canonical form: objects with sorted keys and no
// insignificant whitespace, so equal trees always encode to equal bytes.
func Encode(n Node) ([]byte, error) {
	if n == nil {
		return nil, ErrEmptyDocument
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(toJSON(n)); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// MustEncodeString is Encode for trees built in code.
func MustEncodeString(n Node) string {
	b, err := Encode(n)
	if err != nil {
		panic(err)
	}
	return string(b)
}

func toJSON(n Node) any {
	if u, ok := n.(*Unknown); ok {
		return u.Raw
	}

	b := n.base()
	out := make(map[string]any, len(b.Style)+3)
	for k, v := range b.Style {
		out[k] = v
	}

	switch v := n.(type) {
	case *Plain:
		out[keyText] = v.Text
	case *Translatable:
		out[keyTranslate] = v.Key
		if v.Fallback != "" {
			out[keyFallback] = v.Fallback
		}
		if len(v.Args) > 0 {
			out[keyWith] = listJSON(v.Args)
		}
	case *Selector:
		out[keySelector] = v.Pattern
		if v.Separator != nil {
			out[keySeparator] = toJSON(v.Separator)
		}
	case *Keybind:
		out[keyKeybind] = v.Keybind
	case *NbtRef:
		out[keyNbt] = v.Path
		if v.Interpret {
			out[keyInterpret] = true
		}
		if v.Separator != nil {
			out[keySeparator] = toJSON(v.Separator)
		}
		for k, raw := range v.Source {
			out[k] = raw
		}
	}

	if len(b.Extra) > 0 {
		out[keyExtra] = listJSON(b.Extra)
	}
	return out
}

func listJSON(nodes []Node) []any {
	items := make([]any, 0, len(nodes))
	for _, n := range nodes {
		items = append(items, toJSON(n))
	}
	return items
}

// Document adapts a tree to encoding/json so it can be embedded in request
// and response bodies.
type Document struct {
	Root Node
}

func (d Document) MarshalJSON() ([]byte, error) {
	if d.Root == nil {
		return []byte("null"), nil
	}
	return Encode(d.Root)
}

func (d *Document) UnmarshalJSON(raw []byte) error {
	if string(bytes.TrimSpace(raw)) == "null" {
		d.Root = nil
		return nil
	}
	n, err := Decode(raw)
	if err != nil {
		return err
	}
	d.Root = n
	return nil
}
