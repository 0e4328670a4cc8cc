package richtext

import (
	"encoding/json"
	"strings"
)

type hoverEvent struct {
	Action   string          `json:"action"`
	Contents json.RawMessage `json:"contents"`
}

// Annotate returns a copy of n whose root runs command when clicked and shows
// hover on mouse-over. Children inherit both unless they set their own. An
// Unknown root is wrapped rather than modified.
func Annotate(n Node, command string, hover Node) Node {
	var root Node
	if u, ok := n.(*Unknown); ok {
		root = Text("", u)
	} else {
		root = n.clone()
	}

	b := root.base()
	b.SetStyle(StyleClickEvent, clickJSON("run_command", command))
	if hover != nil {
		if contents, err := Encode(hover); err == nil {
			raw, _ := json.Marshal(hoverEvent{Action: "show_text", Contents: contents})
			b.SetStyle(StyleHoverEvent, raw)
		}
	}
	return root
}

// ReplaceText returns a copy of n with every occurrence of old in plain text
// (including translatable args) replaced by replacement.
func ReplaceText(n Node, old, replacement string) Node {
	if n == nil || old == "" {
		return n
	}

	var out Node
	switch v := n.(type) {
	case *Plain:
		c := v.clone().(*Plain)
		c.Text = strings.ReplaceAll(v.Text, old, replacement)
		out = c
	case *Translatable:
		c := v.clone().(*Translatable)
		for i, arg := range v.Args {
			c.Args[i] = ReplaceText(arg, old, replacement)
		}
		out = c
	case *Unknown:
		return v
	default:
		out = n.clone()
	}

	b := out.base()
	for i, child := range b.Extra {
		b.Extra[i] = ReplaceText(child, old, replacement)
	}
	return out
}

// Walk visits n and every descendant, including translatable args and
// separators, in render order. Returning false stops the walk.
func Walk(n Node, visit func(Node) bool) bool {
	if n == nil {
		return true
	}
	if !visit(n) {
		return false
	}

	switch v := n.(type) {
	case *Translatable:
		for _, arg := range v.Args {
			if !Walk(arg, visit) {
				return false
			}
		}
	case *Selector:
		if !Walk(v.Separator, visit) {
			return false
		}
	case *NbtRef:
		if !Walk(v.Separator, visit) {
			return false
		}
	}

	for _, child := range n.Children() {
		if !Walk(child, visit) {
			return false
		}
	}
	return true
}
