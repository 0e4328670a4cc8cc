package richtext

import (
	"strconv"
	"strings"
)

// DefaultFormats are the client strings for the translation keys servers use
// to wrap ordinary chat, so flattened system chat reads the way players see it.
var DefaultFormats = map[string]string{
	"chat.type.text":                    "<%s> %s",
	"chat.type.text.narrate":            "%s says %s",
	"chat.type.announcement":            "[%s] %s",
	"chat.type.emote":                   "* %s %s",
	"chat.type.team.text":               "%s <%s> %s",
	"chat.type.team.sent":               "-> %s <%s> %s",
	"commands.message.display.incoming": "%s whispers to you: %s",
	"commands.message.display.outgoing": "You whisper to %s: %s",
	"multiplayer.player.joined":         "%s joined the game",
	"multiplayer.player.left":           "%s left the game",
}

// Flattener renders trees to plain text.
type Flattener struct {
	formats map[string]string
}

// NewFlattener returns a Flattener that knows DefaultFormats plus extra.
func NewFlattener(extra map[string]string) *Flattener {
	formats := make(map[string]string, len(DefaultFormats)+len(extra))
	for k, v := range DefaultFormats {
		formats[k] = v
	}
	for k, v := range extra {
		formats[k] = v
	}
	return &Flattener{formats: formats}
}

var defaultFlattener = NewFlattener(nil)

// Flatten renders n with DefaultFormats.
func Flatten(n Node) string {
	return defaultFlattener.Flatten(n)
}

// Flatten renders n depth-first: the node's own text, then its children.
// NbtRef and Unknown nodes contribute nothing.
func (f *Flattener) Flatten(n Node) string {
	var b strings.Builder
	f.write(&b, n)
	return b.String()
}

func (f *Flattener) write(b *strings.Builder, n Node) {
	if n == nil {
		return
	}

	switch v := n.(type) {
	case *Plain:
		b.WriteString(v.Text)
	case *Translatable:
		f.writeTranslatable(b, v)
	case *Selector:
		b.WriteString(v.Pattern)
	case *Keybind:
		b.WriteString(v.Keybind)
	case *NbtRef, *Unknown:
	}

	for _, child := range n.Children() {
		f.write(b, child)
	}
}

// writeTranslatable substitutes args into the known format for the key,
// falling back to the node's own fallback string and finally the bare key.
// Supports %s, %N$s and %%.
func (f *Flattener) writeTranslatable(b *strings.Builder, t *Translatable) {
	format, ok := f.formats[t.Key]
	if !ok {
		format = t.Fallback
	}
	if format == "" {
		b.WriteString(t.Key)
		return
	}

	next := 0
	for i := 0; i < len(format); i++ {
		c := format[i]
		if c != '%' || i+1 >= len(format) {
			b.WriteByte(c)
			continue
		}

		rest := format[i+1:]
		switch {
		case rest[0] == '%':
			b.WriteByte('%')
			i++
		case rest[0] == 's':
			f.writeArg(b, t.Args, next)
			next++
			i++
		default:
			end := strings.Index(rest, "$s")
			if end <= 0 {
				b.WriteByte(c)
				continue
			}
			pos, err := strconv.Atoi(rest[:end])
			if err != nil || pos < 1 {
				b.WriteByte(c)
				continue
			}
			f.writeArg(b, t.Args, pos-1)
			i += end + 2
		}
	}
}

func (f *Flattener) writeArg(b *strings.Builder, args []Node, idx int) {
	if idx < 0 || idx >= len(args) {
		return
	}
	f.write(b, args[idx])
}
