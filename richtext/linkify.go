package richtext

import (
	"encoding/json"
	"regexp"
	"strings"
)

// Style keys for interactive actions.
const (
	StyleClickEvent = "clickEvent"
	StyleHoverEvent = "hoverEvent"
)

var urlPattern = regexp.MustCompile(`(?i)\b(?:https?://|www\.)[^\s<>"]+`)

const urlTrailingPunctuation = ".,;:!?)]}'"

type clickEvent struct {
	Action string `json:"action"`
	Value  string `json:"value"`
}

func clickJSON(action, value string) json.RawMessage {
	raw, _ := json.Marshal(clickEvent{Action: action, Value: value})
	return raw
}

// FindURLs returns the link-shaped substrings of s.
func FindURLs(s string) []string {
	var urls []string
	for _, loc := range urlLocations(s) {
		urls = append(urls, s[loc[0]:loc[1]])
	}
	return urls
}

func urlLocations(s string) [][2]int {
	var out [][2]int
	for _, loc := range urlPattern.FindAllStringIndex(s, -1) {
		end := loc[1]
		for end > loc[0] && strings.ContainsRune(urlTrailingPunctuation, rune(s[end-1])) {
			end--
		}
		if end > loc[0] {
			out = append(out, [2]int{loc[0], end})
		}
	}
	return out
}

// Linkify returns a copy of n where each URL in plain text is split into its
// own child node carrying an open_url click action. Nodes that already have a
// click action, and Unknown nodes, are left as they are.
func Linkify(n Node) Node {
	if n == nil {
		return nil
	}

	var out Node
	switch v := n.(type) {
	case *Plain:
		out = linkifyPlain(v)
	case *Translatable:
		c := v.clone().(*Translatable)
		for i, arg := range v.Args {
			c.Args[i] = Linkify(arg)
		}
		out = c
	case *Unknown:
		return v
	default:
		out = n.clone()
	}

	b := out.base()
	linked := make([]Node, 0, len(b.Extra))
	for _, child := range b.Extra {
		linked = append(linked, Linkify(child))
	}
	b.Extra = linked
	return out
}

func linkifyPlain(p *Plain) Node {
	c := p.clone().(*Plain)
	if p.HasStyle(StyleClickEvent) {
		return c
	}

	locs := urlLocations(p.Text)
	if len(locs) == 0 {
		return c
	}

	segments := make([]Node, 0, 2*len(locs)+len(p.Extra))
	cursor := locs[0][0]
	c.Text = p.Text[:cursor]
	for _, loc := range locs {
		if loc[0] > cursor {
			segments = append(segments, Text(p.Text[cursor:loc[0]]))
		}
		link := p.Text[loc[0]:loc[1]]
		target := link
		if !strings.Contains(strings.ToLower(link), "://") {
			target = "https://" + link
		}
		seg := Text(link)
		seg.SetStyle(StyleClickEvent, clickJSON("open_url", target))
		segments = append(segments, seg)
		cursor = loc[1]
	}
	if cursor < len(p.Text) {
		segments = append(segments, Text(p.Text[cursor:]))
	}

	c.Extra = append(segments, c.Extra...)
	return c
}
