package pipeline

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/pitabwire/util"

	"github.com/pitabwire/linguist/data"
	"github.com/pitabwire/linguist/localization"
	"github.com/pitabwire/linguist/richtext"
)

// Inbound is a chat line about to be delivered. Body is set for player chat,
// where the message text is known and no extraction is needed.
type Inbound struct {
	Tree      richtext.Node
	Sender    richtext.Sender
	Body      string
	Recipient string
}

// Outbound is what the host delivers instead. When Annotated is false Tree is
// the inbound tree, filtered and linkified where possible.
type Outbound struct {
	Tree      richtext.Node
	LookupKey string
	Plain     string
	Annotated bool
	Auto      data.AutoMode
}

// Intercept never waits on storage: the message is registered write-behind,
// the recipient's preferences come from cache only, and the returned tree
// already carries its lookup key. A tree the blacklist filter cannot walk is
// delivered unfiltered but is still annotated when its text matched.
func (p *Pipeline) Intercept(ctx context.Context, in Inbound) Outbound {
	if in.Tree == nil {
		return Outbound{}
	}

	plain, ok := strings.TrimSpace(in.Body), in.Body != ""
	if !ok {
		plain, ok = p.extractor.Extract(in.Tree, in.Sender)
	}

	tree, err := p.filter.Apply(in.Tree)
	if err != nil {
		p.logMalformed(ctx, err)
		tree = in.Tree
	} else {
		tree = richtext.Linkify(tree)
	}

	if !ok {
		return Outbound{Tree: tree}
	}
	plain = strings.TrimSpace(p.filter.FilterText(plain))
	if plain == "" {
		return Outbound{Tree: tree}
	}

	rendered, err := richtext.Encode(tree)
	if err != nil {
		util.Log(ctx).WithError(err).Warn("could not encode message for storage")
		return Outbound{Tree: tree}
	}

	key := p.messages.Register(ctx, string(rendered), plain)

	out := Outbound{LookupKey: key, Plain: plain, Annotated: true, Auto: data.AutoOff}
	lang := p.prefs.DefaultLanguage()
	if in.Recipient != "" {
		if prefs, cached := p.prefs.Peek(ctx, in.Recipient); cached {
			lang, out.Auto = prefs.Language, prefs.Auto
		} else {
			p.warmPreferences(ctx, in.Recipient)
		}
	}
	hover := richtext.Text(p.locale.Translate(ctx, lang, localization.TranslateHover))
	hover.SetStyle("color", json.RawMessage(`"gray"`))

	out.Tree = richtext.Annotate(tree, p.Command(key), hover)
	return out
}
