package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/pitabwire/util"

	"github.com/pitabwire/linguist/localization"
	"github.com/pitabwire/linguist/messages"
	"github.com/pitabwire/linguist/richtext"
	"github.com/pitabwire/linguist/translator"
)

// unknownSourceLanguage labels translations whose backend detected no language.
const unknownSourceLanguage = "??"

// Rendering is a message translated for one user.
type Rendering struct {
	LookupKey          string
	OriginalText       string
	OriginalLanguage   string
	TranslatedText     string
	TranslatedLanguage string

	// Tree is the original rich text with its body replaced by the translation,
	// framed by the language pair and the original text.
	Tree    richtext.Node
	Display string
}

// Translate renders the message behind lookupKey in userID's language. A message
// still being stored is waited for, up to the configured resolve wait.
func (p *Pipeline) Translate(ctx context.Context, userID, lookupKey string) (*Rendering, error) {
	lang := p.prefs.GetDefaultLanguage(ctx, userID)

	waitCtx, cancel := context.WithTimeout(ctx, p.resolveWait)
	resolved, err := p.messages.AwaitResolve(waitCtx, lookupKey)
	cancel()
	if err != nil {
		return nil, err
	}

	ctx = translator.OriginToContext(ctx, userID)
	translated, err := p.messages.GetOrCreateTranslation(ctx, resolved.Message, lang, p.provider)
	if err != nil {
		return nil, err
	}
	source := translated.SourceLanguage
	if source == "" {
		source = unknownSourceLanguage
	}

	original := resolved.Message.Text
	body := p.translatedTree(ctx, resolved.Rendered, original, translated.Text)

	prefix := fmt.Sprintf("[%s -> %s] ", source, translated.Language)
	head := richtext.Text(prefix)
	head.SetStyle("color", json.RawMessage(`"gray"`))
	tail := richtext.Text(" (" + original + ")")
	tail.SetStyle("color", json.RawMessage(`"gray"`))
	tail.SetStyle("italic", json.RawMessage(`true`))

	return &Rendering{
		LookupKey:          lookupKey,
		OriginalText:       original,
		OriginalLanguage:   source,
		TranslatedText:     translated.Text,
		TranslatedLanguage: translated.Language,
		Tree:               richtext.Text("", head, body, tail),
		Display:            prefix + translated.Text + " (" + original + ")",
	}, nil
}

func (p *Pipeline) translatedTree(ctx context.Context, rendered, original, translated string) richtext.Node {
	tree, err := richtext.Decode([]byte(rendered))
	if err != nil {
		util.Log(ctx).WithError(err).Debug("stored rendering unreadable, using plain translation")
		return richtext.Text(translated)
	}

	// The body is only replaceable when one text node holds all of it; link
	// splitting or styling can spread it across siblings.
	replaced := richtext.ReplaceText(tree, original, translated)
	if original != translated && richtext.Flatten(replaced) == richtext.Flatten(tree) {
		return richtext.Text(translated)
	}
	return replaced
}

// FailureMessage explains err to userID in their own language.
func (p *Pipeline) FailureMessage(ctx context.Context, userID string, err error) string {
	id := localization.TranslateFailed
	switch {
	case errors.Is(err, messages.ErrNotYetAvailable):
		id = localization.TranslatePending
	case errors.Is(err, translator.ErrRateLimited):
		id = localization.TranslateRateLimited
	}
	return p.locale.Translate(ctx, p.prefs.GetDefaultLanguage(ctx, userID), id)
}
