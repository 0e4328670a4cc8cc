package pipeline

import (
	"context"

	"github.com/pitabwire/util"

	"github.com/pitabwire/linguist/data"
	"github.com/pitabwire/linguist/localization"
)

// Reply is a localized answer to a user command.
type Reply struct {
	Text     string
	Language string
	OK       bool
}

// SetLanguage picks the first catalog language matching query. Success is
// confirmed in the new language, failure in the current one.
func (p *Pipeline) SetLanguage(ctx context.Context, userID, query string) Reply {
	lang, found := p.prefs.FindLanguage(ctx, query)
	if !found {
		current := p.prefs.GetDefaultLanguage(ctx, userID)
		return Reply{
			Text: p.locale.TranslateWithMap(ctx, current, localization.LanguageChangeFailed,
				map[string]any{"Query": query}),
			Language: current,
		}
	}

	// the cache already holds the new language even if storing it failed
	if err := p.prefs.SetDefaultLanguage(ctx, userID, lang.Code); err != nil {
		util.Log(ctx).WithError(err).WithField("user", userID).Warn("language change not persisted")
	}

	return Reply{
		Text: p.locale.TranslateWithMap(ctx, lang.Code, localization.LanguageChangeSuccess,
			map[string]any{"Language": lang.NativeName}),
		Language: lang.Code,
		OK:       true,
	}
}

// SetAutoMode changes the auto-translate mode. Force needs canForce.
func (p *Pipeline) SetAutoMode(ctx context.Context, userID string, mode data.AutoMode, canForce bool) Reply {
	lang := p.prefs.GetDefaultLanguage(ctx, userID)
	if mode == data.AutoForce && !canForce {
		return Reply{Text: p.locale.Translate(ctx, lang, localization.AutoForceDenied), Language: lang}
	}

	if err := p.prefs.SetAutoMode(ctx, userID, mode); err != nil {
		util.Log(ctx).WithError(err).WithField("user", userID).Warn("auto mode change not persisted")
	}

	id := localization.AutoOff
	switch mode {
	case data.AutoOn:
		id = localization.AutoOn
	case data.AutoForce:
		id = localization.AutoForce
	}
	return Reply{Text: p.locale.Translate(ctx, lang, id), Language: lang, OK: true}
}

// Joined describes a user's arrival. Lines is empty for returning users.
type Joined struct {
	IsNew    bool
	Country  string
	Language string
	Lines    []string
}

// Join records the user and greets first-time users in a language inferred
// from the address they connect from.
func (p *Pipeline) Join(ctx context.Context, userID, name, ip string) Joined {
	country := ""
	if ip != "" {
		var err error
		if country, err = p.locator.Country(ctx, ip); err != nil {
			util.Log(ctx).WithError(err).WithField("user", userID).Debug("no country for user")
		}
	}

	isNew, lang := p.prefs.Welcome(ctx, userID, name, country)
	joined := Joined{IsNew: isNew, Country: country, Language: lang}
	if !isNew {
		return joined
	}

	joined.Lines = []string{
		p.locale.TranslateWithMap(ctx, lang, localization.WelcomeFirst, map[string]any{"Name": name}),
		p.locale.Translate(ctx, lang, localization.WelcomeSecond),
		p.locale.Translate(ctx, lang, localization.WelcomeThird),
	}
	return joined
}

// Languages lists the catalog users can choose from.
func (p *Pipeline) Languages(ctx context.Context) ([]data.Language, error) {
	return p.prefs.Languages(ctx)
}
