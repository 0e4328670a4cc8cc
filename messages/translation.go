package messages

import (
	"context"
	"errors"

	"github.com/pitabwire/util"

	"github.com/pitabwire/linguist/cache"
	"github.com/pitabwire/linguist/data"
	"github.com/pitabwire/linguist/translator"
	"github.com/pitabwire/linguist/workerpool"
)

// Translated is a message rendered in a target language.
type Translated struct {
	MessageID      string `json:"message_id"`
	Language       string `json:"language"`
	Text           string `json:"text"`
	SourceLanguage string `json:"source_language,omitempty"`
}

type translationKey struct {
	MessageID string
	Language  string
}

func newTranslationCache(raw cache.RawCache) cache.Cache[translationKey, Translated] {
	return cache.NewGenericCache[translationKey, Translated](raw, translationKeyPrefix, func(k translationKey) string {
		return k.MessageID + ":" + k.Language
	})
}

// GetOrCreateTranslation returns the stored translation of msg into lang, asking
// provider only when none exists. Concurrent callers for the same pair share one
// provider call. A translation that could not be stored is still returned and
// its write retried in the background.
func (s *Store) GetOrCreateTranslation(
	ctx context.Context,
	msg *data.Message,
	lang string,
	provider translator.Provider,
) (*Translated, error) {
	if msg == nil {
		return nil, ErrUnknownLookup
	}
	lang = data.NormalizeLanguage(lang)
	key := translationKey{MessageID: msg.ID, Language: lang}
	log := util.Log(ctx).WithField("message", msg.ID).WithField("language", lang)

	cached, found, err := s.translationCache.Get(ctx, key)
	if err != nil {
		log.WithError(err).Warn("translation cache read failed")
	}
	if found {
		return &cached, nil
	}

	stored, err := s.translations.Get(ctx, msg.ID, lang)
	switch {
	case err == nil:
		result := s.fromRow(stored, msg, "")
		s.remember(ctx, key, result)
		return result, nil
	case !data.ErrorIsNoRows(err):
		log.WithError(err).Warn("translation lookup failed, asking provider")
	}

	v, err, shared := s.inflight.Do(msg.ID+"|"+lang, func() (any, error) {
		return s.translate(ctx, msg, lang, provider)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		log.Debug("joined in-flight translation")
	}

	result := *v.(*Translated)
	return &result, nil
}

func (s *Store) translate(ctx context.Context, msg *data.Message, lang string, provider translator.Provider) (*Translated, error) {
	res, err := provider.Translate(ctx, msg.Text, lang)
	if err != nil {
		return nil, err
	}
	if res == nil || res.Text == "" {
		return nil, translator.ErrNoTranslation
	}

	key := translationKey{MessageID: msg.ID, Language: lang}
	stored, err := s.translations.Save(ctx, msg.ID, lang, res.Text, res.SourceLanguage)
	if err != nil {
		util.Log(ctx).WithError(err).
			WithField("message", msg.ID).
			WithField("language", lang).
			Error("could not store translation, retrying in background")
		s.retrySave(ctx, msg.ID, lang, res)

		return &Translated{
			MessageID:      msg.ID,
			Language:       lang,
			Text:           res.Text,
			SourceLanguage: res.SourceLanguage,
		}, nil
	}

	result := s.fromRow(stored, msg, res.SourceLanguage)
	s.remember(ctx, key, result)
	return result, nil
}

func (s *Store) retrySave(ctx context.Context, messageID, lang string, res *translator.Result) {
	bgCtx := context.WithoutCancel(ctx)
	job := workerpool.NewJob(func(jobCtx context.Context) error {
		_, err := s.translations.Save(jobCtx, messageID, lang, res.Text, res.SourceLanguage)
		return err
	}, s.persistRetries)

	if err := workerpool.SubmitJob(bgCtx, s.pool, job); err != nil {
		util.Log(ctx).WithError(err).WithField("message", messageID).Error("could not schedule translation retry")
	}
}

// fromRow prefers the source language already on the message, since the first
// successful translation fixes it.
func (s *Store) fromRow(row *data.Translation, msg *data.Message, detected string) *Translated {
	source := detected
	if msg.SourceLanguage != nil && *msg.SourceLanguage != "" {
		source = *msg.SourceLanguage
	}
	return &Translated{
		MessageID:      row.MessageID,
		Language:       row.Language,
		Text:           row.Text,
		SourceLanguage: source,
	}
}

func (s *Store) remember(ctx context.Context, key translationKey, t *Translated) {
	if t.SourceLanguage == "" {
		return
	}
	if err := s.translationCache.Set(ctx, key, *t, s.translationTTL); err != nil {
		util.Log(ctx).WithError(err).WithField("message", key.MessageID).Warn("translation cache write failed")
	}
}

// IsUnavailable reports whether err means the message cannot be translated yet
// or at all, as opposed to a provider failure.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrNotYetAvailable) || errors.Is(err, ErrUnknownLookup)
}
