package datastore

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/pitabwire/linguist/data"
	"github.com/pitabwire/linguist/datastore/pool"
)

type TranslationRepository struct {
	pool pool.Pool
}

func (r *TranslationRepository) Get(ctx context.Context, messageID, lang string) (*data.Translation, error) {
	translation := &data.Translation{}
	err := r.pool.DB(ctx).
		Where("message_id = ? AND language = ?", messageID, lang).
		Take(translation).Error
	if err != nil {
		return nil, err
	}
	return translation, nil
}

// Save writes the translation unless one already exists for the pair and sets
// the message source language if it is still unset, in one transaction. The
// stored row is returned, which may predate this call.
func (r *TranslationRepository) Save(
	ctx context.Context,
	messageID, lang, text, sourceLanguage string,
) (*data.Translation, error) {
	stored := &data.Translation{}
	err := r.pool.DB(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "message_id"}, {Name: "language"}},
			DoNothing: true,
		}).Create(&data.Translation{MessageID: messageID, Language: lang, Text: text}).Error
		if err != nil {
			return err
		}

		if sourceLanguage != "" {
			err = tx.Model(&data.Message{}).
				Where("id = ? AND source_language IS NULL", messageID).
				Update("source_language", sourceLanguage).Error
			if err != nil {
				return err
			}
		}

		return tx.Where("message_id = ? AND language = ?", messageID, lang).Take(stored).Error
	})
	if err != nil {
		return nil, err
	}
	return stored, nil
}
