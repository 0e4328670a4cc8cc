package datastore

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/pitabwire/linguist/data"
	"github.com/pitabwire/linguist/datastore/pool"
)

var ErrEmptyLookupKey = errors.New("lookup key is empty")

type MessageRepository struct {
	pool pool.Pool
}

// Persist stores plain and its rendered form, reusing existing rows with the
// same content, and points lookupKey at the variant. It returns the message.
func (r *MessageRepository) Persist(ctx context.Context, lookupKey, rendered, plain string) (*data.Message, error) {
	if lookupKey == "" {
		return nil, ErrEmptyLookupKey
	}

	var msg *data.Message
	err := r.pool.DB(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		msg, err = insertOrGetMessage(tx, plain)
		if err != nil {
			return err
		}

		variant, err := insertOrGetVariant(tx, msg.ID, rendered, plain)
		if err != nil {
			return err
		}

		return tx.Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "lookup_key"}}, DoNothing: true}).
			Create(&data.MessageLookup{LookupKey: lookupKey, MessageVariantID: variant.ID}).Error
	})
	if err != nil {
		return nil, err
	}
	return msg, nil
}

func insertOrGetMessage(tx *gorm.DB, plain string) (*data.Message, error) {
	hash := data.ContentHash(plain)
	result := tx.Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "content_hash"}}, DoNothing: true}).
		Create(&data.Message{ContentHash: hash, Text: plain})
	if result.Error != nil {
		return nil, result.Error
	}

	// re-read so a row written by a concurrent writer wins
	msg := &data.Message{}
	if err := tx.Where("content_hash = ?", hash).Take(msg).Error; err != nil {
		return nil, err
	}
	return msg, nil
}

func insertOrGetVariant(tx *gorm.DB, messageID, rendered, plain string) (*data.MessageVariant, error) {
	hash := data.ContentHash(rendered, plain)
	result := tx.Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "rendered_hash"}}, DoNothing: true}).
		Create(&data.MessageVariant{MessageID: messageID, RenderedHash: hash, RenderedForm: rendered})
	if result.Error != nil {
		return nil, result.Error
	}

	variant := &data.MessageVariant{}
	if err := tx.Where("rendered_hash = ?", hash).Take(variant).Error; err != nil {
		return nil, err
	}
	return variant, nil
}

// ResolveLookup follows lookupKey to its message.
func (r *MessageRepository) ResolveLookup(ctx context.Context, lookupKey string) (*data.Message, error) {
	msg := &data.Message{}
	err := r.pool.DB(ctx).
		Joins("JOIN message_variants ON message_variants.message_id = messages.id").
		Joins("JOIN message_lookups ON message_lookups.message_variant_id = message_variants.id").
		Where("message_lookups.lookup_key = ?", lookupKey).
		Take(msg).Error
	if err != nil {
		return nil, err
	}
	return msg, nil
}

// ResolveVariant returns the rendered form lookupKey was registered with.
func (r *MessageRepository) ResolveVariant(ctx context.Context, lookupKey string) (*data.MessageVariant, error) {
	variant := &data.MessageVariant{}
	err := r.pool.DB(ctx).
		Joins("JOIN message_lookups ON message_lookups.message_variant_id = message_variants.id").
		Where("message_lookups.lookup_key = ?", lookupKey).
		Take(variant).Error
	if err != nil {
		return nil, err
	}
	return variant, nil
}

func (r *MessageRepository) Get(ctx context.Context, id string) (*data.Message, error) {
	msg := &data.Message{}
	if err := r.pool.DB(ctx).Where("id = ?", id).Take(msg).Error; err != nil {
		return nil, err
	}
	return msg, nil
}
