package datastore

import (
	"context"

	"gorm.io/gorm/clause"

	"github.com/pitabwire/linguist/data"
	"github.com/pitabwire/linguist/datastore/pool"
)

type LanguageRepository struct {
	pool pool.Pool
}

// UpsertAll seeds the catalog. Existing codes are left untouched.
func (r *LanguageRepository) UpsertAll(ctx context.Context, languages []data.Language) error {
	if len(languages) == 0 {
		return nil
	}
	return r.pool.DB(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "code"}}, DoNothing: true}).
		Create(&languages).Error
}

// List returns the catalog ordered by native name.
func (r *LanguageRepository) List(ctx context.Context) ([]data.Language, error) {
	var languages []data.Language
	err := r.pool.DB(ctx).Order("native_name ASC").Order("code ASC").Find(&languages).Error
	return languages, err
}
