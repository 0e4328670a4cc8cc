package datastore

import (
	"context"
	"time"

	"gorm.io/gorm/clause"

	"github.com/pitabwire/linguist/data"
	"github.com/pitabwire/linguist/datastore/pool"
)

type UserRepository struct {
	pool pool.Pool
}

func (r *UserRepository) Get(ctx context.Context, id string) (*data.User, error) {
	user := &data.User{}
	err := r.pool.DB(ctx).Where("id = ?", id).First(user).Error
	if err != nil {
		return nil, err
	}
	return user, nil
}

// CreateIfAbsent inserts user unless a row with its id exists and reports
// whether this call created it. Concurrent callers see exactly one true.
func (r *UserRepository) CreateIfAbsent(ctx context.Context, user *data.User) (bool, error) {
	now := time.Now()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.ModifiedAt = now

	result := r.pool.DB(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "id"}}, DoNothing: true}).
		Create(user)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// SetDefaultLanguage stores lang for id, creating the row if needed.
func (r *UserRepository) SetDefaultLanguage(ctx context.Context, id, lang string) error {
	return r.upsert(ctx, &data.User{ID: id, DefaultLanguage: lang}, "default_language")
}

// SetAutoMode stores mode for id, creating the row if needed.
func (r *UserRepository) SetAutoMode(ctx context.Context, id string, mode data.AutoMode) error {
	return r.upsert(ctx, &data.User{ID: id, AutoMode: mode}, "auto_mode")
}

// SetLastKnownName records the display name last seen for id.
func (r *UserRepository) SetLastKnownName(ctx context.Context, id, name string) error {
	return r.upsert(ctx, &data.User{ID: id, LastKnownName: name}, "last_known_name")
}

func (r *UserRepository) upsert(ctx context.Context, user *data.User, column string) error {
	now := time.Now()
	user.CreatedAt = now
	user.ModifiedAt = now

	return r.pool.DB(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{column, "modified_at"}),
		}).
		Create(user).Error
}
