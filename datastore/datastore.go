// Package datastore persists the language catalog, user preferences, messages
// and translations through gorm.
package datastore

import (
	"context"
	"fmt"

	"github.com/pitabwire/util"

	"github.com/pitabwire/linguist/config"
	"github.com/pitabwire/linguist/data"
	"github.com/pitabwire/linguist/datastore/pool"
)

// Store bundles the repositories over one connection pool.
type Store struct {
	pool pool.Pool

	Languages    *LanguageRepository
	Users        *UserRepository
	Messages     *MessageRepository
	Translations *TranslationRepository
}

// NewStore wraps an already connected pool.
func NewStore(p pool.Pool) *Store {
	return &Store{
		pool:         p,
		Languages:    &LanguageRepository{pool: p},
		Users:        &UserRepository{pool: p},
		Messages:     &MessageRepository{pool: p},
		Translations: &TranslationRepository{pool: p},
	}
}

// Open connects using the database configuration and migrates when enabled.
// Storage configuration errors are fatal for the caller.
func Open(ctx context.Context, cfg config.ConfigurationDatabase) (*Store, error) {
	dsn := data.DSN(cfg.GetDatabaseURL())
	if !dsn.IsDB() {
		return nil, fmt.Errorf("%w: %s", pool.ErrUnsupportedDatabase, dsn.Redacted())
	}

	p, err := pool.New(ctx, dsn, pool.FromConfig(cfg)...)
	if err != nil {
		return nil, fmt.Errorf("open datastore: %w", err)
	}

	store := NewStore(p)
	if cfg.DoDatabaseMigrate() {
		if err = store.Migrate(ctx); err != nil {
			p.Close(ctx)
			return nil, err
		}
	}
	return store, nil
}

// Migrate creates or updates every table.
func (s *Store) Migrate(ctx context.Context) error {
	if err := s.pool.DB(ctx).AutoMigrate(data.Models()...); err != nil {
		return fmt.Errorf("migrate datastore: %w", err)
	}
	util.Log(ctx).Debug("datastore migrated")
	return nil
}

func (s *Store) Pool() pool.Pool {
	return s.pool
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) Close(ctx context.Context) {
	s.pool.Close(ctx)
}
