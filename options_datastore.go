package linguist

import (
	"context"

	"github.com/pitabwire/linguist/datastore"
)

// WithDatastore uses an already opened store instead of DATABASE_URL. The
// caller keeps ownership and closes it.
func WithDatastore(store *datastore.Store) Option {
	return func(_ context.Context, s *Service) {
		s.datastore = store
	}
}

func (s *Service) Datastore() *datastore.Store {
	return s.datastore
}
