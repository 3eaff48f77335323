package memory

import (
	"context"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/rikseotools/vence/internal/repository"
)

// Store keeps records in process memory. It is the default backend for
// single-replica deployments and tests.
type Store struct {
	cache *cache.Cache
}

func NewStore(cleanupInterval time.Duration) *Store {
	return &Store{cache: cache.New(cache.NoExpiration, cleanupInterval)}
}

func (s *Store) Get(ctx context.Context, key repository.Key) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	v, found := s.cache.Get(key.String())
	if !found {
		return nil, false, nil
	}
	raw := v.([]byte)
	out := make([]byte, len(raw))
	copy(out, raw)
	return out, true, nil
}

func (s *Store) Set(ctx context.Context, key repository.Key, value []byte, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	stored := make([]byte, len(value))
	copy(stored, value)
	if ttl <= 0 {
		ttl = cache.NoExpiration
	}
	s.cache.Set(key.String(), stored, ttl)
	return nil
}

func (s *Store) Delete(ctx context.Context, key repository.Key) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.cache.Delete(key.String())
	return nil
}

func (s *Store) DeleteUser(ctx context.Context, userID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	prefix := repository.UserPrefix(userID)
	for k := range s.cache.Items() {
		if strings.HasPrefix(k, prefix) {
			s.cache.Delete(k)
		}
	}
	return nil
}

// Len reports the number of live entries.
func (s *Store) Len() int {
	return s.cache.ItemCount()
}

var _ repository.Store = (*Store)(nil)
