package prefs

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"
)

type memoryStore struct {
	items *cache.Cache
}

// NewMemory は go-cache を使ったプロセス内ストアを生成します。値は期限切れになりません。
func NewMemory() Store {
	return newMemory(cache.NoExpiration)
}

func newMemory(ttl time.Duration) Store {
	cleanup := time.Duration(0)
	if ttl > 0 {
		cleanup = ttl
	}
	return &memoryStore{items: cache.New(ttl, cleanup)}
}

func (s *memoryStore) Get(_ context.Context, key string) (string, bool, error) {
	v, ok := s.items.Get(key)
	if !ok {
		return "", false, nil
	}
	str, ok := v.(string)
	return str, ok, nil
}

func (s *memoryStore) Set(_ context.Context, key, value string) error {
	s.items.Set(key, value, cache.DefaultExpiration)
	return nil
}

func (s *memoryStore) Delete(_ context.Context, key string) error {
	s.items.Delete(key)
	return nil
}

func (s *memoryStore) Close() error {
	s.items.Flush()
	return nil
}
