package repository

import (
	"context"
	"sort"
	"strings"

	"github.com/patrickmn/go-cache"
)

// Store is a string key-value store
type Store interface {
	// Get returns the value for key and whether it was set.
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
	Keys(ctx context.Context) ([]string, error)
}

// MemoryStore keeps values in process memory. Values never expire.
type MemoryStore struct {
	cache *cache.Cache
}

// NewMemoryStore creates a new in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{cache: cache.New(cache.NoExpiration, 0)}
}

// Get implements Store
func (s *MemoryStore) Get(ctx context.Context, key string) (string, bool, error) {
	v, ok := s.cache.Get(key)
	if !ok {
		return "", false, nil
	}
	return v.(string), true, nil
}

// Set implements Store
func (s *MemoryStore) Set(ctx context.Context, key, value string) error {
	s.cache.Set(key, value, cache.NoExpiration)
	return nil
}

// Remove implements Store
func (s *MemoryStore) Remove(ctx context.Context, key string) error {
	s.cache.Delete(key)
	return nil
}

// Keys implements Store
func (s *MemoryStore) Keys(ctx context.Context) ([]string, error) {
	items := s.cache.Items()
	keys := make([]string, 0, len(items))
	for k := range items {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// Namespaced prefixes every key, so several apps can share one store
type Namespaced struct {
	Store
	Prefix string
}

// Get implements Store
func (n Namespaced) Get(ctx context.Context, key string) (string, bool, error) {
	return n.Store.Get(ctx, n.Prefix+key)
}

// Set implements Store
func (n Namespaced) Set(ctx context.Context, key, value string) error {
	return n.Store.Set(ctx, n.Prefix+key, value)
}

// Remove implements Store
func (n Namespaced) Remove(ctx context.Context, key string) error {
	return n.Store.Remove(ctx, n.Prefix+key)
}

// Keys implements Store
func (n Namespaced) Keys(ctx context.Context) ([]string, error) {
	all, err := n.Store.Keys(ctx)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(all))
	for _, k := range all {
		if strings.HasPrefix(k, n.Prefix) {
			keys = append(keys, strings.TrimPrefix(k, n.Prefix))
		}
	}
	return keys, nil
}
