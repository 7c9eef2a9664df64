// Package keycache provides a keyed cache of lazily constructed resources.
//
// Each key is constructed at most once at a time: concurrent first callers
// for the same key share one constructor call, while callers for unrelated
// keys never wait on each other. Successful values are kept for the life of
// the cache (there is no eviction). Failed constructions are not stored, so
// a later call retries.
//
// Thread-safety: All methods are safe for concurrent use.
package keycache

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Key builds the cache key for a repository: "{repoType}:{location}".
// The location is used verbatim; two spellings of the same repository are
// two distinct keys.
func Key(repoType, location string) string {
	return repoType + ":" + location
}

// PanicError reports a constructor that panicked. The panic is recovered
// inside the flight, so it reaches every waiting caller as an error.
type PanicError struct {
	Key   string
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("constructing %s: panic: %v", e.Key, e.Value)
}

// Constructor builds the value for a key. It receives a context detached
// from the first caller's cancellation so that an abandoned request does
// not poison the construction other callers are waiting on.
type Constructor[V any] func(ctx context.Context) (V, error)

// Cache maps string keys to constructed values.
type Cache[V any] struct {
	mu    sync.RWMutex
	items map[string]V
	group singleflight.Group
}

// New creates an empty Cache.
func New[V any]() *Cache[V] {
	return &Cache[V]{items: make(map[string]V)}
}

// Get returns the cached value for key, if one has been constructed.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.items[key]
	return v, ok
}

// GetOrCreate returns the value for key, running ctor if no value exists
// yet. When several goroutines miss on the same key, ctor runs once and all
// of them receive its result. A caller whose ctx ends first returns
// ctx.Err() without cancelling the construction.
func (c *Cache[V]) GetOrCreate(ctx context.Context, key string, ctor Constructor[V]) (V, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}

	detached := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (val any, err error) {
		// A flight that started after another one stored the value must
		// not construct again.
		if v, ok := c.Get(key); ok {
			return v, nil
		}
		// DoChan re-panics on a goroutine nobody can recover.
		defer func() {
			if r := recover(); r != nil {
				val, err = nil, &PanicError{Key: key, Value: r}
			}
		}()
		v, err := ctor(detached)
		if err != nil {
			return v, err
		}
		c.mu.Lock()
		c.items[key] = v
		c.mu.Unlock()
		return v, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			var zero V
			return zero, res.Err
		}
		v, _ := res.Val.(V)
		return v, nil
	case <-ctx.Done():
		var zero V
		return zero, ctx.Err()
	}
}

// Len reports the number of constructed values.
func (c *Cache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Keys returns the constructed keys in sorted order.
func (c *Cache[V]) Keys() []string {
	c.mu.RLock()
	keys := make([]string, 0, len(c.items))
	for k := range c.items {
		keys = append(keys, k)
	}
	c.mu.RUnlock()
	sort.Strings(keys)
	return keys
}

// Range calls fn for every constructed value. fn must not call back into
// the cache.
func (c *Cache[V]) Range(fn func(key string, v V)) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for k, v := range c.items {
		fn(k, v)
	}
}
