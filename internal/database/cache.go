package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/valkey-io/valkey-go"
)

// CacheItem is the low-level cache record. HashPattern, when set, is applied
// to the key before any command runs.
type CacheItem[T any] struct {
	Cache       CacheClient
	Key         string
	Value       T
	Expiry      *time.Duration
	HashPattern *string
}

func (c CacheItem[T]) key() string {
	if c.HashPattern != nil {
		return fmt.Sprintf(*c.HashPattern, c.Key)
	}
	return c.Key
}

func (c CacheItem[T]) SetValue(ctx context.Context) error {
	if c.Cache == nil {
		return fmt.Errorf("cache client is nil")
	}

	data, err := json.Marshal(c.Value)
	if err != nil {
		return fmt.Errorf("failed to marshal cache value: %w", err)
	}

	builder := c.Cache.B().Set().Key(c.key()).Value(string(data))
	if c.Expiry != nil {
		return c.Cache.Do(ctx, builder.Ex(*c.Expiry).Build()).Error()
	}
	return c.Cache.Do(ctx, builder.Build()).Error()
}

func (c CacheItem[T]) GetValue(ctx context.Context, dest *T) (bool, error) {
	if c.Cache == nil {
		return false, fmt.Errorf("cache client is nil")
	}

	raw, err := c.Cache.Do(ctx, c.Cache.B().Get().Key(c.key()).Build()).ToString()
	if err != nil {
		if valkey.IsValkeyNil(err) {
			return false, nil
		}
		return false, err
	}

	if err := json.Unmarshal([]byte(raw), dest); err != nil {
		return false, fmt.Errorf("failed to unmarshal cache value: %w", err)
	}
	return true, nil
}

func (c CacheItem[T]) DeleteCachedValue(ctx context.Context) error {
	if c.Cache == nil {
		return fmt.Errorf("cache client is nil")
	}
	return c.Cache.Do(ctx, c.Cache.B().Del().Key(c.key()).Build()).Error()
}

// CacheBuilder is the fluent front over CacheItem used by the repositories.
type CacheBuilder struct {
	cache CacheClient
	key   string
	value any
	ttl   *time.Duration
	ctx   context.Context
}

func NewCacheBuilder(cache CacheClient, key string) *CacheBuilder {
	return &CacheBuilder{
		cache: cache,
		key:   key,
		ctx:   context.Background(),
	}
}

func (b *CacheBuilder) WithStruct(value any) *CacheBuilder {
	b.value = value
	return b
}

func (b *CacheBuilder) WithTTL(ttl time.Duration) *CacheBuilder {
	b.ttl = &ttl
	return b
}

func (b *CacheBuilder) WithContext(ctx context.Context) *CacheBuilder {
	b.ctx = ctx
	return b
}

func (b *CacheBuilder) Set() error {
	item := CacheItem[any]{
		Cache:  b.cache,
		Key:    b.key,
		Value:  b.value,
		Expiry: b.ttl,
	}
	return item.SetValue(b.ctx)
}

// Get unmarshals the cached value into dest and reports whether the key was
// present. A cache miss is (false, nil), not an error.
func (b *CacheBuilder) Get(dest any) (bool, error) {
	if b.cache == nil {
		return false, fmt.Errorf("cache client is nil")
	}

	raw, err := b.cache.Do(b.ctx, b.cache.B().Get().Key(b.key).Build()).ToString()
	if err != nil {
		if valkey.IsValkeyNil(err) {
			return false, nil
		}
		return false, err
	}

	if err := json.Unmarshal([]byte(raw), dest); err != nil {
		return false, fmt.Errorf("failed to unmarshal cache value: %w", err)
	}
	return true, nil
}

func (b *CacheBuilder) Delete() error {
	if b.cache == nil {
		return fmt.Errorf("cache client is nil")
	}
	return b.cache.Do(b.ctx, b.cache.B().Del().Key(b.key).Build()).Error()
}
