// Package rediscache is a read-through cache layered over a
// store.DocumentStore, built around an Options struct (one Redis client per
// Store) and a Get/Set/Del client surface, adapting a generic caching
// interface to yessql's store.DocumentStore.
package rediscache

import (
	"context"
	"crypto/tls"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/andrewcoll/yessql"
	"github.com/andrewcoll/yessql/store"
)

// Options configures the Redis connection used as an L2 cache in front of a
// backing DocumentStore.
type Options struct {
	Address   string
	Password  string
	DB        int
	TLSConfig *tls.Config
	// TTL is the cache entry lifetime; zero means no expiration.
	TTL time.Duration
}

// DefaultOptions returns the conventional local-development defaults.
func DefaultOptions() Options {
	return Options{Address: "localhost:6379"}
}

// Store wraps a backing store.DocumentStore with a Redis read-through
// cache: Load checks Redis first, falling through to the backing store and
// populating the cache on miss; Save and Delete write through to both.
type Store struct {
	backing store.DocumentStore
	client  *redis.Client
	ttl     time.Duration
	marsh   yessql.Marshaler
}

// New opens a Redis connection per opts and returns a Store caching reads
// from backing.
func New(opts Options, backing store.DocumentStore) *Store {
	client := redis.NewClient(&redis.Options{
		Addr:      opts.Address,
		Password:  opts.Password,
		DB:        opts.DB,
		TLSConfig: opts.TLSConfig,
	})
	return &Store{
		backing: backing,
		client:  client,
		ttl:     opts.TTL,
		marsh:   yessql.NewMarshaler(),
	}
}

// Close releases the underlying Redis connection.
func (s *Store) Close() error {
	return s.client.Close()
}

func cacheKey(id int64) string {
	return "yessql:doc:" + strconv.FormatInt(id, 10)
}

// Load implements store.DocumentStore, consulting Redis before the backing
// store.
func (s *Store) Load(ctx context.Context, id int64, out any) (bool, error) {
	key := cacheKey(id)
	raw, err := s.client.Get(ctx, key).Bytes()
	if err == nil {
		return true, s.marsh.Unmarshal(raw, out)
	}
	if err != redis.Nil {
		return false, yessql.Backend(err)
	}

	found, err := s.backing.Load(ctx, id, out)
	if err != nil {
		return false, err
	}
	if found {
		if data, merr := s.marsh.Marshal(out); merr == nil {
			s.client.Set(ctx, key, data, s.ttl)
		}
	}
	return found, nil
}

// Save writes through to the backing store and invalidates (refreshes) the
// cached entry.
func (s *Store) Save(ctx context.Context, id int64, entity any) error {
	if err := s.backing.Save(ctx, id, entity); err != nil {
		return err
	}
	data, err := s.marsh.Marshal(entity)
	if err != nil {
		return yessql.Backend(err)
	}
	return s.client.Set(ctx, cacheKey(id), data, s.ttl).Err()
}

// Delete writes through to the backing store and evicts the cached entry.
func (s *Store) Delete(ctx context.Context, id int64) error {
	if err := s.backing.Delete(ctx, id); err != nil {
		return err
	}
	return s.client.Del(ctx, cacheKey(id)).Err()
}
