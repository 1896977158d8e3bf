// Package redis provides a Redis-backed [quota.Store].
//
// Each account is a plain integer key under [KeyPrefix]. Decrements run as a
// Lua script so the clamp at zero is atomic across concurrent sessions.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	goredis "github.com/redis/go-redis/v9"

	"github.com/MrWong99/parley/internal/quota"
)

// KeyPrefix is prepended to every account key.
const KeyPrefix = "parley:quota:"

var (
	_ quota.Store  = (*Store)(nil)
	_ quota.Pinger = (*Store)(nil)
)

// decrementScript returns -1 when the key is missing, otherwise the balance
// after subtracting ARGV[1], floored at zero.
var decrementScript = goredis.NewScript(`
local v = redis.call('GET', KEYS[1])
if not v then
  return -1
end
local left = tonumber(v) - tonumber(ARGV[1])
if left < 0 then
  left = 0
end
redis.call('SET', KEYS[1], left)
return left
`)

// Store is a [quota.Store] backed by a Redis client.
type Store struct {
	client goredis.UniversalClient
	def    int
}

// New wraps an existing client. Accounts seen for the first time start with
// defaultMinutes.
func New(client goredis.UniversalClient, defaultMinutes int) *Store {
	return &Store{client: client, def: max(defaultMinutes, 0)}
}

// Dial parses a redis:// URL, connects and pings the server.
func Dial(ctx context.Context, url string, defaultMinutes int) (*Store, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis quota: parse url: %w", err)
	}
	client := goredis.NewClient(opts)
	s := New(client, defaultMinutes)
	if err := s.Ping(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying client.
func (s *Store) Close() error { return s.client.Close() }

// Ping implements [quota.Pinger].
func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis quota: ping: %w", err)
	}
	return nil
}

// Remaining implements [quota.Store]. A missing key is initialised with the
// default balance via SETNX, so a concurrent writer always wins.
func (s *Store) Remaining(ctx context.Context, account string) (int, error) {
	if account == "" {
		return 0, fmt.Errorf("redis quota: remaining: %w", quota.ErrUnknownAccount)
	}
	key := KeyPrefix + account

	left, err := s.get(ctx, key)
	if err == nil {
		return left, nil
	}
	if !errors.Is(err, goredis.Nil) {
		return 0, err
	}

	created, err := s.client.SetNX(ctx, key, s.def, 0).Result()
	if err != nil {
		return 0, fmt.Errorf("redis quota: init %q: %w", account, err)
	}
	if created {
		return s.def, nil
	}
	return s.get(ctx, key)
}

// Decrement implements [quota.Store].
func (s *Store) Decrement(ctx context.Context, account string, minutes int) (int, error) {
	if account == "" {
		return 0, fmt.Errorf("redis quota: decrement: %w", quota.ErrUnknownAccount)
	}
	if minutes < 0 {
		return 0, fmt.Errorf("redis quota: decrement: negative minutes %d", minutes)
	}
	left, err := decrementScript.Run(ctx, s.client, []string{KeyPrefix + account}, minutes).Int()
	if err != nil {
		return 0, fmt.Errorf("redis quota: decrement: %w", err)
	}
	if left < 0 {
		return 0, fmt.Errorf("redis quota: decrement %q: %w", account, quota.ErrUnknownAccount)
	}
	return left, nil
}

func (s *Store) get(ctx context.Context, key string) (int, error) {
	raw, err := s.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return 0, err
		}
		return 0, fmt.Errorf("redis quota: get %q: %w", key, err)
	}
	left, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("redis quota: corrupt balance at %q: %w", key, err)
	}
	return max(left, 0), nil
}
