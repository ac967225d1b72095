package transaction

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/redis/go-redis/v9"
)

const (
	// KeyPrefix namespaces transaction records in Redis.
	KeyPrefix = "transaction:"
	// RecordTTL is the retention window; every write resets it.
	RecordTTL = time.Hour

	maxApplyAttempts = 5
)

// MutateFunc receives the stored record and returns the record to write, or
// nil to leave the stored value untouched.
type MutateFunc func(current *Record) (*Record, error)

// Store persists transaction records with a bounded lifetime.
type Store interface {
	Create(ctx context.Context, rec *Record, ttl time.Duration) error
	Get(ctx context.Context, id string) (*Record, error)
	Update(ctx context.Context, rec *Record, ttl time.Duration) error
	// Apply runs fn as an atomic read-modify-write on one record and returns
	// the record as stored afterwards.
	Apply(ctx context.Context, id string, ttl time.Duration, fn MutateFunc) (*Record, error)
}

// RedisStore keeps each record as a JSON string under KeyPrefix+id.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a store on top of an existing client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Key returns the Redis key of a transaction id.
func Key(id string) string {
	return KeyPrefix + id
}

func (s *RedisStore) Create(ctx context.Context, rec *Record, ttl time.Duration) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode transaction %s: %w", rec.ID, err)
	}

	created, err := s.client.SetNX(ctx, Key(rec.ID), payload, ttl).Result()
	if err != nil {
		return unavailable("create", err)
	}
	if !created {
		return fmt.Errorf("%w: %s", ErrAlreadyExists, rec.ID)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (*Record, error) {
	data, err := s.client.Get(ctx, Key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, unavailable("get", err)
	}
	return decodeRecord(id, data)
}

// Update replaces the stored record and resets its expiry.
func (s *RedisStore) Update(ctx context.Context, rec *Record, ttl time.Duration) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode transaction %s: %w", rec.ID, err)
	}
	if err := s.client.Set(ctx, Key(rec.ID), payload, ttl).Err(); err != nil {
		return unavailable("update", err)
	}
	return nil
}

// Apply uses WATCH/MULTI so a concurrent writer forces a re-read; fn then
// sees the winner's record instead of overwriting it.
func (s *RedisStore) Apply(ctx context.Context, id string, ttl time.Duration, fn MutateFunc) (*Record, error) {
	key := Key(id)

	var (
		stored *Record
		fnErr  error
	)

	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return ErrNotFound
			}
			return unavailable("get", err)
		}

		current, err := decodeRecord(id, data)
		if err != nil {
			return err
		}

		next, err := fn(current)
		if err != nil {
			stored, fnErr = current, err
			return err
		}
		if next == nil {
			stored = current
			return nil
		}

		payload, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("failed to encode transaction %s: %w", id, err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, ttl)
			return nil
		})
		if err != nil {
			if errors.Is(err, redis.TxFailedErr) {
				return err
			}
			return unavailable("update", err)
		}

		stored = next
		return nil
	}

	for attempt := 1; attempt <= maxApplyAttempts; attempt++ {
		stored, fnErr = nil, nil

		err := s.client.Watch(ctx, txf, key)
		switch {
		case err == nil:
			return stored, nil
		case fnErr != nil:
			return stored, fnErr
		case errors.Is(err, redis.TxFailedErr):
			log.Warnf("[Store] Concurrent write on %s, retrying (attempt %d)", key, attempt)
			continue
		case errors.Is(err, ErrNotFound), errors.Is(err, ErrStoreUnavailable):
			return nil, err
		case ctx.Err() != nil:
			return nil, unavailable("apply", ctx.Err())
		default:
			return nil, unavailable("apply", err)
		}
	}

	return nil, unavailable("apply", fmt.Errorf("gave up after %d concurrent writes", maxApplyAttempts))
}

func decodeRecord(id string, data []byte) (*Record, error) {
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, unavailable("decode "+id, err)
	}
	return &rec, nil
}
