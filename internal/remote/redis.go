package remote

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

// DefaultPrefix namespaces every key the store writes.
const DefaultPrefix = "tsk:"

// maxTxRetries bounds optimistic-lock retries in Update.
const maxTxRetries = 3

// RedisConfig holds connection settings for the Redis document store.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int

	// Prefix namespaces keys (default: DefaultPrefix).
	Prefix string

	// Transport timeouts; zero keeps the go-redis defaults.
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// RateLimit caps calls per second (0 = unlimited). Burst defaults to 1.
	RateLimit float64
	Burst     int
}

// Redis stores each task document as a hash at <prefix>tasks:<id> and keeps
// an owner index set at <prefix>owner:<userId>.
type Redis struct {
	client  *redis.Client
	prefix  string
	limiter *rate.Limiter
}

// NewRedis connects lazily to the server in cfg.
func NewRedis(cfg RedisConfig) *Redis {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	return NewRedisWithClient(client, cfg.Prefix, limiter)
}

// NewRedisWithClient wraps an existing client. limiter may be nil.
func NewRedisWithClient(client *redis.Client, prefix string, limiter *rate.Limiter) *Redis {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Redis{client: client, prefix: prefix, limiter: limiter}
}

// Close releases the underlying connection pool.
func (r *Redis) Close() error {
	return r.client.Close()
}

// DocKey returns the native key for task id.
func (r *Redis) DocKey(id string) string {
	return r.prefix + "tasks:" + id
}

func (r *Redis) ownerKey(userID string) string {
	return r.prefix + "owner:" + userID
}

func (r *Redis) wait(ctx context.Context) error {
	if r.limiter == nil {
		return nil
	}
	if err := r.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}
	return nil
}

// ListByOwner implements Store.ListByOwner.
func (r *Redis) ListByOwner(ctx context.Context, userID string) ([]Document, error) {
	if err := r.wait(ctx); err != nil {
		return nil, err
	}

	ids, err := r.client.SMembers(ctx, r.ownerKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read owner index: %w", err)
	}
	if len(ids) == 0 {
		return []Document{}, nil
	}
	sort.Strings(ids)

	cmds := make([]*redis.MapStringStringCmd, len(ids))
	_, err = r.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = pipe.HGetAll(ctx, r.DocKey(id))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read documents: %w", err)
	}

	docs := make([]Document, 0, len(ids))
	for i, cmd := range cmds {
		raw, err := cmd.Result()
		if err != nil {
			return nil, fmt.Errorf("failed to read document %s: %w", ids[i], err)
		}
		// Stale index entry: the hash was deleted or re-owned.
		if len(raw) == 0 || raw[FieldUserID] != userID {
			continue
		}
		docs = append(docs, Document{ID: ids[i], Fields: decodeFields(raw)})
	}
	return docs, nil
}

// Set implements Store.Set.
func (r *Redis) Set(ctx context.Context, id string, fields Fields, opts SetOptions) error {
	if err := fields.Validate(); err != nil {
		return err
	}
	if err := r.wait(ctx); err != nil {
		return err
	}

	key := r.DocKey(id)
	txf := func(tx *redis.Tx) error {
		oldOwner, err := tx.HGet(ctx, key, FieldUserID).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}

		newOwner := oldOwner
		if !opts.Merge {
			newOwner = ""
		}
		if v, ok := fields[FieldUserID].(string); ok {
			newOwner = v
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if !opts.Merge {
				pipe.Del(ctx, key)
			}
			if len(fields) > 0 {
				pipe.HSet(ctx, key, encodeFields(fields))
			}
			r.reindex(ctx, pipe, id, oldOwner, newOwner)
			return nil
		})
		return err
	}

	if err := r.watch(ctx, key, txf); err != nil {
		return fmt.Errorf("failed to set document %s: %w", id, err)
	}
	return nil
}

// Update implements Store.Update.
func (r *Redis) Update(ctx context.Context, id string, fields Fields) error {
	if err := fields.Validate(); err != nil {
		return err
	}
	if err := r.wait(ctx); err != nil {
		return err
	}

	key := r.DocKey(id)
	txf := func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}

		oldOwner, err := tx.HGet(ctx, key, FieldUserID).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		newOwner := oldOwner
		if v, ok := fields[FieldUserID].(string); ok {
			newOwner = v
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if len(fields) > 0 {
				pipe.HSet(ctx, key, encodeFields(fields))
			}
			r.reindex(ctx, pipe, id, oldOwner, newOwner)
			return nil
		})
		return err
	}

	err := r.watch(ctx, key, txf)
	if errors.Is(err, ErrNotFound) {
		return err
	}
	if err != nil {
		return fmt.Errorf("failed to update document %s: %w", id, err)
	}
	return nil
}

// watch runs txf under WATCH on key, retrying when another writer touched
// the key between the read and the EXEC.
func (r *Redis) watch(ctx context.Context, key string, txf func(*redis.Tx) error) error {
	var err error
	for i := 0; i < maxTxRetries; i++ {
		err = r.client.Watch(ctx, txf, key)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
	}
	return err
}

// Delete implements Store.Delete.
func (r *Redis) Delete(ctx context.Context, id string) error {
	if err := r.wait(ctx); err != nil {
		return err
	}

	key := r.DocKey(id)
	txf := func(tx *redis.Tx) error {
		owner, err := tx.HGet(ctx, key, FieldUserID).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key)
			if owner != "" {
				pipe.SRem(ctx, r.ownerKey(owner), id)
			}
			return nil
		})
		return err
	}

	if err := r.watch(ctx, key, txf); err != nil {
		return fmt.Errorf("failed to delete document %s: %w", id, err)
	}
	return nil
}

// Ping implements Store.Ping.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *Redis) reindex(ctx context.Context, pipe redis.Pipeliner, id, oldOwner, newOwner string) {
	if oldOwner != "" && oldOwner != newOwner {
		pipe.SRem(ctx, r.ownerKey(oldOwner), id)
	}
	if newOwner != "" {
		pipe.SAdd(ctx, r.ownerKey(newOwner), id)
	}
}

func encodeFields(fields Fields) map[string]interface{} {
	out := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		out[k] = encodeValue(v)
	}
	return out
}
