package store

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"

	v1alpha1 "github.com/klubi/stratus/pkg/apis/v1alpha1"
)

// redisOpTimeout bounds every round-trip; the Store interface carries no context.
const redisOpTimeout = 5 * time.Second

// RedisStore persists resources as JSON strings in Redis. Every key is
// namespaced with keyPrefix so several deployments can share a database.
type RedisStore struct {
	watchHub

	client    *redis.Client
	keyPrefix string
}

// NewRedisStore wraps an existing client. keyPrefix defaults to "stratus".
func NewRedisStore(client *redis.Client, keyPrefix string) *RedisStore {
	if keyPrefix == "" {
		keyPrefix = "stratus"
	}
	return &RedisStore{client: client, keyPrefix: keyPrefix}
}

func (r *RedisStore) redisKey(key string) string {
	return r.keyPrefix + ":" + key
}

func (r *RedisStore) ctx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), redisOpTimeout)
}

func (r *RedisStore) Create(key string, value interface{}) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}

	ctx, cancel := r.ctx()
	defer cancel()

	ok, err := r.client.SetNX(ctx, r.redisKey(key), raw, 0).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrAlreadyExists
	}

	r.notify(v1alpha1.EventAdded, key, value)
	return nil
}

func (r *RedisStore) Get(key string, target interface{}) error {
	ctx, cancel := r.ctx()
	defer cancel()

	raw, err := r.client.Get(ctx, r.redisKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, target)
}

func (r *RedisStore) Update(key string, value interface{}) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}

	ctx, cancel := r.ctx()
	defer cancel()

	ok, err := r.client.SetXX(ctx, r.redisKey(key), raw, 0).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}

	r.notify(v1alpha1.EventModified, key, value)
	return nil
}

// modifyAttempts bounds optimistic retries when another client touches the
// key between WATCH and EXEC.
const modifyAttempts = 5

// Modify uses WATCH/MULTI so the write only lands if the key is unchanged
// since it was read.
func (r *RedisStore) Modify(key string, target interface{}, mutate func() error) error {
	ctx, cancel := r.ctx()
	defer cancel()

	rk := r.redisKey(key)
	txf := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, rk).Bytes()
		if errors.Is(err, redis.Nil) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		if err := json.Unmarshal(raw, target); err != nil {
			return err
		}
		if err := mutate(); err != nil {
			return err
		}
		next, err := json.Marshal(target)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, rk, next, 0)
			return nil
		})
		return err
	}

	var err error
	for i := 0; i < modifyAttempts; i++ {
		err = r.client.Watch(ctx, txf, rk)
		if !errors.Is(err, redis.TxFailedErr) {
			break
		}
	}
	if err != nil {
		return err
	}
	r.notify(v1alpha1.EventModified, key, target)
	return nil
}

func (r *RedisStore) Delete(key string) error {
	ctx, cancel := r.ctx()
	defer cancel()

	rk := r.redisKey(key)
	raw, err := r.client.Get(ctx, rk).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	n, err := r.client.Del(ctx, rk).Result()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}

	var obj interface{}
	_ = json.Unmarshal(raw, &obj)
	r.notify(v1alpha1.EventDeleted, key, obj)
	return nil
}

// List scans for matching keys, sorts them and fetches the values in one MGET.
func (r *RedisStore) List(prefix string, factory func() interface{}) ([]interface{}, error) {
	ctx, cancel := r.ctx()
	defer cancel()

	pattern := escapeGlob(r.redisKey(prefix)) + "*"
	var keys []string
	iter := r.client.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}

	results := []interface{}{}
	if len(keys) == 0 {
		return results, nil
	}
	sort.Strings(keys)

	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	for _, v := range values {
		s, ok := v.(string)
		if !ok {
			// Deleted between SCAN and MGET.
			continue
		}
		obj := factory()
		if err := json.Unmarshal([]byte(s), obj); err != nil {
			return nil, err
		}
		results = append(results, obj)
	}
	return results, nil
}

func (r *RedisStore) Close() error {
	r.closeAll()
	return r.client.Close()
}

// escapeGlob quotes the characters SCAN MATCH treats specially.
func escapeGlob(s string) string {
	var b strings.Builder
	for _, c := range s {
		switch c {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(c)
	}
	return b.String()
}
