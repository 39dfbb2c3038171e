package store

import (
	"fmt"
	"os"

	"github.com/go-redis/redis/v8"

	"github.com/klubi/stratus/internal/config"
)

// Open builds the backend selected by cfg.Type.
func Open(cfg config.StoreConfig) (Store, error) {
	switch cfg.Type {
	case "", BackendMemory:
		return NewMemoryStore(), nil

	case BackendBolt:
		if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
			return nil, fmt.Errorf("creating data directory %s: %w", cfg.DataDir, err)
		}
		s, err := NewBoltStore(cfg.DBPath())
		if err != nil {
			return nil, fmt.Errorf("opening bolt store at %s: %w", cfg.DBPath(), err)
		}
		return s, nil

	case BackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		return NewRedisStore(client, cfg.Redis.KeyPrefix), nil

	default:
		return nil, fmt.Errorf("unknown store type %q (want memory, bolt or redis)", cfg.Type)
	}
}
