package database

import (
	"context"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"Bootcamp/internal/config"
)

// NewRedisClient connects to Redis when enabled. It returns nil when Redis
// is disabled or unreachable; callers then run without distributed locks.
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	if !cfg.Enabled {
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		log.Printf("⚠️ Redis unreachable at %s, continuing without locks: %v", cfg.Addr, err)
		_ = client.Close()
		return nil
	}
	log.Println("Redis connected successfully")
	return client
}
