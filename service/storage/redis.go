package storage

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

type Config struct {
	Addr     string
	Password string
	DB       int
}

var (
	rdb *redis.Client
	ctx = context.Background()
)

func InitRedis(c Config) error {
	rdb = redis.NewClient(&redis.Options{Addr: c.Addr, Password: c.Password, DB: c.DB})
	return rdb.Ping(ctx).Err()
}

func CloseRedis() error {
	if rdb == nil {
		return nil
	}
	err := rdb.Close()
	rdb = nil
	return err
}

// Enabled reports whether the Redis mirror is configured. Every helper in
// this package degrades to a no-op error when it is not; callers treat
// those as best-effort failures.
func Enabled() bool { return rdb != nil }

func errNotInitialized() error { return fmt.Errorf("redis not initialized") }
