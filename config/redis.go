package config

import "sync"

var (
	redisOnce   sync.Once
	redisConfig *RedisConfig
)

// RedisConfig is shared by the task queue, task status keys and history.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

func GetRedisConfig() *RedisConfig {
	redisOnce.Do(func() {
		loadEnv()
		redisConfig = loadRedisConfig()
	})
	return redisConfig
}

func loadRedisConfig() *RedisConfig {
	return &RedisConfig{
		Addr:     envString("REDIS_ADDR", "localhost:6379"),
		Password: envString("REDIS_PASSWORD", ""),
		DB:       envInt("REDIS_DB", 0),
	}
}
