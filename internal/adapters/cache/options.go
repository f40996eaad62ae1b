package cache

import "time"

type redisConfig struct {
	addr     string
	password string
	db       int
	key      string
	ttl      time.Duration
	client   RedisClient
}

// RedisOption configures the Redis cache.
type RedisOption func(*redisConfig)

// WithRedisAddr sets host:port.
func WithRedisAddr(addr string) RedisOption {
	return func(c *redisConfig) {
		if addr != "" {
			c.addr = addr
		}
	}
}

// WithRedisPassword sets the AUTH password.
func WithRedisPassword(password string) RedisOption {
	return func(c *redisConfig) {
		c.password = password
	}
}

// WithRedisDB selects the database number.
func WithRedisDB(db int) RedisOption {
	return func(c *redisConfig) {
		c.db = db
	}
}

// WithRedisKey sets the key the snapshot is stored under.
func WithRedisKey(key string) RedisOption {
	return func(c *redisConfig) {
		if key != "" {
			c.key = key
		}
	}
}

// WithRedisTTL expires the snapshot; zero keeps it forever.
func WithRedisTTL(ttl time.Duration) RedisOption {
	return func(c *redisConfig) {
		if ttl >= 0 {
			c.ttl = ttl
		}
	}
}

// WithRedisClient injects an existing client and skips the connection check.
func WithRedisClient(client RedisClient) RedisOption {
	return func(c *redisConfig) {
		c.client = client
	}
}
