// Package cache stores the last published refresh snapshot so a restarted
// service can serve it before its first cycle.
package cache

import "errors"

// Backend names accepted by configuration.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendSQLite = "sqlite"
)

// ErrUnavailable wraps connection failures to the cache backend.
var ErrUnavailable = errors.New("snapshot cache unavailable")
