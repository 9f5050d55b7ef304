package config

import "time"

// CacheConfig defines settings for the slot listing read-path cache.  When
// Enabled is false or no Redis client is configured, listings always go to
// the database.  TTL is the only eviction mechanism: mutations do not
// invalidate cached listings, so TTL bounds how stale a listing can be.
type CacheConfig struct {
	Enabled bool
	TTL     time.Duration
	Prefix  string
}

// LoadCacheConfig reads CACHE_* environment variables.  Defaults are used
// when variables are not set.
func LoadCacheConfig() CacheConfig {
	cfg := CacheConfig{
		Enabled: envBool("CACHE_ENABLED", true),
		TTL:     envDur("CACHE_TTL", 300*time.Second),
		Prefix:  envStr("CACHE_PREFIX", "slots"),
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 300 * time.Second
	}
	return cfg
}
