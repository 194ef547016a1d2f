package config

import "time"

const (
	rateLimitMaxVar       = "RATE_LIMIT_MAX"
	rateLimitWindowVar    = "RATE_LIMIT_WINDOW"
	loginThrottleRateVar  = "LOGIN_THROTTLE_RATE"
	loginThrottleBurstVar = "LOGIN_THROTTLE_BURST"
	redisURLVar           = "REDIS_URL"
)

type RateLimitConfig interface {
	GetRateLimitMax() int
	GetRateLimitWindow() time.Duration
	GetLoginThrottleRate() float64
	GetLoginThrottleBurst() int
}

type RedisConfig interface {
	GetRedisURL() string
}

type RateLimits struct{}

var _ RateLimitConfig = RateLimits{}

// GetRateLimitMax is the number of sensitive operations allowed per principal and origin in one window.
func (RateLimits) GetRateLimitMax() int {
	return GetInt(rateLimitMaxVar, 5)
}

func (RateLimits) GetRateLimitWindow() time.Duration {
	return GetDuration(rateLimitWindowVar, 15*time.Minute)
}

// GetLoginThrottleRate is the sustained number of login attempts per second allowed from one origin.
func (RateLimits) GetLoginThrottleRate() float64 {
	return GetFloat(loginThrottleRateVar, 0.2)
}

func (RateLimits) GetLoginThrottleBurst() int {
	return GetInt(loginThrottleBurstVar, 10)
}

type Redis struct{}

var _ RedisConfig = Redis{}

// GetRedisURL selects the Redis rate limiter when set, e.g. redis://localhost:6379/0.
func (Redis) GetRedisURL() string {
	return GetEnv(redisURLVar, "")
}
