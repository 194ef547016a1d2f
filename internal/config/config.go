package config

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

type Config interface {
	EnvConfig
	CorsConfig
	SecurityConfig
	RateLimitConfig
	RedisConfig
}

type EnvConfig interface {
	GetPort() string
	GetAppName() string
	GetEnv() string
	GetLogLevel() string
	GetAdminEmail() string
	GetAdminPassword() string
}

type CorsConfig interface {
	GetAllowedOrigins() AllowedOrigins
	GetAllowedMethods() []string
	GetAllowedHeaders() []string
	GetExposedHeaders() []string
}

type mainConfig struct {
	EnvVars
	Cors
	Security
	RateLimits
	Redis
}

// New loads a .env file from the working directory when one exists and returns a Config
// backed by the process environment. Variables already set in the environment win.
func New() Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Msg("Failed to load .env file")
	}
	return mainConfig{}
}
