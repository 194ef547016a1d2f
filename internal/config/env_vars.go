package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	portEnvVar         = "PORT"
	appNameVar         = "APP_NAME"
	envVar             = "ENV"
	logLevelVar        = "LOG_LEVEL"
	adminEmailVar      = "ADMIN_EMAIL"
	adminPasswordVar   = "ADMIN_PASSWORD"
	defaultEnvironment = "DEV"
	defaultListenPort  = "8080"
	defaultAppName     = "Finance Tracker"
	defaultLogLevel    = "info"
	noAdminAccount     = ""
)

type EnvVars struct{}

var _ EnvConfig = EnvVars{}

func (EnvVars) GetPort() string {
	port := GetEnv(portEnvVar, defaultListenPort)
	if !strings.HasPrefix(port, ":") {
		port = fmt.Sprintf(":%s", port)
	}
	return port
}

func (EnvVars) GetAppName() string {
	return GetEnv(appNameVar, defaultAppName)
}

func (EnvVars) GetEnv() string {
	return GetEnv(envVar, defaultEnvironment)
}

func (EnvVars) GetLogLevel() string {
	return GetEnv(logLevelVar, defaultLogLevel)
}

// GetAdminEmail is the email of the administrator account created at startup, if any.
func (EnvVars) GetAdminEmail() string {
	return GetEnv(adminEmailVar, noAdminAccount)
}

func (EnvVars) GetAdminPassword() string {
	return GetEnv(adminPasswordVar, noAdminAccount)
}

func GetEnv(envVar, defaultValue string) string {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	return value
}

// GetDuration parses envVar with time.ParseDuration. Unset or unparsable values yield defaultValue.
func GetDuration(envVar string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return d
}

// GetInt parses envVar as a base 10 integer. Unset or unparsable values yield defaultValue.
func GetInt(envVar string, defaultValue int) int {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return n
}

// GetFloat parses envVar as a float. Unset or unparsable values yield defaultValue.
func GetFloat(envVar string, defaultValue float64) float64 {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return defaultValue
	}
	return f
}
