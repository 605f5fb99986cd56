// Package config loads the drainhubd runtime configuration from environment
// variables, with documented defaults for every knob.
package config

import (
	"os"
	"time"

	"github.com/driftlock/drainhub"
)

// Defaults for every environment variable.
const (
	DefaultAddr      = ":8000"
	DefaultLogLevel  = "info"
	DefaultLogFormat = "text"
)

// Config holds the runtime configuration of one server process.
//
//	DRAINHUB_ADDR                HTTP listen address          (default :8000)
//	DRAINHUB_BROADCAST_INTERVAL  broadcaster tick             (default 10s)
//	DRAINHUB_POLL_INTERVAL       shutdown drain poll          (default 5s)
//	DRAINHUB_SHUTDOWN_TIMEOUT    shutdown drain hard deadline (default 30m)
//	DRAINHUB_LOG_LEVEL           debug, info, warn, error     (default info)
//	DRAINHUB_LOG_FORMAT          text or json                 (default text)
type Config struct {
	Addr              string
	BroadcastInterval time.Duration
	PollInterval      time.Duration
	ShutdownTimeout   time.Duration
	LogLevel          string
	LogFormat         string
}

// FromEnv reads the configuration from the environment. Unset or unparsable
// values fall back to the defaults.
func FromEnv() Config {
	return Config{
		Addr:              getenv("DRAINHUB_ADDR", DefaultAddr),
		BroadcastInterval: getduration("DRAINHUB_BROADCAST_INTERVAL", drainhub.DefaultTickInterval),
		PollInterval:      getduration("DRAINHUB_POLL_INTERVAL", drainhub.DefaultPollInterval),
		ShutdownTimeout:   getduration("DRAINHUB_SHUTDOWN_TIMEOUT", drainhub.DefaultShutdownTimeout),
		LogLevel:          getenv("DRAINHUB_LOG_LEVEL", DefaultLogLevel),
		LogFormat:         getenv("DRAINHUB_LOG_FORMAT", DefaultLogFormat),
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getduration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
