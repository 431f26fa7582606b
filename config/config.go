/*
Package config loads server configuration from the environment.

All settings are environment variables with the APPROVAL_ prefix;
cmd/server loads a .env file first so local development needs no exported
variables. Defaults are tuned for a local single-node setup.
*/
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App       AppConfig
	DB        DBConfig
	Scheduler SchedulerConfig
}

// Load reads configuration from the environment.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return &cfg, nil
}

type AppConfig struct {
	Env      string `envconfig:"APPROVAL_APP_ENV" default:"dev"`
	Port     int    `envconfig:"APPROVAL_PORT" default:"8080"`
	LogLevel string `envconfig:"APPROVAL_LOG_LEVEL" default:"info"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, "dev")
}

type DBConfig struct {
	// Path of the SQLite database file. ":memory:" for an in-memory database.
	Path string `envconfig:"APPROVAL_DB_PATH" default:"approvals.db"`
}

type SchedulerConfig struct {
	Enabled  bool          `envconfig:"APPROVAL_RECONCILE_ENABLED" default:"true"`
	Interval time.Duration `envconfig:"APPROVAL_RECONCILE_INTERVAL" default:"1h"`
}
