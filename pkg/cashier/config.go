package cashier

import (
	"errors"
	"sync"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

var dotenvOnce sync.Once

// ErrParsingConfig wraps env-tag parsing failures.
var ErrParsingConfig = errors.New("failed to parse configuration from environment")

// LoadConfig populates an env-tagged config struct (StripeConfig,
// PostgresConfig, RedisDedupConfig) from the environment, loading a .env
// file first if one exists.
func LoadConfig[T any]() (T, error) {
	dotenvOnce.Do(func() {
		// A missing .env file is fine; real deployments set env directly.
		_ = godotenv.Load()
	})

	var cfg T
	if err := env.Parse(&cfg); err != nil {
		return cfg, errors.Join(ErrParsingConfig, err)
	}
	return cfg, nil
}
