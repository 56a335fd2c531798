package store

import (
	"context"
	"fmt"
	"time"
)

// Supported backend drivers.
const (
	DriverMemory   = "memory"
	DriverSurreal  = "surrealdb"
	DriverPostgres = "postgres"
)

// Config selects and configures a backend.
type Config struct {
	Driver         string        `yaml:"driver"`
	PostgresDSN    string        `yaml:"postgres_dsn"`
	Surreal        SurrealConfig `yaml:"surreal"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
}

// OpenBackend connects the configured backend. Connecting must finish within
// ConnectTimeout; callers treat a failure here as fatal.
func OpenBackend(ctx context.Context, cfg Config) (Backend, error) {
	if cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.ConnectTimeout)
		defer cancel()
	}

	switch cfg.Driver {
	case "", DriverMemory:
		return NewMemoryBackend(), nil
	case DriverSurreal:
		client, err := ConnectSurreal(ctx, cfg.Surreal)
		if err != nil {
			return nil, err
		}
		if err := client.Ping(ctx); err != nil {
			_ = client.Close()
			return nil, err
		}
		return NewSurrealBackend(client), nil
	case DriverPostgres:
		return OpenPostgres(ctx, cfg.PostgresDSN)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
