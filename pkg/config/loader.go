package config

import (
	"fmt"

	"github.com/caarlos0/env/v10"
)

// Load parses environment variables into the provided struct.
// The struct should use `env` tags to define mappings.
//
// Example:
//
//	type Config struct {
//	    Port      int    `env:"HTTP_PORT" envDefault:"8000"`
//	    SecretKey string `env:"SECRET_KEY,required"`
//	}
func Load(cfg any) error {
	if err := env.Parse(cfg); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}

// LoadWithPrefix is like Load but prepends prefix to every variable name, so
// a field tagged `env:"EMAIL"` is read from PREFIX_EMAIL.
func LoadWithPrefix(cfg any, prefix string) error {
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: prefix}); err != nil {
		return fmt.Errorf("parse %s config: %w", prefix, err)
	}
	return nil
}
