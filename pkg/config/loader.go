// Package config loads typed configuration structs from environment
// variables, with an optional .env file for local development. Each struct
// type is parsed once per process and served from cache afterwards.
package config

import (
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

var (
	mu     sync.RWMutex
	values = make(map[string]any)

	dotenvOnce sync.Once
)

// Load parses environment variables into v based on `env` struct tags. The
// first successful parse of a type is cached; later calls for the same type
// return the cached copy so every component sees identical configuration.
//
//	type PostgresConfig struct {
//	    DSN string `env:"DATABASE_URL,required"`
//	}
//
//	var cfg PostgresConfig
//	if err := config.Load(&cfg); err != nil { ... }
func Load[T any](v *T) error {
	if v == nil {
		return ErrNilPointer
	}

	dotenvOnce.Do(func() {
		// Missing .env is fine; in production everything comes from the
		// real environment.
		_ = godotenv.Load()
	})

	key := typeKey[T]()

	mu.RLock()
	cached, ok := values[key]
	mu.RUnlock()
	if ok {
		*v = cached.(T)
		return nil
	}

	if err := env.Parse(v); err != nil {
		return errors.Join(ErrParsingConfig, err)
	}

	mu.Lock()
	if cached, ok := values[key]; ok {
		// Another goroutine parsed the same type first; keep its copy so
		// every caller observes one consistent value.
		*v = cached.(T)
	} else {
		values[key] = *v
	}
	mu.Unlock()

	return nil
}

// MustLoad is Load for configuration the process cannot start without.
func MustLoad[T any](v *T) {
	if err := Load(v); err != nil {
		panic(fmt.Sprintf("config: %v", err))
	}
}

func typeKey[T any]() string {
	var zero T
	if t := reflect.TypeOf(zero); t != nil {
		return t.String()
	}
	return fmt.Sprintf("%T", *new(T))
}
