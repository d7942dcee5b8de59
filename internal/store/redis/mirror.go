// Package redis mirrors persisted documents to a Redis instance so a fresh
// deployment can restore its trading state. The local store stays
// authoritative; mirror writes are best-effort and guarded by a circuit
// breaker so a dead Redis never slows the tick path down.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"papertraderv1/internal/model"

	goredis "github.com/go-redis/redis/v8"
)

const (
	defaultKeyPrefix = "paper:doc:"
	opTimeout        = 5 * time.Second

	breakerFailures = 5
	breakerReset    = 30 * time.Second
)

// MirrorConfig configures the Redis connection.
type MirrorConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string // defaults to "paper:doc:"
}

// Mirror wraps a primary DocumentStore and shadows every save to Redis.
// Load falls back to the mirrored copy when the primary has no document,
// restoring it locally.
type Mirror struct {
	primary model.DocumentStore
	client  *goredis.Client
	breaker *CircuitBreaker
	prefix  string
}

// NewMirror connects to Redis and wraps primary. Fails if the initial ping
// fails; once connected, later outages only disable mirroring.
func NewMirror(primary model.DocumentStore, cfg MirrorConfig) (*Mirror, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = defaultKeyPrefix
	}

	breaker := NewCircuitBreaker(breakerFailures, breakerReset)
	breaker.OnStateChange = func(from, to State) {
		log.Printf("[redis] mirror breaker %s -> %s", from, to)
	}

	log.Printf("[redis] mirroring documents to %s", cfg.Addr)
	return &Mirror{
		primary: primary,
		client:  client,
		breaker: breaker,
		prefix:  prefix,
	}, nil
}

// Load reads from the primary first. When the primary has no copy, the
// mirrored document is restored locally and returned.
func (m *Mirror) Load(name string, out interface{}) (bool, error) {
	found, err := m.primary.Load(name, out)
	if err != nil || found {
		return found, err
	}

	var raw string
	err = m.breaker.Execute(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
		defer cancel()
		var getErr error
		raw, getErr = m.client.Get(ctx, m.prefix+name).Result()
		if getErr == goredis.Nil {
			raw = ""
			return nil
		}
		return getErr
	})
	if err != nil || raw == "" {
		if err != nil && err != ErrCircuitOpen {
			log.Printf("[redis] mirror load %s: %v", name, err)
		}
		return false, nil
	}

	if err := json.Unmarshal([]byte(raw), out); err != nil {
		log.Printf("[redis] mirror %s: corrupt payload: %v", name, err)
		return false, nil
	}
	if err := m.primary.Save(name, json.RawMessage(raw)); err != nil {
		log.Printf("[redis] restore %s locally: %v", name, err)
	} else {
		log.Printf("[redis] restored %s from mirror", name)
	}
	return true, nil
}

// Save writes to the primary and shadows the document to Redis. A mirror
// failure is logged, never surfaced: the local write already succeeded.
func (m *Mirror) Save(name string, doc interface{}) error {
	if err := m.primary.Save(name, doc); err != nil {
		return err
	}

	b, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode %s for mirror: %w", name, err)
	}
	err = m.breaker.Execute(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
		defer cancel()
		return m.client.Set(ctx, m.prefix+name, b, 0).Err()
	})
	if err != nil && err != ErrCircuitOpen {
		log.Printf("[redis] mirror save %s: %v", name, err)
	}
	return nil
}

// BreakerState exposes the circuit breaker state, for metrics.
func (m *Mirror) BreakerState() State {
	return m.breaker.CurrentState()
}

// Ping checks mirror liveness, for the health endpoint.
func (m *Mirror) Ping(ctx context.Context) error {
	return m.client.Ping(ctx).Err()
}

// Close closes the Redis client.
func (m *Mirror) Close() error {
	return m.client.Close()
}
