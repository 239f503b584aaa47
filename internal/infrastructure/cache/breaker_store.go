package cache

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	apperrors "github.com/colinxr/notion-graph-view-sub001/internal/errors"
)

// BreakerConfig tunes the circuit breaker around a Store.
type BreakerConfig struct {
	Name string
	// ConsecutiveFailures trips the breaker.
	ConsecutiveFailures uint32
	// Timeout is how long the breaker stays open before probing.
	Timeout time.Duration
	// MaxRequests allowed through while half-open.
	MaxRequests uint32
}

// DefaultBreakerConfig returns the settings used when none are configured.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		Name:                "cache",
		ConsecutiveFailures: 5,
		Timeout:             30 * time.Second,
		MaxRequests:         1,
	}
}

// BreakerStore guards a remote Store with a circuit breaker so an unreachable
// cache fails fast instead of adding latency to every read.
type BreakerStore struct {
	next    Store
	breaker *gobreaker.CircuitBreaker
	logger  *zap.Logger
}

var _ Store = (*BreakerStore)(nil)

// NewBreakerStore wraps next.
func NewBreakerStore(next Store, cfg BreakerConfig, logger *zap.Logger) *BreakerStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ConsecutiveFailures == 0 {
		cfg.ConsecutiveFailures = DefaultBreakerConfig().ConsecutiveFailures
	}
	threshold := cfg.ConsecutiveFailures

	b := &BreakerStore{next: next, logger: logger}
	b.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("cache circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
	return b
}

// State reports the breaker state.
func (b *BreakerStore) State() gobreaker.State {
	return b.breaker.State()
}

func (b *BreakerStore) Get(ctx context.Context, key string) (string, bool, error) {
	type result struct {
		value string
		found bool
	}
	out, err := b.breaker.Execute(func() (interface{}, error) {
		v, ok, err := b.next.Get(ctx, key)
		return result{v, ok}, err
	})
	if err != nil {
		return "", false, b.translate("Get", err)
	}
	r := out.(result)
	return r.value, r.found, nil
}

func (b *BreakerStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	_, err := b.breaker.Execute(func() (interface{}, error) {
		return nil, b.next.Set(ctx, key, value, ttl)
	})
	return b.translate("Set", err)
}

func (b *BreakerStore) Delete(ctx context.Context, key string) error {
	_, err := b.breaker.Execute(func() (interface{}, error) {
		return nil, b.next.Delete(ctx, key)
	})
	return b.translate("Delete", err)
}

func (b *BreakerStore) Exists(ctx context.Context, key string) (bool, error) {
	out, err := b.breaker.Execute(func() (interface{}, error) {
		return b.next.Exists(ctx, key)
	})
	if err != nil {
		return false, b.translate("Exists", err)
	}
	return out.(bool), nil
}

func (b *BreakerStore) translate(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return apperrors.Unavailable(apperrors.CodeCacheUnavailable.String(), "cache temporarily unavailable").
			WithOperation(op).
			WithCause(err).
			Build()
	}
	return apperrors.Connection(apperrors.CodeCacheUnavailable.String(), "cache operation failed").
		WithOperation(op).
		WithCause(err).
		Build()
}
