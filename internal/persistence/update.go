package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/example/station-engine/internal/domain"
)

// RetryConfig bounds the optimistic update loop.
type RetryConfig struct {
	MaxRetries    uint
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
	// OnConflict is called before each retry caused by ErrConflict.
	OnConflict func(attempt int, wait time.Duration)
}

// DefaultRetryConfig returns the retry settings used by the services.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:    5,
		InitialDelay:  10 * time.Millisecond,
		MaxDelay:      250 * time.Millisecond,
		BackoffFactor: 2.0,
	}
}

func (c RetryConfig) backOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	if c.InitialDelay > 0 {
		b.InitialInterval = c.InitialDelay
	}
	if c.MaxDelay > 0 {
		b.MaxInterval = c.MaxDelay
	}
	if c.BackoffFactor > 1 {
		b.Multiplier = c.BackoffFactor
	}
	return b
}

// MutateFunc changes the freshly read entity in place. Returning an error
// aborts the update without writing.
type MutateFunc[T any] func(*T) error

// UpdateStation reads station id, applies fn and writes the result
// conditioned on the version that was read. On ErrConflict the whole cycle
// is repeated against the new state; after MaxRetries attempts ErrConflict
// is returned. fn may run more than once and must only touch the value it
// is given.
func UpdateStation(ctx context.Context, store StationStore, id string, cfg RetryConfig, fn MutateFunc[domain.Station]) (domain.Station, error) {
	return update(ctx, cfg,
		func(ctx context.Context) (domain.Station, error) { return store.GetStation(ctx, id) },
		store.SaveStation,
		fn,
	)
}

// UpdateMember is UpdateStation for members.
func UpdateMember(ctx context.Context, store MemberStore, id string, cfg RetryConfig, fn MutateFunc[domain.Member]) (domain.Member, error) {
	return update(ctx, cfg,
		func(ctx context.Context) (domain.Member, error) { return store.GetMember(ctx, id) },
		store.SaveMember,
		fn,
	)
}

func update[T any](
	ctx context.Context,
	cfg RetryConfig,
	get func(context.Context) (T, error),
	save func(context.Context, T) (T, error),
	fn MutateFunc[T],
) (T, error) {
	attempt := 0
	op := func() (T, error) {
		var zero T
		attempt++

		current, err := get(ctx)
		if err != nil {
			return zero, backoff.Permanent(err)
		}
		if err := fn(&current); err != nil {
			return zero, backoff.Permanent(err)
		}
		saved, err := save(ctx, current)
		if err != nil {
			if errors.Is(err, ErrConflict) {
				return zero, err
			}
			return zero, backoff.Permanent(err)
		}
		return saved, nil
	}

	tries := cfg.MaxRetries
	if tries == 0 {
		tries = DefaultRetryConfig().MaxRetries
	}
	result, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(cfg.backOff()),
		backoff.WithMaxTries(tries),
		backoff.WithNotify(func(_ error, wait time.Duration) {
			if cfg.OnConflict != nil {
				cfg.OnConflict(attempt, wait)
			}
		}),
	)
	var permanent *backoff.PermanentError
	if errors.As(err, &permanent) {
		err = permanent.Err
	}
	return result, err
}
