// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package backoff wraps retry-go with the bounded exponential policy used for
// every call to an external service.
package backoff

import (
	"context"
	"errors"
	"time"

	"github.com/avast/retry-go"
	"github.com/rs/zerolog"
)

const (
	DefaultAttempts = 4
	DefaultDelay    = 500 * time.Millisecond
	maxDelay        = 30 * time.Second
)

// Policy bounds how often and how fast an operation is retried.
type Policy struct {
	Attempts uint
	Delay    time.Duration
	// Retryable decides whether an error is transient. A nil func retries
	// every error except context cancellation.
	Retryable func(error) bool
	Logger    *zerolog.Logger
}

// New returns a policy with the given attempts and initial delay, falling
// back to the defaults for non-positive values.
func New(attempts int, delay time.Duration, retryable func(error) bool) Policy {
	p := Policy{Attempts: DefaultAttempts, Delay: DefaultDelay, Retryable: retryable}
	if attempts > 0 {
		p.Attempts = uint(attempts)
	}
	if delay > 0 {
		p.Delay = delay
	}
	return p
}

// WithLogger returns a copy of p that logs each retry on l.
func (p Policy) WithLogger(l zerolog.Logger) Policy {
	p.Logger = &l
	return p
}

// Do runs fn until it succeeds, returns a non-retryable error, the context
// ends, or the attempts are used up. The last error is returned unwrapped.
func (p Policy) Do(ctx context.Context, op string, fn func() error) error {
	attempts := p.Attempts
	if attempts == 0 {
		attempts = DefaultAttempts
	}

	return retry.Do(
		fn,
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.Delay(p.Delay),
		retry.MaxDelay(maxDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(p.retryable),
		retry.OnRetry(func(n uint, err error) {
			if p.Logger == nil {
				return
			}
			p.Logger.Debug().
				Err(err).
				Str("op", op).
				Uint("attempt", n+1).
				Uint("maxAttempts", attempts).
				Msg("retrying external call")
		}),
	)
}

func (p Policy) retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if p.Retryable == nil {
		return true
	}
	return p.Retryable(err)
}
