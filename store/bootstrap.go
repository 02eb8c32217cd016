// Package store holds the persistence contracts shared by the storage
// backends, including the bounded-retry schema bootstrap.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// State is a bootstrap state.
type State uint8

const (
	StateAttempting State = iota
	StateSucceeded
	StateExhausted
)

func (s State) String() string {
	switch s {
	case StateAttempting:
		return "attempting"
	case StateSucceeded:
		return "succeeded"
	case StateExhausted:
		return "exhausted"
	default:
		return "unknown"
	}
}

// Transition is reported for every state change. Attempt is 1-based; Err is
// the failure that caused the transition, if any.
type Transition struct {
	State   State
	Attempt int
	Err     error
}

// ExhaustedError is fatal: the schema could not be bootstrapped within the
// attempt ceiling.
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("bootstrap exhausted after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Err
}

// Bootstrapper runs an idempotent schema bootstrap a fixed number of times
// with a fixed delay between attempts.
type Bootstrapper struct {
	Attempts     int
	Delay        time.Duration
	OnTransition func(Transition)

	sleep func(ctx context.Context, d time.Duration) error
}

// Run drives the state machine until fn succeeds or attempts run out.
// Context cancellation stops the machine and is returned unwrapped.
func (b *Bootstrapper) Run(ctx context.Context, fn func(context.Context) error) error {
	attempts := b.Attempts
	if attempts <= 0 {
		attempts = 1
	}
	sleep := b.sleep
	if sleep == nil {
		sleep = sleepContext
	}

	var lastErr error
	for n := 1; ; n++ {
		b.emit(Transition{State: StateAttempting, Attempt: n, Err: lastErr})
		err := fn(ctx)
		if err == nil {
			b.emit(Transition{State: StateSucceeded, Attempt: n})
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			if errors.Is(err, ctxErr) {
				return err
			}
			return ctxErr
		}
		lastErr = err
		if n >= attempts {
			b.emit(Transition{State: StateExhausted, Attempt: n, Err: err})
			return &ExhaustedError{Attempts: n, Err: err}
		}
		if err := sleep(ctx, b.Delay); err != nil {
			return err
		}
	}
}

func (b *Bootstrapper) emit(t Transition) {
	if b.OnTransition != nil {
		b.OnTransition(t)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
