// Package retry runs operations with exponential backoff on quota-shaped failures.
package retry

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/mikey/mail-triage/internal/core"
	"go.uber.org/zap"
	"google.golang.org/api/googleapi"
)

const (
	DefaultMaxRetries   = 3
	DefaultInitialDelay = 2 * time.Second
)

// QuotaCheck reports whether an error signals backend rate limiting
type QuotaCheck func(err error) bool

// Executor retries operations that fail with a quota-shaped error.
// Other errors are returned on the first failure.
type Executor struct {
	logger       *zap.Logger
	maxRetries   int
	initialDelay time.Duration
	isQuota      QuotaCheck
}

// Option configures an Executor
type Option func(*Executor)

// WithMaxRetries overrides the default retry count
func WithMaxRetries(n int) Option {
	return func(e *Executor) {
		if n >= 0 {
			e.maxRetries = n
		}
	}
}

// WithInitialDelay overrides the first backoff delay
func WithInitialDelay(d time.Duration) Option {
	return func(e *Executor) {
		if d > 0 {
			e.initialDelay = d
		}
	}
}

// WithQuotaCheck replaces the quota detection predicate
func WithQuotaCheck(check QuotaCheck) Option {
	return func(e *Executor) {
		if check != nil {
			e.isQuota = check
		}
	}
}

// New creates a new Executor
func New(logger *zap.Logger, opts ...Option) *Executor {
	e := &Executor{
		logger:       logger,
		maxRetries:   DefaultMaxRetries,
		initialDelay: DefaultInitialDelay,
		isQuota:      IsQuotaError,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// MaxRetries returns the configured retry count
func (e *Executor) MaxRetries() int {
	return e.maxRetries
}

// Execute runs op with the executor's default retry count
func (e *Executor) Execute(ctx context.Context, label string, op func(ctx context.Context) error) error {
	return e.ExecuteWithRetries(ctx, label, e.maxRetries, op)
}

// ExecuteWithRetries runs op, sleeping initialDelay*2^attempt after each quota-shaped
// failure. At most maxRetries+1 attempts are made. Cancelling ctx interrupts the sleep.
func (e *Executor) ExecuteWithRetries(ctx context.Context, label string, maxRetries int, op func(ctx context.Context) error) error {
	if maxRetries < 0 {
		maxRetries = 0
	}

	for attempt := 0; ; attempt++ {
		err := op(ctx)
		if err == nil {
			return nil
		}
		if attempt >= maxRetries || !e.isQuota(err) {
			return err
		}

		delay := e.initialDelay * time.Duration(1<<attempt)
		e.logger.Warn("Quota error, retrying",
			zap.String("operation", label),
			zap.Duration("delay", delay),
			zap.Int("attempt", attempt+1),
			zap.Int("max_retries", maxRetries),
			zap.Error(err))

		if err := sleep(ctx, delay); err != nil {
			return err
		}
	}
}

// Do is Execute for operations that return a value
func Do[T any](ctx context.Context, e *Executor, label string, op func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := e.Execute(ctx, label, func(ctx context.Context) error {
		v, err := op(ctx)
		if err != nil {
			return err
		}
		result = v
		return nil
	})
	return result, err
}

// IsQuotaError is the default quota detection predicate
func IsQuotaError(err error) bool {
	if err == nil {
		return false
	}

	var quotaErr *core.QuotaError
	if errors.As(err, &quotaErr) {
		return true
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusTooManyRequests {
		return true
	}

	var statusErr *core.StatusError
	if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusTooManyRequests {
		return true
	}

	msg := err.Error()
	return strings.Contains(msg, "Quota exceeded") || strings.Contains(msg, "quota")
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
