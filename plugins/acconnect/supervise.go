package acconnect

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"
)

// RetryConfig bounds the reconnect loop run by Supervise.
type RetryConfig struct {
	MaxRetries    int
	BaseDelay     time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:    5,
		BaseDelay:     time.Second,
		MaxDelay:      5 * time.Minute,
		BackoffFactor: 2.0,
	}
}

func (r RetryConfig) delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := float64(r.BaseDelay) * math.Pow(r.BackoffFactor, float64(attempt-1))
	if delay > float64(r.MaxDelay) {
		delay = float64(r.MaxDelay)
	}
	return time.Duration(delay)
}

// Supervise keeps a connection alive above the channel. run connects and
// returns a channel closed when the connection is lost. Consecutive failures
// back off exponentially; MaxRetries of 0 retries forever. Authentication and
// decryption failures are returned immediately unless a transport failure
// caused them.
func Supervise(ctx context.Context, cfg RetryConfig, run func(context.Context) (<-chan struct{}, error)) error {
	failures := 0
	for {
		done, err := run(ctx)
		if err != nil {
			if permanent(err) {
				return err
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			failures++
			if cfg.MaxRetries > 0 && failures > cfg.MaxRetries {
				return fmt.Errorf("giving up after %d attempts: %w", failures, err)
			}
		} else {
			failures = 0
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-done:
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(cfg.delay(failures)):
		}
	}
}

// permanent reports failures that retrying cannot fix: rejected credentials
// or an unreadable session. Anything carrying ErrTransport is retried.
func permanent(err error) bool {
	if errors.Is(err, ErrTransport) {
		return false
	}
	return errors.Is(err, ErrAuthentication) || errors.Is(err, ErrDecryption)
}
