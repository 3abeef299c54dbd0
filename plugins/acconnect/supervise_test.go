package acconnect

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetry(max int) RetryConfig {
	return RetryConfig{
		MaxRetries:    max,
		BaseDelay:     time.Millisecond,
		MaxDelay:      5 * time.Millisecond,
		BackoffFactor: 2,
	}
}

func TestSuperviseGivesUpAfterMaxRetries(t *testing.T) {
	var attempts int
	err := Supervise(context.Background(), fastRetry(3), func(context.Context) (<-chan struct{}, error) {
		attempts++
		return nil, fmt.Errorf("%w: dial refused", ErrTransport)
	})
	assert.Error(t, err)
	assert.True(t, errors.Is(err, ErrTransport))
	assert.Equal(t, 4, attempts)
}

func TestSuperviseStopsOnAuthenticationError(t *testing.T) {
	var attempts int
	err := Supervise(context.Background(), fastRetry(0), func(context.Context) (<-chan struct{}, error) {
		attempts++
		return nil, ErrAuthentication
	})
	assert.ErrorIs(t, err, ErrAuthentication)
	assert.Equal(t, 1, attempts)
}

func TestSuperviseReconnectsAfterLoss(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var attempts int
	err := Supervise(ctx, fastRetry(1), func(context.Context) (<-chan struct{}, error) {
		attempts++
		done := make(chan struct{})
		if attempts < 3 {
			close(done)
		} else {
			cancel()
		}
		return done, nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 3, attempts)
}

func TestRetryDelayCapped(t *testing.T) {
	cfg := RetryConfig{BaseDelay: time.Second, MaxDelay: 10 * time.Second, BackoffFactor: 2}
	assert.Equal(t, time.Second, cfg.delay(0))
	assert.Equal(t, time.Second, cfg.delay(1))
	assert.Equal(t, 4*time.Second, cfg.delay(3))
	assert.Equal(t, 10*time.Second, cfg.delay(10))
}

func TestSuperviseRetriesUnreachableLogin(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BaseURL = "http://127.0.0.1:1"
	client, err := NewClient(cfg)
	require.NoError(t, err)

	var attempts int
	err = Supervise(context.Background(), fastRetry(2), func(ctx context.Context) (<-chan struct{}, error) {
		attempts++
		if err := client.Connect(ctx, "jane@example.com", "hunter2", "10.0.0.5"); err != nil {
			return nil, err
		}
		return client.Done(), nil
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAuthentication)
	assert.ErrorIs(t, err, ErrTransport)
	assert.Contains(t, err.Error(), "giving up after 3 attempts")
	assert.Equal(t, 3, attempts)
}

func TestPermanentFailures(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "rejected credentials", err: fmt.Errorf("%w: login returned no session cookies", ErrAuthentication), want: true},
		{name: "forbidden", err: fmt.Errorf("%w: %w", ErrAuthentication, HTTPStatusError{Path: "/cAcc", Status: 403}), want: true},
		{name: "bad session blob", err: fmt.Errorf("%w: invalid padding", ErrDecryption), want: true},
		{name: "login unreachable", err: fmt.Errorf("%w: %w: login request: refused", ErrAuthentication, ErrTransport), want: false},
		{name: "negotiate failed", err: fmt.Errorf("%w: bad json", ErrParse), want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, permanent(tt.err))
		})
	}
}

func TestAuthFailureKeepsTransportCause(t *testing.T) {
	unreachable := authFailure("session token", fmt.Errorf("token exchange: %w",
		&url.Error{Op: "Post", URL: "http://127.0.0.1:1/cAcc", Err: errors.New("connection refused")}))
	assert.ErrorIs(t, unreachable, ErrAuthentication)
	assert.ErrorIs(t, unreachable, ErrTransport)

	rejected := authFailure("session token", errors.New("token exchange failed 400: invalid_grant"))
	assert.ErrorIs(t, rejected, ErrAuthentication)
	assert.NotErrorIs(t, rejected, ErrTransport)
}
