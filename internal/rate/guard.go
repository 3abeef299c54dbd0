package rate

import (
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// RateLimitError is returned when a call is blocked before it reaches the network.
type RateLimitError struct {
	Provider string
	Reason   string
	RetryAt  time.Time
}

func (e RateLimitError) Error() string {
	if e.RetryAt.IsZero() {
		return fmt.Sprintf("%s rate limited: %s", e.Provider, e.Reason)
	}
	return fmt.Sprintf("%s rate limited: %s (retry at %s)", e.Provider, e.Reason, e.RetryAt.UTC().Format(time.RFC3339))
}

// Decision is the outcome of a budget check.
type Decision struct {
	Allowed bool
	Reason  string
	RetryAt time.Time
}

type bucket struct {
	capacity int
	tokens   float64
	last     time.Time
}

// Guard enforces a Declaration with token buckets, tightened by any
// remaining-budget headers the provider returns.
type Guard struct {
	decl Declaration
	now  func() time.Time

	mu       sync.Mutex
	buckets  map[Window]*bucket
	cooldown time.Time
}

// NewGuard builds a guard with full buckets.
func NewGuard(decl Declaration) *Guard {
	g := &Guard{
		decl:    decl,
		now:     time.Now,
		buckets: make(map[Window]*bucket),
	}
	start := g.now()
	for window, limit := range decl.Limits() {
		g.buckets[window] = &bucket{capacity: limit, tokens: float64(limit), last: start}
	}
	return g
}

// WrapHTTP returns a copy of base whose transport is guarded by decl.
func WrapHTTP(decl Declaration, base *http.Client) *http.Client {
	if base == nil {
		base = &http.Client{}
	}
	client := *base
	transport := client.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	client.Transport = &roundTripper{base: transport, guard: NewGuard(decl)}
	return &client
}

type roundTripper struct {
	base  http.RoundTripper
	guard *Guard
}

func (rt *roundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	decision := rt.guard.ShouldCall()
	if !decision.Allowed {
		blockedTotal.WithLabelValues(rt.guard.decl.ProviderName(), decision.Reason).Inc()
		if req.Body != nil {
			req.Body.Close()
		}
		return nil, RateLimitError{
			Provider: rt.guard.decl.ProviderName(),
			Reason:   decision.Reason,
			RetryAt:  decision.RetryAt,
		}
	}

	resp, err := rt.base.RoundTrip(req)
	if err != nil {
		return resp, err
	}
	rt.guard.RecordResponse(resp.StatusCode, resp.Header)
	return resp, nil
}

// ShouldCall consumes one token from every window, or reports why it cannot.
func (g *Guard) ShouldCall() Decision {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	if !g.cooldown.IsZero() && now.Before(g.cooldown) {
		return Decision{Allowed: false, Reason: "cooldown", RetryAt: g.cooldown}
	}

	for window, b := range g.buckets {
		refill(b, windowDuration(window), now)
		if b.tokens < 1 {
			retryAt := now.Add(windowDuration(window) / time.Duration(max(b.capacity, 1)))
			return Decision{Allowed: false, Reason: "budget", RetryAt: retryAt}
		}
	}
	for _, b := range g.buckets {
		b.tokens--
	}
	return Decision{Allowed: true}
}

// RecordResponse applies provider-reported budget and cooldown.
func (g *Guard) RecordResponse(status int, headers http.Header) {
	g.mu.Lock()
	defer g.mu.Unlock()

	provider := g.decl.ProviderName()
	lastStatusGauge.WithLabelValues(provider).Set(float64(status))

	cfg := g.decl.Headers()
	if retryAfter := headerInt(headers, cfg.RetryAfter); retryAfter > 0 {
		g.cooldown = g.now().Add(time.Duration(retryAfter) * time.Second)
	} else if status == http.StatusTooManyRequests {
		g.cooldown = g.now().Add(time.Minute)
	}

	apply := func(window Window, remaining int) {
		if remaining < 0 {
			return
		}
		remainingGauge.WithLabelValues(provider, window.String()).Set(float64(remaining))
		if b := g.buckets[window]; b != nil && float64(remaining) < b.tokens {
			b.tokens = float64(remaining)
		}
	}
	apply(Minute, headerInt(headers, cfg.RemainingMinute))
	apply(Day, headerInt(headers, cfg.RemainingDay))
}

func headerInt(h http.Header, key string) int {
	if key == "" {
		return -1
	}
	val := h.Get(key)
	if val == "" {
		return -1
	}
	out, err := strconv.Atoi(val)
	if err != nil {
		return -1
	}
	return out
}

func windowDuration(window Window) time.Duration {
	switch window {
	case Day:
		return 24 * time.Hour
	default:
		return time.Minute
	}
}

func refill(b *bucket, window time.Duration, now time.Time) {
	elapsed := now.Sub(b.last).Seconds()
	if elapsed <= 0 {
		return
	}
	rate := float64(b.capacity) / window.Seconds()
	b.tokens = min(float64(b.capacity), b.tokens+elapsed*rate)
	b.last = now
}
