package gateway

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"
)

const (
	// lowBudgetThreshold is the remaining-call count below which requests are held back.
	lowBudgetThreshold = 10
	// budgetFreshness bounds how old a reading may be before it is ignored.
	budgetFreshness = 60 * time.Second
	// defaultRemaining is GitHub's authenticated hourly quota, assumed until the first response.
	defaultRemaining = 5000
)

// RateBudget tracks the primary rate-limit quota reported by the API.
// One instance is shared by every fetch in a run. Updates are last-writer-wins;
// the budget is advisory, so a stale read only risks one extra throttled call.
type RateBudget struct {
	mu          sync.Mutex
	remaining   int
	resetAt     time.Time
	lastChecked time.Time
}

// BudgetSnapshot is a point-in-time copy of a RateBudget.
type BudgetSnapshot struct {
	Remaining   int
	ResetAt     time.Time
	LastChecked time.Time
}

// NewRateBudget returns a budget with the default quota and no reset time.
func NewRateBudget() *RateBudget {
	return &RateBudget{remaining: defaultRemaining}
}

// Observe folds the X-RateLimit-Remaining and X-RateLimit-Reset headers into the budget.
// A missing or non-numeric header leaves the prior value untouched.
func (b *RateBudget) Observe(h http.Header, now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if remaining, err := strconv.Atoi(h.Get("X-RateLimit-Remaining")); err == nil {
		b.remaining = remaining
	}
	if reset, err := strconv.ParseInt(h.Get("X-RateLimit-Reset"), 10, 64); err == nil {
		b.resetAt = time.Unix(reset, 0)
	}
	b.lastChecked = now
}

// Set overwrites the budget with an externally obtained reading.
func (b *RateBudget) Set(remaining int, resetAt, now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.remaining = remaining
	b.resetAt = resetAt
	b.lastChecked = now
}

// Snapshot returns a copy of the current reading.
func (b *RateBudget) Snapshot() BudgetSnapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return BudgetSnapshot{Remaining: b.remaining, ResetAt: b.resetAt, LastChecked: b.lastChecked}
}

// WaitFor returns how long a caller must hold off before issuing requests at now.
// It is zero unless the quota is nearly spent, the reset lies ahead and the
// reading was taken within the last minute.
func (b *RateBudget) WaitFor(now time.Time) time.Duration {
	s := b.Snapshot()
	if s.Remaining >= lowBudgetThreshold || !s.ResetAt.After(now) || !s.LastChecked.After(now.Add(-budgetFreshness)) {
		return 0
	}
	wait := s.ResetAt.Sub(now) + time.Second
	if wait < time.Second {
		wait = time.Second
	}
	return wait
}

// Wait suspends until the budget allows more requests or ctx is done.
func (b *RateBudget) Wait(ctx context.Context) error {
	return sleepCtx(ctx, b.WaitFor(time.Now()))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
