package core

// limiter.go bounds how many commits write to the store at once.
//
// A commit holds a slot for its whole write phase. When every slot is
// taken a new commit waits up to maxWait and then fails with
// ErrTooManyCommits so the operator can retry. WaitForDrain lets shutdown
// wait for running commits.

import (
	"context"
	"sync/atomic"
	"time"
)

const (
	DefaultMaxConcurrentCommits = 4
	DefaultMaxWaitTime          = 30 * time.Second
)

// CommitLimiter is a counting semaphore for commits.
type CommitLimiter struct {
	slots   chan struct{}
	maxWait time.Duration
	active  atomic.Int64
}

// NewCommitLimiter allows maxConcurrent commits; waiters give up after
// maxWait. Non-positive values fall back to the defaults.
func NewCommitLimiter(maxConcurrent int, maxWait time.Duration) *CommitLimiter {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrentCommits
	}
	if maxWait <= 0 {
		maxWait = DefaultMaxWaitTime
	}
	return &CommitLimiter{
		slots:   make(chan struct{}, maxConcurrent),
		maxWait: maxWait,
	}
}

// Acquire takes a slot. The caller must Release it.
func (l *CommitLimiter) Acquire(ctx context.Context) error {
	timer := time.NewTimer(l.maxWait)
	defer timer.Stop()

	select {
	case l.slots <- struct{}{}:
		l.active.Add(1)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return ErrTooManyCommits
	}
}

// TryAcquire takes a slot without waiting.
func (l *CommitLimiter) TryAcquire() bool {
	select {
	case l.slots <- struct{}{}:
		l.active.Add(1)
		return true
	default:
		return false
	}
}

// Release returns a slot taken by Acquire or TryAcquire.
func (l *CommitLimiter) Release() {
	l.active.Add(-1)
	<-l.slots
}

// ActiveCount returns the number of commits holding a slot.
func (l *CommitLimiter) ActiveCount() int { return int(l.active.Load()) }

// MaxConcurrent returns the slot count.
func (l *CommitLimiter) MaxConcurrent() int { return cap(l.slots) }

// Available returns the number of free slots.
func (l *CommitLimiter) Available() int { return cap(l.slots) - len(l.slots) }

// WaitForDrain blocks until no commit holds a slot or ctx is done.
func (l *CommitLimiter) WaitForDrain(ctx context.Context) error {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		if l.ActiveCount() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// LimiterStatus is a snapshot for monitoring.
type LimiterStatus struct {
	Active        int `json:"active"`
	Available     int `json:"available"`
	MaxConcurrent int `json:"maxConcurrent"`
}

// Status returns the current limiter state.
func (l *CommitLimiter) Status() LimiterStatus {
	return LimiterStatus{
		Active:        l.ActiveCount(),
		Available:     l.Available(),
		MaxConcurrent: l.MaxConcurrent(),
	}
}
