package core

// janitor.go expires idle import sessions.
//
// Sessions live in memory until they are committed and discarded. An
// operator who walks away leaves one behind, along with their in-flight
// claim, so a background loop drops sessions idle for longer than the
// session TTL. Committing sessions are never expired.

import (
	"context"
	"log/slog"
	"time"
)

// RunJanitor expires idle sessions every interval until ctx is done.
func (s *Service) RunJanitor(ctx context.Context, interval time.Duration) {
	slog.Info("session janitor started", "interval", interval, "ttl", s.opts.SessionTTL)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("session janitor stopped")
			return
		case <-ticker.C:
			if n := s.ExpireIdle(); n > 0 {
				slog.Info("expired idle import sessions", "count", n, "remaining", s.ActiveSessions())
			}
		}
	}
}

// ExpireIdle drops every session idle for longer than the TTL and returns
// how many were dropped. Sessions busy with a lookup or commit are left
// for the next pass.
func (s *Service) ExpireIdle() int {
	cutoff := s.now().Add(-s.opts.SessionTTL)

	s.mu.RLock()
	all := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		all = append(all, sess)
	}
	s.mu.RUnlock()

	expired := 0
	for _, sess := range all {
		if !sess.mu.TryLock() {
			continue
		}
		stale := sess.phase != PhaseCommitting && sess.UpdatedAt.Before(cutoff)
		if stale {
			sess.discarded = true
		}
		sess.mu.Unlock()

		if stale {
			s.forget(sess)
			expired++
		}
	}
	return expired
}
