// Package backend provides the LDAP backend interface that wraps the storage engine
// and provides LDAP-specific operations including authentication, entry validation,
// and coordination with the storage layer.
package backend

import (
	"sync"
	"time"
)

// accountLockout tracks consecutive authentication failures for one DN and
// locks the account once the failure budget is spent. A successful bind or
// an administrative unlock clears the state.
type accountLockout struct {
	mu              sync.Mutex
	failures        int
	maxFailures     int
	lockoutDuration time.Duration
	lockedUntil     time.Time
}

func newAccountLockout(maxFailures int, lockoutDuration time.Duration) *accountLockout {
	return &accountLockout{
		maxFailures:     maxFailures,
		lockoutDuration: lockoutDuration,
	}
}

// IsLocked reports whether the account is currently locked. An expired
// lock clears itself on the next check.
func (l *accountLockout) IsLocked() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.lockedUntil.IsZero() {
		return false
	}
	if time.Now().After(l.lockedUntil) {
		l.lockedUntil = time.Time{}
		l.failures = 0
		return false
	}
	return true
}

// RecordFailure counts a failed bind and locks the account when the
// failure budget is exhausted.
func (l *accountLockout) RecordFailure() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.failures++
	if l.maxFailures > 0 && l.failures >= l.maxFailures {
		l.lockedUntil = time.Now().Add(l.lockoutDuration)
	}
}

// RecordSuccess clears the failure history after a successful bind.
func (l *accountLockout) RecordSuccess() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.failures = 0
	l.lockedUntil = time.Time{}
}

// Unlock clears a lock administratively.
func (l *accountLockout) Unlock() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.failures = 0
	l.lockedUntil = time.Time{}
}

// SetLimits updates the failure budget and lock duration in place, for
// hot-reloaded rate-limit configuration.
func (l *accountLockout) SetLimits(maxFailures int, lockoutDuration time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.maxFailures = maxFailures
	l.lockoutDuration = lockoutDuration
}
