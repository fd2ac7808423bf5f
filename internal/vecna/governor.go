package vecna

import (
	"sync"
	"time"
)

// Governance defaults.
const (
	DefaultMaxActivationsPerHour = 5
	DefaultCooldown              = 60 * time.Second
)

// governorEntry is one user's governance state. Its mutex makes the
// check-and-commit atomic per user, so concurrent messages from a reconnect
// burst cannot double-approve.
type governorEntry struct {
	mu            sync.Mutex
	activations   []time.Time // trailing-hour window, trimmed on check
	cooldownUntil time.Time
}

// Governor gates approved decisions: max activations per trailing hour plus a
// per-user cooldown between consecutive activations. Denial is a normal
// policy outcome, not an error.
type Governor struct {
	maxPerHour int
	cooldown   time.Duration
	mu         sync.RWMutex
	users      map[string]*governorEntry
}

func NewGovernor(maxPerHour int, cooldown time.Duration) *Governor {
	if maxPerHour <= 0 {
		maxPerHour = DefaultMaxActivationsPerHour
	}
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	return &Governor{
		maxPerHour: maxPerHour,
		cooldown:   cooldown,
		users:      make(map[string]*governorEntry),
	}
}

func (g *Governor) entry(userID string) *governorEntry {
	g.mu.RLock()
	e := g.users[userID]
	g.mu.RUnlock()
	if e != nil {
		return e
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if e = g.users[userID]; e != nil {
		return e
	}
	e = &governorEntry{}
	g.users[userID] = e
	return e
}

// Approve returns whether an activation may proceed for this user at now.
// On approval it records the activation and starts the cooldown in the same
// critical section. The reason explains a denial ("cooldown" or "rate").
func (g *Governor) Approve(userID string, now time.Time) (ok bool, reason string) {
	e := g.entry(userID)
	e.mu.Lock()
	defer e.mu.Unlock()

	if now.Before(e.cooldownUntil) {
		return false, "cooldown"
	}

	// Trim entries older than the trailing hour.
	cut := now.Add(-1 * time.Hour)
	var kept []time.Time
	for _, t := range e.activations {
		if t.After(cut) {
			kept = append(kept, t)
		}
	}
	e.activations = kept

	if len(e.activations) >= g.maxPerHour {
		return false, "rate"
	}

	e.activations = append(e.activations, now)
	e.cooldownUntil = now.Add(g.cooldown)
	return true, ""
}

// CooldownUntil returns when the user's cooldown elapses (zero if none).
func (g *Governor) CooldownUntil(userID string) time.Time {
	e := g.entry(userID)
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cooldownUntil
}

// Preload seeds a user's governance state from persisted history, so the
// trailing-hour window survives restarts.
func (g *Governor) Preload(userID string, activations []time.Time, cooldownUntil time.Time) {
	e := g.entry(userID)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.activations = append([]time.Time(nil), activations...)
	e.cooldownUntil = cooldownUntil
}

// Forget drops a user's governance state. Called when the session ends.
func (g *Governor) Forget(userID string) {
	g.mu.Lock()
	delete(g.users, userID)
	g.mu.Unlock()
}
