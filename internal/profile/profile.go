// Package profile holds the read-only user profile snapshot consumed by the
// adversarial layer. Snapshots are built once by the profile collaborator and
// handed over by value; every accessor that returns a slice returns a copy, so
// the core cannot mutate collaborator state even by accident.
package profile

import "time"

// BaselineActivity captures the user's typical behavior, used by anomaly
// detection as the reference point.
type BaselineActivity struct {
	MessagesPerMin     float64       `json:"messages_per_min"`
	RoomSwitchesPerMin float64       `json:"room_switches_per_min"`
	TypicalSession     time.Duration `json:"typical_session"`
}

// Snapshot is an immutable view of one user's profile.
type Snapshot struct {
	userID        string
	interests     []string
	frequentRooms []string // ordered by visit count, most visited first
	recentRooms   []string // recency order, most recent first
	commands      []string // bounded recent command window, newest last
	baseline      BaselineActivity
}

// NewSnapshot builds a Snapshot. Input slices are copied.
func NewSnapshot(userID string, interests, frequentRooms, recentRooms, commands []string, baseline BaselineActivity) Snapshot {
	return Snapshot{
		userID:        userID,
		interests:     copyStrings(interests),
		frequentRooms: copyStrings(frequentRooms),
		recentRooms:   copyStrings(recentRooms),
		commands:      copyStrings(commands),
		baseline:      baseline,
	}
}

func (s Snapshot) UserID() string { return s.userID }
func (s Snapshot) Interests() []string { return copyStrings(s.interests) }
func (s Snapshot) FrequentRooms() []string { return copyStrings(s.frequentRooms) }
func (s Snapshot) RecentRooms() []string { return copyStrings(s.recentRooms) }
func (s Snapshot) RecentCommands() []string { return copyStrings(s.commands) }
func (s Snapshot) Baseline() BaselineActivity { return s.baseline }

// Provider hands out snapshots. External collaborator; a nil-safe static
// implementation lives in the tests.
type Provider interface {
	Snapshot(userID string) (Snapshot, bool)
}

func copyStrings(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}
