package storage

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keshon/vecna/internal/vecna"
)

var t0 = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "vecna.json"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func gripRecord(userID string, start time.Time) vecna.ActivationRecord {
	return vecna.ActivationRecord{
		UserID:          userID,
		TriggerKind:     vecna.DecisionSystemSpam,
		StartTime:       start,
		PlannedDuration: 6 * time.Second,
		CooldownUntil:   start.Add(60 * time.Second),
	}
}

func TestOpenCloseActivation(t *testing.T) {
	s := newTestStorage(t)

	require.NoError(t, s.OpenActivation(gripRecord("u1", t0)))
	open := s.OpenActivations()
	require.Len(t, open, 1)
	assert.Equal(t, "u1", open[0].UserID)
	assert.Equal(t, vecna.DecisionSystemSpam, open[0].TriggerKind)
	assert.True(t, open[0].StartTime.Equal(t0))

	require.NoError(t, s.CloseActivation("u1", t0.Add(6*time.Second)))
	assert.Empty(t, s.OpenActivations())

	// History survives the close.
	starts, cooldown, err := s.ActivationHistory("u1")
	require.NoError(t, err)
	require.Len(t, starts, 1)
	assert.True(t, cooldown.Equal(t0.Add(60*time.Second)))
}

func TestActivationHistoryTrimsOldEntries(t *testing.T) {
	s := newTestStorage(t)

	require.NoError(t, s.OpenActivation(gripRecord("u1", t0.Add(-2*time.Hour))))
	require.NoError(t, s.OpenActivation(gripRecord("u1", t0)))

	starts, _, err := s.ActivationHistory("u1")
	require.NoError(t, err)
	require.Len(t, starts, 1, "entries outside the trailing hour are dropped")
	assert.True(t, starts[0].Equal(t0))
}

func TestActivationLogBounded(t *testing.T) {
	s := newTestStorage(t)

	for i := 0; i < activationLogLimit+10; i++ {
		entry := vecna.ActivationLogEntry{
			ID:              string(rune('a' + i%26)),
			UserID:          "u1",
			TriggerKind:     vecna.DecisionEmotional,
			DecisionOutcome: vecna.OutcomeApproved,
			ContentHash:     vecna.HashContent("x"),
			Timestamp:       t0.Add(time.Duration(i) * time.Second),
		}
		require.NoError(t, s.AppendActivationLog(entry))
	}

	entries, err := s.FetchActivationLog("u1")
	require.NoError(t, err)
	assert.Len(t, entries, activationLogLimit)
	// Oldest entries fall off the front.
	assert.True(t, entries[0].Timestamp.Equal(t0.Add(10*time.Second)))
}

func TestKnownUserIDs(t *testing.T) {
	s := newTestStorage(t)

	require.NoError(t, s.OpenActivation(gripRecord("u1", t0)))
	require.NoError(t, s.OpenActivation(gripRecord("u2", t0)))
	assert.ElementsMatch(t, []string{"u1", "u2"}, s.KnownUserIDs())
}

func TestClearExpiredState(t *testing.T) {
	s := newTestStorage(t)

	require.NoError(t, s.OpenActivation(gripRecord("u1", t0)))
	require.NoError(t, s.ClearExpiredState(t0.Add(2*time.Hour)))

	starts, cooldown, err := s.ActivationHistory("u1")
	require.NoError(t, err)
	assert.Empty(t, starts)
	assert.True(t, cooldown.IsZero())
}

func TestRoundTripThroughJSON(t *testing.T) {
	// The datastore hands values back as generic JSON; the record must come
	// back typed after an open/fetch cycle on a fresh handle over the same file.
	dir := t.TempDir()
	path := filepath.Join(dir, "vecna.json")

	s, err := New(path)
	require.NoError(t, err)
	require.NoError(t, s.OpenActivation(gripRecord("u1", t0)))
	require.NoError(t, s.Close())

	s2, err := New(path)
	require.NoError(t, err)
	defer s2.Close()

	open := s2.OpenActivations()
	require.Len(t, open, 1)
	assert.Equal(t, 6*time.Second, open[0].PlannedDuration)
}
