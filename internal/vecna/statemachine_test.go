package vecna

import (
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keshon/vecna/internal/chat"
)

// releaseRecorder captures release callbacks.
type releaseRecorder struct {
	mu       sync.Mutex
	releases []releasePayload
	fired    chan struct{}
}

func newReleaseRecorder() *releaseRecorder {
	return &releaseRecorder{fired: make(chan struct{}, 16)}
}

func (r *releaseRecorder) onRelease(rec ActivationRecord, held []chat.Message) {
	r.mu.Lock()
	r.releases = append(r.releases, releasePayload{rec: rec, held: held})
	r.mu.Unlock()
	r.fired <- struct{}{}
}

func (r *releaseRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.releases)
}

func (r *releaseRecorder) last() releasePayload {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.releases[len(r.releases)-1]
}

// recordStoreStub collects persistence calls.
type recordStoreStub struct {
	mu     sync.Mutex
	opened []ActivationRecord
	closed []string
}

func (s *recordStoreStub) OpenActivation(rec ActivationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opened = append(s.opened, rec)
	return nil
}

func (s *recordStoreStub) CloseActivation(userID string, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = append(s.closed, userID)
	return nil
}

func newTestMachine(cfg MachineConfig, rec *releaseRecorder) *Machine {
	return NewMachine(cfg, rand.New(rand.NewSource(1)), nil, rec.onRelease)
}

func gripDecision(userID string, at time.Time) Decision {
	return Decision{Kind: DecisionSystemSpam, SourceMessageID: "m1", UserID: userID, At: at, RawIntensity: 0.5}
}

func emotionalDecision(userID string, at time.Time) Decision {
	return Decision{Kind: DecisionEmotional, SourceMessageID: "m1", UserID: userID, At: at, RawIntensity: 0.82}
}

func TestGripDurationWithinBounds(t *testing.T) {
	rec := newReleaseRecorder()
	m := newTestMachine(DefaultMachineConfig(), rec)
	defer m.Shutdown()

	for i := 0; i < 50; i++ {
		user := fmt.Sprintf("u%d", i)
		r, ok := m.BeginGrip(gripDecision(user, t0), t0)
		require.True(t, ok)
		assert.GreaterOrEqual(t, r.PlannedDuration, DefaultGripMin)
		assert.LessOrEqual(t, r.PlannedDuration, DefaultGripMax)
	}
}

func TestEmotionalLifecycle(t *testing.T) {
	rec := newReleaseRecorder()
	m := newTestMachine(DefaultMachineConfig(), rec)
	defer m.Shutdown()

	r, ok := m.ActivateEmotional(emotionalDecision("u1", t0), t0)
	require.True(t, ok)
	assert.Zero(t, r.PlannedDuration)
	assert.Equal(t, StateEmotionalActive, m.StateOf("u1", t0))

	// Re-entry is rejected while active.
	_, ok = m.ActivateEmotional(emotionalDecision("u1", t0), t0)
	assert.False(t, ok)

	m.CompleteEmotional("u1", t0)
	assert.Equal(t, StateCooldown, m.StateOf("u1", t0.Add(time.Second)))

	// Still cooling down before the minute elapses, idle after.
	_, ok = m.ActivateEmotional(emotionalDecision("u1", t0.Add(30*time.Second)), t0.Add(30*time.Second))
	assert.False(t, ok)
	assert.Equal(t, StateIdle, m.StateOf("u1", t0.Add(61*time.Second)))
	_, ok = m.ActivateEmotional(emotionalDecision("u1", t0.Add(61*time.Second)), t0.Add(61*time.Second))
	assert.True(t, ok)
}

func TestGripForceExpiryReleasesOnce(t *testing.T) {
	rec := newReleaseRecorder()
	m := newTestMachine(DefaultMachineConfig(), rec)
	defer m.Shutdown()

	r, ok := m.BeginGrip(gripDecision("u1", t0), t0)
	require.True(t, ok)
	assert.Equal(t, StatePsychicGripActive, m.StateOf("u1", t0.Add(time.Second)))

	// Reads past the planned end self-heal exactly once.
	after := r.PlannedEnd().Add(time.Second)
	assert.Equal(t, StateCooldown, m.StateOf("u1", after))
	assert.Equal(t, StateCooldown, m.StateOf("u1", after))
	assert.Equal(t, 1, rec.count())
	assert.Equal(t, DecisionSystemSpam, rec.last().rec.TriggerKind)

	// Cooldown runs from activation start, then the machine is reusable.
	assert.Equal(t, StateIdle, m.StateOf("u1", t0.Add(61*time.Second)))
	_, ok = m.BeginGrip(gripDecision("u1", t0.Add(61*time.Second)), t0.Add(61*time.Second))
	assert.True(t, ok)
}

func TestGripTimerReleases(t *testing.T) {
	rec := newReleaseRecorder()
	cfg := DefaultMachineConfig()
	cfg.GripMin = 20 * time.Millisecond
	cfg.GripMax = 40 * time.Millisecond
	m := newTestMachine(cfg, rec)
	defer m.Shutdown()

	now := time.Now()
	_, ok := m.BeginGrip(gripDecision("u1", now), now)
	require.True(t, ok)

	select {
	case <-rec.fired:
	case <-time.After(2 * time.Second):
		t.Fatal("grip timer never fired")
	}
	assert.Equal(t, 1, rec.count())
	assert.Equal(t, StateCooldown, m.StateOf("u1", time.Now()))
}

func TestGripRejectsConcurrentActivation(t *testing.T) {
	rec := newReleaseRecorder()
	m := newTestMachine(DefaultMachineConfig(), rec)
	defer m.Shutdown()

	_, ok := m.BeginGrip(gripDecision("u1", t0), t0)
	require.True(t, ok)
	_, ok = m.BeginGrip(gripDecision("u1", t0.Add(time.Second)), t0.Add(time.Second))
	assert.False(t, ok)
	_, ok = m.ActivateEmotional(emotionalDecision("u1", t0.Add(time.Second)), t0.Add(time.Second))
	assert.False(t, ok)
}

func TestWithholdQueuesDuringGrip(t *testing.T) {
	rec := newReleaseRecorder()
	m := newTestMachine(DefaultMachineConfig(), rec)
	defer m.Shutdown()

	// Idle users are never withheld.
	withheld, _ := m.Withhold(chat.Message{ID: "m0", UserID: "u1", At: t0}, t0)
	assert.False(t, withheld)

	r, ok := m.BeginGrip(gripDecision("u1", t0), t0)
	require.True(t, ok)

	for i := 1; i <= 2; i++ {
		at := t0.Add(time.Duration(i) * time.Second)
		withheld, queued := m.Withhold(chat.Message{ID: fmt.Sprintf("m%d", i), UserID: "u1", At: at}, at)
		assert.True(t, withheld)
		assert.True(t, queued)
	}

	// Release hands the queue over in arrival order.
	m.StateOf("u1", r.PlannedEnd())
	require.Equal(t, 1, rec.count())
	held := rec.last().held
	require.Len(t, held, 2)
	assert.Equal(t, "m1", held[0].ID)
	assert.Equal(t, "m2", held[1].ID)
}

func TestWithholdRejectMode(t *testing.T) {
	rec := newReleaseRecorder()
	cfg := DefaultMachineConfig()
	cfg.RejectDuringGrip = true
	m := newTestMachine(cfg, rec)
	defer m.Shutdown()

	r, ok := m.BeginGrip(gripDecision("u1", t0), t0)
	require.True(t, ok)

	withheld, queued := m.Withhold(chat.Message{ID: "m1", UserID: "u1", At: t0.Add(time.Second)}, t0.Add(time.Second))
	assert.True(t, withheld)
	assert.False(t, queued)

	m.StateOf("u1", r.PlannedEnd())
	require.Equal(t, 1, rec.count())
	assert.Empty(t, rec.last().held)
}

func TestMachinePersistsRecords(t *testing.T) {
	rec := newReleaseRecorder()
	store := &recordStoreStub{}
	m := NewMachine(DefaultMachineConfig(), rand.New(rand.NewSource(1)), store, rec.onRelease)
	defer m.Shutdown()

	r, ok := m.BeginGrip(gripDecision("u1", t0), t0)
	require.True(t, ok)
	m.StateOf("u1", r.PlannedEnd())

	store.mu.Lock()
	defer store.mu.Unlock()
	require.Len(t, store.opened, 1)
	assert.Equal(t, "u1", store.opened[0].UserID)
	assert.Equal(t, []string{"u1"}, store.closed)
}

func TestRestoreExpiredGripReleasesImmediately(t *testing.T) {
	rec := newReleaseRecorder()
	m := newTestMachine(DefaultMachineConfig(), rec)
	defer m.Shutdown()

	old := ActivationRecord{
		UserID:          "u1",
		TriggerKind:     DecisionSystemAnomaly,
		StartTime:       t0.Add(-time.Minute),
		PlannedDuration: 6 * time.Second,
		CooldownUntil:   t0.Add(-time.Minute).Add(60 * time.Second),
	}
	m.Restore(old, t0)
	assert.Equal(t, 1, rec.count())
	assert.Equal(t, StateIdle, m.StateOf("u1", t0.Add(time.Minute)))
}

func TestEndSessionDropsState(t *testing.T) {
	rec := newReleaseRecorder()
	m := newTestMachine(DefaultMachineConfig(), rec)
	defer m.Shutdown()

	_, ok := m.BeginGrip(gripDecision("u1", t0), t0)
	require.True(t, ok)
	m.EndSession("u1")

	// A fresh session starts Idle; the old timer was cancelled.
	assert.Equal(t, StateIdle, m.StateOf("u1", t0.Add(time.Second)))
	assert.Zero(t, rec.count())
}
