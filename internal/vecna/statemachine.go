package vecna

import (
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/keshon/vecna/internal/chat"
	"github.com/keshon/vecna/pkg/jobmgr"
)

// Grip duration bounds.
const (
	DefaultGripMin = 5 * time.Second
	DefaultGripMax = 8 * time.Second
)

// MachineConfig tunes the per-user state machine.
type MachineConfig struct {
	GripMin          time.Duration
	GripMax          time.Duration
	Cooldown         time.Duration
	RejectDuringGrip bool // reject withheld messages instead of queueing them
}

func DefaultMachineConfig() MachineConfig {
	return MachineConfig{
		GripMin:  DefaultGripMin,
		GripMax:  DefaultGripMax,
		Cooldown: DefaultCooldown,
	}
}

// RecordStore persists open/closed activation records so grips survive
// process restarts. Optional; nil disables persistence.
type RecordStore interface {
	OpenActivation(rec ActivationRecord) error
	CloseActivation(userID string, at time.Time) error
}

// ReleaseFunc is invoked exactly once per grip when it releases, outside any
// per-user lock. held carries the messages queued during the grip.
type ReleaseFunc func(rec ActivationRecord, held []chat.Message)

// releasePayload is a release that must fire after the user lock is dropped.
type releasePayload struct {
	rec  ActivationRecord
	held []chat.Message
}

// Machine owns per-user activation state and its timed transitions:
//
//	Idle -> EmotionalActive -> Cooldown -> Idle
//	Idle -> PsychicGripActive -(timer, once)-> Cooldown -> Idle
//
// The machine cycles for a user's whole lifetime; it is destroyed only with
// the session. Any state read past a grip's planned end self-heals to
// Cooldown, so a missed timer can never leave a user frozen.
type Machine struct {
	cfg     MachineConfig
	store   *Store
	timers  *jobmgr.Manager
	records RecordStore

	rngMu sync.Mutex
	rng   *rand.Rand

	onRelease ReleaseFunc
}

// NewMachine creates a Machine. rng may be nil for a time-seeded source;
// tests inject a seeded one so grip durations are exact.
func NewMachine(cfg MachineConfig, rng *rand.Rand, records RecordStore, onRelease ReleaseFunc) *Machine {
	if cfg.GripMin <= 0 {
		cfg.GripMin = DefaultGripMin
	}
	if cfg.GripMax < cfg.GripMin {
		cfg.GripMax = cfg.GripMin
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = DefaultCooldown
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Machine{
		cfg:       cfg,
		store:     NewStore(),
		timers:    jobmgr.NewManager(nil),
		records:   records,
		rng:       rng,
		onRelease: onRelease,
	}
}

// SetOnRelease sets the release callback. Call before any grip begins.
func (m *Machine) SetOnRelease(f ReleaseFunc) { m.onRelease = f }

// gripDuration draws from [GripMin, GripMax].
func (m *Machine) gripDuration() time.Duration {
	m.rngMu.Lock()
	defer m.rngMu.Unlock()
	span := m.cfg.GripMax - m.cfg.GripMin
	if span <= 0 {
		return m.cfg.GripMin
	}
	return m.cfg.GripMin + time.Duration(m.rng.Int63n(int64(span)+1))
}

// advanceLocked applies lazy time-driven transitions. Must hold u.mu. A
// returned payload is a self-healed release the caller fires after unlocking.
func (m *Machine) advanceLocked(u *userState, now time.Time) *releasePayload {
	var pending *releasePayload
	if u.state == StatePsychicGripActive && u.record != nil && !now.Before(u.record.PlannedEnd()) {
		pending = m.releaseLocked(u)
	}
	if u.state == StateCooldown && !now.Before(u.cooldownUntil) {
		u.state = StateIdle
	}
	return pending
}

// releaseLocked transitions an active grip to Cooldown. Must hold u.mu.
func (m *Machine) releaseLocked(u *userState) *releasePayload {
	rec := *u.record
	u.state = StateCooldown
	u.cooldownUntil = rec.CooldownUntil
	u.record = nil
	u.releaseSeq++
	held := u.held
	u.held = nil
	_ = m.timers.Stop("release:" + u.UserID) // no-op when the timer already fired
	return &releasePayload{rec: rec, held: held}
}

// fireRelease runs the release side effects outside the user lock.
func (m *Machine) fireRelease(p releasePayload) {
	log.Printf("[VECNA] release user=%s kind=%s held=%d", p.rec.UserID, p.rec.TriggerKind, len(p.held))
	if m.records != nil {
		if err := m.records.CloseActivation(p.rec.UserID, p.rec.PlannedEnd()); err != nil {
			log.Printf("[WARN] Failed to close activation for %s: %v", p.rec.UserID, err)
		}
	}
	if m.onRelease != nil {
		m.onRelease(p.rec, p.held)
	}
}

// StateOf returns the user's state at now, applying lazy transitions first.
func (m *Machine) StateOf(userID string, now time.Time) ActivationState {
	u := m.store.User(userID)
	u.mu.Lock()
	pending := m.advanceLocked(u, now)
	st := u.state
	u.mu.Unlock()
	if pending != nil {
		m.fireRelease(*pending)
	}
	return st
}

// OpenRecord returns a copy of the user's open activation record, if any.
func (m *Machine) OpenRecord(userID string) (ActivationRecord, bool) {
	u := m.store.User(userID)
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.record == nil {
		return ActivationRecord{}, false
	}
	return *u.record, true
}

// ActivateEmotional moves an Idle user into EmotionalActive. The caller
// emits the single augmented response and then calls CompleteEmotional; the
// user's next message is never withheld on this path.
func (m *Machine) ActivateEmotional(dec Decision, now time.Time) (ActivationRecord, bool) {
	u := m.store.User(dec.UserID)
	u.mu.Lock()
	pending := m.advanceLocked(u, now)
	var rec ActivationRecord
	ok := u.state == StateIdle
	if ok {
		rec = ActivationRecord{
			UserID:        dec.UserID,
			TriggerKind:   dec.Kind,
			StartTime:     now,
			CooldownUntil: now.Add(m.cfg.Cooldown),
		}
		u.state = StateEmotionalActive
		u.record = &rec
	}
	u.mu.Unlock()
	if pending != nil {
		m.fireRelease(*pending)
	}
	if ok {
		m.persistOpen(rec)
	}
	return rec, ok
}

// CompleteEmotional closes the zero-duration emotional activation and starts
// the cooldown.
func (m *Machine) CompleteEmotional(userID string, now time.Time) {
	u := m.store.User(userID)
	u.mu.Lock()
	if u.state == StateEmotionalActive && u.record != nil {
		u.cooldownUntil = u.record.CooldownUntil
		u.record = nil
		u.state = StateCooldown
	}
	u.mu.Unlock()
	if m.records != nil {
		if err := m.records.CloseActivation(userID, now); err != nil {
			log.Printf("[WARN] Failed to close activation for %s: %v", userID, err)
		}
	}
}

// BeginGrip moves an Idle user into PsychicGripActive for a drawn duration
// and schedules the release timer. The timer fires exactly once regardless
// of further message arrival or disconnects.
func (m *Machine) BeginGrip(dec Decision, now time.Time) (ActivationRecord, bool) {
	u := m.store.User(dec.UserID)
	u.mu.Lock()
	pending := m.advanceLocked(u, now)
	var rec ActivationRecord
	ok := u.state == StateIdle
	var seq int
	if ok {
		dur := m.gripDuration()
		rec = ActivationRecord{
			UserID:          dec.UserID,
			TriggerKind:     dec.Kind,
			StartTime:       now,
			PlannedDuration: dur,
			CooldownUntil:   now.Add(m.cfg.Cooldown),
		}
		u.state = StatePsychicGripActive
		u.record = &rec
		seq = u.releaseSeq
	}
	u.mu.Unlock()
	if pending != nil {
		m.fireRelease(*pending)
	}
	if !ok {
		return ActivationRecord{}, false
	}

	m.persistOpen(rec)
	name := "release:" + dec.UserID
	if err := m.timers.StartTimer(name, rec.PlannedDuration, func() {
		m.release(dec.UserID, seq)
	}); err != nil {
		// A stale timer for this user is still pending; the lazy force-expiry
		// in advanceLocked covers release.
		log.Printf("[WARN] Grip timer for %s not scheduled: %v", dec.UserID, err)
	}
	return rec, true
}

// release is the timer path. seq guards against double release when the lazy
// force-expiry already ran.
func (m *Machine) release(userID string, seq int) {
	u := m.store.User(userID)
	u.mu.Lock()
	var pending *releasePayload
	if u.state == StatePsychicGripActive && u.record != nil && u.releaseSeq == seq {
		pending = m.releaseLocked(u)
	}
	u.mu.Unlock()
	if pending != nil {
		m.fireRelease(*pending)
	}
}

// Withhold decides what happens to a message arriving during a grip. It
// returns withheld=true when the message must not reach the baseline router
// now; queued=false then means it was rejected outright.
func (m *Machine) Withhold(msg chat.Message, now time.Time) (withheld, queued bool) {
	u := m.store.User(msg.UserID)
	u.mu.Lock()
	pending := m.advanceLocked(u, now)
	if u.state == StatePsychicGripActive {
		withheld = true
		if !m.cfg.RejectDuringGrip {
			u.held = append(u.held, msg)
			queued = true
		}
	}
	u.mu.Unlock()
	if pending != nil {
		m.fireRelease(*pending)
	}
	return withheld, queued
}

// Restore re-opens a persisted grip after a restart. Grips whose planned end
// has already passed are released immediately via the lazy path.
func (m *Machine) Restore(rec ActivationRecord, now time.Time) {
	u := m.store.User(rec.UserID)
	u.mu.Lock()
	r := rec
	u.state = StatePsychicGripActive
	u.record = &r
	seq := u.releaseSeq
	u.mu.Unlock()

	remaining := rec.PlannedEnd().Sub(now)
	if remaining <= 0 {
		m.release(rec.UserID, seq)
		return
	}
	if err := m.timers.StartTimer("release:"+rec.UserID, remaining, func() {
		m.release(rec.UserID, seq)
	}); err != nil {
		log.Printf("[WARN] Grip timer for %s not rescheduled: %v", rec.UserID, err)
	}
}

// EndSession destroys a user's machine state and cancels any pending timer.
func (m *Machine) EndSession(userID string) {
	_ = m.timers.Stop("release:" + userID)
	m.store.Remove(userID)
}

// Shutdown flushes pending timers. Open activation records stay persisted;
// the restart reconciliation pass force-expires them.
func (m *Machine) Shutdown() {
	m.timers.StopAll()
}

func (m *Machine) persistOpen(rec ActivationRecord) {
	if m.records == nil {
		return
	}
	if err := m.records.OpenActivation(rec); err != nil {
		log.Printf("[WARN] Failed to persist activation for %s: %v", rec.UserID, err)
	}
}
