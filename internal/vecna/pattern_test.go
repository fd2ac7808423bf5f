package vecna

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keshon/vecna/internal/profile"
)

var t0 = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

func emptySnapshot() profile.Snapshot { return profile.Snapshot{} }

func TestDetectorSpam(t *testing.T) {
	d := NewDetector(DefaultDetectorConfig())

	for i := 0; i < 5; i++ {
		at := t0.Add(time.Duration(i) * time.Second)
		d.RecordMessage("u1", at, Fingerprint("buy cheap gold now"), "lobby")
	}
	sig := d.Evaluate("u1", emptySnapshot(), t0.Add(5*time.Second))
	require.NotNil(t, sig)
	assert.Equal(t, SignalSpam, sig.Kind)
	assert.Greater(t, sig.Strength, 0.0)
	assert.False(t, sig.WindowEnd.Before(sig.WindowStart))
}

func TestDetectorSpamNeedsNearDuplicates(t *testing.T) {
	d := NewDetector(DefaultDetectorConfig())

	for i := 0; i < 5; i++ {
		at := t0.Add(time.Duration(i) * time.Second)
		d.RecordMessage("u1", at, Fingerprint(fmt.Sprintf("completely different thought number %d about %d things", i, i*7)), "lobby")
	}
	assert.Nil(t, d.Evaluate("u1", emptySnapshot(), t0.Add(5*time.Second)))
}

func TestDetectorRepetition(t *testing.T) {
	d := NewDetector(DefaultDetectorConfig())

	for i := 0; i < 4; i++ {
		d.RecordCommand("u1", t0.Add(time.Duration(i)*time.Second), "create-board")
	}
	sig := d.Evaluate("u1", emptySnapshot(), t0.Add(4*time.Second))
	require.NotNil(t, sig)
	assert.Equal(t, SignalRepetition, sig.Kind)
}

func TestDetectorAnomalyOutranksOthers(t *testing.T) {
	cfg := DefaultDetectorConfig()
	cfg.AnomalyAbsoluteRate = 10 // msgs/min
	d := NewDetector(cfg)

	// Spam-shaped burst that also blows past the anomaly rate.
	for i := 0; i < 12; i++ {
		at := t0.Add(time.Duration(i) * 500 * time.Millisecond)
		d.RecordMessage("u1", at, Fingerprint("same thing again"), "lobby")
	}
	sig := d.Evaluate("u1", emptySnapshot(), t0.Add(6*time.Second))
	require.NotNil(t, sig)
	assert.Equal(t, SignalAnomaly, sig.Kind, "anomaly must win over spam")
}

func TestDetectorAnomalyUsesProfileBaseline(t *testing.T) {
	cfg := DefaultDetectorConfig()
	d := NewDetector(cfg)

	snap := profile.NewSnapshot("u1", nil, nil, nil, nil, profile.BaselineActivity{MessagesPerMin: 2})

	// 6 distinct messages/min: above 2*2.5=5, below the absolute default.
	for i := 0; i < 6; i++ {
		at := t0.Add(time.Duration(i) * 10 * time.Second)
		d.RecordMessage("u1", at, Fingerprint(fmt.Sprintf("unique message %d with padding %d", i, i*13)), "lobby")
	}
	sig := d.Evaluate("u1", snap, t0.Add(time.Minute-time.Second))
	require.NotNil(t, sig)
	assert.Equal(t, SignalAnomaly, sig.Kind)
}

func TestDetectorEvictsStaleEntries(t *testing.T) {
	d := NewDetector(DefaultDetectorConfig())

	for i := 0; i < 5; i++ {
		d.RecordMessage("u1", t0.Add(time.Duration(i)*time.Second), Fingerprint("spam spam"), "lobby")
	}
	// Two minutes later every entry is past the retention horizon.
	assert.Nil(t, d.Evaluate("u1", emptySnapshot(), t0.Add(2*time.Minute)))
}

func TestDetectorIsolatesUsers(t *testing.T) {
	d := NewDetector(DefaultDetectorConfig())

	for i := 0; i < 5; i++ {
		d.RecordMessage("u1", t0.Add(time.Duration(i)*time.Second), Fingerprint("flood flood flood"), "lobby")
	}
	assert.NotNil(t, d.Evaluate("u1", emptySnapshot(), t0.Add(5*time.Second)))
	assert.Nil(t, d.Evaluate("u2", emptySnapshot(), t0.Add(5*time.Second)))
}

func TestFingerprintSimilarity(t *testing.T) {
	assert.Equal(t, 1.0, FingerprintSimilarity(Fingerprint("Hello, World!"), Fingerprint("hello world")))
	assert.Zero(t, FingerprintSimilarity(Fingerprint("abc def"), Fingerprint("ghi jkl")))
	sim := FingerprintSimilarity(Fingerprint("buy cheap gold now"), Fingerprint("buy cheap gold today"))
	assert.Greater(t, sim, 0.5)
	assert.Less(t, sim, 1.0)
}
