package vecna

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEvaluateNone(t *testing.T) {
	ev := NewEvaluator()

	dec := ev.Evaluate("m1", "u1", t0, SentimentResult{Intensity: 0.3}, nil)
	assert.Equal(t, DecisionNone, dec.Kind)
	assert.Equal(t, "m1", dec.SourceMessageID)
	assert.Equal(t, "u1", dec.UserID)
	assert.InDelta(t, 0.3, dec.RawIntensity, 1e-9)
}

func TestEvaluateEmotional(t *testing.T) {
	ev := NewEvaluator()

	sent := SentimentResult{Intensity: 0.82, TriggersSupport: true, Emotions: []Emotion{EmotionAnger}}
	dec := ev.Evaluate("m1", "u1", t0, sent, nil)
	assert.Equal(t, DecisionEmotional, dec.Kind)
	assert.False(t, dec.Kind.IsSystem())
	assert.InDelta(t, 0.82, dec.RawIntensity, 1e-9)
}

func TestEvaluateSignalBeatsSentiment(t *testing.T) {
	ev := NewEvaluator()

	sent := SentimentResult{Intensity: 0.9, TriggersSupport: true}
	sig := &PatternSignal{Kind: SignalSpam, Strength: 0.5}
	dec := ev.Evaluate("m1", "u1", t0, sent, sig)
	assert.Equal(t, DecisionSystemSpam, dec.Kind)
	assert.True(t, dec.Kind.IsSystem())
	// Intensity keeps the larger of the two sources.
	assert.InDelta(t, 0.9, dec.RawIntensity, 1e-9)
}

func TestEvaluateSignalKinds(t *testing.T) {
	ev := NewEvaluator()

	cases := map[SignalKind]DecisionKind{
		SignalSpam:       DecisionSystemSpam,
		SignalRepetition: DecisionSystemRepetition,
		SignalAnomaly:    DecisionSystemAnomaly,
	}
	for sk, want := range cases {
		dec := ev.Evaluate("m1", "u1", t0, SentimentResult{}, &PatternSignal{Kind: sk, Strength: 0.7})
		assert.Equal(t, want, dec.Kind, string(sk))
		assert.InDelta(t, 0.7, dec.RawIntensity, 1e-9)
	}
}

func TestEvaluateStampsTime(t *testing.T) {
	ev := NewEvaluator()

	at := t0.Add(42 * time.Second)
	dec := ev.Evaluate("m1", "u1", at, SentimentResult{}, nil)
	assert.True(t, dec.At.Equal(at))
}
