// Package vecna implements the adversarial layer that sits behind the
// baseline chat router: trigger evaluation, activation governance, the
// per-user adversarial state machine and the corrupted-response pipeline.
package vecna

import "time"

// Emotion tags recognized by the sentiment classifier.
type Emotion string

const (
	EmotionSadness     Emotion = "sadness"
	EmotionAnger       Emotion = "anger"
	EmotionFrustration Emotion = "frustration"
	EmotionAnxiety     Emotion = "anxiety"
)

// SentimentResult is the per-message output of the classifier. Never
// persisted; produced fresh for every message.
type SentimentResult struct {
	Polarity        float64   `json:"polarity"`  // -1..1
	Intensity       float64   `json:"intensity"` // 0..1
	Emotions        []Emotion `json:"emotions,omitempty"`
	TriggersSupport bool      `json:"triggers_support"`
}

// SignalKind identifies the behavioral pattern a detector window tripped on.
type SignalKind string

const (
	SignalSpam       SignalKind = "spam"
	SignalRepetition SignalKind = "repetition"
	SignalAnomaly    SignalKind = "anomaly"
)

// PatternSignal is the detector's verdict for one evaluation. At most one
// signal is reported per call; anomaly outranks repetition outranks spam.
type PatternSignal struct {
	Kind        SignalKind `json:"kind"`
	Strength    float64    `json:"strength"` // 0..1
	WindowStart time.Time  `json:"window_start"`
	WindowEnd   time.Time  `json:"window_end"`
}

// DecisionKind is the merged trigger verdict for one message.
type DecisionKind string

const (
	DecisionNone             DecisionKind = "none"
	DecisionEmotional        DecisionKind = "emotional"
	DecisionSystemSpam       DecisionKind = "systemSpam"
	DecisionSystemRepetition DecisionKind = "systemRepetition"
	DecisionSystemAnomaly    DecisionKind = "systemAnomaly"
)

// IsSystem reports whether the decision came from a behavioral pattern
// rather than single-message sentiment.
func (k DecisionKind) IsSystem() bool {
	return k == DecisionSystemSpam || k == DecisionSystemRepetition || k == DecisionSystemAnomaly
}

// Decision is the single trigger verdict produced per message.
type Decision struct {
	Kind            DecisionKind `json:"kind"`
	SourceMessageID string       `json:"source_message_id"`
	UserID          string       `json:"user_id"`
	At              time.Time    `json:"at"`
	RawIntensity    float64      `json:"raw_intensity"`
}

// ActivationState is the per-user state of the adversarial machine.
type ActivationState int

const (
	StateIdle ActivationState = iota
	StateEmotionalActive
	StatePsychicGripActive
	StateCooldown
)

func (s ActivationState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateEmotionalActive:
		return "emotional_active"
	case StatePsychicGripActive:
		return "psychic_grip_active"
	case StateCooldown:
		return "cooldown"
	default:
		return "unknown"
	}
}

// ActivationRecord describes one approved activation. At most one record per
// user is open at any time.
type ActivationRecord struct {
	UserID          string        `json:"user_id"`
	TriggerKind     DecisionKind  `json:"trigger_kind"`
	StartTime       time.Time     `json:"start_time"`
	PlannedDuration time.Duration `json:"planned_duration"` // 0 for emotional
	CooldownUntil   time.Time     `json:"cooldown_until"`
}

// PlannedEnd returns when the activation is due to release.
func (r ActivationRecord) PlannedEnd() time.Time {
	return r.StartTime.Add(r.PlannedDuration)
}

// Event kinds carried by AdversarialEvent.
const (
	EventHostile = "hostile" // emotional path payload
	EventGrip    = "grip"    // psychic grip narrative payload
	EventRelease = "release" // grip released, control returned
)

// AdversarialEvent is the outbound payload handed to the delivery collaborator.
type AdversarialEvent struct {
	ID              string  `json:"id"`
	Kind            string  `json:"kind"`
	UserID          string  `json:"user_id"`
	Payload         string  `json:"payload"`
	CorruptionLevel float64 `json:"corruption_level"`
	DurationMs      int64   `json:"duration_ms"`
}

// Decision outcomes recorded in the activation log.
const (
	OutcomeApproved = "approved"
	OutcomeDenied   = "denied"
	OutcomeFallback = "fallback"
	OutcomeReleased = "released"
)

// ActivationLogEntry is what reaches the logging collaborator. ContentHash is
// a truncated digest of the triggering message; plaintext content is never
// written here.
type ActivationLogEntry struct {
	ID              string       `json:"id"`
	UserID          string       `json:"user_id"`
	TriggerKind     DecisionKind `json:"trigger_kind"`
	Reason          string       `json:"reason"`
	Intensity       float64      `json:"intensity"`
	Timestamp       time.Time    `json:"timestamp"`
	DecisionOutcome string       `json:"decision_outcome"`
	ContentHash     string       `json:"content_hash"`
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
