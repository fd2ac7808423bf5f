package vecna

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/keshon/vecna/internal/ai"
	"github.com/keshon/vecna/internal/chat"
	"github.com/keshon/vecna/internal/profile"
)

// Generator is the external generation collaborator. ai.Client implements it.
type Generator interface {
	Generate(ctx context.Context, messages []ai.Message) (string, error)
}

// Fallback payloads used when the generation collaborator fails. Fixed so
// the adversarial path can never abort message processing.
const (
	fallbackHostile = "You talk and talk and no one is listening. Did you think the room went quiet for you?"
	fallbackGrip    = "The doors you keep opening all lead to the same room. Sit still. It knows the way you walk."
	releaseNotice   = "The grip loosens. The room is yours again."
)

// OrchestratorConfig bounds the corruption applied to outbound payloads.
type OrchestratorConfig struct {
	CorruptionMin float64
	CorruptionMax float64
}

func DefaultOrchestratorConfig() OrchestratorConfig {
	return OrchestratorConfig{CorruptionMin: 0.2, CorruptionMax: 0.5}
}

// Orchestrator builds prompts, calls the generation collaborator and
// assembles outbound adversarial payloads. Every invocation, success or
// fallback, produces exactly one AdversarialEvent and one log entry.
type Orchestrator struct {
	gen    Generator
	cfg    OrchestratorConfig
	sink   chat.Sink
	logger *ActivationLogger
}

func NewOrchestrator(gen Generator, cfg OrchestratorConfig, sink chat.Sink, logger *ActivationLogger) *Orchestrator {
	if cfg.CorruptionMax <= 0 {
		cfg = DefaultOrchestratorConfig()
	}
	if logger == nil {
		logger = NewActivationLogger(nil)
	}
	return &Orchestrator{gen: gen, cfg: cfg, sink: sink, logger: logger}
}

// corruptionLevel scales with trigger intensity inside the configured bounds.
func (o *Orchestrator) corruptionLevel(intensity float64) float64 {
	return o.cfg.CorruptionMin + (o.cfg.CorruptionMax-o.cfg.CorruptionMin)*clamp01(intensity)
}

// seedFrom derives the deterministic corruption seed from the message id, so
// a replayed message corrupts identically.
func seedFrom(id string) int64 {
	sum := sha256.Sum256([]byte(id))
	return int64(binary.BigEndian.Uint64(sum[:8]))
}

// EmotionalResponse handles the EmotionalActive path: hostile content built
// from the triggering message, its corrupted variant and the profile.
func (o *Orchestrator) EmotionalResponse(ctx context.Context, msg chat.Message, dec Decision, snap profile.Snapshot) AdversarialEvent {
	level := o.corruptionLevel(dec.RawIntensity)
	seed := seedFrom(msg.ID)
	corrupted := Corrupt(msg.Content, level, seed)

	prompt := []ai.Message{
		{Role: "system", Content: "You are a malevolent presence inside a chat platform. Reply with one short, cold, hostile remark aimed at the user. No preamble, no quotes."},
		{Role: "user", Content: fmt.Sprintf(
			"The user %s just wrote: %q\nA corrupted echo of it reads: %q\nTheir interests: %s\nTurn what they said against them.",
			msg.Username, msg.Content, corrupted, strings.Join(snap.Interests(), ", "))},
	}

	text, outcome, reason := o.generate(ctx, prompt, fallbackHostile)
	event := AdversarialEvent{
		ID:              uuid.NewString(),
		Kind:            EventHostile,
		UserID:          msg.UserID,
		Payload:         Corrupt(text, level, seed),
		CorruptionLevel: level,
	}
	o.emit(ctx, event, dec, outcome, reason, msg.Content)
	return event
}

// GripResponse handles the PsychicGripActive path: a cryptic narrative built
// around profile facts the user will recognize.
func (o *Orchestrator) GripResponse(ctx context.Context, msg chat.Message, dec Decision, rec ActivationRecord, snap profile.Snapshot) AdversarialEvent {
	level := o.corruptionLevel(dec.RawIntensity)
	seed := seedFrom(msg.ID)

	prompt := []ai.Message{
		{Role: "system", Content: "You are a malevolent presence that has seized a user's chat session. Write one short cryptic paragraph that unsettles them with how much you know. No preamble, no quotes."},
		{Role: "user", Content: fmt.Sprintf(
			"The user haunts these rooms: %s. Lately they drift through: %s.\nTheir recent commands, repeated like a tic: %s.\nThey were flagged for %s. Speak to them.",
			strings.Join(snap.FrequentRooms(), ", "),
			strings.Join(snap.RecentRooms(), ", "),
			strings.Join(snap.RecentCommands(), ", "),
			dec.Kind)},
	}

	text, outcome, reason := o.generate(ctx, prompt, fallbackGrip)
	event := AdversarialEvent{
		ID:              uuid.NewString(),
		Kind:            EventGrip,
		UserID:          msg.UserID,
		Payload:         Corrupt(text, level, seed),
		CorruptionLevel: level,
		DurationMs:      rec.PlannedDuration.Milliseconds(),
	}
	o.emit(ctx, event, dec, outcome, reason, msg.Content)
	return event
}

// ReleaseEvent announces the end of a grip. Called from the release hook.
func (o *Orchestrator) ReleaseEvent(ctx context.Context, rec ActivationRecord, heldCount int) AdversarialEvent {
	event := AdversarialEvent{
		ID:         uuid.NewString(),
		Kind:       EventRelease,
		UserID:     rec.UserID,
		Payload:    releaseNotice,
		DurationMs: rec.PlannedDuration.Milliseconds(),
	}
	dec := Decision{Kind: rec.TriggerKind, UserID: rec.UserID, At: rec.PlannedEnd()}
	o.emit(ctx, event, dec, OutcomeReleased, fmt.Sprintf("grip released, %d held", heldCount), "")
	return event
}

// generate calls the collaborator and falls back to the fixed template on any
// failure. Failures are degraded, never surfaced as errors.
func (o *Orchestrator) generate(ctx context.Context, prompt []ai.Message, fallback string) (text, outcome, reason string) {
	if o.gen == nil {
		return fallback, OutcomeFallback, "no generator configured"
	}
	reply, err := o.gen.Generate(ctx, prompt)
	if err != nil {
		log.Printf("[WARN] Generation failed, using fallback: %v", err)
		return fallback, OutcomeFallback, "generation failed: " + err.Error()
	}
	return reply, OutcomeApproved, "generated"
}

// emit delivers the event and writes the single log entry for this invocation.
func (o *Orchestrator) emit(ctx context.Context, event AdversarialEvent, dec Decision, outcome, reason, content string) {
	if o.sink != nil {
		if err := o.sink.Deliver(ctx, event.UserID, event); err != nil {
			log.Printf("[WARN] Event delivery failed for %s: %v", event.UserID, err)
		}
	}
	at := dec.At
	if at.IsZero() {
		at = time.Now()
	}
	o.logger.Log(NewLogEntry(dec, outcome, reason, content, at))
}
