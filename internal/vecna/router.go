package vecna

import (
	"context"
	"log"
	"time"

	"github.com/keshon/vecna/internal/chat"
	"github.com/keshon/vecna/internal/profile"
)

// Result is what the caller gets back for one message: the baseline outcome
// always attached (unless the message was withheld by an active grip), plus
// whatever the adversarial layer decided in parallel.
type Result struct {
	Baseline *chat.RoutingResult
	Decision Decision
	Event    *AdversarialEvent
	Withheld bool // message held back by an active grip
	Rejected bool // withheld and dropped (reject mode)
}

// Router is the top-level mediator. The baseline router runs exactly once per
// incoming message before any adversarial evaluation; the adversarial chain
// only ever appends a parallel event, never touches the baseline outcome.
type Router struct {
	Machine  *Machine
	Detector *Detector
	Governor *Governor

	baseline   chat.BaselineRouter
	classifier *Classifier
	evaluator  *Evaluator
	orch       *Orchestrator
	profiles   profile.Provider
	logger     *ActivationLogger
}

// NewRouter wires the full chain. profiles may be nil (anomaly detection then
// runs without a baseline); orch's sink receives all outbound events.
func NewRouter(baseline chat.BaselineRouter, classifier *Classifier, detector *Detector,
	governor *Governor, machine *Machine, orch *Orchestrator,
	profiles profile.Provider, logger *ActivationLogger) *Router {

	r := &Router{
		Machine:    machine,
		Detector:   detector,
		Governor:   governor,
		baseline:   baseline,
		classifier: classifier,
		evaluator:  NewEvaluator(),
		orch:       orch,
		profiles:   profiles,
		logger:     logger,
	}
	machine.SetOnRelease(r.onRelease)
	return r
}

// onRelease runs once per grip release: announce it, then re-offer queued
// messages to the baseline router, each exactly once.
func (r *Router) onRelease(rec ActivationRecord, held []chat.Message) {
	ctx := context.Background()
	r.orch.ReleaseEvent(ctx, rec, len(held))
	for _, m := range held {
		if _, err := r.baseline.Route(ctx, m); err != nil {
			log.Printf("[WARN] Re-routing held message %s failed: %v", m.ID, err)
		}
	}
}

// snapshot is nil-provider safe.
func (r *Router) snapshot(userID string) profile.Snapshot {
	if r.profiles == nil {
		return profile.Snapshot{}
	}
	snap, _ := r.profiles.Snapshot(userID)
	return snap
}

// HandleMessage processes one inbound message end to end. Whatever the
// adversarial outcome — none, denied, or an event — control returns to the
// caller with the baseline result attached.
func (r *Router) HandleMessage(ctx context.Context, msg chat.Message) (Result, error) {
	now := msg.At
	if now.IsZero() {
		now = time.Now()
	}

	// An active grip withholds the message from the baseline router until
	// release. Queued messages are re-routed then, so the baseline still sees
	// each message exactly once.
	if withheld, queued := r.Machine.Withhold(msg, now); withheld {
		log.Printf("[VECNA] withheld msg=%s user=%s queued=%t", msg.ID, msg.UserID, queued)
		return Result{Decision: Decision{Kind: DecisionNone, SourceMessageID: msg.ID, UserID: msg.UserID, At: now},
			Withheld: true, Rejected: !queued}, nil
	}

	baseRes, baseErr := r.baseline.Route(ctx, msg)
	result := Result{
		Baseline: &baseRes,
		Decision: Decision{Kind: DecisionNone, SourceMessageID: msg.ID, UserID: msg.UserID, At: now},
	}

	r.Detector.RecordMessage(msg.UserID, now, Fingerprint(msg.Content), msg.RoomID)
	if msg.IsCommand() {
		r.Detector.RecordCommand(msg.UserID, now, msg.Command)
	}

	snap := r.snapshot(msg.UserID)
	sent := r.classifier.Classify(msg.Content)
	sig := r.Detector.Evaluate(msg.UserID, snap, now)
	dec := r.evaluator.Evaluate(msg.ID, msg.UserID, now, sent, sig)
	if dec.Kind == DecisionNone {
		return result, baseErr
	}

	if ok, reason := r.Governor.Approve(msg.UserID, now); !ok {
		// Denied is policy, not an error: log it, downgrade to none.
		r.logger.Log(NewLogEntry(dec, OutcomeDenied, reason, msg.Content, now))
		return result, baseErr
	}

	if dec.Kind == DecisionEmotional {
		if _, ok := r.Machine.ActivateEmotional(dec, now); !ok {
			r.logger.Log(NewLogEntry(dec, OutcomeDenied, "not idle", msg.Content, now))
			return result, baseErr
		}
		// Generation runs outside any per-user lock.
		event := r.orch.EmotionalResponse(ctx, msg, dec, snap)
		r.Machine.CompleteEmotional(msg.UserID, now)
		result.Decision = dec
		result.Event = &event
		return result, baseErr
	}

	rec, ok := r.Machine.BeginGrip(dec, now)
	if !ok {
		r.logger.Log(NewLogEntry(dec, OutcomeDenied, "not idle", msg.Content, now))
		return result, baseErr
	}
	event := r.orch.GripResponse(ctx, msg, dec, rec, snap)
	result.Decision = dec
	result.Event = &event
	return result, baseErr
}

// EndSession destroys all per-user state across the chain.
func (r *Router) EndSession(userID string) {
	r.Machine.EndSession(userID)
	r.Detector.Forget(userID)
	r.Governor.Forget(userID)
}
