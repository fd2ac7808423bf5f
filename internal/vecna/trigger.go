package vecna

import "time"

// decisionTable maps a fired pattern signal to its decision kind. System
// signals always outrank the emotional path: a behavioral anomaly says more
// about session-level risk than one message's sentiment, so the table is
// consulted before sentiment is even considered.
var decisionTable = map[SignalKind]DecisionKind{
	SignalAnomaly:    DecisionSystemAnomaly,
	SignalRepetition: DecisionSystemRepetition,
	SignalSpam:       DecisionSystemSpam,
}

// Evaluator merges classifier and detector output into exactly one Decision
// per message. Pure given its inputs; all window state lives in the Detector.
type Evaluator struct{}

func NewEvaluator() *Evaluator { return &Evaluator{} }

// Evaluate resolves the single Decision for a message. A present
// PatternSignal wins regardless of sentiment; sentiment alone fires only via
// TriggersSupport; otherwise the decision is none.
func (Evaluator) Evaluate(messageID, userID string, at time.Time, sent SentimentResult, sig *PatternSignal) Decision {
	dec := Decision{
		Kind:            DecisionNone,
		SourceMessageID: messageID,
		UserID:          userID,
		At:              at,
		RawIntensity:    sent.Intensity,
	}

	if sig != nil {
		if kind, ok := decisionTable[sig.Kind]; ok {
			dec.Kind = kind
			if sig.Strength > dec.RawIntensity {
				dec.RawIntensity = sig.Strength
			}
			return dec
		}
	}

	if sent.TriggersSupport {
		dec.Kind = DecisionEmotional
	}
	return dec
}
