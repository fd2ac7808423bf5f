package vecna

import (
	"crypto/sha256"
	"encoding/hex"
	"log"
	"time"

	"github.com/oklog/ulid/v2"
)

// LogSink persists activation log entries. The storage package implements it;
// tests use an in-memory recorder.
type LogSink interface {
	AppendActivationLog(entry ActivationLogEntry) error
}

// HashContent digests message content for the activation log. Plaintext user
// content never reaches persistence; only this truncated digest does.
func HashContent(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])[:16]
}

// NewLogEntry builds an entry for one decision outcome.
func NewLogEntry(dec Decision, outcome, reason, content string, at time.Time) ActivationLogEntry {
	return ActivationLogEntry{
		ID:              ulid.Make().String(),
		UserID:          dec.UserID,
		TriggerKind:     dec.Kind,
		Reason:          reason,
		Intensity:       dec.RawIntensity,
		Timestamp:       at,
		DecisionOutcome: outcome,
		ContentHash:     HashContent(content),
	}
}

// ActivationLogger fans entries out to the process log and the sink. A nil
// sink is fine; the process log line is always written.
type ActivationLogger struct {
	sink LogSink
}

func NewActivationLogger(sink LogSink) *ActivationLogger {
	return &ActivationLogger{sink: sink}
}

func (l *ActivationLogger) Log(entry ActivationLogEntry) {
	log.Printf("[VECNA] activation user=%s kind=%s outcome=%s reason=%s intensity=%.2f hash=%s",
		entry.UserID, entry.TriggerKind, entry.DecisionOutcome, entry.Reason, entry.Intensity, entry.ContentHash)
	if l.sink == nil {
		return
	}
	if err := l.sink.AppendActivationLog(entry); err != nil {
		log.Printf("[WARN] Failed to persist activation log entry %s: %v", entry.ID, err)
	}
}
