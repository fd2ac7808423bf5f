package vecna

import (
	"strings"
	"sync"
	"time"

	"github.com/keshon/vecna/internal/profile"
)

// DetectorConfig holds the sliding-window thresholds.
type DetectorConfig struct {
	SpamWindow          time.Duration
	SpamCount           int     // near-duplicates within SpamWindow
	SpamSimilarity      float64 // token overlap 0..1 that counts as "near-duplicate"
	RepetitionWindow    time.Duration
	RepetitionCount     int // same command within RepetitionWindow
	AnomalyWindow       time.Duration
	AnomalyDeviation    float64 // multiple of baseline rate that counts as anomalous
	AnomalyAbsoluteRate float64 // fallback msgs/min floor when no baseline exists
}

// DefaultDetectorConfig mirrors the documented defaults.
func DefaultDetectorConfig() DetectorConfig {
	return DetectorConfig{
		SpamWindow:          10 * time.Second,
		SpamCount:           5,
		SpamSimilarity:      0.8,
		RepetitionWindow:    30 * time.Second,
		RepetitionCount:     4,
		AnomalyWindow:       time.Minute,
		AnomalyDeviation:    2.5,
		AnomalyAbsoluteRate: 30,
	}
}

type messageObs struct {
	At          time.Time
	Fingerprint string
	RoomID      string
}

type commandObs struct {
	At   time.Time
	Name string
}

// userWindow holds one user's observation windows. Guarded by its own mutex
// so heavy traffic from one user never blocks another.
type userWindow struct {
	mu       sync.Mutex
	messages []messageObs
	commands []commandObs
}

// Detector maintains per-user sliding windows and reports at most one
// PatternSignal per evaluation. Priority is fixed: anomaly outranks
// repetition outranks spam, because anomaly reflects the broadest deviation.
type Detector struct {
	cfg   DetectorConfig
	mu    sync.RWMutex
	users map[string]*userWindow
}

func NewDetector(cfg DetectorConfig) *Detector {
	if cfg.SpamCount <= 0 {
		cfg = DefaultDetectorConfig()
	}
	return &Detector{cfg: cfg, users: make(map[string]*userWindow)}
}

func (d *Detector) window(userID string) *userWindow {
	d.mu.RLock()
	w := d.users[userID]
	d.mu.RUnlock()
	if w != nil {
		return w
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if w = d.users[userID]; w != nil {
		return w
	}
	w = &userWindow{}
	d.users[userID] = w
	return w
}

// retention is the largest configured window; older entries are evicted.
func (d *Detector) retention() time.Duration {
	r := d.cfg.SpamWindow
	if d.cfg.RepetitionWindow > r {
		r = d.cfg.RepetitionWindow
	}
	if d.cfg.AnomalyWindow > r {
		r = d.cfg.AnomalyWindow
	}
	return r
}

// RecordMessage appends a message observation and evicts stale entries.
func (d *Detector) RecordMessage(userID string, at time.Time, fingerprint, roomID string) {
	w := d.window(userID)
	w.mu.Lock()
	defer w.mu.Unlock()
	w.messages = append(w.messages, messageObs{At: at, Fingerprint: fingerprint, RoomID: roomID})
	w.evict(at.Add(-d.retention()))
}

// RecordCommand appends a command observation and evicts stale entries.
func (d *Detector) RecordCommand(userID string, at time.Time, name string) {
	w := d.window(userID)
	w.mu.Lock()
	defer w.mu.Unlock()
	w.commands = append(w.commands, commandObs{At: at, Name: name})
	w.evict(at.Add(-d.retention()))
}

// Forget drops a user's windows. Called when the session ends.
func (d *Detector) Forget(userID string) {
	d.mu.Lock()
	delete(d.users, userID)
	d.mu.Unlock()
}

func (w *userWindow) evict(cutoff time.Time) {
	i := 0
	for i < len(w.messages) && w.messages[i].At.Before(cutoff) {
		i++
	}
	w.messages = w.messages[i:]
	j := 0
	for j < len(w.commands) && w.commands[j].At.Before(cutoff) {
		j++
	}
	w.commands = w.commands[j:]
}

// Evaluate computes the first signal exceeding its threshold, in fixed
// priority order. Returns nil when nothing fires. Never errors; a missing
// profile simply disables anomaly's baseline comparison.
func (d *Detector) Evaluate(userID string, snap profile.Snapshot, now time.Time) *PatternSignal {
	w := d.window(userID)
	w.mu.Lock()
	defer w.mu.Unlock()
	w.evict(now.Add(-d.retention()))

	if sig := d.checkAnomaly(w, snap, now); sig != nil {
		return sig
	}
	if sig := d.checkRepetition(w, now); sig != nil {
		return sig
	}
	return d.checkSpam(w, now)
}

// checkAnomaly compares the current message and room-switch rates against the
// profile baseline.
func (d *Detector) checkAnomaly(w *userWindow, snap profile.Snapshot, now time.Time) *PatternSignal {
	cutoff := now.Add(-d.cfg.AnomalyWindow)
	var count, switches int
	var first time.Time
	lastRoom := ""
	for _, m := range w.messages {
		if m.At.Before(cutoff) {
			continue
		}
		if count == 0 {
			first = m.At
		}
		count++
		if lastRoom != "" && m.RoomID != lastRoom {
			switches++
		}
		lastRoom = m.RoomID
	}
	if count == 0 {
		return nil
	}

	perMin := float64(count) / d.cfg.AnomalyWindow.Minutes()
	switchesPerMin := float64(switches) / d.cfg.AnomalyWindow.Minutes()

	base := snap.Baseline()
	msgLimit := base.MessagesPerMin * d.cfg.AnomalyDeviation
	if msgLimit <= 0 {
		msgLimit = d.cfg.AnomalyAbsoluteRate
	}
	switchLimit := base.RoomSwitchesPerMin * d.cfg.AnomalyDeviation
	if switchLimit <= 0 {
		switchLimit = d.cfg.AnomalyAbsoluteRate
	}

	if perMin <= msgLimit && switchesPerMin <= switchLimit {
		return nil
	}

	strength := perMin / msgLimit
	if s := switchesPerMin / switchLimit; s > strength {
		strength = s
	}
	return &PatternSignal{
		Kind:        SignalAnomaly,
		Strength:    clamp01(strength / d.cfg.AnomalyDeviation),
		WindowStart: first,
		WindowEnd:   now,
	}
}

// checkRepetition fires when the same command repeats enough times.
func (d *Detector) checkRepetition(w *userWindow, now time.Time) *PatternSignal {
	cutoff := now.Add(-d.cfg.RepetitionWindow)
	counts := make(map[string]int)
	firstAt := make(map[string]time.Time)
	for _, c := range w.commands {
		if c.At.Before(cutoff) {
			continue
		}
		if counts[c.Name] == 0 {
			firstAt[c.Name] = c.At
		}
		counts[c.Name]++
	}
	bestName := ""
	for name, n := range counts {
		if n >= d.cfg.RepetitionCount && (bestName == "" || n > counts[bestName]) {
			bestName = name
		}
	}
	if bestName == "" {
		return nil
	}
	return &PatternSignal{
		Kind:        SignalRepetition,
		Strength:    clamp01(float64(counts[bestName]) / float64(d.cfg.RepetitionCount*2)),
		WindowStart: firstAt[bestName],
		WindowEnd:   now,
	}
}

// checkSpam fires on enough near-duplicate messages in the spam window.
func (d *Detector) checkSpam(w *userWindow, now time.Time) *PatternSignal {
	cutoff := now.Add(-d.cfg.SpamWindow)
	var recent []messageObs
	for _, m := range w.messages {
		if !m.At.Before(cutoff) {
			recent = append(recent, m)
		}
	}
	if len(recent) < d.cfg.SpamCount {
		return nil
	}

	// Largest cluster of mutually similar fingerprints.
	bestCluster := 0
	for i := range recent {
		cluster := 0
		for j := range recent {
			if FingerprintSimilarity(recent[i].Fingerprint, recent[j].Fingerprint) >= d.cfg.SpamSimilarity {
				cluster++
			}
		}
		if cluster > bestCluster {
			bestCluster = cluster
		}
	}
	if bestCluster < d.cfg.SpamCount {
		return nil
	}
	return &PatternSignal{
		Kind:        SignalSpam,
		Strength:    clamp01(float64(bestCluster) / float64(d.cfg.SpamCount*2)),
		WindowStart: recent[0].At,
		WindowEnd:   recent[len(recent)-1].At,
	}
}

// Fingerprint produces the content fingerprint recorded in the message
// window: lowercased, punctuation stripped, whitespace collapsed.
func Fingerprint(content string) string {
	return normalizeText(content)
}

// FingerprintSimilarity is the token-set Jaccard overlap of two fingerprints.
func FingerprintSimilarity(a, b string) float64 {
	if a == b {
		return 1
	}
	ta := strings.Fields(a)
	tb := strings.Fields(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}
	set := make(map[string]bool, len(ta))
	for _, t := range ta {
		set[t] = true
	}
	both := 0
	union := len(set)
	seen := make(map[string]bool, len(tb))
	for _, t := range tb {
		if seen[t] {
			continue
		}
		seen[t] = true
		if set[t] {
			both++
		} else {
			union++
		}
	}
	return float64(both) / float64(union)
}
