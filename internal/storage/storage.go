// /internal/storage/storage.go
package storage

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/keshon/datastore"

	"github.com/keshon/vecna/internal/vecna"
)

const (
	activationLogLimit = 100
	historyHorizon     = time.Hour // governor window; older start times are dropped
)

// UserRecord is the persisted activation state for one user.
type UserRecord struct {
	Open          *vecna.ActivationRecord    `json:"open,omitempty"`
	Activations   []time.Time                `json:"activations,omitempty"`
	CooldownUntil time.Time                  `json:"cooldown_until,omitempty"`
	LogEntries    []vecna.ActivationLogEntry `json:"log_entries,omitempty"`
}

// Storage persists activation records and the activation log. It implements
// vecna.RecordStore and vecna.LogSink. All read-modify-write sequences run
// under one mutex; the datastore handles file durability underneath.
type Storage struct {
	mu sync.Mutex
	ds *datastore.DataStore
}

func New(filePath string) (*Storage, error) {
	ds, err := datastore.New(filePath)
	if err != nil {
		return nil, err
	}
	return &Storage{ds: ds}, nil
}

func (s *Storage) Close() error {
	return s.ds.Close()
}

const usersIndexKey = "_users"

func userKey(userID string) string { return "user:" + userID }

// getUserRecord loads (or initializes) a user's record. Caller holds s.mu.
func (s *Storage) getUserRecord(userID string) (*UserRecord, error) {
	data, exists := s.ds.Get(userKey(userID))
	if !exists {
		s.indexUser(userID)
		return &UserRecord{}, nil
	}

	jsonData, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("error marshalling data: %w", err)
	}
	var record UserRecord
	if err := json.Unmarshal(jsonData, &record); err != nil {
		return nil, fmt.Errorf("error unmarshalling to *UserRecord: %w", err)
	}
	return &record, nil
}

func (s *Storage) putUserRecord(userID string, record *UserRecord) {
	s.ds.Add(userKey(userID), record)
}

// indexUser tracks known user ids so reconciliation can walk them. Caller
// holds s.mu.
func (s *Storage) indexUser(userID string) {
	ids := s.userIndex()
	for _, id := range ids {
		if id == userID {
			return
		}
	}
	s.ds.Add(usersIndexKey, append(ids, userID))
}

func (s *Storage) userIndex() []string {
	data, exists := s.ds.Get(usersIndexKey)
	if !exists {
		return nil
	}
	jsonData, err := json.Marshal(data)
	if err != nil {
		return nil
	}
	var ids []string
	if json.Unmarshal(jsonData, &ids) != nil {
		return nil
	}
	return ids
}

// OpenActivation stores rec as the user's open activation and appends its
// start time to the trailing history.
func (s *Storage) OpenActivation(rec vecna.ActivationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, err := s.getUserRecord(rec.UserID)
	if err != nil {
		return err
	}
	r := rec
	record.Open = &r
	record.CooldownUntil = rec.CooldownUntil
	record.Activations = append(trimTimes(record.Activations, rec.StartTime.Add(-historyHorizon)), rec.StartTime)
	s.putUserRecord(rec.UserID, record)
	return nil
}

// CloseActivation clears the user's open activation.
func (s *Storage) CloseActivation(userID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, err := s.getUserRecord(userID)
	if err != nil {
		return err
	}
	record.Open = nil
	s.putUserRecord(userID, record)
	return nil
}

// AppendActivationLog appends a log entry, keeping the history bounded.
func (s *Storage) AppendActivationLog(entry vecna.ActivationLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, err := s.getUserRecord(entry.UserID)
	if err != nil {
		return err
	}
	record.LogEntries = append(record.LogEntries, entry)
	if len(record.LogEntries) > activationLogLimit {
		record.LogEntries = record.LogEntries[len(record.LogEntries)-activationLogLimit:]
	}
	s.putUserRecord(entry.UserID, record)
	return nil
}

// FetchActivationLog returns a user's persisted log entries.
func (s *Storage) FetchActivationLog(userID string) ([]vecna.ActivationLogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, err := s.getUserRecord(userID)
	if err != nil {
		return nil, err
	}
	return record.LogEntries, nil
}

// ActivationHistory returns a user's activation start times and cooldown
// deadline, used to pre-warm the governor after a restart.
func (s *Storage) ActivationHistory(userID string) ([]time.Time, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, err := s.getUserRecord(userID)
	if err != nil {
		return nil, time.Time{}, err
	}
	return record.Activations, record.CooldownUntil, nil
}

// OpenActivations returns every persisted open activation across users.
// Called once at startup so grips interrupted by a restart can be restored
// or force-expired.
func (s *Storage) OpenActivations() []vecna.ActivationRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []vecna.ActivationRecord
	for _, id := range s.userIndex() {
		record, err := s.getUserRecord(id)
		if err != nil || record.Open == nil {
			continue
		}
		out = append(out, *record.Open)
	}
	return out
}

// KnownUserIDs returns every user id that has persisted state.
func (s *Storage) KnownUserIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userIndex()
}

// ClearExpiredState trims activation history outside the governor window and
// clears elapsed cooldowns.
func (s *Storage) ClearExpiredState(now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range s.userIndex() {
		record, err := s.getUserRecord(id)
		if err != nil {
			return err
		}
		changed := false
		if trimmed := trimTimes(record.Activations, now.Add(-historyHorizon)); len(trimmed) != len(record.Activations) {
			record.Activations = trimmed
			changed = true
		}
		if !record.CooldownUntil.IsZero() && now.After(record.CooldownUntil) {
			record.CooldownUntil = time.Time{}
			changed = true
		}
		if changed {
			s.putUserRecord(id, record)
		}
	}
	return nil
}

func trimTimes(in []time.Time, cutoff time.Time) []time.Time {
	var out []time.Time
	for _, t := range in {
		if t.After(cutoff) {
			out = append(out, t)
		}
	}
	return out
}
