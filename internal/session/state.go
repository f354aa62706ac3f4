// Package session holds the per-participant run state: the append-only log
// of response records and the write-once session aggregate properties. The
// execution engine and scorer are the only writers, one trial at a time.
package session

import (
	"time"

	"github.com/google/uuid"

	"github.com/parkerlabs/dilemma/internal/environ"
)

// CompletionReason says which terminal event resolved a trial.
type CompletionReason string

const (
	ReasonResponse CompletionReason = "response"
	ReasonTimeout  CompletionReason = "timeout"
	ReasonGaveUp   CompletionReason = "gave_up"
)

// ResponseRecord is the result of executing one trial. Records are appended
// to the session log in presentation order and never removed. Scoring
// annotates a record once, through Derived.
type ResponseRecord struct {
	TrialTag   string           `json:"trial_tag"`
	TrialIndex int              `json:"trial_index"`
	Payload    RawResponse      `json:"payload"`
	Reason     CompletionReason `json:"reason"`

	// ElapsedMS is measured by the engine clock from trial start to the
	// first terminal event, regardless of which event it was.
	ElapsedMS int64 `json:"elapsed_ms"`

	// SessionElapsedMS is measured from session start to trial resolution.
	SessionElapsedMS int64 `json:"time_elapsed_ms"`

	// Meta carries the trial's attached metadata, copied verbatim.
	Meta map[string]any `json:"meta,omitempty"`

	// Derived holds scoring annotations. A nil value under a key is the
	// "not applicable" sentinel, distinct from the key being absent.
	Derived map[string]any `json:"derived,omitempty"`
}

// SetDerived records a scoring annotation on the record.
func (r *ResponseRecord) SetDerived(key string, value any) {
	if r.Derived == nil {
		r.Derived = make(map[string]any)
	}
	r.Derived[key] = value
}

// State is the session-wide accumulator. ParticipantID and StartedAt are
// immutable after construction; properties are write-once per key.
type State struct {
	ParticipantID string
	StartedAt     time.Time
	EndedAt       time.Time
	Client        environ.Client

	records    []*ResponseRecord
	properties map[string]any
	propOrder  []string
}

// NewState creates a session with a fresh participant identifier.
func NewState(client environ.Client) *State {
	return NewStateWithID(uuid.NewString(), client)
}

// NewStateWithID creates a session with a caller-supplied participant
// identifier (e.g. one issued by a recruiting platform).
func NewStateWithID(id string, client environ.Client) *State {
	return &State{
		ParticipantID: id,
		StartedAt:     time.Now().UTC(),
		Client:        client,
		properties:    make(map[string]any),
	}
}

// Append adds a record to the session log.
func (s *State) Append(rec *ResponseRecord) {
	s.records = append(s.records, rec)
}

// Records returns the session log in presentation order.
func (s *State) Records() []*ResponseRecord {
	return s.records
}

// RecordsByTag returns all records carrying the given trial tag, in order.
func (s *State) RecordsByTag(tag string) []*ResponseRecord {
	var out []*ResponseRecord
	for _, r := range s.records {
		if r.TrialTag == tag {
			out = append(out, r)
		}
	}
	return out
}

// SetProperty stores a session-level aggregate. Properties are write-once:
// setting an existing key is a no-op and returns false.
func (s *State) SetProperty(key string, value any) bool {
	if _, exists := s.properties[key]; exists {
		return false
	}
	s.properties[key] = value
	s.propOrder = append(s.propOrder, key)
	return true
}

// Property returns a session aggregate by key.
func (s *State) Property(key string) (any, bool) {
	v, ok := s.properties[key]
	return v, ok
}

// Properties returns a copy of all session aggregates.
func (s *State) Properties() map[string]any {
	out := make(map[string]any, len(s.properties))
	for k, v := range s.properties {
		out[k] = v
	}
	return out
}

// Finish stamps the session end time. Later calls keep the first stamp.
func (s *State) Finish() {
	if s.EndedAt.IsZero() {
		s.EndedAt = time.Now().UTC()
	}
}
