package session

import "time"

// EventType identifies the kind of session event.
type EventType string

const (
	EventSessionStart   EventType = "session_start"
	EventTrialStart     EventType = "trial_start"
	EventTrialResolved  EventType = "trial_resolved"
	EventSessionAborted EventType = "session_aborted"
	EventSessionEnd     EventType = "session_complete"
	EventDelivery       EventType = "delivery_result"
	EventBackup         EventType = "backup_written"
	EventError          EventType = "error"
)

// Event is a single timestamped entry in a session event log.
type Event struct {
	Timestamp time.Time      `json:"timestamp"`
	Type      EventType      `json:"type"`
	Data      map[string]any `json:"data,omitempty"`
}

// NewEvent creates an event with the current timestamp.
func NewEvent(t EventType, data map[string]any) Event {
	return Event{
		Timestamp: time.Now().UTC(),
		Type:      t,
		Data:      data,
	}
}

// SessionStartData returns event data for a session start.
func SessionStartData(participantID, studyName string, trialCount int) map[string]any {
	return map[string]any{
		"participant_id": participantID,
		"study_name":     studyName,
		"trial_count":    trialCount,
	}
}

// TrialStartData returns event data for a trial start.
func TrialStartData(tag string, index, total int) map[string]any {
	return map[string]any{
		"trial_tag":    tag,
		"trial_index":  index,
		"total_trials": total,
	}
}

// TrialResolvedData returns event data for a trial resolution.
func TrialResolvedData(tag string, index int, reason CompletionReason, elapsedMS int64) map[string]any {
	return map[string]any{
		"trial_tag":   tag,
		"trial_index": index,
		"reason":      string(reason),
		"elapsed_ms":  elapsedMS,
	}
}

// DeliveryData returns event data for a delivery attempt outcome.
func DeliveryData(target, status string) map[string]any {
	return map[string]any{
		"target": target,
		"status": status,
	}
}

// ErrorData returns event data for an error.
func ErrorData(message string) map[string]any {
	return map[string]any{"message": message}
}
