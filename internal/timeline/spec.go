// Package timeline assembles the ordered trial sequence for one session from
// the study configuration and its item pools. The sequence is fully built
// before execution begins and is never reordered afterwards.
package timeline

import (
	"fmt"
	"time"
)

// Kind is a trial's presentation kind. Every trial has exactly one.
type Kind string

const (
	// KindInstruction is an acknowledgement screen with a single continue
	// affordance.
	KindInstruction Kind = "instruction"
	// KindChoice is a discrete choice between response keys, optionally
	// time-budgeted.
	KindChoice Kind = "choice"
	// KindSurvey is a set of named fields: rating items or free text.
	KindSurvey Kind = "survey"
	// KindPuzzle is a free-text trial carrying the give-up affordance.
	KindPuzzle Kind = "puzzle"
)

// Trial tags produced by the builder. Scale trials are tagged with the
// configured scale name instead.
const (
	TagDeviceGate       = "device_gate"
	TagConsent          = "consent"
	TagDemographics     = "demographics"
	TagTaskInstructions = "task_instructions"
	TagDecisionChoice   = "decision_choice"
	TagDecisionPost     = "decision_post"
	TagPersistIntro     = "persist_instructions"
	TagPersistTrial     = "persist_trial"
	TagPreFinish        = "pre_finish"
)

// Response keys for decision and consent trials.
const (
	KeyOptionA = "a"
	KeyOptionB = "b"
	KeyAgree   = "agree"
	KeyDecline = "decline"
)

// FieldAnswer is the free-text field name on puzzle trials.
const FieldAnswer = "anagram_answer"

// Choice is one discrete response option.
type Choice struct {
	Key   string
	Label string
}

// Field is one named survey input. Labels non-nil means a rating item with
// that fixed label ordering (index 0 maps to scale value 1); nil means free
// text.
type Field struct {
	Name     string
	Prompt   string
	Required bool
	Labels   []string
}

// TrialSpec is the immutable description of one presentation step.
type TrialSpec struct {
	Tag      string
	Kind     Kind
	Stimulus string // markdown

	// Choices is the discrete response set for instruction/choice kinds.
	Choices []Choice
	// Fields is the input set for survey/puzzle kinds.
	Fields []Field

	// Budget is the trial time budget; zero means unbounded.
	Budget time.Duration
	// GiveUp marks trials carrying the out-of-band give-up affordance.
	GiveUp bool
	// AbortKey, when non-empty, names the choice key that aborts the whole
	// session (the consent gate's decline).
	AbortKey string

	// Meta is copied verbatim into the resulting response record.
	Meta map[string]any
}

// Validate enforces the one-kind invariant: the response constraints must
// match the presentation kind.
func (t *TrialSpec) Validate() error {
	switch t.Kind {
	case KindInstruction, KindChoice:
		if len(t.Choices) == 0 {
			return fmt.Errorf("trial %q: kind %s requires a choice set", t.Tag, t.Kind)
		}
		if len(t.Fields) > 0 {
			return fmt.Errorf("trial %q: kind %s must not carry fields", t.Tag, t.Kind)
		}
	case KindSurvey, KindPuzzle:
		if len(t.Fields) == 0 {
			return fmt.Errorf("trial %q: kind %s requires a field set", t.Tag, t.Kind)
		}
		if len(t.Choices) > 0 {
			return fmt.Errorf("trial %q: kind %s must not carry choices", t.Tag, t.Kind)
		}
	default:
		return fmt.Errorf("trial %q: unknown kind %q", t.Tag, t.Kind)
	}
	if t.GiveUp && t.Kind != KindPuzzle {
		return fmt.Errorf("trial %q: give-up affordance is only valid on puzzle trials", t.Tag)
	}
	return nil
}
