package webapi

// SessionView is the API response describing the running session.
type SessionView struct {
	ParticipantID string `json:"participantId"`
	StudyName     string `json:"studyName"`
	Version       string `json:"version"`
	TrialCount    int    `json:"trialCount"`
}

// ChoiceView is one discrete response option.
type ChoiceView struct {
	Key   string `json:"key"`
	Label string `json:"label"`
}

// FieldView is one survey input. Labels non-empty means a rating item; the
// browser posts back the zero-based label index as a string.
type FieldView struct {
	Name     string   `json:"name"`
	Prompt   string   `json:"prompt"`
	Required bool     `json:"required,omitempty"`
	Labels   []string `json:"labels,omitempty"`
}

// TrialView is the renderable form of the current trial.
type TrialView struct {
	Index        int          `json:"index"`
	Tag          string       `json:"tag"`
	Kind         string       `json:"kind"`
	StimulusHTML string       `json:"stimulusHtml"`
	Choices      []ChoiceView `json:"choices,omitempty"`
	Fields       []FieldView  `json:"fields,omitempty"`
	BudgetMS     int64        `json:"budgetMs,omitempty"`
	GiveUp       bool         `json:"giveUp,omitempty"`
}

// Trial states reported by GET /api/trial.
const (
	StateWaiting = "waiting"
	StateActive  = "active"
	StateDone    = "done"
)

// TrialResponse is the polling response for the current trial.
type TrialResponse struct {
	State string     `json:"state"`
	Trial *TrialView `json:"trial,omitempty"`
}

// ErrorResponse is returned for errors.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
}
