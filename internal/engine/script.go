package engine

import (
	"context"
	"time"

	"github.com/parkerlabs/dilemma/internal/session"
	"github.com/parkerlabs/dilemma/internal/timeline"
)

// ScriptStep scripts one trial's behavior for a ScriptedPresenter.
type ScriptStep struct {
	// Signals are emitted in order after Delay. More than one signal
	// exercises the first-wins resolution path.
	Signals []Signal
	// Delay is how long the step waits before emitting.
	Delay time.Duration
	// Hang suppresses all signals, leaving the trial to its budget (or
	// to context cancellation).
	Hang bool
}

// Respond scripts a discrete choice.
func Respond(key string) ScriptStep {
	return ScriptStep{Signals: []Signal{
		{Kind: SignalResponse, Payload: session.ChoiceResponse(key)},
	}}
}

// RespondFields scripts a field-map response.
func RespondFields(fields map[string]string) ScriptStep {
	return ScriptStep{Signals: []Signal{
		{Kind: SignalResponse, Payload: session.FieldsResponse(fields)},
	}}
}

// GiveUp scripts the give-up affordance, carrying whatever was typed so far.
func GiveUp(partial string) ScriptStep {
	return ScriptStep{Signals: []Signal{
		{Kind: SignalGiveUp, Payload: session.FieldsResponse(map[string]string{timeline.FieldAnswer: partial})},
	}}
}

// Hang scripts a trial that never answers.
func Hang() ScriptStep {
	return ScriptStep{Hang: true}
}

// ScriptedPresenter replays a fixed step sequence, one step per Begin call.
// Once the steps run out it auto-answers: the first choice on discrete
// trials, empty text on field trials. With no steps at all it is an
// autopilot that walks any timeline straight through.
type ScriptedPresenter struct {
	steps []ScriptStep
	next  int
}

// NewScripted creates a presenter that plays the given steps in order.
func NewScripted(steps ...ScriptStep) *ScriptedPresenter {
	return &ScriptedPresenter{steps: steps}
}

// Begin implements Presenter.
func (p *ScriptedPresenter) Begin(_ context.Context, trial *timeline.TrialSpec) (LiveTrial, error) {
	var step ScriptStep
	if p.next < len(p.steps) {
		step = p.steps[p.next]
		p.next++
	} else {
		step = autoStep(trial)
	}

	lt := &scriptedTrial{ch: make(chan Signal, len(step.Signals))}
	if !step.Hang {
		emit := func() {
			for _, sig := range step.Signals {
				lt.ch <- sig
			}
		}
		if step.Delay > 0 {
			lt.timer = time.AfterFunc(step.Delay, emit)
		} else {
			emit()
		}
	}
	return lt, nil
}

// autoStep picks a plausible default response for a trial.
func autoStep(trial *timeline.TrialSpec) ScriptStep {
	if len(trial.Choices) > 0 {
		return Respond(trial.Choices[0].Key)
	}
	fields := make(map[string]string, len(trial.Fields))
	for _, f := range trial.Fields {
		if f.Labels != nil {
			fields[f.Name] = "0"
		} else {
			fields[f.Name] = ""
		}
	}
	return RespondFields(fields)
}

type scriptedTrial struct {
	ch    chan Signal
	timer *time.Timer
}

func (t *scriptedTrial) Signals() <-chan Signal { return t.ch }

func (t *scriptedTrial) Close() error {
	if t.timer != nil {
		t.timer.Stop()
	}
	return nil
}
