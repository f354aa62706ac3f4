// Package webapi bridges the execution engine to a browser: the engine
// presents trials through the Bridge, and the embedded web page polls for
// the current trial and posts responses back.
package webapi

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/yuin/goldmark"

	"github.com/parkerlabs/dilemma/internal/engine"
	"github.com/parkerlabs/dilemma/internal/session"
	"github.com/parkerlabs/dilemma/internal/study"
	"github.com/parkerlabs/dilemma/internal/timeline"
)

// Bridge implements engine.Presenter over HTTP. At most one trial is live at
// a time; posts that arrive between trials are rejected, and only the first
// signal per trial counts.
type Bridge struct {
	view SessionView
	md   goldmark.Markdown

	mu      sync.Mutex
	current *liveWeb
	index   int
	done    bool
}

// NewBridge creates a bridge for one participant session.
func NewBridge(cfg *study.Config, participantID string, trialCount int) *Bridge {
	return &Bridge{
		view: SessionView{
			ParticipantID: participantID,
			StudyName:     cfg.Meta.Name,
			Version:       cfg.Meta.Version,
			TrialCount:    trialCount,
		},
		md: goldmark.New(),
	}
}

// Begin implements engine.Presenter.
func (b *Bridge) Begin(_ context.Context, trial *timeline.TrialSpec) (engine.LiveTrial, error) {
	view, err := b.renderTrial(trial)
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.done {
		return nil, fmt.Errorf("webapi: session already finished")
	}
	lw := &liveWeb{
		bridge: b,
		trial:  trial,
		view:   view,
		ch:     make(chan engine.Signal, 4),
	}
	b.current = lw
	return lw, nil
}

// FinishSession marks the session over, so the page stops polling.
func (b *Bridge) FinishSession() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.current = nil
	b.done = true
}

// Session returns the session description.
func (b *Bridge) Session() SessionView {
	return b.view
}

// Trial returns the current polling state.
func (b *Bridge) Trial() TrialResponse {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch {
	case b.done:
		return TrialResponse{State: StateDone}
	case b.current == nil:
		return TrialResponse{State: StateWaiting}
	default:
		return TrialResponse{State: StateActive, Trial: b.current.view}
	}
}

// Respond normalizes a posted payload and signals the live trial.
func (b *Bridge) Respond(payload any) error {
	return b.signal(func(lw *liveWeb) engine.Signal {
		return engine.Signal{Kind: engine.SignalResponse, Payload: session.Normalize(payload)}
	}, nil)
}

// GiveUp signals the live trial's give-up affordance.
func (b *Bridge) GiveUp(payload any) error {
	return b.signal(func(lw *liveWeb) engine.Signal {
		return engine.Signal{Kind: engine.SignalGiveUp, Payload: session.Normalize(payload)}
	}, func(lw *liveWeb) error {
		if !lw.trial.GiveUp {
			return fmt.Errorf("trial %q has no give-up affordance", lw.trial.Tag)
		}
		return nil
	})
}

func (b *Bridge) signal(build func(*liveWeb) engine.Signal, check func(*liveWeb) error) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	lw := b.current
	if lw == nil {
		return ErrNoLiveTrial
	}
	if check != nil {
		if err := check(lw); err != nil {
			return err
		}
	}
	select {
	case lw.ch <- build(lw):
	default:
		// Channel full means the trial already has its winning signal.
	}
	return nil
}

// ErrNoLiveTrial is returned for posts that arrive between trials.
var ErrNoLiveTrial = fmt.Errorf("no trial is awaiting a response")

func (b *Bridge) renderTrial(trial *timeline.TrialSpec) (*TrialView, error) {
	var buf bytes.Buffer
	if err := b.md.Convert([]byte(trial.Stimulus), &buf); err != nil {
		return nil, fmt.Errorf("rendering stimulus for trial %q: %w", trial.Tag, err)
	}

	b.mu.Lock()
	index := b.index
	b.index++
	b.mu.Unlock()

	view := &TrialView{
		Index:        index,
		Tag:          trial.Tag,
		Kind:         string(trial.Kind),
		StimulusHTML: buf.String(),
		BudgetMS:     int64(trial.Budget / time.Millisecond),
		GiveUp:       trial.GiveUp,
	}
	for _, c := range trial.Choices {
		view.Choices = append(view.Choices, ChoiceView{Key: c.Key, Label: c.Label})
	}
	for _, f := range trial.Fields {
		view.Fields = append(view.Fields, FieldView{
			Name:     f.Name,
			Prompt:   f.Prompt,
			Required: f.Required,
			Labels:   f.Labels,
		})
	}
	return view, nil
}

type liveWeb struct {
	bridge *Bridge
	trial  *timeline.TrialSpec
	view   *TrialView
	ch     chan engine.Signal
}

func (l *liveWeb) Signals() <-chan engine.Signal { return l.ch }

// Close disarms the trial: posts after this point get ErrNoLiveTrial.
func (l *liveWeb) Close() error {
	l.bridge.mu.Lock()
	defer l.bridge.mu.Unlock()
	if l.bridge.current == l {
		l.bridge.current = nil
	}
	return nil
}
