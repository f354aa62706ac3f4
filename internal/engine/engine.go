// Package engine executes a built timeline against a Presenter, one trial at
// a time. The engine owns all timing: trial budgets, per-trial elapsed time,
// and session elapsed time are measured on its own monotonic clock, never
// taken from the presenter.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/parkerlabs/dilemma/internal/session"
	"github.com/parkerlabs/dilemma/internal/timeline"
)

// SignalKind distinguishes the terminal events a presenter can emit.
type SignalKind string

const (
	// SignalResponse carries a participant response payload.
	SignalResponse SignalKind = "response"
	// SignalGiveUp is the out-of-band give-up affordance on puzzle trials.
	// Its payload carries whatever was entered before giving up.
	SignalGiveUp SignalKind = "give_up"
	// SignalError reports a presenter failure mid-trial through Err.
	SignalError SignalKind = "error"
)

// Signal is one terminal event from a live trial.
type Signal struct {
	Kind    SignalKind
	Payload session.RawResponse
	Err     error
}

// LiveTrial is a trial being presented. The engine reads exactly one signal
// from Signals and then calls Close; presenters must tolerate Close racing
// with their own sends, so the signal channel should be buffered.
type LiveTrial interface {
	// Signals delivers terminal events. Only the first one read counts.
	Signals() <-chan Signal
	// Close tears the presentation down and disarms further input.
	Close() error
}

// Presenter renders trials and collects responses. Implementations include
// the terminal UI, the browser bridge, and the scripted presenter.
type Presenter interface {
	Begin(ctx context.Context, trial *timeline.TrialSpec) (LiveTrial, error)
}

// Scorer annotates records as they are appended and computes session
// aggregates once the timeline ends.
type Scorer interface {
	// ScoreRecord derives per-record annotations. Called exactly once per
	// record, immediately after it is appended.
	ScoreRecord(st *session.State, trial *timeline.TrialSpec, rec *session.ResponseRecord)
	// Finalize computes session-level aggregates. Called exactly once,
	// whether the session completed or aborted.
	Finalize(st *session.State)
}

// NopScorer performs no scoring.
type NopScorer struct{}

func (NopScorer) ScoreRecord(*session.State, *timeline.TrialSpec, *session.ResponseRecord) {}
func (NopScorer) Finalize(*session.State)                                                  {}

// Result summarizes one engine run.
type Result struct {
	// Aborted is true when the session ended early through an abort key
	// (consent declined). The records collected so far are still scored
	// and finalized.
	Aborted bool
	// Completed is the number of trials that resolved.
	Completed int
}

// Engine runs a timeline to completion.
type Engine struct {
	presenter Presenter
	scorer    Scorer
	events    session.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithScorer installs the scoring hooks.
func WithScorer(s Scorer) Option {
	return func(e *Engine) { e.scorer = s }
}

// WithEventLogger installs a session event logger.
func WithEventLogger(l session.Logger) Option {
	return func(e *Engine) { e.events = l }
}

// New creates an Engine around a presenter.
func New(p Presenter, opts ...Option) *Engine {
	e := &Engine{
		presenter: p,
		scorer:    NopScorer{},
		events:    session.NopLogger{},
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Run executes every trial in order, appending one record per resolved trial
// to st. Finalization (scoring aggregates and the session end stamp) runs on
// every exit path except a presenter or context error.
func (e *Engine) Run(ctx context.Context, st *session.State, trials []*timeline.TrialSpec) (*Result, error) {
	start := time.Now()
	res := &Result{}

	e.logEvent(session.EventSessionStart,
		session.SessionStartData(st.ParticipantID, "", len(trials)))

	for i, trial := range trials {
		e.logEvent(session.EventTrialStart, session.TrialStartData(trial.Tag, i, len(trials)))

		rec, err := e.runTrial(ctx, trial, i, start)
		if err != nil {
			e.logEvent(session.EventError, session.ErrorData(err.Error()))
			return nil, err
		}

		st.Append(rec)
		e.scorer.ScoreRecord(st, trial, rec)
		res.Completed++

		e.logEvent(session.EventTrialResolved,
			session.TrialResolvedData(trial.Tag, i, rec.Reason, rec.ElapsedMS))
		slog.Debug("trial resolved",
			"tag", trial.Tag, "index", i, "reason", rec.Reason, "elapsed_ms", rec.ElapsedMS)

		if trial.AbortKey != "" &&
			rec.Payload.Kind == session.ResponseChoice &&
			rec.Payload.Choice == trial.AbortKey {
			res.Aborted = true
			e.logEvent(session.EventSessionAborted, map[string]any{"trial_tag": trial.Tag})
			slog.Debug("session aborted", "tag", trial.Tag)
			break
		}
	}

	e.scorer.Finalize(st)
	st.Finish()
	if !res.Aborted {
		e.logEvent(session.EventSessionEnd, map[string]any{"trials": res.Completed})
	}
	return res, nil
}

// runTrial presents one trial and waits for the first terminal event: a
// presenter signal, the budget lapsing, or context cancellation. Whichever
// arrives first wins; everything after it is ignored.
func (e *Engine) runTrial(ctx context.Context, trial *timeline.TrialSpec, index int, sessionStart time.Time) (*session.ResponseRecord, error) {
	live, err := e.presenter.Begin(ctx, trial)
	if err != nil {
		return nil, fmt.Errorf("presenting trial %q: %w", trial.Tag, err)
	}
	defer live.Close()

	trialStart := time.Now()

	var budget <-chan time.Time
	if trial.Budget > 0 {
		timer := time.NewTimer(trial.Budget)
		defer timer.Stop()
		budget = timer.C
	}

	var payload session.RawResponse
	var reason session.CompletionReason

	select {
	case sig := <-live.Signals():
		if sig.Kind == SignalError {
			return nil, fmt.Errorf("presenting trial %q: %w", trial.Tag, sig.Err)
		}
		payload = sig.Payload
		reason = session.ReasonResponse
		if sig.Kind == SignalGiveUp {
			reason = session.ReasonGaveUp
		}
	case <-budget:
		payload = session.NoResponse()
		reason = session.ReasonTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	return &session.ResponseRecord{
		TrialTag:         trial.Tag,
		TrialIndex:       index,
		Payload:          payload,
		Reason:           reason,
		ElapsedMS:        time.Since(trialStart).Milliseconds(),
		SessionElapsedMS: time.Since(sessionStart).Milliseconds(),
		Meta:             trial.Meta,
	}, nil
}

func (e *Engine) logEvent(t session.EventType, data map[string]any) {
	if err := e.events.Log(session.NewEvent(t, data)); err != nil {
		slog.Debug("session event log write failed", "error", err)
	}
}
