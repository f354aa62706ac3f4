// Package terminal presents trials as interactive huh forms on a TTY.
// Non-TTY input (piped, CI) falls back to huh's accessible mode.
package terminal

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/mattn/go-runewidth"
	"golang.org/x/term"

	"github.com/parkerlabs/dilemma/internal/engine"
	"github.com/parkerlabs/dilemma/internal/session"
	"github.com/parkerlabs/dilemma/internal/timeline"
)

// Presenter renders trials in the terminal.
type Presenter struct {
	in         io.Reader
	out        io.Writer
	accessible bool
}

// Option configures a Presenter.
type Option func(*Presenter)

// WithIO overrides the input and output streams, mainly for tests.
func WithIO(in io.Reader, out io.Writer) Option {
	return func(p *Presenter) {
		p.in = in
		p.out = out
	}
}

// WithAccessible forces huh's accessible (line-based) mode.
func WithAccessible(on bool) Option {
	return func(p *Presenter) { p.accessible = on }
}

// New creates a terminal presenter on stdin/stdout. Accessible mode is
// chosen automatically when stdin is not a terminal.
func New(opts ...Option) *Presenter {
	p := &Presenter{
		in:  os.Stdin,
		out: os.Stdout,
	}
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		p.accessible = true
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Begin implements engine.Presenter. The form runs in its own goroutine and
// reports through the signal channel; Close cancels the form, so engine-side
// timeouts leave no reader blocked on the terminal.
func (p *Presenter) Begin(ctx context.Context, trial *timeline.TrialSpec) (engine.LiveTrial, error) {
	printStimulus(p.out, trial)

	form, collect, err := p.buildForm(trial)
	if err != nil {
		return nil, err
	}

	formCtx, cancel := context.WithCancel(ctx)
	lt := &liveForm{
		ch:     make(chan engine.Signal, 1),
		cancel: cancel,
	}

	go func() {
		if err := form.RunWithContext(formCtx); err != nil {
			if formCtx.Err() == nil {
				lt.ch <- engine.Signal{Kind: engine.SignalError, Err: err}
			}
			return
		}
		lt.ch <- collect()
	}()

	return lt, nil
}

type liveForm struct {
	ch     chan engine.Signal
	cancel context.CancelFunc
}

func (l *liveForm) Signals() <-chan engine.Signal { return l.ch }

func (l *liveForm) Close() error {
	l.cancel()
	return nil
}

// buildForm assembles the huh form for a trial plus the collector that turns
// the bound values into a terminal signal once the form completes.
func (p *Presenter) buildForm(trial *timeline.TrialSpec) (*huh.Form, func() engine.Signal, error) {
	var fields []huh.Field
	var collect func() engine.Signal

	switch trial.Kind {
	case timeline.KindInstruction, timeline.KindChoice:
		choice := new(string)
		fields = append(fields, choiceSelect(trial, choice))
		collect = func() engine.Signal {
			return engine.Signal{Kind: engine.SignalResponse, Payload: session.ChoiceResponse(*choice)}
		}

	case timeline.KindSurvey:
		values := make(map[string]*string, len(trial.Fields))
		for _, f := range trial.Fields {
			v := new(string)
			values[f.Name] = v
			fields = append(fields, surveyField(f, v))
		}
		collect = func() engine.Signal {
			return engine.Signal{Kind: engine.SignalResponse, Payload: fieldsPayload(values)}
		}

	case timeline.KindPuzzle:
		values := make(map[string]*string, len(trial.Fields))
		for _, f := range trial.Fields {
			v := new(string)
			values[f.Name] = v
			fields = append(fields, huh.NewInput().Title(f.Prompt).Value(v))
		}
		submit := new(bool)
		fields = append(fields, huh.NewConfirm().
			Title("Submit this answer?").
			Affirmative("Submit").
			Negative("Give up").
			Value(submit))
		collect = func() engine.Signal {
			kind := engine.SignalResponse
			if !*submit {
				kind = engine.SignalGiveUp
			}
			return engine.Signal{Kind: kind, Payload: fieldsPayload(values)}
		}

	default:
		return nil, nil, fmt.Errorf("terminal: unsupported trial kind %q", trial.Kind)
	}

	form := huh.NewForm(huh.NewGroup(fields...)).
		WithInput(p.in).
		WithOutput(p.out)
	if p.accessible {
		form = form.WithAccessible(true)
	}
	return form, collect, nil
}

// choiceSelect renders the discrete choice set. Timed trials carry the
// budget in the title so participants know the clock is running.
func choiceSelect(trial *timeline.TrialSpec, value *string) huh.Field {
	opts := make([]huh.Option[string], 0, len(trial.Choices))
	for _, c := range trial.Choices {
		opts = append(opts, huh.NewOption(c.Label, c.Key))
	}
	title := "Your choice"
	if trial.Budget > 0 {
		title = fmt.Sprintf("Your choice (%s limit)", formatBudget(trial.Budget))
	}
	return huh.NewSelect[string]().
		Title(title).
		Options(opts...).
		Value(value)
}

// surveyField maps a timeline field onto the right huh input. Rating items
// bind the zero-based label index as a string; free text binds verbatim.
func surveyField(f timeline.Field, value *string) huh.Field {
	if f.Labels != nil {
		opts := make([]huh.Option[string], 0, len(f.Labels))
		for i, label := range f.Labels {
			opts = append(opts, huh.NewOption(label, strconv.Itoa(i)))
		}
		return huh.NewSelect[string]().
			Title(f.Prompt).
			Options(opts...).
			Value(value)
	}

	in := huh.NewInput().Title(f.Prompt).Value(value)
	if f.Required {
		in = in.Validate(func(s string) error {
			if strings.TrimSpace(s) == "" {
				return fmt.Errorf("an answer is required")
			}
			return nil
		})
	}
	return in
}

func fieldsPayload(values map[string]*string) session.RawResponse {
	fields := make(map[string]string, len(values))
	for name, v := range values {
		fields[name] = *v
	}
	return session.FieldsResponse(fields)
}

// printStimulus writes the trial stimulus above the form, framed by a rule
// sized to its widest line.
func printStimulus(w io.Writer, trial *timeline.TrialSpec) {
	text := plainStimulus(trial.Stimulus)
	if text == "" {
		return
	}
	width := 0
	for _, line := range strings.Split(text, "\n") {
		if lw := runewidth.StringWidth(line); lw > width {
			width = lw
		}
	}
	rule := strings.Repeat("─", width)
	fmt.Fprintf(w, "\n%s\n%s\n%s\n\n", rule, text, rule)
}

// plainStimulus strips the light markdown used in stimulus bodies down to
// terminal-friendly text.
func plainStimulus(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	for i, line := range lines {
		line = strings.TrimLeft(line, "# ")
		line = strings.ReplaceAll(line, "**", "")
		lines[i] = line
	}
	return strings.Join(lines, "\n")
}

func formatBudget(d time.Duration) string {
	if d%time.Second == 0 {
		return strconv.Itoa(int(d/time.Second)) + "s"
	}
	return d.String()
}
