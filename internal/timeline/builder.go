package timeline

import (
	"fmt"
	"math/rand/v2"

	"github.com/parkerlabs/dilemma/internal/environ"
	"github.com/parkerlabs/dilemma/internal/study"
)

// Builder assembles the session timeline. The output is deterministic given
// the two pool permutations, which are drawn fresh per session.
type Builder struct {
	cfg    *study.Config
	client environ.Client
	perm   func(n int) []int
}

// Option configures a Builder.
type Option func(*Builder)

// WithPerm overrides the permutation source. Tests use this to pin the
// shuffle; production uses a uniform without-replacement permutation.
func WithPerm(perm func(n int) []int) Option {
	return func(b *Builder) {
		b.perm = perm
	}
}

// New creates a Builder for the given study and probed client environment.
func New(cfg *study.Config, client environ.Client, opts ...Option) *Builder {
	b := &Builder{
		cfg:    cfg,
		client: client,
		perm:   rand.Perm,
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Build produces the full ordered trial sequence.
func (b *Builder) Build() ([]*TrialSpec, error) {
	cfg := b.cfg
	var trials []*TrialSpec

	// Device gate, only when mobile access is blocked and the probed device
	// is mobile (skip-unless-blocking).
	if !cfg.AllowMobile && b.client.Mobile {
		trials = append(trials, &TrialSpec{
			Tag:      TagDeviceGate,
			Kind:     KindInstruction,
			Stimulus: cfg.Instructions.DeviceGate,
			Choices:  []Choice{{Key: "ack", Label: "Understood"}},
		})
	}

	// Consent gate. Declining aborts the remaining timeline outright.
	trials = append(trials, &TrialSpec{
		Tag:      TagConsent,
		Kind:     KindChoice,
		Stimulus: cfg.Consent.Body,
		Choices: []Choice{
			{Key: KeyAgree, Label: cfg.Consent.AgreeLabel},
			{Key: KeyDecline, Label: cfg.Consent.DeclineLabel},
		},
		AbortKey: KeyDecline,
	})

	if len(cfg.Demographics) > 0 {
		fields := make([]Field, 0, len(cfg.Demographics))
		for _, f := range cfg.Demographics {
			fields = append(fields, Field{Name: f.Name, Prompt: f.Prompt, Required: f.Required})
		}
		trials = append(trials, &TrialSpec{
			Tag:    TagDemographics,
			Kind:   KindSurvey,
			Fields: fields,
		})
	}

	trials = append(trials, scaleTrial(&cfg.ConflictScale))

	trials = append(trials, &TrialSpec{
		Tag:      TagTaskInstructions,
		Kind:     KindInstruction,
		Stimulus: cfg.Instructions.Task,
		Choices:  []Choice{{Key: "start", Label: "Start"}},
	})

	// Trade-off block: each pair yields a timed binary choice immediately
	// followed by the two-item decision probe for the same item.
	for _, idx := range b.perm(len(cfg.Tradeoffs.Items)) {
		item := cfg.Tradeoffs.Items[idx]
		trials = append(trials,
			&TrialSpec{
				Tag:      TagDecisionChoice,
				Kind:     KindChoice,
				Stimulus: fmt.Sprintf("### %s\n\nChoose between the two options.", item.ID),
				Choices: []Choice{
					{Key: KeyOptionA, Label: item.OptionA},
					{Key: KeyOptionB, Label: item.OptionB},
				},
				Budget: cfg.ChoiceBudget(),
				Meta: map[string]any{
					"item_id":  item.ID,
					"option_a": item.OptionA,
					"option_b": item.OptionB,
				},
			},
			&TrialSpec{
				Tag:      TagDecisionPost,
				Kind:     KindSurvey,
				Stimulus: fmt.Sprintf("### %s — about the choice you just made", item.ID),
				Fields: []Field{
					{Name: item.ID + "_sure", Prompt: cfg.DecisionProbe.SurePrompt, Required: true, Labels: cfg.LikertLabels},
					{Name: item.ID + "_switch", Prompt: cfg.DecisionProbe.SwitchPrompt, Required: true, Labels: cfg.LikertLabels},
				},
				Meta: map[string]any{"item_id": item.ID},
			},
		)
	}

	trials = append(trials, scaleTrial(&cfg.FatigueScale))

	trials = append(trials, &TrialSpec{
		Tag:      TagPersistIntro,
		Kind:     KindInstruction,
		Stimulus: cfg.Instructions.Persistence,
		Choices:  []Choice{{Key: "start", Label: "Start"}},
	})

	// Persistence block: free-text anagram trials with the give-up
	// affordance, independently shuffled.
	for _, idx := range b.perm(len(cfg.Anagrams.Items)) {
		item := cfg.Anagrams.Items[idx]
		meta := map[string]any{
			"anagram_id": item.ID,
			"letters":    item.Letters,
			"solvable":   item.Solvable,
		}
		if item.Solvable {
			meta["answer"] = item.Answer
		}
		trials = append(trials, &TrialSpec{
			Tag:      TagPersistTrial,
			Kind:     KindPuzzle,
			Stimulus: fmt.Sprintf("### Unscramble (%s)\n\nMake an English word from: **%s**", item.ID, item.Letters),
			Fields:   []Field{{Name: FieldAnswer, Prompt: "Your answer:"}},
			GiveUp:   true,
			Meta:     meta,
		})
	}

	preFinish := cfg.Instructions.PreFinish
	if preFinish == "" {
		preFinish = "### Almost done\n\nPress continue to finish."
	}
	trials = append(trials, &TrialSpec{
		Tag:      TagPreFinish,
		Kind:     KindInstruction,
		Stimulus: preFinish,
		Choices:  []Choice{{Key: "finish", Label: "Continue"}},
	})

	for _, t := range trials {
		if err := t.Validate(); err != nil {
			return nil, fmt.Errorf("timeline: %w", err)
		}
	}
	return trials, nil
}

// scaleTrial builds one survey trial covering every item of a scale, tagged
// with the scale name.
func scaleTrial(scale *study.Scale) *TrialSpec {
	fields := make([]Field, 0, len(scale.Items))
	for _, item := range scale.Items {
		fields = append(fields, Field{
			Name:     item.Name,
			Prompt:   item.Prompt,
			Required: true,
			Labels:   scale.Labels,
		})
	}
	return &TrialSpec{
		Tag:      scale.Name,
		Kind:     KindSurvey,
		Stimulus: scale.Preamble,
		Fields:   fields,
		Meta:     map[string]any{"scale": scale.Name},
	}
}
