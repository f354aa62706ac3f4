// Package study loads and validates the study configuration: metadata,
// delivery endpoints, instrument text, and the item pools the timeline is
// built from. The core treats all of it as opaque input; nothing in here is
// hard-coded study content.
package study

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Meta identifies the study in exported payloads.
type Meta struct {
	Name     string `yaml:"name" json:"study_name"`
	Version  string `yaml:"version" json:"version"`
	Timezone string `yaml:"timezone,omitempty" json:"timezone"`
}

// Upload configures the remote delivery targets. Both are optional and both
// are best-effort: the local backup never depends on either.
type Upload struct {
	URL  string      `yaml:"url,omitempty"`
	Blob *BlobTarget `yaml:"blob,omitempty"`
}

// BlobTarget configures an Azure Blob container as a secondary delivery
// target. Credentials come from the default credential chain.
type BlobTarget struct {
	AccountURL string `yaml:"account_url"`
	Container  string `yaml:"container"`
}

// Timing holds trial time budgets.
type Timing struct {
	ChoiceBudgetMS int `yaml:"choice_budget_ms,omitempty"`
}

// Consent is the consent gate text. Declining aborts the session.
type Consent struct {
	Body         string `yaml:"body"`
	AgreeLabel   string `yaml:"agree_label,omitempty"`
	DeclineLabel string `yaml:"decline_label,omitempty"`
}

// Field is one free-text survey field.
type Field struct {
	Name     string `yaml:"name"`
	Prompt   string `yaml:"prompt"`
	Required bool   `yaml:"required,omitempty"`
}

// ScaleItem is one rating item within a scale instrument.
type ScaleItem struct {
	Name   string `yaml:"name"`
	Prompt string `yaml:"prompt"`
}

// Scale is a Likert instrument: a fixed label ordering and a set of items.
// Label index 0 maps to scale value 1.
type Scale struct {
	Name     string      `yaml:"name"`
	Preamble string      `yaml:"preamble,omitempty"`
	Labels   []string    `yaml:"labels,omitempty"`
	Items    []ScaleItem `yaml:"items"`
}

// DecisionProbe configures the two-item rating that follows every
// trade-off choice.
type DecisionProbe struct {
	SurePrompt   string `yaml:"sure_prompt"`
	SwitchPrompt string `yaml:"switch_prompt"`
}

// Grouping maps a scale mean to a categorical label. The threshold is
// inclusive: mean >= threshold yields the high label.
type Grouping struct {
	Threshold float64 `yaml:"threshold,omitempty"`
	HighLabel string  `yaml:"high_label,omitempty"`
	LowLabel  string  `yaml:"low_label,omitempty"`
}

// Instructions holds the markdown instruction bodies shown between blocks.
type Instructions struct {
	DeviceGate  string `yaml:"device_gate,omitempty"`
	Task        string `yaml:"task"`
	Persistence string `yaml:"persistence"`
	PreFinish   string `yaml:"pre_finish,omitempty"`
}

// Tradeoff is one trade-off pair presented as a timed binary choice.
type Tradeoff struct {
	ID      string `yaml:"id"`
	OptionA string `yaml:"option_a"`
	OptionB string `yaml:"option_b"`
}

// Anagram is one persistence puzzle. Solvable entries carry the expected
// answer; unsolvable entries have none by construction.
type Anagram struct {
	ID       string `yaml:"id"`
	Letters  string `yaml:"letters"`
	Solvable bool   `yaml:"solvable"`
	Answer   string `yaml:"answer,omitempty"`
}

// TradeoffPool is either an inline item list or a CSV reference.
type TradeoffPool struct {
	CSV   string     `yaml:"csv,omitempty"`
	Items []Tradeoff `yaml:"items,omitempty"`
}

// AnagramPool is either an inline item list or a CSV reference.
type AnagramPool struct {
	CSV   string    `yaml:"csv,omitempty"`
	Items []Anagram `yaml:"items,omitempty"`
}

// Config is the full study configuration.
type Config struct {
	Meta          Meta          `yaml:"meta"`
	AllowMobile   bool          `yaml:"allow_mobile"`
	Upload        Upload        `yaml:"upload,omitempty"`
	Timing        Timing        `yaml:"timing,omitempty"`
	Consent       Consent       `yaml:"consent"`
	Demographics  []Field       `yaml:"demographics,omitempty"`
	LikertLabels  []string      `yaml:"likert_labels"`
	ConflictScale Scale         `yaml:"conflict_scale"`
	FatigueScale  Scale         `yaml:"fatigue_scale"`
	DecisionProbe DecisionProbe `yaml:"decision_probe"`
	Grouping      Grouping      `yaml:"grouping,omitempty"`
	Instructions  Instructions  `yaml:"instructions"`
	Tradeoffs     TradeoffPool  `yaml:"tradeoffs"`
	Anagrams      AnagramPool   `yaml:"anagrams"`
}

// Default values applied by Load.
const (
	DefaultChoiceBudgetMS = 20000
	DefaultThreshold      = 4.5
	DefaultHighLabel      = "high_conflict"
	DefaultLowLabel       = "low_conflict"
)

// Load reads a study.yaml, validates it against the embedded schema,
// resolves CSV-backed item pools relative to the config file, and applies
// defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading study config: %w", err)
	}

	if errs := ValidateBytes(data); len(errs) > 0 {
		return nil, fmt.Errorf("study config %s failed schema validation:\n  %s",
			path, strings.Join(errs, "\n  "))
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing study config: %w", err)
	}

	baseDir := filepath.Dir(path)
	if err := cfg.resolvePools(baseDir); err != nil {
		return nil, err
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Timing.ChoiceBudgetMS == 0 {
		c.Timing.ChoiceBudgetMS = DefaultChoiceBudgetMS
	}
	if c.Grouping.Threshold == 0 {
		c.Grouping.Threshold = DefaultThreshold
	}
	if c.Grouping.HighLabel == "" {
		c.Grouping.HighLabel = DefaultHighLabel
	}
	if c.Grouping.LowLabel == "" {
		c.Grouping.LowLabel = DefaultLowLabel
	}
	if c.Consent.AgreeLabel == "" {
		c.Consent.AgreeLabel = "I agree to participate"
	}
	if c.Consent.DeclineLabel == "" {
		c.Consent.DeclineLabel = "I do not agree"
	}
	if c.Meta.Timezone == "" {
		c.Meta.Timezone = time.Now().Location().String()
	}
	if c.ConflictScale.Labels == nil {
		c.ConflictScale.Labels = c.LikertLabels
	}
	if c.FatigueScale.Labels == nil {
		c.FatigueScale.Labels = c.LikertLabels
	}
}

func (c *Config) resolvePools(baseDir string) error {
	if c.Tradeoffs.CSV != "" {
		items, err := LoadTradeoffsCSV(resolvePath(baseDir, c.Tradeoffs.CSV))
		if err != nil {
			return err
		}
		c.Tradeoffs.Items = items
	}
	if c.Anagrams.CSV != "" {
		items, err := LoadAnagramsCSV(resolvePath(baseDir, c.Anagrams.CSV))
		if err != nil {
			return err
		}
		c.Anagrams.Items = items
	}
	return nil
}

func resolvePath(baseDir, p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(baseDir, p)
}

// Validate checks integrity constraints the schema cannot express.
func (c *Config) Validate() error {
	if c.Meta.Name == "" {
		return fmt.Errorf("meta.name is required")
	}
	if c.Timing.ChoiceBudgetMS < 0 {
		return fmt.Errorf("timing.choice_budget_ms must not be negative, got %d", c.Timing.ChoiceBudgetMS)
	}
	if len(c.LikertLabels) < 2 {
		return fmt.Errorf("likert_labels needs at least 2 entries, got %d", len(c.LikertLabels))
	}

	for _, scale := range []*Scale{&c.ConflictScale, &c.FatigueScale} {
		if scale.Name == "" {
			return fmt.Errorf("scale name is required")
		}
		if len(scale.Items) == 0 {
			return fmt.Errorf("scale %q has no items", scale.Name)
		}
		if len(scale.Labels) < 2 {
			return fmt.Errorf("scale %q needs at least 2 labels", scale.Name)
		}
	}

	if len(c.Tradeoffs.Items) == 0 {
		return fmt.Errorf("tradeoffs pool is empty")
	}
	seen := make(map[string]bool, len(c.Tradeoffs.Items))
	for _, t := range c.Tradeoffs.Items {
		if t.ID == "" || t.OptionA == "" || t.OptionB == "" {
			return fmt.Errorf("tradeoff %q is missing id or option text", t.ID)
		}
		if seen[t.ID] {
			return fmt.Errorf("duplicate tradeoff id %q", t.ID)
		}
		seen[t.ID] = true
	}

	if len(c.Anagrams.Items) == 0 {
		return fmt.Errorf("anagrams pool is empty")
	}
	seen = make(map[string]bool, len(c.Anagrams.Items))
	for _, a := range c.Anagrams.Items {
		if a.ID == "" || a.Letters == "" {
			return fmt.Errorf("anagram %q is missing id or letters", a.ID)
		}
		if a.Solvable && a.Answer == "" {
			return fmt.Errorf("anagram %q is marked solvable but has no answer", a.ID)
		}
		if seen[a.ID] {
			return fmt.Errorf("duplicate anagram id %q", a.ID)
		}
		seen[a.ID] = true
	}

	if c.Upload.Blob != nil {
		if c.Upload.Blob.AccountURL == "" || c.Upload.Blob.Container == "" {
			return fmt.Errorf("upload.blob requires both account_url and container")
		}
	}

	return nil
}

// ChoiceBudget returns the per-trial time budget for decision trials.
func (c *Config) ChoiceBudget() time.Duration {
	return time.Duration(c.Timing.ChoiceBudgetMS) * time.Millisecond
}
