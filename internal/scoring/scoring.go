// Package scoring derives analysis columns from raw response records and
// computes the session-level aggregates. All derivations are additive: raw
// payloads are never modified, and a nil derived value is the explicit
// "not applicable" marker, distinct from the key being absent.
package scoring

import (
	"strconv"
	"strings"

	"github.com/parkerlabs/dilemma/internal/metrics"
	"github.com/parkerlabs/dilemma/internal/session"
	"github.com/parkerlabs/dilemma/internal/study"
	"github.com/parkerlabs/dilemma/internal/timeline"
)

// Derived keys written onto records.
const (
	KeyChoice    = "choice"     // "A" | "B" | "NA_timeout"
	KeyChoiceKey = "choice_key" // raw response key, nil on timeout
	KeySure      = "sure_1to7"
	KeySwitch    = "switch_1to7"
	KeyAnswer    = "answer_norm"
	KeyCorrect   = "correct" // bool, nil when unsolvable or unanswered
	KeyGaveUp    = "gave_up"
)

// Choice annotations for trade-off records.
const (
	ChoiceA       = "A"
	ChoiceB       = "B"
	ChoiceTimeout = "NA_timeout"
)

// Session property keys written by Finalize.
const (
	PropGiveUpMS     = "persist_giveup_ms"
	PropPersistTotal = "persist_total_ms_est"
)

// Scorer implements the study's scoring rules against a loaded
// configuration.
type Scorer struct {
	cfg *study.Config
}

// New creates a Scorer for the given study.
func New(cfg *study.Config) *Scorer {
	return &Scorer{cfg: cfg}
}

// ScoreRecord annotates a single record in place. Malformed payloads degrade
// to absent annotations; scoring never fails a session.
func (s *Scorer) ScoreRecord(st *session.State, trial *timeline.TrialSpec, rec *session.ResponseRecord) {
	switch trial.Tag {
	case s.cfg.ConflictScale.Name:
		s.scoreScale(st, &s.cfg.ConflictScale, rec, true)
	case s.cfg.FatigueScale.Name:
		s.scoreScale(st, &s.cfg.FatigueScale, rec, false)
	case timeline.TagDecisionChoice:
		scoreChoice(rec)
	case timeline.TagDecisionPost:
		s.scoreProbe(trial, rec)
	case timeline.TagPersistTrial:
		scorePuzzle(trial, rec)
	}
}

// Finalize computes the persistence aggregates. persist_giveup_ms is the sum
// of time spent on trials that ended through the give-up affordance; the
// block total estimate needs at least two resolved puzzle trials.
func (s *Scorer) Finalize(st *session.State) {
	recs := st.RecordsByTag(timeline.TagPersistTrial)

	var givenUp []int64
	for _, r := range recs {
		if r.Reason == session.ReasonGaveUp {
			givenUp = append(givenUp, r.ElapsedMS)
		}
	}
	st.SetProperty(PropGiveUpMS, metrics.SumInt64(givenUp))

	if len(recs) >= 2 {
		first, last := recs[0], recs[len(recs)-1]
		st.SetProperty(PropPersistTotal, last.SessionElapsedMS-first.SessionElapsedMS)
	}
}

// scoreScale computes the scale mean from the record's rating items and
// stores it as a session property. The conflict scale additionally gets the
// threshold grouping label.
func (s *Scorer) scoreScale(st *session.State, scale *study.Scale, rec *session.ResponseRecord, grouped bool) {
	var values []float64
	for _, item := range scale.Items {
		raw, ok := rec.Payload.Fields[item.Name]
		if !ok {
			continue
		}
		v, ok := likertValue(raw, len(scale.Labels))
		if !ok {
			continue
		}
		rec.SetDerived(item.Name+"_1to"+strconv.Itoa(len(scale.Labels)), v)
		values = append(values, float64(v))
	}

	mean, ok := metrics.Mean(values)
	if !ok {
		return
	}
	st.SetProperty(scale.Name+"_mean", mean)

	if grouped {
		label := s.cfg.Grouping.LowLabel
		if mean >= s.cfg.Grouping.Threshold {
			label = s.cfg.Grouping.HighLabel
		}
		st.SetProperty(scale.Name+"_group", label)
	}
}

// scoreChoice maps the raw response key of a trade-off trial onto the A/B
// annotation, with the timeout sentinel for unresolved trials.
func scoreChoice(rec *session.ResponseRecord) {
	if rec.Reason == session.ReasonTimeout || rec.Payload.Kind != session.ResponseChoice {
		rec.SetDerived(KeyChoice, ChoiceTimeout)
		rec.SetDerived(KeyChoiceKey, nil)
		return
	}
	switch rec.Payload.Choice {
	case timeline.KeyOptionA:
		rec.SetDerived(KeyChoice, ChoiceA)
	case timeline.KeyOptionB:
		rec.SetDerived(KeyChoice, ChoiceB)
	default:
		rec.SetDerived(KeyChoice, ChoiceTimeout)
		rec.SetDerived(KeyChoiceKey, nil)
		return
	}
	rec.SetDerived(KeyChoiceKey, rec.Payload.Choice)
}

// scoreProbe converts the two decision-probe ratings to 1-based values.
func (s *Scorer) scoreProbe(trial *timeline.TrialSpec, rec *session.ResponseRecord) {
	itemID, _ := trial.Meta["item_id"].(string)
	if itemID == "" {
		return
	}
	n := len(s.cfg.LikertLabels)
	if v, ok := likertValue(rec.Payload.Fields[itemID+"_sure"], n); ok {
		rec.SetDerived(KeySure, v)
	}
	if v, ok := likertValue(rec.Payload.Fields[itemID+"_switch"], n); ok {
		rec.SetDerived(KeySwitch, v)
	}
}

// scorePuzzle normalizes the entered answer and grades it against the
// expected word. Unsolvable puzzles get the nil correctness marker: there is
// no right answer to be correct about.
func scorePuzzle(trial *timeline.TrialSpec, rec *session.ResponseRecord) {
	rec.SetDerived(KeyGaveUp, rec.Reason == session.ReasonGaveUp)

	answer := normalizeAnswer(rec.Payload.Fields[timeline.FieldAnswer])
	rec.SetDerived(KeyAnswer, answer)

	solvable, _ := trial.Meta["solvable"].(bool)
	if !solvable {
		rec.SetDerived(KeyCorrect, nil)
		return
	}
	if answer == "" {
		rec.SetDerived(KeyCorrect, nil)
		return
	}
	expected, _ := trial.Meta["answer"].(string)
	rec.SetDerived(KeyCorrect, answer == normalizeAnswer(expected))
}

func normalizeAnswer(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// likertValue converts a zero-based label index string to its 1-based scale
// value. Out-of-range or non-numeric input has no value.
func likertValue(raw string, labelCount int) (int, bool) {
	idx, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || idx < 0 || idx >= labelCount {
		return 0, false
	}
	return idx + 1, true
}
