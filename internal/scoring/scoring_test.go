package scoring

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/parkerlabs/dilemma/internal/environ"
	"github.com/parkerlabs/dilemma/internal/session"
	"github.com/parkerlabs/dilemma/internal/study"
	"github.com/parkerlabs/dilemma/internal/timeline"
)

func testConfig() *study.Config {
	labels := []string{"1", "2", "3", "4", "5", "6", "7"}
	return &study.Config{
		LikertLabels: labels,
		ConflictScale: study.Scale{
			Name:   "vcp",
			Labels: labels,
			Items: []study.ScaleItem{
				{Name: "vcp_01"},
				{Name: "vcp_02"},
			},
		},
		FatigueScale: study.Scale{
			Name:   "fatigue",
			Labels: labels,
			Items:  []study.ScaleItem{{Name: "fatigue_01"}},
		},
		Grouping: study.Grouping{
			Threshold: 4.5,
			HighLabel: "high_conflict",
			LowLabel:  "low_conflict",
		},
	}
}

func scaleTrial(name string) *timeline.TrialSpec {
	return &timeline.TrialSpec{Tag: name, Kind: timeline.KindSurvey}
}

func TestScaleMeanAndGrouping(t *testing.T) {
	tests := []struct {
		name      string
		fields    map[string]string
		wantMean  float64
		wantGroup string
	}{
		// Index strings are zero-based; scale values are index+1.
		{"low", map[string]string{"vcp_01": "0", "vcp_02": "2"}, 2.0, "low_conflict"},
		{"boundary_is_high", map[string]string{"vcp_01": "3", "vcp_02": "4"}, 4.5, "high_conflict"},
		{"high", map[string]string{"vcp_01": "6", "vcp_02": "6"}, 7.0, "high_conflict"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(testConfig())
			st := session.NewState(environ.Client{})
			rec := &session.ResponseRecord{
				TrialTag: "vcp",
				Payload:  session.FieldsResponse(tt.fields),
				Reason:   session.ReasonResponse,
			}
			st.Append(rec)
			s.ScoreRecord(st, scaleTrial("vcp"), rec)

			mean, ok := st.Property("vcp_mean")
			require.True(t, ok)
			require.InDelta(t, tt.wantMean, mean.(float64), 1e-9)

			group, ok := st.Property("vcp_group")
			require.True(t, ok)
			require.Equal(t, tt.wantGroup, group)

			require.Equal(t, 1, rec.Derived["vcp_01_1to7"])
		})
	}
}

func TestFatigueScaleHasNoGrouping(t *testing.T) {
	s := New(testConfig())
	st := session.NewState(environ.Client{})
	rec := &session.ResponseRecord{
		TrialTag: "fatigue",
		Payload:  session.FieldsResponse(map[string]string{"fatigue_01": "3"}),
	}
	s.ScoreRecord(st, scaleTrial("fatigue"), rec)

	mean, ok := st.Property("fatigue_mean")
	require.True(t, ok)
	require.InDelta(t, 4.0, mean.(float64), 1e-9)

	_, ok = st.Property("fatigue_group")
	require.False(t, ok)
}

func TestScaleMalformedItemsSkipped(t *testing.T) {
	s := New(testConfig())
	st := session.NewState(environ.Client{})
	rec := &session.ResponseRecord{
		TrialTag: "vcp",
		Payload:  session.FieldsResponse(map[string]string{"vcp_01": "nope", "vcp_02": "9"}),
	}
	s.ScoreRecord(st, scaleTrial("vcp"), rec)

	// No valid item means no mean at all, not a zero mean.
	_, ok := st.Property("vcp_mean")
	require.False(t, ok)
}

func TestChoiceAnnotation(t *testing.T) {
	trial := &timeline.TrialSpec{Tag: timeline.TagDecisionChoice, Kind: timeline.KindChoice}

	tests := []struct {
		name       string
		payload    session.RawResponse
		reason     session.CompletionReason
		wantChoice string
		wantKey    any
	}{
		{"option_a", session.ChoiceResponse("a"), session.ReasonResponse, ChoiceA, "a"},
		{"option_b", session.ChoiceResponse("b"), session.ReasonResponse, ChoiceB, "b"},
		{"timeout", session.NoResponse(), session.ReasonTimeout, ChoiceTimeout, nil},
		{"unknown_key", session.ChoiceResponse("x"), session.ReasonResponse, ChoiceTimeout, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(testConfig())
			st := session.NewState(environ.Client{})
			rec := &session.ResponseRecord{
				TrialTag: trial.Tag,
				Payload:  tt.payload,
				Reason:   tt.reason,
			}
			s.ScoreRecord(st, trial, rec)

			require.Equal(t, tt.wantChoice, rec.Derived[KeyChoice])
			require.Equal(t, tt.wantKey, rec.Derived[KeyChoiceKey])
			require.Contains(t, rec.Derived, KeyChoiceKey)
		})
	}
}

func TestProbeRatings(t *testing.T) {
	s := New(testConfig())
	st := session.NewState(environ.Client{})
	trial := &timeline.TrialSpec{
		Tag:  timeline.TagDecisionPost,
		Kind: timeline.KindSurvey,
		Meta: map[string]any{"item_id": "T07"},
	}
	rec := &session.ResponseRecord{
		TrialTag: trial.Tag,
		Payload: session.FieldsResponse(map[string]string{
			"T07_sure":   "6",
			"T07_switch": "0",
		}),
	}
	s.ScoreRecord(st, trial, rec)

	require.Equal(t, 7, rec.Derived[KeySure])
	require.Equal(t, 1, rec.Derived[KeySwitch])
}

func puzzleTrial(solvable bool, answer string) *timeline.TrialSpec {
	meta := map[string]any{"anagram_id": "A01", "solvable": solvable}
	if solvable {
		meta["answer"] = answer
	}
	return &timeline.TrialSpec{
		Tag:    timeline.TagPersistTrial,
		Kind:   timeline.KindPuzzle,
		GiveUp: true,
		Meta:   meta,
	}
}

func TestPuzzleScoring(t *testing.T) {
	tests := []struct {
		name        string
		trial       *timeline.TrialSpec
		answer      string
		reason      session.CompletionReason
		wantCorrect any
		wantGaveUp  bool
	}{
		{"correct", puzzleTrial(true, "TAPER"), "taper", session.ReasonResponse, true, false},
		{"correct_with_spaces", puzzleTrial(true, "TAPER"), "  Taper ", session.ReasonResponse, true, false},
		{"wrong", puzzleTrial(true, "TAPER"), "PRATE", session.ReasonResponse, false, false},
		{"empty_answer", puzzleTrial(true, "TAPER"), "", session.ReasonResponse, nil, false},
		{"unsolvable_is_na", puzzleTrial(false, ""), "ZQPTN", session.ReasonResponse, nil, false},
		{"gave_up", puzzleTrial(true, "TAPER"), "TAP", session.ReasonGaveUp, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(testConfig())
			st := session.NewState(environ.Client{})
			rec := &session.ResponseRecord{
				TrialTag: tt.trial.Tag,
				Payload:  session.FieldsResponse(map[string]string{timeline.FieldAnswer: tt.answer}),
				Reason:   tt.reason,
			}
			s.ScoreRecord(st, tt.trial, rec)

			require.Equal(t, tt.wantCorrect, rec.Derived[KeyCorrect])
			require.Contains(t, rec.Derived, KeyCorrect)
			require.Equal(t, tt.wantGaveUp, rec.Derived[KeyGaveUp])
		})
	}
}

func TestFinalizePersistAggregates(t *testing.T) {
	s := New(testConfig())
	st := session.NewState(environ.Client{})

	st.Append(&session.ResponseRecord{
		TrialTag:         timeline.TagPersistTrial,
		Reason:           session.ReasonResponse,
		ElapsedMS:        4000,
		SessionElapsedMS: 100000,
	})
	st.Append(&session.ResponseRecord{
		TrialTag:         timeline.TagPersistTrial,
		Reason:           session.ReasonGaveUp,
		ElapsedMS:        9000,
		SessionElapsedMS: 109000,
	})
	st.Append(&session.ResponseRecord{
		TrialTag:         timeline.TagPersistTrial,
		Reason:           session.ReasonGaveUp,
		ElapsedMS:        2500,
		SessionElapsedMS: 111500,
	})

	s.Finalize(st)

	giveup, ok := st.Property(PropGiveUpMS)
	require.True(t, ok)
	require.Equal(t, int64(11500), giveup)

	total, ok := st.Property(PropPersistTotal)
	require.True(t, ok)
	require.Equal(t, int64(11500), total)
}

func TestFinalizeSinglePersistTrial(t *testing.T) {
	s := New(testConfig())
	st := session.NewState(environ.Client{})
	st.Append(&session.ResponseRecord{
		TrialTag:         timeline.TagPersistTrial,
		Reason:           session.ReasonResponse,
		ElapsedMS:        4000,
		SessionElapsedMS: 100000,
	})

	s.Finalize(st)

	giveup, ok := st.Property(PropGiveUpMS)
	require.True(t, ok)
	require.Equal(t, int64(0), giveup)

	// One resolved puzzle cannot bound the block duration.
	_, ok = st.Property(PropPersistTotal)
	require.False(t, ok)
}
