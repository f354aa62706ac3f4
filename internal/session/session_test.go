package session

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/parkerlabs/dilemma/internal/environ"
)

func TestStateIdentityImmutable(t *testing.T) {
	st := NewState(environ.Client{UserAgent: "test"})
	require.NotEmpty(t, st.ParticipantID)
	require.False(t, st.StartedAt.IsZero())

	other := NewState(environ.Client{UserAgent: "test"})
	require.NotEqual(t, st.ParticipantID, other.ParticipantID)
}

func TestStatePropertiesWriteOnce(t *testing.T) {
	st := NewStateWithID("p1", environ.Client{})

	require.True(t, st.SetProperty("vcp_mean", 4.5))
	require.False(t, st.SetProperty("vcp_mean", 6.0), "second write must be rejected")

	v, ok := st.Property("vcp_mean")
	require.True(t, ok)
	require.Equal(t, 4.5, v)
}

func TestStateRecordsByTag(t *testing.T) {
	st := NewStateWithID("p1", environ.Client{})
	st.Append(&ResponseRecord{TrialTag: "persist_trial", TrialIndex: 0})
	st.Append(&ResponseRecord{TrialTag: "decision_choice", TrialIndex: 1})
	st.Append(&ResponseRecord{TrialTag: "persist_trial", TrialIndex: 2})

	got := st.RecordsByTag("persist_trial")
	require.Len(t, got, 2)
	require.Equal(t, 0, got[0].TrialIndex)
	require.Equal(t, 2, got[1].TrialIndex)
}

func TestStateFinishKeepsFirstStamp(t *testing.T) {
	st := NewStateWithID("p1", environ.Client{})
	st.Finish()
	first := st.EndedAt
	st.Finish()
	require.Equal(t, first, st.EndedAt)
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want RawResponse
	}{
		{"bare_string", "a", ChoiceResponse("a")},
		{"empty_string", "", FieldsResponse(nil)},
		{"choice_object", map[string]any{"choice": "b"}, ChoiceResponse("b")},
		{"field_map", map[string]any{"age": "23"}, FieldsResponse(map[string]string{"age": "23"})},
		{"weakly_typed_values", map[string]any{"age": 23}, FieldsResponse(map[string]string{"age": "23"})},
		{"nil", nil, FieldsResponse(nil)},
		{"malformed", []int{1, 2, 3}, FieldsResponse(nil)},
		{"passthrough", ChoiceResponse("a"), ChoiceResponse("a")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Normalize(tt.in)
			require.Equal(t, tt.want, got)
			if got.Kind == ResponseFields {
				require.NotNil(t, got.Fields, "fields payload must never be nil")
			}
		})
	}
}

func TestJSONLoggerWritesNDJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "events.jsonl")
	l, err := NewJSONLogger(path)
	require.NoError(t, err)

	require.NoError(t, l.Log(NewEvent(EventSessionStart, SessionStartData("p1", "Study", 10))))
	require.NoError(t, l.Log(NewEvent(EventTrialResolved, TrialResolvedData("consent", 0, ReasonResponse, 812))))
	require.NoError(t, l.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close() //nolint:errcheck

	var events []Event
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var ev Event
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &ev))
		events = append(events, ev)
	}
	require.NoError(t, scanner.Err())
	require.Len(t, events, 2)
	require.Equal(t, EventSessionStart, events[0].Type)
	require.Equal(t, "consent", events[1].Data["trial_tag"])
}
