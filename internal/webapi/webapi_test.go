package webapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/parkerlabs/dilemma/internal/engine"
	"github.com/parkerlabs/dilemma/internal/environ"
	"github.com/parkerlabs/dilemma/internal/session"
	"github.com/parkerlabs/dilemma/internal/study"
	"github.com/parkerlabs/dilemma/internal/timeline"
)

func testBridge(trialCount int) *Bridge {
	cfg := &study.Config{Meta: study.Meta{Name: "Test Study", Version: "v1"}}
	return NewBridge(cfg, "p-123", trialCount)
}

func consentTrial() *timeline.TrialSpec {
	return &timeline.TrialSpec{
		Tag:      timeline.TagConsent,
		Kind:     timeline.KindChoice,
		Stimulus: "### Consent\n\nPlease read **carefully**.",
		Choices: []timeline.Choice{
			{Key: timeline.KeyAgree, Label: "yes"},
			{Key: timeline.KeyDecline, Label: "no"},
		},
		AbortKey: timeline.KeyDecline,
	}
}

func puzzleTrial() *timeline.TrialSpec {
	return &timeline.TrialSpec{
		Tag:    timeline.TagPersistTrial,
		Kind:   timeline.KindPuzzle,
		Fields: []timeline.Field{{Name: timeline.FieldAnswer, Prompt: "Your answer:"}},
		GiveUp: true,
	}
}

// waitActive polls the bridge until the engine has a trial live.
func waitActive(t *testing.T, b *Bridge) *TrialView {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if resp := b.Trial(); resp.State == StateActive {
			return resp.Trial
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("no trial became active")
	return nil
}

func TestBridgeDrivesEngine(t *testing.T) {
	b := testBridge(2)
	st := session.NewState(environ.Client{})
	e := engine.New(b)

	done := make(chan error, 1)
	go func() {
		_, err := e.Run(context.Background(), st, []*timeline.TrialSpec{
			consentTrial(),
			puzzleTrial(),
		})
		done <- err
	}()

	view := waitActive(t, b)
	require.Equal(t, timeline.TagConsent, view.Tag)
	require.Contains(t, view.StimulusHTML, "<h3")
	require.Contains(t, view.StimulusHTML, "<strong>carefully</strong>")
	require.NoError(t, b.Respond(map[string]any{"choice": timeline.KeyAgree}))

	view = waitActive(t, b)
	require.Equal(t, timeline.TagPersistTrial, view.Tag)
	require.True(t, view.GiveUp)
	require.NoError(t, b.GiveUp(map[string]any{timeline.FieldAnswer: "TAP"}))

	require.NoError(t, <-done)
	b.FinishSession()
	require.Equal(t, StateDone, b.Trial().State)

	recs := st.Records()
	require.Len(t, recs, 2)
	require.Equal(t, timeline.KeyAgree, recs[0].Payload.Choice)
	require.Equal(t, session.ReasonGaveUp, recs[1].Reason)
	require.Equal(t, "TAP", recs[1].Payload.Fields[timeline.FieldAnswer])
}

func TestBridgeRejectsIdlePosts(t *testing.T) {
	b := testBridge(1)
	require.ErrorIs(t, b.Respond("a"), ErrNoLiveTrial)
	require.ErrorIs(t, b.GiveUp(nil), ErrNoLiveTrial)
}

func TestBridgeGiveUpNeedsAffordance(t *testing.T) {
	b := testBridge(1)
	lt, err := b.Begin(context.Background(), consentTrial())
	require.NoError(t, err)
	defer lt.Close()

	require.Error(t, b.GiveUp(nil))
	require.NoError(t, b.Respond(timeline.KeyAgree))
}

func TestBridgeOnlyFirstSignalCounts(t *testing.T) {
	b := testBridge(1)
	lt, err := b.Begin(context.Background(), consentTrial())
	require.NoError(t, err)
	defer lt.Close()

	// Flood well past the channel capacity; none of these may block or fail.
	for range 10 {
		require.NoError(t, b.Respond(timeline.KeyAgree))
	}
	sig := <-lt.Signals()
	require.Equal(t, timeline.KeyAgree, sig.Payload.Choice)
}

func TestHandlers(t *testing.T) {
	b := testBridge(1)
	mux := http.NewServeMux()
	RegisterRoutes(mux, b)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/session")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/api/trial")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// No live trial: posts conflict.
	resp, err = http.Post(srv.URL+"/api/response", "application/json", strings.NewReader(`{"choice":"a"}`))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusConflict, resp.StatusCode)

	// Malformed body.
	resp, err = http.Post(srv.URL+"/api/response", "application/json", strings.NewReader("{"))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	lt, err := b.Begin(context.Background(), consentTrial())
	require.NoError(t, err)
	defer lt.Close()

	resp, err = http.Post(srv.URL+"/api/response", "application/json", strings.NewReader(`{"choice":"agree"}`))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	sig := <-lt.Signals()
	require.Equal(t, "agree", sig.Payload.Choice)
}
