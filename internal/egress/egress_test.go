package egress

import (
	"context"
	"encoding/csv"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parkerlabs/dilemma/internal/environ"
	"github.com/parkerlabs/dilemma/internal/session"
	"github.com/parkerlabs/dilemma/internal/study"
)

func testState() (*study.Config, *session.State) {
	cfg := &study.Config{Meta: study.Meta{Name: "Decision Fatigue", Version: "v1"}}
	st := session.NewStateWithID("p-123", environ.Client{Platform: "linux/amd64"})

	st.Append(&session.ResponseRecord{
		TrialTag:         "consent",
		TrialIndex:       0,
		Payload:          session.ChoiceResponse("agree"),
		Reason:           session.ReasonResponse,
		ElapsedMS:        1200,
		SessionElapsedMS: 1200,
	})
	rec := &session.ResponseRecord{
		TrialTag:         "decision_choice",
		TrialIndex:       1,
		Payload:          session.ChoiceResponse("a"),
		Reason:           session.ReasonResponse,
		ElapsedMS:        3400,
		SessionElapsedMS: 4600,
		Meta:             map[string]any{"item_id": "T01"},
	}
	rec.SetDerived("choice", "A")
	rec.SetDerived("choice_key", nil)
	st.Append(rec)

	st.SetProperty("vcp_mean", 4.5)
	st.SetProperty("vcp_group", "high_conflict")
	st.Finish()
	return cfg, st
}

func TestBuildPayload(t *testing.T) {
	cfg, st := testState()
	p := BuildPayload(cfg, st)

	require.Equal(t, "p-123", p.ParticipantID)
	require.Equal(t, "Decision Fatigue", p.Meta.Name)
	require.NotEmpty(t, p.StartedAt)
	require.NotEmpty(t, p.EndedAt)
	require.Len(t, p.Data, 2)

	row := p.Data[1]
	assert.Equal(t, "decision_choice", row["trial_tag"])
	assert.Equal(t, 1, row["trial_index"])
	assert.Equal(t, "T01", row["item_id"])
	assert.Equal(t, "a", row["response"])
	assert.Equal(t, "A", row["choice"])

	// The nil derived value survives as an explicit NA marker.
	v, present := row["choice_key"]
	assert.True(t, present)
	assert.Nil(t, v)
}

func TestPayloadRowsCarrySessionProperties(t *testing.T) {
	cfg, st := testState()
	rows := BuildPayload(cfg, st).Rows()

	require.Len(t, rows, 2)
	for _, row := range rows {
		assert.Equal(t, 4.5, row["vcp_mean"])
		assert.Equal(t, "high_conflict", row["vcp_group"])
	}
}

func TestFileStem(t *testing.T) {
	stem := FileStem(study.Meta{Name: "Decision Fatigue (pilot)"}, "p-123")
	require.Equal(t, "decision_fatigue__pilot_p-123", stem)
}

func TestHTTPTargetDispatched(t *testing.T) {
	var gotContentType string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	cfg, st := testState()
	target := NewHTTPTarget(srv.URL)
	require.NoError(t, target.Deliver(context.Background(), BuildPayload(cfg, st)))
	require.Equal(t, "text/plain;charset=utf-8", gotContentType)
	require.Contains(t, string(gotBody), `"participant_id":"p-123"`)
}

func TestHTTPTargetServerErrorStillDispatched(t *testing.T) {
	// Fire-and-forget: a response of any status means the payload left.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer srv.Close()

	cfg, st := testState()
	require.NoError(t, NewHTTPTarget(srv.URL).Deliver(context.Background(), BuildPayload(cfg, st)))
}

func TestHTTPTargetTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close()

	cfg, st := testState()
	err := NewHTTPTarget(srv.URL).Deliver(context.Background(), BuildPayload(cfg, st))
	require.Error(t, err)
}

func TestArchiveRoundTrip(t *testing.T) {
	cfg, st := testState()
	p := BuildPayload(cfg, st)
	path := filepath.Join(t.TempDir(), "session.json.zst")

	require.NoError(t, WriteArchive(path, p))

	got, err := ReadArchive(path)
	require.NoError(t, err)
	require.Equal(t, p.ParticipantID, got.ParticipantID)
	require.Len(t, got.Data, len(p.Data))
	require.Equal(t, "high_conflict", got.Session["vcp_group"])
}

type fakeUploader struct {
	container string
	name      string
	data      []byte
	err       error
}

func (f *fakeUploader) UploadBuffer(_ context.Context, container, name string, data []byte, _ *azblob.UploadBufferOptions) (azblob.UploadBufferResponse, error) {
	f.container = container
	f.name = name
	f.data = data
	return azblob.UploadBufferResponse{}, f.err
}

func TestBlobDeliverer(t *testing.T) {
	cfg, st := testState()
	up := &fakeUploader{}
	d := &BlobDeliverer{client: up, container: "sessions"}

	require.NoError(t, d.Deliver(context.Background(), BuildPayload(cfg, st)))
	require.Equal(t, "sessions", up.container)
	require.Equal(t, "decision_fatigue_p-123.json", up.name)
	require.Contains(t, string(up.data), `"p-123"`)
}

type stubDeliverer struct {
	name string
	err  error
}

func (s stubDeliverer) Name() string                            { return s.name }
func (s stubDeliverer) Deliver(context.Context, *Payload) error { return s.err }

func TestPipelineFlush(t *testing.T) {
	cfg, st := testState()
	dir := t.TempDir()
	p := NewPipeline(dir, WithTargets(
		stubDeliverer{name: "http"},
		stubDeliverer{name: "blob", err: context.DeadlineExceeded},
	))

	out, err := p.Flush(context.Background(), cfg, st)
	require.NoError(t, err)

	// Backup and archive exist regardless of delivery outcomes.
	require.FileExists(t, out.BackupPath)
	require.FileExists(t, out.ArchivePath)

	byTarget := map[string]string{}
	for _, d := range out.Deliveries {
		byTarget[d.Target] = d.Status
	}
	require.Equal(t, StatusDispatched, byTarget["http"])
	require.Equal(t, StatusFailed, byTarget["blob"])

	f, err := os.Open(out.BackupPath)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3) // header + 2 records
	require.Equal(t, "participant_id", rows[0][0])
}

func TestPipelineFlushBackupFailure(t *testing.T) {
	cfg, st := testState()
	dir := filepath.Join(t.TempDir(), "blocked")
	require.NoError(t, os.WriteFile(dir, []byte("file in the way"), 0644))

	_, err := NewPipeline(dir).Flush(context.Background(), cfg, st)

	var backupErr *BackupError
	require.ErrorAs(t, err, &backupErr)
}
