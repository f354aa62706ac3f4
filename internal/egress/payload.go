// Package egress turns a finished session into its outbound forms: the JSON
// payload for remote delivery, the flattened CSV backup, and the compressed
// local archive. Delivery is best-effort; the local backup is the product.
package egress

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/parkerlabs/dilemma/internal/dataset"
	"github.com/parkerlabs/dilemma/internal/environ"
	"github.com/parkerlabs/dilemma/internal/session"
	"github.com/parkerlabs/dilemma/internal/study"
)

// Lead columns of the CSV backup, in order. Everything else follows
// alphabetically.
var leadColumns = []string{
	"participant_id",
	"trial_index",
	"trial_tag",
	"reason",
	"elapsed_ms",
	"time_elapsed_ms",
}

// Payload is the complete session export.
type Payload struct {
	Meta          study.Meta       `json:"meta"`
	ParticipantID string           `json:"participant_id"`
	StartedAt     string           `json:"started_at_iso"`
	EndedAt       string           `json:"ended_at_iso"`
	Client        environ.Client   `json:"client"`
	Session       map[string]any   `json:"session"`
	Data          []map[string]any `json:"data"`
}

// BuildPayload assembles the export payload from a finished session.
func BuildPayload(cfg *study.Config, st *session.State) *Payload {
	return &Payload{
		Meta:          cfg.Meta,
		ParticipantID: st.ParticipantID,
		StartedAt:     st.StartedAt.Format(time.RFC3339),
		EndedAt:       st.EndedAt.Format(time.RFC3339),
		Client:        st.Client,
		Session:       st.Properties(),
		Data:          flattenRecords(st),
	}
}

// Rows returns the payload's data rows. Session properties are repeated on
// every row so the CSV is self-contained per row.
func (p *Payload) Rows() []map[string]any {
	rows := make([]map[string]any, 0, len(p.Data))
	for _, rec := range p.Data {
		row := make(map[string]any, len(rec)+len(p.Session))
		for k, v := range rec {
			row[k] = v
		}
		for k, v := range p.Session {
			if _, taken := row[k]; !taken {
				row[k] = v
			}
		}
		rows = append(rows, row)
	}
	return rows
}

// WriteCSV writes the flattened CSV view of the payload.
func WriteCSV(w io.Writer, p *Payload) error {
	return dataset.WriteTable(w, p.Rows(), leadColumns)
}

// flattenRecords produces one flat map per record. Later sources never
// overwrite earlier ones: base columns, then trial metadata, then the raw
// payload, then derived annotations.
func flattenRecords(st *session.State) []map[string]any {
	recs := st.Records()
	out := make([]map[string]any, 0, len(recs))
	for _, rec := range recs {
		row := map[string]any{
			"participant_id":  st.ParticipantID,
			"trial_index":     rec.TrialIndex,
			"trial_tag":       rec.TrialTag,
			"reason":          string(rec.Reason),
			"elapsed_ms":      rec.ElapsedMS,
			"time_elapsed_ms": rec.SessionElapsedMS,
		}
		merge := func(m map[string]any) {
			for k, v := range m {
				if _, taken := row[k]; !taken {
					row[k] = v
				}
			}
		}
		merge(rec.Meta)
		switch rec.Payload.Kind {
		case session.ResponseChoice:
			merge(map[string]any{"response": rec.Payload.Choice})
		case session.ResponseFields:
			fields := make(map[string]any, len(rec.Payload.Fields))
			for k, v := range rec.Payload.Fields {
				fields[k] = v
			}
			merge(fields)
		}
		merge(rec.Derived)
		out = append(out, row)
	}
	return out
}

// FileStem returns the participant-scoped base name used for every export
// artifact of a session.
func FileStem(meta study.Meta, participantID string) string {
	return fmt.Sprintf("%s_%s", slug(meta.Name), participantID)
}

func slug(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return strings.Trim(b.String(), "_")
}
