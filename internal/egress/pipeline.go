package egress

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/parkerlabs/dilemma/internal/session"
	"github.com/parkerlabs/dilemma/internal/study"
)

// DeliveryStatus values.
const (
	StatusDispatched = "dispatched"
	StatusFailed     = "failed"
)

// BackupError marks a failed local backup write. Remote delivery failures
// never produce one; losing the local copy is the only fatal outcome.
type BackupError struct {
	Path string
	Err  error
}

func (e *BackupError) Error() string {
	return fmt.Sprintf("writing local backup %s: %v", e.Path, e.Err)
}

func (e *BackupError) Unwrap() error { return e.Err }

// Delivery is the outcome of one remote target.
type Delivery struct {
	Target string
	Status string
	Err    error
}

// Outcome summarizes a pipeline flush.
type Outcome struct {
	BackupPath  string
	ArchivePath string
	Deliveries  []Delivery
}

// Pipeline flushes a finished session: it always writes the local CSV backup
// and zstd archive, then attempts every remote target in parallel.
type Pipeline struct {
	outDir  string
	targets []Deliverer
	events  session.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithTargets sets the remote delivery targets.
func WithTargets(targets ...Deliverer) Option {
	return func(p *Pipeline) { p.targets = append(p.targets, targets...) }
}

// WithEventLogger installs a session event logger.
func WithEventLogger(l session.Logger) Option {
	return func(p *Pipeline) { p.events = l }
}

// NewPipeline creates a pipeline writing local artifacts into outDir.
func NewPipeline(outDir string, opts ...Option) *Pipeline {
	p := &Pipeline{
		outDir: outDir,
		events: session.NopLogger{},
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Flush exports the session. The local backup is written first and its
// failure is the only error; remote targets are reported per-target in the
// outcome, never as an error.
func (p *Pipeline) Flush(ctx context.Context, cfg *study.Config, st *session.State) (*Outcome, error) {
	payload := BuildPayload(cfg, st)
	stem := FileStem(cfg.Meta, st.ParticipantID)

	if err := os.MkdirAll(p.outDir, 0755); err != nil {
		return nil, &BackupError{Path: p.outDir, Err: err}
	}

	out := &Outcome{
		BackupPath:  filepath.Join(p.outDir, stem+".csv"),
		ArchivePath: filepath.Join(p.outDir, stem+".json.zst"),
	}

	if err := writeCSV(out.BackupPath, payload); err != nil {
		return nil, &BackupError{Path: out.BackupPath, Err: err}
	}
	p.logEvent(session.EventBackup, map[string]any{"path": out.BackupPath})

	if err := WriteArchive(out.ArchivePath, payload); err != nil {
		return nil, &BackupError{Path: out.ArchivePath, Err: err}
	}
	p.logEvent(session.EventBackup, map[string]any{"path": out.ArchivePath})

	out.Deliveries = p.deliver(ctx, payload)
	return out, nil
}

// deliver runs all targets concurrently and collects per-target outcomes.
func (p *Pipeline) deliver(ctx context.Context, payload *Payload) []Delivery {
	results := make([]Delivery, len(p.targets))

	var mu sync.Mutex
	g, ctx := errgroup.WithContext(ctx)
	for i, target := range p.targets {
		g.Go(func() error {
			d := Delivery{Target: target.Name(), Status: StatusDispatched}
			if err := target.Deliver(ctx, payload); err != nil {
				d.Status = StatusFailed
				d.Err = err
				slog.Debug("delivery failed", "target", d.Target, "error", err)
			}
			mu.Lock()
			results[i] = d
			mu.Unlock()
			p.logEvent(session.EventDelivery, session.DeliveryData(d.Target, d.Status))
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func writeCSV(path string, payload *Payload) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteCSV(f, payload); err != nil {
		f.Close() //nolint:errcheck
		return err
	}
	return f.Close()
}

func (p *Pipeline) logEvent(t session.EventType, data map[string]any) {
	if err := p.events.Log(session.NewEvent(t, data)); err != nil {
		slog.Debug("session event log write failed", "error", err)
	}
}
