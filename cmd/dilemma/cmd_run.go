package main

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"

	"github.com/parkerlabs/dilemma/internal/egress"
	"github.com/parkerlabs/dilemma/internal/engine"
	"github.com/parkerlabs/dilemma/internal/environ"
	"github.com/parkerlabs/dilemma/internal/presenter/terminal"
	"github.com/parkerlabs/dilemma/internal/scoring"
	"github.com/parkerlabs/dilemma/internal/session"
	"github.com/parkerlabs/dilemma/internal/spinner"
	"github.com/parkerlabs/dilemma/internal/study"
	"github.com/parkerlabs/dilemma/internal/timeline"
)

type runOptions struct {
	outDir      string
	participant string
	noUpload    bool
	mobileUA    string
	presenter   string
}

func newRunCommand() *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run <study.yaml>",
		Short: "Run a study session in the terminal",
		Long: `Run a full study session in the terminal, from consent to export.

The session always writes a local CSV backup and a compressed archive into
the output directory; configured remote targets are attempted best-effort
after that. Declined consent stops the timeline but still exports what was
collected, and exits with code 1.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStudy(cmd, args[0], opts)
		},
	}

	cmd.Flags().StringVarP(&opts.outDir, "out-dir", "o", "results", "Directory for session artifacts")
	cmd.Flags().StringVar(&opts.participant, "participant", "", "Participant ID (default: generated)")
	cmd.Flags().BoolVar(&opts.noUpload, "no-upload", false, "Skip all remote delivery")
	cmd.Flags().StringVar(&opts.mobileUA, "mobile-ua", "", "Override the user agent used for the device check")
	cmd.Flags().StringVar(&opts.presenter, "presenter", "terminal", "Presenter to use: terminal or auto")

	return cmd
}

func runStudy(cmd *cobra.Command, configPath string, opts runOptions) error {
	cfg, err := study.Load(configPath)
	if err != nil {
		return err
	}

	client := environ.Probe(opts.mobileUA, version)
	st := newState(opts.participant, client)

	events, err := session.NewJSONLogger(session.DefaultLogPath(opts.outDir, st.ParticipantID))
	if err != nil {
		return err
	}
	defer events.Close() //nolint:errcheck

	trials, err := timeline.New(cfg, client).Build()
	if err != nil {
		return err
	}

	p, err := pickPresenter(opts.presenter)
	if err != nil {
		return err
	}

	eng := engine.New(p,
		engine.WithScorer(scoring.New(cfg)),
		engine.WithEventLogger(events),
	)
	res, err := eng.Run(cmd.Context(), st, trials)
	if err != nil {
		return err
	}

	out, err := flushSession(cmd, cfg, st, events, opts.outDir, opts.noUpload)
	if err != nil {
		return err
	}

	printSummary(cmd.OutOrStdout(), cfg, st, res, out)

	if res.Aborted {
		return &ConsentDeclinedError{}
	}
	return nil
}

func newState(participant string, client environ.Client) *session.State {
	if participant != "" {
		return session.NewStateWithID(participant, client)
	}
	return session.NewState(client)
}

func pickPresenter(name string) (engine.Presenter, error) {
	switch name {
	case "terminal":
		return terminal.New(), nil
	case "auto":
		// Walks the timeline with default answers; useful for smoke runs.
		return engine.NewScripted(), nil
	default:
		return nil, fmt.Errorf("unknown presenter %q (want terminal or auto)", name)
	}
}

// flushSession exports the session through the egress pipeline. Only a
// failed local backup is an error.
func flushSession(cmd *cobra.Command, cfg *study.Config, st *session.State, events session.Logger, outDir string, noUpload bool) (*egress.Outcome, error) {
	pipeline := egress.NewPipeline(outDir,
		egress.WithTargets(deliverers(cfg, noUpload)...),
		egress.WithEventLogger(events),
	)

	stop := spinner.Start(cmd.OutOrStdout(), "Saving session data")
	defer stop()
	return pipeline.Flush(cmd.Context(), cfg, st)
}

func deliverers(cfg *study.Config, noUpload bool) []egress.Deliverer {
	if noUpload {
		return nil
	}
	var targets []egress.Deliverer
	if cfg.Upload.URL != "" {
		targets = append(targets, egress.NewHTTPTarget(cfg.Upload.URL))
	}
	if cfg.Upload.Blob != nil {
		blob, err := egress.NewBlobDeliverer(cfg.Upload.Blob)
		if err != nil {
			// Delivery is best-effort; missing credentials only cost a target.
			slog.Warn("blob delivery unavailable", "error", err)
		} else {
			targets = append(targets, blob)
		}
	}
	return targets
}

func printSummary(w io.Writer, cfg *study.Config, st *session.State, res *engine.Result, out *egress.Outcome) {
	state := "completed"
	if res.Aborted {
		state = "declined at consent"
	}

	rows := [][2]string{
		{"Participant", st.ParticipantID},
		{"Session", state},
		{"Trials", fmt.Sprintf("%d", res.Completed)},
	}
	rows = append(rows, propertyRows(cfg, st)...)
	rows = append(rows, [2]string{"Backup", out.BackupPath})
	rows = append(rows, [2]string{"Archive", out.ArchivePath})
	for _, d := range out.Deliveries {
		rows = append(rows, [2]string{"Upload (" + d.Target + ")", d.Status})
	}

	width := 0
	for _, r := range rows {
		if lw := runewidth.StringWidth(r[0]); lw > width {
			width = lw
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, strings.Repeat("─", width+24))
	for _, r := range rows {
		fmt.Fprintf(w, "%s  %s\n", runewidth.FillRight(r[0], width), r[1])
	}
	fmt.Fprintln(w, strings.Repeat("─", width+24))
}

func propertyRows(cfg *study.Config, st *session.State) [][2]string {
	var rows [][2]string
	add := func(label, key, format string) {
		if v, ok := st.Property(key); ok {
			rows = append(rows, [2]string{label, fmt.Sprintf(format, v)})
		}
	}
	add("Conflict mean", cfg.ConflictScale.Name+"_mean", "%.2f")
	add("Conflict group", cfg.ConflictScale.Name+"_group", "%v")
	add("Fatigue mean", cfg.FatigueScale.Name+"_mean", "%.2f")
	add("Give-up time", scoring.PropGiveUpMS, "%dms")
	add("Puzzle block time", scoring.PropPersistTotal, "%dms")
	return rows
}
