package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/parkerlabs/dilemma/internal/egress"
	"github.com/parkerlabs/dilemma/internal/engine"
	"github.com/parkerlabs/dilemma/internal/environ"
	"github.com/parkerlabs/dilemma/internal/scoring"
	"github.com/parkerlabs/dilemma/internal/session"
	"github.com/parkerlabs/dilemma/internal/study"
	"github.com/parkerlabs/dilemma/internal/timeline"
	"github.com/parkerlabs/dilemma/internal/webapi"
	"github.com/parkerlabs/dilemma/internal/webserver"
)

func newServeCommand() *cobra.Command {
	var opts runOptions
	var port int
	var noBrowser bool

	cmd := &cobra.Command{
		Use:   "serve <study.yaml>",
		Short: "Run a study session in the browser",
		Long: `Serve a study session to the local browser.

The participant page is opened automatically and drives the same engine as
the terminal runner; export happens exactly as with run once the session
ends. The server shuts down shortly after the final trial.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return serveStudy(cmd, args[0], opts, port, noBrowser)
		},
	}

	cmd.Flags().StringVarP(&opts.outDir, "out-dir", "o", "results", "Directory for session artifacts")
	cmd.Flags().StringVar(&opts.participant, "participant", "", "Participant ID (default: generated)")
	cmd.Flags().BoolVar(&opts.noUpload, "no-upload", false, "Skip all remote delivery")
	cmd.Flags().IntVarP(&port, "port", "p", 3000, "Port to listen on")
	cmd.Flags().BoolVar(&noBrowser, "no-browser", false, "Do not open the browser automatically")

	return cmd
}

func serveStudy(cmd *cobra.Command, configPath string, opts runOptions, port int, noBrowser bool) error {
	cfg, err := study.Load(configPath)
	if err != nil {
		return err
	}

	// The page runs in a desktop browser the participant already has; the
	// device check is the browser's own user agent only in hosted setups,
	// so the local probe is used here.
	client := environ.Probe("", version)
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

	bridge := webapi.NewBridge(cfg, st.ParticipantID, len(trials))
	srv, err := webserver.New(webserver.Config{
		Port:      port,
		NoBrowser: noBrowser,
		Bridge:    bridge,
	})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	var res *engine.Result
	var out *egress.Outcome

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.ListenAndServe(ctx)
	})
	g.Go(func() error {
		defer cancel()

		eng := engine.New(bridge,
			engine.WithScorer(scoring.New(cfg)),
			engine.WithEventLogger(events),
		)
		r, err := eng.Run(ctx, st, trials)
		if err != nil {
			return err
		}
		res = r
		bridge.FinishSession()

		o, err := flushSession(cmd, cfg, st, events, opts.outDir, opts.noUpload)
		if err != nil {
			return err
		}
		out = o

		// Give the page one last poll cycle to show the done state.
		time.Sleep(2 * time.Second)
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}

	printSummary(cmd.OutOrStdout(), cfg, st, res, out)

	if res.Aborted {
		return &ConsentDeclinedError{}
	}
	return nil
}
