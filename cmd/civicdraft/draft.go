package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/c360studio/civicdraft/api"
	"github.com/c360studio/civicdraft/progress"
	"github.com/c360studio/civicdraft/workflow"
	"github.com/spf13/cobra"
)

type draftFlags struct {
	file     string
	location string
	lat, lon float64
	summary  string
	outline  string
	session  string
}

func draftCmd(g *globalFlags) *cobra.Command {
	f := &draftFlags{}

	cmd := &cobra.Command{
		Use:   "draft",
		Short: "Run the workflow once and print the final state as JSON",
		Example: `  civicdraft draft --location Niagara --lat 43.6423 --lon -79.4085 \
    --summary "People sleep in the park overnight" --outline "Open a respite centre"
  civicdraft draft --file request.json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := g.setup(cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			req, err := f.request(cmd)
			if err != nil {
				return err
			}
			state := req.State()
			if err := state.Validate(); err != nil {
				return err
			}

			// One-shot runs only use NATS when an external server is configured.
			cfg.NATS.Embedded = false

			app := NewApp(cfg, logger)
			if err := app.Start(cmd.Context(), logProgress(logger)); err != nil {
				app.Shutdown()
				return err
			}
			defer app.Shutdown()

			ctx := workflow.ContextWithSession(cmd.Context(), req.SessionID)
			final, runErr := app.engine.Run(ctx, state)
			if err := writeState(cmd.OutOrStdout(), final); err != nil {
				return err
			}
			return runErr
		},
	}

	cmd.Flags().StringVarP(&f.file, "file", "f", "", "JSON request file ({location, coordinates, summary, solution_outline}); - reads stdin")
	cmd.Flags().StringVar(&f.location, "location", "", "Neighbourhood or address of the complaint")
	cmd.Flags().Float64Var(&f.lat, "lat", 0, "Complaint latitude")
	cmd.Flags().Float64Var(&f.lon, "lon", 0, "Complaint longitude")
	cmd.Flags().StringVar(&f.summary, "summary", "", "Complaint summary")
	cmd.Flags().StringVar(&f.outline, "outline", "", "Rough solution outline")
	cmd.Flags().StringVar(&f.session, "session", "cli", "Progress session id")
	return cmd
}

// request builds the proposal request from --file or the individual flags.
func (f *draftFlags) request(cmd *cobra.Command) (api.ProposalRequest, error) {
	var req api.ProposalRequest
	if f.file != "" {
		var r io.Reader = cmd.InOrStdin()
		if f.file != "-" {
			file, err := os.Open(f.file)
			if err != nil {
				return req, fmt.Errorf("open request file: %w", err)
			}
			defer file.Close()
			r = file
		}
		if err := json.NewDecoder(r).Decode(&req); err != nil {
			return req, fmt.Errorf("decode request file: %w", err)
		}
	} else {
		req = api.ProposalRequest{
			Location:        f.location,
			Summary:         f.summary,
			SolutionOutline: f.outline,
		}
		if cmd.Flags().Changed("lat") || cmd.Flags().Changed("lon") {
			req.Coordinates = &workflow.Coordinates{Lat: f.lat, Lon: f.lon}
		}
	}
	if req.SessionID == "" {
		req.SessionID = f.session
	}
	return req, nil
}

// logProgress reports workflow progress through the logger.
func logProgress(logger *slog.Logger) progress.Reporter {
	return progress.ReporterFunc(func(_ context.Context, sessionID string, ev progress.Event) {
		attrs := []any{"session_id", sessionID, "status", ev.Status}
		if reason, ok := ev.Data["degraded"]; ok {
			attrs = append(attrs, "degraded", reason)
		}
		logger.Info(ev.Action, attrs...)
	})
}

func writeState(w io.Writer, st *workflow.State) error {
	if st == nil {
		return nil
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(st)
}
