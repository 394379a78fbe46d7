// Package main implements an OpenAI-compatible mock LLM server for running
// civicdraft offline.
//
// Responses come from JSON fixture files named after the model a capability
// resolves to ("mock-writing.json" answers model "mock-writing"). A fixture
// holding a JSON string is returned as plain text; any other JSON document is
// returned verbatim.
//
// Numbered fixtures ("mock-writing.1.json", "mock-writing.2.json") are served
// in order for successive calls to the same model. Once they run out the base
// fixture repeats. testdata/registry.json points every capability at the
// matching mock model.
package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var (
		fixtureDir string
		port       int
		verbose    bool
	)

	cmd := &cobra.Command{
		Use:          "mock-llm",
		Short:        "Serve fixture responses on an OpenAI-compatible API",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			level := slog.LevelInfo
			if verbose {
				level = slog.LevelDebug
			}
			logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

			if fixtureDir == "" {
				fixtureDir = os.Getenv("MOCK_LLM_FIXTURES")
			}
			if fixtureDir == "" {
				fixtureDir = "/fixtures"
			}

			fixtures, err := loadFixtures(fixtureDir)
			if err != nil {
				return fmt.Errorf("load fixtures from %s: %w", fixtureDir, err)
			}
			for model, seq := range fixtures {
				logger.Info("Loaded fixtures", "model", model, "count", len(seq))
			}

			srv := &http.Server{
				Addr:              fmt.Sprintf(":%d", port),
				Handler:           newServer(fixtures, logger).routes(),
				ReadHeaderTimeout: 10 * time.Second,
			}
			logger.Info("Mock LLM server listening", "addr", srv.Addr)
			return srv.ListenAndServe()
		},
	}

	cmd.Flags().StringVar(&fixtureDir, "fixtures", "", "Directory of fixture files (default $MOCK_LLM_FIXTURES or /fixtures)")
	cmd.Flags().IntVar(&port, "port", 11434, "Port to listen on")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Log every request")
	return cmd
}
