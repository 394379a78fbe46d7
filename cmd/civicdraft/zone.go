package main

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/c360studio/civicdraft/zoning"
	"github.com/spf13/cobra"
)

func zoneCmd(g *globalFlags) *cobra.Command {
	var dataset string

	cmd := &cobra.Command{
		Use:   "zone <lat> <lon>",
		Short: "Look up the zone at a coordinate",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			lat, err := strconv.ParseFloat(args[0], 64)
			if err != nil {
				return fmt.Errorf("invalid latitude %q: %w", args[0], err)
			}
			lon, err := strconv.ParseFloat(args[1], 64)
			if err != nil {
				return fmt.Errorf("invalid longitude %q: %w", args[1], err)
			}

			cfg, logger, err := g.setup(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			if dataset != "" {
				cfg.Zoning.Dataset = dataset
			}

			app := NewApp(cfg, logger)
			ds, err := zoning.Open(cfg.Zoning.Dataset,
				zoning.WithDefault(app.defaultZone()),
				zoning.WithLogger(logger))
			if err != nil {
				return fmt.Errorf("open zoning dataset: %w", err)
			}

			zone, matched := ds.Match(lat, lon)
			if !matched {
				zone = app.defaultZone()
			}
			out := struct {
				zoning.Zone
				Matched        bool   `json:"matched"`
				BylawReference string `json:"bylaw_reference"`
			}{zone, matched, zone.BylawReference()}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}

	cmd.Flags().StringVar(&dataset, "dataset", "", "GeoJSON glob (overrides zoning.dataset)")
	return cmd
}
