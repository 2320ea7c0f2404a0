package main

import (
	"os"

	"github.com/UnknownOlympus/gaia/internal/config"
	"github.com/UnknownOlympus/gaia/internal/geotag"
	"github.com/UnknownOlympus/gaia/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

func newCacheCmd() *cobra.Command {
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the persisted reference indices.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	var force bool
	buildCmd := &cobra.Command{
		Use:   "build",
		Short: "Build and persist every missing cache blob.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.MustLoad()
			logger := setupLogger(cfg.Env, os.Stderr)

			_, store, err := newEngine(cmd.Context(), cfg, logger, metrics.NewMetrics(prometheus.NewRegistry()), force)
			if err != nil {
				return err
			}
			defer store.Close()

			cmd.Printf("cache ready (%s): %v\n", cfg.Cache.Type, geotag.BlobNames(cfg.Sampler.Mode))
			return nil
		},
	}
	buildCmd.Flags().BoolVarP(&force, "force", "f", false, "drop existing blobs and rebuild them from the dataset")

	cacheCmd.AddCommand(buildCmd)

	return cacheCmd
}
