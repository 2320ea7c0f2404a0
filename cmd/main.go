package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/UnknownOlympus/gaia/internal/cachestore"
	"github.com/UnknownOlympus/gaia/internal/config"
	"github.com/UnknownOlympus/gaia/internal/geotag"
	"github.com/UnknownOlympus/gaia/internal/metrics"
	"github.com/UnknownOlympus/gaia/internal/sampler"
	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
)

// Constants for different environment types.
const (
	envLocal = "local"
	envDev   = "development"
	envProd  = "production"
)

// main is the entry point of the application.
func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "gaia",
		Short:         "Geo-tagging inference engine for social media records.",
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	rootCmd.AddCommand(
		newServeCmd(),
		newTagCmd(),
		newCacheCmd(),
	)

	return rootCmd
}

// newEngine opens the configured cache store and constructs the engine from it.
// The caller owns the returned store and must close it.
func newEngine(
	ctx context.Context,
	cfg *config.Config,
	logger *slog.Logger,
	appMetrics *metrics.Metrics,
	force bool,
) (*geotag.Engine, cachestore.Store, error) {
	store, err := cachestore.NewStore(ctx, cachestore.StoreConfig{
		Type:          cachestore.StoreType(cfg.Cache.Type),
		Path:          cfg.Cache.Path,
		RedisAddr:     cfg.Cache.RedisAddr,
		RedisPassword: cfg.Cache.RedisPassword,
		RedisDB:       cfg.Cache.RedisDB,
		Logger:        logger,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open cache store: %w", err)
	}

	loader := cachestore.NewLoader(store, logger, appMetrics)
	if force {
		if err = loader.Invalidate(ctx, geotag.BlobNames(cfg.Sampler.Mode)...); err != nil {
			store.Close()
			return nil, nil, fmt.Errorf("failed to drop cache blobs: %w", err)
		}
	}

	engine, err := geotag.New(ctx, geotag.Config{
		GeometryPath: cfg.GeometryPath,
		StatesPath:   cfg.StatesPath,
		Sampler: sampler.New(
			cfg.Sampler.Mode,
			sampler.WithSigma(cfg.Sampler.Sigma),
			sampler.WithMaxAttempts(cfg.Sampler.MaxAttempts),
		),
		Loader:  loader,
		Logger:  logger,
		Metrics: appMetrics,
	})
	if err != nil {
		store.Close()
		return nil, nil, fmt.Errorf("failed to build geo-tagging engine: %w", err)
	}

	return engine, store, nil
}

// setupLogger initializes and returns a logger based on the environment provided.
func setupLogger(env string, w io.Writer) *slog.Logger {
	var log *slog.Logger

	switch env {
	case envLocal:
		log = slog.New(
			tint.NewHandler(w, &tint.Options{
				Level:      slog.LevelDebug,
				AddSource:  true,
				TimeFormat: time.Kitchen,
			}),
		)
	case envDev:
		log = slog.New(
			slog.NewJSONHandler(w, &slog.HandlerOptions{
				Level:     slog.LevelInfo,
				AddSource: false,
			}),
		)
	case envProd:
		log = slog.New(
			slog.NewJSONHandler(w, &slog.HandlerOptions{
				Level:       slog.LevelWarn,
				AddSource:   false,
				ReplaceAttr: dropTime,
			}),
		)
	default:
		log = slog.New(
			slog.NewJSONHandler(w, &slog.HandlerOptions{
				Level:       slog.LevelError,
				AddSource:   false,
				ReplaceAttr: dropTime,
			}),
		)

		log.Error(
			"The env parameter was not specified or was invalid. Logging will be minimal, by default.",
			slog.String("available_envs", "local, development, production"))
	}

	return log
}

func dropTime(_ []string, a slog.Attr) slog.Attr {
	if a.Key == slog.TimeKey {
		return slog.Attr{}
	}
	return a
}
