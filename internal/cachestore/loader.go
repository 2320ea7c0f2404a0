package cachestore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/UnknownOlympus/gaia/internal/metrics"
	"golang.org/x/sync/singleflight"
)

// Loader loads blobs from a Store and rebuilds the ones that are missing or
// corrupted. Concurrent loads of the same blob share one build.
type Loader struct {
	store   Store
	log     *slog.Logger
	metrics *metrics.Metrics
	group   singleflight.Group
}

// NewLoader creates a loader over store.
func NewLoader(store Store, log *slog.Logger, metrics *metrics.Metrics) *Loader {
	return &Loader{store: store, log: log, metrics: metrics}
}

// Invalidate deletes the named blobs so the next load rebuilds them.
func (l *Loader) Invalidate(ctx context.Context, names ...string) error {
	for _, name := range names {
		if err := l.store.Delete(ctx, name); err != nil {
			return err
		}
	}
	return nil
}

// BuildOrLoad returns the blob stored under name, or calls build, persists the
// result and returns it. A failed write-back is logged and the built value is
// still returned.
func BuildOrLoad[T any](
	ctx context.Context,
	l *Loader,
	name string,
	build func(ctx context.Context) (T, error),
) (T, error) {
	v, err, shared := l.group.Do(name, func() (any, error) {
		return loadOrBuild(ctx, l, name, build)
	})
	if err != nil {
		var zero T
		return zero, err
	}
	if shared {
		l.log.Debug("Cache blob load shared with a concurrent caller", "blob", name)
	}

	return v.(T), nil //nolint:forcetypeassert // the group key fixes the type
}

func loadOrBuild[T any](
	ctx context.Context,
	l *Loader,
	name string,
	build func(ctx context.Context) (T, error),
) (T, error) {
	data, err := l.store.Get(ctx, name)
	switch {
	case err == nil:
		v, errDecode := Decode[T](data)
		if errDecode == nil {
			l.metrics.CacheLoads.WithLabelValues(name, "hit").Inc()
			return v, nil
		}
		l.metrics.CacheLoads.WithLabelValues(name, "corrupted").Inc()
		l.log.Warn("Cache blob is corrupted, rebuilding", "blob", name, "error", errDecode)
	case errors.Is(err, ErrNotFound):
		l.metrics.CacheLoads.WithLabelValues(name, "miss").Inc()
		l.log.Info("Cache blob not found, building", "blob", name)
	default:
		l.metrics.CacheLoads.WithLabelValues(name, "read_error").Inc()
		l.log.Warn("Failed to read cache blob, rebuilding", "blob", name, "error", err)
	}

	v, err := build(ctx)
	if err != nil {
		var zero T
		return zero, fmt.Errorf("failed to build blob %s: %w", name, err)
	}

	encoded, err := Encode(v)
	if err == nil {
		err = l.store.Put(ctx, name, encoded)
	}
	if err != nil {
		l.metrics.CacheLoads.WithLabelValues(name, "write_error").Inc()
		l.log.Warn("Failed to persist cache blob", "blob", name, "error", err)
	}

	return v, nil
}
