// Package geotag attaches a state/county/city identity and a coordinate to
// social media records.
package geotag

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/UnknownOlympus/gaia/internal/bbox"
	"github.com/UnknownOlympus/gaia/internal/cachestore"
	"github.com/UnknownOlympus/gaia/internal/metrics"
	"github.com/UnknownOlympus/gaia/internal/models"
	"github.com/UnknownOlympus/gaia/internal/reference"
	"github.com/UnknownOlympus/gaia/internal/sampler"
	"github.com/UnknownOlympus/gaia/internal/spatial"
)

// Names of the cache blobs owned by the engine.
const (
	BlobCityStateIndex    = "city_state_index"
	BlobSpatialIdentities = "spatial_identities"
	BlobSpatialGeometry   = "spatial_geometry"
	blobCityCoordinates   = "city_coordinates"
)

// BlobCityCoordinates returns the blob name of the city coordinate table
// sampled under mode.
func BlobCityCoordinates(mode sampler.Mode) string {
	return blobCityCoordinates + "." + string(mode)
}

// BlobNames lists every blob the engine loads for mode.
func BlobNames(mode sampler.Mode) []string {
	return []string{
		BlobCityStateIndex,
		BlobSpatialIdentities,
		BlobSpatialGeometry,
		BlobCityCoordinates(mode),
	}
}

// Config holds everything needed to construct an Engine.
type Config struct {
	GeometryPath string             // GeoJSON city dataset
	StatesPath   string             // State abbreviation table, empty for the built-in one
	Sampler      *sampler.Sampler   // Sampler used for place boxes and the city coordinate table
	Loader       *cachestore.Loader // Cache of the built indices
	Logger       *slog.Logger
	Metrics      *metrics.Metrics
}

// Option configures an Engine.
type Option func(*options)

type options struct {
	dataset func() (*reference.Dataset, error)
	states  reference.StateTable
}

// WithDataset makes the engine build missing blobs from an in-memory dataset
// instead of reading the configured files.
func WithDataset(ds *reference.Dataset) Option {
	return func(o *options) {
		o.dataset = func() (*reference.Dataset, error) { return ds, nil }
		o.states = ds.States
	}
}

// Engine runs the inference chain. It is immutable after New and safe for
// concurrent use.
type Engine struct {
	log      *slog.Logger
	metrics  *metrics.Metrics
	sampler  *sampler.Sampler
	resolver *reference.Resolver
	spatial  *spatial.Index
	cities   map[string]models.Coordinate
}

// New loads every index from the cache, building and persisting the missing
// ones. The reference dataset is parsed at most once, and only when a blob
// has to be built.
func New(ctx context.Context, cfg Config, opts ...Option) (*Engine, error) {
	o := options{
		dataset: func() (*reference.Dataset, error) {
			return reference.Load(cfg.GeometryPath, cfg.StatesPath)
		},
	}
	for _, opt := range opts {
		opt(&o)
	}

	b := &builder{
		cfg:     cfg,
		dataset: sync.OnceValues(o.dataset),
	}
	b.snapshot = sync.OnceValues(func() (spatial.Snapshot, error) {
		ds, err := b.dataset()
		if err != nil {
			return spatial.Snapshot{}, err
		}
		return spatial.BuildSnapshot(ds.Features, cfg.Logger), nil
	})

	states := o.states
	if states == nil {
		var err error
		if states, err = reference.LoadStates(cfg.StatesPath); err != nil {
			return nil, err
		}
	}

	index, err := cachestore.BuildOrLoad(ctx, cfg.Loader, BlobCityStateIndex, b.cityStateIndex)
	if err != nil {
		return nil, err
	}

	spatialIndex, err := b.spatialIndex(ctx)
	if err != nil {
		return nil, err
	}

	cities, err := cachestore.BuildOrLoad(ctx, cfg.Loader, BlobCityCoordinates(cfg.Sampler.Mode()), b.cityCoordinates)
	if err != nil {
		return nil, err
	}

	cfg.Logger.Info("Geo-tagging engine ready",
		"cities", len(index),
		"rectangles", spatialIndex.Len(),
		"sampler", cfg.Sampler.Mode(),
	)

	return &Engine{
		log:      cfg.Logger,
		metrics:  cfg.Metrics,
		sampler:  cfg.Sampler,
		resolver: reference.NewResolver(states, index),
		spatial:  spatialIndex,
		cities:   cities,
	}, nil
}

// TagJSON decodes a record, tags it and encodes it back. The only error is
// input that is not a JSON object.
func (e *Engine) TagJSON(data []byte) ([]byte, error) {
	var record models.Record
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, err
	}

	e.Tag(&record)

	return json.Marshal(record)
}

type builder struct {
	cfg      Config
	dataset  func() (*reference.Dataset, error)
	snapshot func() (spatial.Snapshot, error)
}

func (b *builder) cityStateIndex(context.Context) (reference.CityStateIndex, error) {
	ds, err := b.dataset()
	if err != nil {
		return nil, err
	}
	return reference.BuildCityStateIndex(ds.Features, b.cfg.Logger), nil
}

func (b *builder) spatialIdentities(context.Context) (map[bbox.Key]models.GeoIdentity, error) {
	snapshot, err := b.snapshot()
	if err != nil {
		return nil, err
	}
	return snapshot.Identities, nil
}

func (b *builder) spatialGeometry(context.Context) ([]bbox.Key, error) {
	snapshot, err := b.snapshot()
	if err != nil {
		return nil, err
	}
	return snapshot.Geometry, nil
}

// spatialIndex loads both halves of the spatial snapshot. Halves that do not
// agree are treated as corrupted: both are dropped and rebuilt once.
func (b *builder) spatialIndex(ctx context.Context) (*spatial.Index, error) {
	for attempt := 0; ; attempt++ {
		identities, err := cachestore.BuildOrLoad(ctx, b.cfg.Loader, BlobSpatialIdentities, b.spatialIdentities)
		if err != nil {
			return nil, err
		}
		geometry, err := cachestore.BuildOrLoad(ctx, b.cfg.Loader, BlobSpatialGeometry, b.spatialGeometry)
		if err != nil {
			return nil, err
		}

		idx, err := spatial.New(spatial.Snapshot{Geometry: geometry, Identities: identities})
		if err == nil {
			return idx, nil
		}
		if !errors.Is(err, spatial.ErrInconsistentSnapshot) || attempt > 0 {
			return nil, err
		}

		b.cfg.Logger.Warn("Spatial cache blobs disagree, rebuilding", "error", err)
		if err = b.cfg.Loader.Invalidate(ctx, BlobSpatialIdentities, BlobSpatialGeometry); err != nil {
			return nil, fmt.Errorf("failed to drop spatial blobs: %w", err)
		}
	}
}

// cityCoordinates samples one coordinate per city. A box the sampler cannot
// draw from falls back to its center.
func (b *builder) cityCoordinates(context.Context) (map[string]models.Coordinate, error) {
	ds, err := b.dataset()
	if err != nil {
		return nil, err
	}

	cities := make(map[string]models.Coordinate, len(ds.Features))
	for _, f := range ds.Features {
		bound, errBox := bbox.FromArray(f.BBox)
		if errBox != nil {
			b.cfg.Logger.Debug("Skipping city coordinate for unusable box", "city", f.Key(), "error", errBox)
			continue
		}

		coord, errSample := b.cfg.Sampler.Sample(bound)
		if errSample != nil {
			b.cfg.Logger.Warn("Sampling failed, using box center", "city", f.Key(), "error", errSample)
			coord = boxCenter(bound)
		}
		cities[f.Key()] = coord
	}

	return cities, nil
}
