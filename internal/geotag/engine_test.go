package geotag_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/UnknownOlympus/gaia/internal/bbox"
	"github.com/UnknownOlympus/gaia/internal/cachestore"
	"github.com/UnknownOlympus/gaia/internal/geotag"
	"github.com/UnknownOlympus/gaia/internal/metrics"
	"github.com/UnknownOlympus/gaia/internal/models"
	"github.com/UnknownOlympus/gaia/internal/reference"
	"github.com/UnknownOlympus/gaia/internal/sampler"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	irvine = models.GeoIdentity{
		StateID: 6, StateName: "California",
		CountyID: 59, CountyName: "Orange",
		CityID: 36770, CityName: "Irvine",
	}
	sanFrancisco = models.GeoIdentity{
		StateID: 6, StateName: "California",
		CountyID: 75, CountyName: "San Francisco",
		CityID: 67000, CityName: "San Francisco",
	}
)

func testDataset() *reference.Dataset {
	return &reference.Dataset{
		Features: []reference.Feature{
			{
				Name: "Irvine", StateName: "California", CountyName: "Orange",
				CityID: 36770, CountyID: 59, StateID: 6,
				BBox: [4]float64{-117.85, 33.6, -117.7, 33.75},
			},
			{
				Name: "San Francisco", StateName: "California", CountyName: "San Francisco",
				CityID: 67000, CountyID: 75, StateID: 6,
				BBox: [4]float64{-122.52, 37.7, -122.35, 37.83},
			},
		},
		States: reference.DefaultStates(),
	}
}

// memStore is an in-memory cachestore.Store.
type memStore struct {
	mu    sync.Mutex
	blobs map[string][]byte
}

func newMemStore() *memStore {
	return &memStore{blobs: make(map[string][]byte)}
}

func (s *memStore) Get(_ context.Context, name string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.blobs[name]
	if !ok {
		return nil, cachestore.ErrNotFound
	}
	return data, nil
}

func (s *memStore) Put(_ context.Context, name string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[name] = data
	return nil
}

func (s *memStore) Delete(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.blobs, name)
	return nil
}

func (s *memStore) Close() error { return nil }

func newEngine(t *testing.T, store cachestore.Store, mode sampler.Mode, opts ...geotag.Option) *geotag.Engine {
	t.Helper()

	engine, err := geotag.New(context.Background(), engineConfig(store, mode), opts...)
	require.NoError(t, err)
	return engine
}

func engineConfig(store cachestore.Store, mode sampler.Mode) geotag.Config {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := metrics.NewMetrics(prometheus.NewRegistry())

	return geotag.Config{
		GeometryPath: "testdata/absent.json",
		Sampler:      sampler.New(mode, sampler.WithSeed(7)),
		Loader:       cachestore.NewLoader(store, logger, m),
		Logger:       logger,
		Metrics:      m,
	}
}

func decode(t *testing.T, raw string) *models.Record {
	t.Helper()
	var record models.Record
	require.NoError(t, json.Unmarshal([]byte(raw), &record))
	return &record
}

func TestEngine_Tag(t *testing.T) {
	t.Parallel()

	engine := newEngine(t, newMemStore(), sampler.ModeCentroid, geotag.WithDataset(testDataset()))

	t.Run("success - place without hint uses city coordinate", func(t *testing.T) {
		t.Parallel()

		tag := engine.Tag(decode(t, `{"place": {"full_name": "Irvine, CA"}}`))
		require.NotNil(t, tag)
		assert.Equal(t, models.SourcePlace, tag.Source)
		assert.Equal(t, irvine, tag.GeoIdentity)
		assert.Equal(t, models.CoordinateSourceUserLocation, tag.CoordinateSource)
		assert.InDelta(t, -117.775, tag.Coordinate.Longitude, 1e-9)
		assert.InDelta(t, 33.675, tag.Coordinate.Latitude, 1e-9)
	})

	t.Run("success - place keeps bounding box hint", func(t *testing.T) {
		t.Parallel()

		record := decode(t, `{"place": {"full_name": "Irvine, CA", "bounding_box": {"type": "Polygon",
			"coordinates": [[[-117.7, 33.75], [-117.85, 33.6], [-117.85, 33.75], [-117.7, 33.6]]]}}}`)

		tag := engine.Tag(record)
		require.NotNil(t, tag)
		assert.Equal(t, models.SourcePlace, tag.Source)
		assert.Equal(t, models.CoordinateSourceBoundingBox, tag.CoordinateSource)
		assert.InDelta(t, -117.775, tag.Coordinate.Longitude, 1e-9)
		assert.Same(t, tag, record.GeoTag)
	})

	t.Run("success - place keeps exact coordinates", func(t *testing.T) {
		t.Parallel()

		tag := engine.Tag(decode(t, `{"coordinates": {"type": "Point", "coordinates": [-122.4, 37.8]},
			"place": {"full_name": "Irvine, CA"}}`))
		require.NotNil(t, tag)
		assert.Equal(t, models.SourcePlace, tag.Source)
		assert.Equal(t, irvine, tag.GeoIdentity)
		assert.Equal(t, models.CoordinateSourceCoordinates, tag.CoordinateSource)
		assert.Equal(t, models.Coordinate{Longitude: -122.4, Latitude: 37.8}, tag.Coordinate)
	})

	t.Run("success - coordinate tier reverse geocodes", func(t *testing.T) {
		t.Parallel()

		tag := engine.Tag(decode(t, `{"coordinates": {"type": "Point", "coordinates": [-122.4, 37.8]}}`))
		require.NotNil(t, tag)
		assert.Equal(t, models.SourceCoordinate, tag.Source)
		assert.Equal(t, sanFrancisco, tag.GeoIdentity)
		assert.Equal(t, models.CoordinateSourceCoordinates, tag.CoordinateSource)
	})

	t.Run("success - unknown place falls through to coordinate", func(t *testing.T) {
		t.Parallel()

		tag := engine.Tag(decode(t, `{"coordinates": {"type": "Point", "coordinates": [-122.4, 37.8]},
			"place": {"full_name": "Atlantis, ZZ"}}`))
		require.NotNil(t, tag)
		assert.Equal(t, models.SourceCoordinate, tag.Source)
	})

	t.Run("success - user profile", func(t *testing.T) {
		t.Parallel()

		tag := engine.Tag(decode(t, `{"user": {"location": "San Francisco, CA"}}`))
		require.NotNil(t, tag)
		assert.Equal(t, models.SourceUserProfile, tag.Source)
		assert.Equal(t, sanFrancisco, tag.GeoIdentity)
		assert.Equal(t, models.CoordinateSourceUserLocation, tag.CoordinateSource)
		assert.InDelta(t, -122.435, tag.Coordinate.Longitude, 1e-9)
	})

	t.Run("untagged - coordinate outside usa skips user profile", func(t *testing.T) {
		t.Parallel()

		record := decode(t, `{"coordinates": {"type": "Point", "coordinates": [10.0, 50.0]},
			"user": {"location": "Irvine, CA"}}`)
		assert.Nil(t, engine.Tag(record))
		assert.Nil(t, record.GeoTag)
	})

	t.Run("untagged - coordinate in usa outside every city", func(t *testing.T) {
		t.Parallel()

		assert.Nil(t, engine.Tag(decode(t, `{"coordinates": {"type": "Point", "coordinates": [-90, 30]}}`)))
	})

	t.Run("untagged - unknown profile location", func(t *testing.T) {
		t.Parallel()

		assert.Nil(t, engine.Tag(decode(t, `{"user": {"location": "somewhere over the rainbow"}}`)))
	})

	t.Run("success - empty place box gives no hint", func(t *testing.T) {
		t.Parallel()

		record := decode(t, `{"place": {"full_name": "Nowhere", "bounding_box": {"type": "Polygon",
			"coordinates": [[]]}}, "user": {"location": "Irvine, CA"}}`)
		tag := engine.Tag(record)
		require.NotNil(t, tag)
		assert.Equal(t, models.SourceUserProfile, tag.Source)
	})

	t.Run("success - out of range coordinates are ignored", func(t *testing.T) {
		t.Parallel()

		tag := engine.Tag(decode(t, `{"coordinates": {"type": "Point", "coordinates": [500, 100]},
			"place": {"full_name": "Irvine, CA"}}`))
		require.NotNil(t, tag)
		assert.Equal(t, models.SourcePlace, tag.Source)
		assert.Equal(t, models.CoordinateSourceUserLocation, tag.CoordinateSource)
		assert.True(t, tag.Coordinate.Valid())
		assert.InDelta(t, -117.775, tag.Coordinate.Longitude, 1e-9)
	})

	t.Run("success - out of range coordinates fall back to place box", func(t *testing.T) {
		t.Parallel()

		tag := engine.Tag(decode(t, `{"coordinates": {"type": "Point", "coordinates": [-122.4, 137.8]},
			"place": {"full_name": "Irvine, CA", "bounding_box": {"type": "Polygon",
			"coordinates": [[[-117.85, 33.6], [-117.85, 33.75], [-117.7, 33.75], [-117.7, 33.6]]]}}}`))
		require.NotNil(t, tag)
		assert.Equal(t, models.CoordinateSourceBoundingBox, tag.CoordinateSource)
		assert.Equal(t, models.Coordinate{Longitude: -117.775, Latitude: 33.675}, tag.Coordinate)
	})

	t.Run("untagged - empty record", func(t *testing.T) {
		t.Parallel()

		out, err := engine.TagJSON([]byte(`{"id": 1}`))
		require.NoError(t, err)
		assert.JSONEq(t, `{"id": 1, "geo_tag": null}`, string(out))
	})
}

func TestEngine_TagJSON(t *testing.T) {
	t.Parallel()

	t.Run("success - centroid output is byte identical", func(t *testing.T) {
		t.Parallel()

		engine := newEngine(t, newMemStore(), sampler.ModeCentroid, geotag.WithDataset(testDataset()))
		input := []byte(`{"id": 42, "text": "hello", "place": {"full_name": "Irvine, CA",
			"bounding_box": {"type": "Polygon", "coordinates": [[[-117.85, 33.6], [-117.85, 33.75],
			[-117.7, 33.75], [-117.7, 33.6]]]}}}`)

		first, err := engine.TagJSON(input)
		require.NoError(t, err)
		second, err := engine.TagJSON(input)
		require.NoError(t, err)

		assert.Equal(t, first, second)
		assert.Contains(t, string(first), `"text":"hello"`)
	})

	t.Run("success - uniform keeps identity stable", func(t *testing.T) {
		t.Parallel()

		engine := newEngine(t, newMemStore(), sampler.ModeUniform, geotag.WithDataset(testDataset()))
		input := []byte(`{"place": {"full_name": "Irvine, CA", "bounding_box": {"type": "Polygon",
			"coordinates": [[[-117.85, 33.6], [-117.85, 33.75], [-117.7, 33.75], [-117.7, 33.6]]]}}}`)

		var tags [2]struct {
			GeoTag models.GeoTag `json:"geo_tag"`
		}
		for i := range tags {
			out, err := engine.TagJSON(input)
			require.NoError(t, err)
			require.NoError(t, json.Unmarshal(out, &tags[i]))
		}

		assert.Equal(t, tags[0].GeoTag.GeoIdentity, tags[1].GeoTag.GeoIdentity)
		assert.Equal(t, irvine, tags[0].GeoTag.GeoIdentity)
		for _, tag := range tags {
			assert.GreaterOrEqual(t, tag.GeoTag.Coordinate.Longitude, -117.85)
			assert.LessOrEqual(t, tag.GeoTag.Coordinate.Longitude, -117.7)
		}
	})

	t.Run("error - not a json object", func(t *testing.T) {
		t.Parallel()

		engine := newEngine(t, newMemStore(), sampler.ModeCentroid, geotag.WithDataset(testDataset()))
		_, err := engine.TagJSON([]byte(`[1, 2]`))
		require.Error(t, err)
	})

	t.Run("error - json null", func(t *testing.T) {
		t.Parallel()

		engine := newEngine(t, newMemStore(), sampler.ModeCentroid, geotag.WithDataset(testDataset()))
		out, err := engine.TagJSON([]byte(`null`))
		require.ErrorIs(t, err, models.ErrNotObject)
		assert.Nil(t, out)
	})
}

func TestEngine_Tag_SamplingExhausted(t *testing.T) {
	t.Parallel()

	cfg := engineConfig(newMemStore(), sampler.ModeGaussian)
	cfg.Sampler = sampler.New(sampler.ModeGaussian, sampler.WithSeed(7), sampler.WithMaxAttempts(5))
	engine, err := geotag.New(context.Background(), cfg, geotag.WithDataset(testDataset()))
	require.NoError(t, err)

	record := `{"place": {"full_name": "Atlantis, ZZ", "bounding_box": {"type": "Polygon",
		"coordinates": [[[-122.45, 37.75], [-122.45, 37.77], [-122.43, 37.77], [-122.43, 37.75]]]}},
		"user": {"location": "Irvine, CA"}}`

	for range 50 {
		tag := engine.Tag(decode(t, record))
		require.NotNil(t, tag)
		assert.Equal(t, models.SourceCoordinate, tag.Source)
		assert.Equal(t, models.CoordinateSourceBoundingBox, tag.CoordinateSource)
		assert.Equal(t, sanFrancisco, tag.GeoIdentity)
		assert.InDelta(t, -122.44, tag.Coordinate.Longitude, 0.01+1e-9)
		assert.InDelta(t, 37.76, tag.Coordinate.Latitude, 0.01+1e-9)
	}
}

func TestEngine_ConcurrentTag(t *testing.T) {
	t.Parallel()

	engine := newEngine(t, newMemStore(), sampler.ModeUniform, geotag.WithDataset(testDataset()))
	inputs := []string{
		`{"place": {"full_name": "Irvine, CA"}}`,
		`{"coordinates": {"type": "Point", "coordinates": [-122.4, 37.8]}}`,
		`{"user": {"location": "San Francisco, CA"}}`,
		`{}`,
	}
	want := []*models.GeoIdentity{&irvine, &sanFrancisco, &sanFrancisco, nil}

	var wg sync.WaitGroup
	for range 8 {
		for i, input := range inputs {
			wg.Add(1)
			go func() {
				defer wg.Done()
				var record models.Record
				if !assert.NoError(t, json.Unmarshal([]byte(input), &record)) {
					return
				}
				tag := engine.Tag(&record)
				if want[i] == nil {
					assert.Nil(t, tag)
					return
				}
				if assert.NotNil(t, tag) {
					assert.Equal(t, *want[i], tag.GeoIdentity)
				}
			}()
		}
	}
	wg.Wait()
}

func TestNew_Cache(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("success - all blobs persisted and reused without dataset", func(t *testing.T) {
		t.Parallel()

		store := newMemStore()
		newEngine(t, store, sampler.ModeCentroid, geotag.WithDataset(testDataset()))
		for _, name := range geotag.BlobNames(sampler.ModeCentroid) {
			assert.Contains(t, store.blobs, name)
		}

		// The configured geometry file does not exist, so this only works from the cache.
		engine := newEngine(t, store, sampler.ModeCentroid)
		tag := engine.Tag(decode(t, `{"place": {"full_name": "Irvine, CA"}}`))
		require.NotNil(t, tag)
		assert.Equal(t, irvine, tag.GeoIdentity)
	})

	t.Run("success - coordinate table is per sampler mode", func(t *testing.T) {
		t.Parallel()

		store := newMemStore()
		newEngine(t, store, sampler.ModeCentroid, geotag.WithDataset(testDataset()))

		_, err := geotag.New(ctx, engineConfig(store, sampler.ModeUniform))
		require.ErrorIs(t, err, reference.ErrDataset)

		newEngine(t, store, sampler.ModeUniform, geotag.WithDataset(testDataset()))
		assert.Contains(t, store.blobs, geotag.BlobCityCoordinates(sampler.ModeUniform))
		assert.Contains(t, store.blobs, geotag.BlobCityCoordinates(sampler.ModeCentroid))
	})

	t.Run("success - corrupted blob is rebuilt", func(t *testing.T) {
		t.Parallel()

		store := newMemStore()
		newEngine(t, store, sampler.ModeCentroid, geotag.WithDataset(testDataset()))
		store.blobs[geotag.BlobCityStateIndex] = []byte("not a blob")

		engine := newEngine(t, store, sampler.ModeCentroid, geotag.WithDataset(testDataset()))
		require.NotNil(t, engine.Tag(decode(t, `{"place": {"full_name": "Irvine, CA"}}`)))

		_, err := cachestore.Decode[reference.CityStateIndex](store.blobs[geotag.BlobCityStateIndex])
		require.NoError(t, err)
	})

	t.Run("success - disagreeing spatial blobs are rebuilt", func(t *testing.T) {
		t.Parallel()

		store := newMemStore()
		newEngine(t, store, sampler.ModeCentroid, geotag.WithDataset(testDataset()))

		stray, err := bbox.Standardize(-100, 40, -99, 41)
		require.NoError(t, err)
		geometry, err := cachestore.Encode([]bbox.Key{bbox.KeyOf(stray)})
		require.NoError(t, err)
		store.blobs[geotag.BlobSpatialGeometry] = geometry

		engine := newEngine(t, store, sampler.ModeCentroid, geotag.WithDataset(testDataset()))
		tag := engine.Tag(decode(t, `{"coordinates": {"type": "Point", "coordinates": [-122.4, 37.8]}}`))
		require.NotNil(t, tag)
		assert.Equal(t, sanFrancisco, tag.GeoIdentity)
	})

	t.Run("error - empty cache and missing dataset", func(t *testing.T) {
		t.Parallel()

		_, err := geotag.New(ctx, engineConfig(newMemStore(), sampler.ModeCentroid))
		require.ErrorIs(t, err, reference.ErrDataset)
	})
}

func TestBlobNames(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []string{
		"city_state_index",
		"spatial_identities",
		"spatial_geometry",
		"city_coordinates.gaussian",
	}, geotag.BlobNames(sampler.ModeGaussian))
}

func TestNew_SkippedCityIsLogged(t *testing.T) {
	t.Parallel()

	var logs bytes.Buffer
	cfg := engineConfig(newMemStore(), sampler.ModeCentroid)
	cfg.Logger = slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))

	ds := testDataset()
	ds.Features = append(ds.Features, reference.Feature{
		Name: "Inverted", StateName: "California", CityID: 1, CountyID: 1, StateID: 6,
		BBox: [4]float64{-117, 34, -118, 33},
	})

	engine, err := geotag.New(context.Background(), cfg, geotag.WithDataset(ds))
	require.NoError(t, err)

	assert.Contains(t, logs.String(), "Skipping city coordinate for unusable box")
	assert.Contains(t, logs.String(), "Inverted, California")
	assert.Nil(t, engine.Tag(decode(t, `{"place": {"full_name": "Inverted, CA"}}`)))
}
