package cachestore_test

import (
	"testing"

	"github.com/UnknownOlympus/gaia/internal/cachestore"
	"github.com/UnknownOlympus/gaia/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodec(t *testing.T) {
	t.Parallel()

	table := map[string]models.Coordinate{
		"Irvine, California":        {Longitude: -117.8, Latitude: 33.68},
		"San Francisco, California": {Longitude: -122.4, Latitude: 37.8},
	}

	t.Run("success - round trip", func(t *testing.T) {
		t.Parallel()

		data, err := cachestore.Encode(table)
		require.NoError(t, err)

		decoded, err := cachestore.Decode[map[string]models.Coordinate](data)
		require.NoError(t, err)
		assert.Equal(t, table, decoded)
	})

	t.Run("error - bad header", func(t *testing.T) {
		t.Parallel()

		_, err := cachestore.Decode[map[string]models.Coordinate]([]byte("pickle"))
		require.ErrorIs(t, err, cachestore.ErrCorrupted)
	})

	t.Run("error - truncated payload", func(t *testing.T) {
		t.Parallel()

		data, err := cachestore.Encode(table)
		require.NoError(t, err)

		_, err = cachestore.Decode[map[string]models.Coordinate](data[:len(data)-4])
		require.ErrorIs(t, err, cachestore.ErrCorrupted)
	})

	t.Run("error - wrong type", func(t *testing.T) {
		t.Parallel()

		data, err := cachestore.Encode(table)
		require.NoError(t, err)

		_, err = cachestore.Decode[[]string](data)
		require.ErrorIs(t, err, cachestore.ErrCorrupted)
	})
}
