// Package bbox standardizes axis-aligned rectangles so that the spatial index
// and the sampler agree on what a usable city box is.
package bbox

import (
	"errors"
	"fmt"

	"github.com/paulmach/orb"
)

// DegenerateOffset is subtracted from the west and south edges of a
// single-point box so that it becomes a valid rectangle.
const DegenerateOffset = 1e-7

// ErrInvalidGeometry is returned when a box cannot be turned into a rectangle.
var ErrInvalidGeometry = errors.New("invalid bounding box geometry")

// Key identifies a standardized rectangle by its four corners in clockwise
// order starting at the south-west corner.
type Key [4]orb.Point

// Standardize turns (west, south, east, north) into a non-degenerate bound.
// A zero-area point box is widened by DegenerateOffset; inverted edges fail
// with ErrInvalidGeometry.
func Standardize(west, south, east, north float64) (orb.Bound, error) {
	if west == east && south == north {
		west -= DegenerateOffset
		south -= DegenerateOffset
	}
	if west > east || south > north {
		return orb.Bound{}, fmt.Errorf(
			"%w: west=%v south=%v east=%v north=%v", ErrInvalidGeometry, west, south, east, north,
		)
	}

	return orb.Bound{Min: orb.Point{west, south}, Max: orb.Point{east, north}}, nil
}

// FromArray standardizes a [west, south, east, north] array.
func FromArray(box [4]float64) (orb.Bound, error) {
	return Standardize(box[0], box[1], box[2], box[3])
}

// FromCorners builds a standardized bound from an unordered list of [lon, lat]
// corners, taking the min and max over all of them.
func FromCorners(corners [][]float64) (orb.Bound, error) {
	if len(corners) == 0 {
		return orb.Bound{}, fmt.Errorf("%w: no corners", ErrInvalidGeometry)
	}

	const minPositionLen = 2
	var west, south, east, north float64
	for i, corner := range corners {
		if len(corner) < minPositionLen {
			return orb.Bound{}, fmt.Errorf("%w: corner %d has %d elements", ErrInvalidGeometry, i, len(corner))
		}
		lon, lat := corner[0], corner[1]
		if i == 0 {
			west, east, south, north = lon, lon, lat, lat
			continue
		}
		west, east = min(west, lon), max(east, lon)
		south, north = min(south, lat), max(north, lat)
	}

	return Standardize(west, south, east, north)
}

// KeyOf returns the clockwise corner key of a bound.
func KeyOf(b orb.Bound) Key {
	return Key{
		{b.Min[0], b.Min[1]},
		{b.Min[0], b.Max[1]},
		{b.Max[0], b.Max[1]},
		{b.Max[0], b.Min[1]},
	}
}

// Bound returns the rectangle described by the key.
func (k Key) Bound() orb.Bound {
	return orb.Bound{Min: k[0], Max: k[2]}
}

// Polygon returns the key as a closed polygon ring in clockwise order.
func (k Key) Polygon() orb.Polygon {
	return orb.Polygon{orb.Ring{k[0], k[1], k[2], k[3], k[0]}}
}
