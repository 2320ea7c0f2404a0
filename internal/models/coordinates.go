package models

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Bounds of the region the coordinate tier is allowed to reverse-geocode.
const (
	USAWestLongitude = -162.0
	USAEastLongitude = -68.0
	USASouthLatitude = 19.0
	USANorthLatitude = 65.0
)

// ErrInvalidCoordinate is returned when a coordinate pair cannot be decoded.
var ErrInvalidCoordinate = errors.New("invalid coordinate")

// Coordinate represents a geographical point defined by its longitude and latitude.
// It is encoded in JSON as a [lon, lat] array, matching GeoJSON positions.
type Coordinate struct {
	Longitude float64 // Longitude of the geographical point.
	Latitude  float64 // Latitude of the geographical point.
}

// Valid reports whether the coordinate lies in [-180,180]x[-90,90].
func (c Coordinate) Valid() bool {
	return c.Longitude >= -180 && c.Longitude <= 180 && c.Latitude >= -90 && c.Latitude <= 90
}

// WithinUSA reports whether the coordinate falls inside the continental USA box
// used to gate reverse geocoding.
func (c Coordinate) WithinUSA() bool {
	return c.Longitude <= USAEastLongitude &&
		c.Longitude >= USAWestLongitude &&
		c.Latitude >= USASouthLatitude &&
		c.Latitude <= USANorthLatitude
}

// MarshalJSON encodes the coordinate as [lon, lat].
func (c Coordinate) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]float64{c.Longitude, c.Latitude})
}

// UnmarshalJSON decodes a [lon, lat] array. Extra elements (altitude) are ignored.
func (c *Coordinate) UnmarshalJSON(data []byte) error {
	var pos []float64
	if err := json.Unmarshal(data, &pos); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidCoordinate, err)
	}
	const minPositionLen = 2
	if len(pos) < minPositionLen {
		return fmt.Errorf("%w: position has %d elements", ErrInvalidCoordinate, len(pos))
	}
	c.Longitude, c.Latitude = pos[0], pos[1]
	return nil
}
