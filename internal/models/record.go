package models

import (
	"encoding/json"
	"errors"
	"fmt"
)

// PointGeometry is a GeoJSON point as found in a record's "coordinates" field.
type PointGeometry struct {
	Type        string      `json:"type"`
	Coordinates *Coordinate `json:"coordinates"`
}

// PolygonGeometry is a GeoJSON polygon as found in a place's "bounding_box" field.
type PolygonGeometry struct {
	Type        string        `json:"type"`
	Coordinates [][][]float64 `json:"coordinates"`
}

// Place is the structured place reference attached to a record.
type Place struct {
	FullName    string           `json:"full_name"`
	BoundingBox *PolygonGeometry `json:"bounding_box"`
}

// User is the subset of the author profile used for inference.
type User struct {
	Location string `json:"location"`
}

// Record is a social media post. Only the fields used for geo inference are
// decoded; every other field is kept verbatim and written back on encoding.
type Record struct {
	Coordinates *PointGeometry
	Place       *Place
	User        *User
	GeoTag      *GeoTag

	fields map[string]json.RawMessage
}

const geoTagField = "geo_tag"

// ErrNotObject is returned when a record is JSON null rather than an object.
var ErrNotObject = errors.New("record is not a JSON object")

// UnmarshalJSON decodes a record. The input must be a JSON object; malformed
// optional fields are treated as absent.
func (r *Record) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return fmt.Errorf("failed to decode record: %w", err)
	}
	if fields == nil {
		return fmt.Errorf("failed to decode record: %w", ErrNotObject)
	}

	*r = Record{fields: fields}
	decodeOptional(fields, "coordinates", &r.Coordinates)
	decodeOptional(fields, "place", &r.Place)
	decodeOptional(fields, "user", &r.User)

	return nil
}

// MarshalJSON encodes the record with all original fields plus "geo_tag",
// which is always present and null when the record is untagged.
func (r Record) MarshalJSON() ([]byte, error) {
	out := make(map[string]json.RawMessage, len(r.fields)+1)
	for k, v := range r.fields {
		out[k] = v
	}

	tag := json.RawMessage("null")
	if r.GeoTag != nil {
		encoded, err := json.Marshal(r.GeoTag)
		if err != nil {
			return nil, fmt.Errorf("failed to encode geo tag: %w", err)
		}
		tag = encoded
	}
	out[geoTagField] = tag

	return json.Marshal(out)
}

// Point returns the exact coordinate carried by the record, if any.
func (r *Record) Point() (Coordinate, bool) {
	if r.Coordinates == nil || r.Coordinates.Coordinates == nil {
		return Coordinate{}, false
	}
	return *r.Coordinates.Coordinates, true
}

// PlaceCorners returns the outer ring of the place bounding box, if any.
func (r *Record) PlaceCorners() ([][]float64, bool) {
	if r.Place == nil || r.Place.BoundingBox == nil || len(r.Place.BoundingBox.Coordinates) == 0 {
		return nil, false
	}
	ring := r.Place.BoundingBox.Coordinates[0]
	return ring, len(ring) > 0
}

// PlaceName returns the place full name, e.g. "Irvine, CA".
func (r *Record) PlaceName() (string, bool) {
	if r.Place == nil || r.Place.FullName == "" {
		return "", false
	}
	return r.Place.FullName, true
}

// UserLocation returns the free-text profile location.
func (r *Record) UserLocation() (string, bool) {
	if r.User == nil || r.User.Location == "" {
		return "", false
	}
	return r.User.Location, true
}

func decodeOptional[T any](fields map[string]json.RawMessage, key string, dst **T) {
	raw, ok := fields[key]
	if !ok || string(raw) == "null" {
		return
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return
	}
	*dst = &v
}
