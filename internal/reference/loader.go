// Package reference loads the city geometry dataset and resolves
// "City, ST" text to a city identity.
package reference

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/paulmach/orb/geojson"
)

// ErrDataset is returned when the reference data is missing or incomplete.
// The engine must not start with a partial index.
var ErrDataset = errors.New("invalid reference dataset")

// Feature is one city of the reference dataset.
type Feature struct {
	Name       string
	StateName  string
	CountyName string
	CityID     int64
	CountyID   int64
	StateID    int64
	BBox       [4]float64 // west, south, east, north
}

// Key returns the "City, StateFullName" key of the feature.
func (f Feature) Key() string {
	return CityStateKey(f.Name, f.StateName)
}

// Dataset is the parsed reference data.
type Dataset struct {
	Features []Feature
	States   StateTable
}

// CityStateKey builds the "City, StateFullName" lookup key.
func CityStateKey(city, stateName string) string {
	return city + ", " + stateName
}

// Load parses the geometry feature collection and the state abbreviation table.
func Load(geometryPath, abbrevPath string) (*Dataset, error) {
	features, err := LoadFeatures(geometryPath)
	if err != nil {
		return nil, err
	}

	states, err := LoadStates(abbrevPath)
	if err != nil {
		return nil, err
	}

	return &Dataset{Features: features, States: states}, nil
}

// LoadFeatures reads a GeoJSON feature collection of cities. Every feature
// needs a name, a state name and a bounding box (explicit "bbox" member or a
// geometry to derive it from).
func LoadFeatures(path string) ([]Feature, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read geometry file: %w", ErrDataset, err)
	}

	collection, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to decode geometry file: %w", ErrDataset, err)
	}

	features := make([]Feature, 0, len(collection.Features))
	for idx, raw := range collection.Features {
		feature, errParse := parseFeature(raw)
		if errParse != nil {
			return nil, fmt.Errorf("feature %d: %w", idx, errParse)
		}
		features = append(features, feature)
	}

	return features, nil
}

func parseFeature(raw *geojson.Feature) (Feature, error) {
	if raw.Properties == nil {
		return Feature{}, fmt.Errorf("%w: missing properties", ErrDataset)
	}

	var feature Feature
	var err error

	if feature.Name = stringProperty(raw.Properties, "name"); feature.Name == "" {
		return Feature{}, fmt.Errorf("%w: missing name", ErrDataset)
	}
	if feature.StateName = stringProperty(raw.Properties, "stateName"); feature.StateName == "" {
		return Feature{}, fmt.Errorf("%w: missing stateName for %q", ErrDataset, feature.Name)
	}
	feature.CountyName = stringProperty(raw.Properties, "countyName")

	if feature.CityID, err = idProperty(raw.Properties, "cityID"); err != nil {
		return Feature{}, err
	}
	if feature.CountyID, err = idProperty(raw.Properties, "countyID"); err != nil {
		return Feature{}, err
	}
	if feature.StateID, err = idProperty(raw.Properties, "stateID"); err != nil {
		return Feature{}, err
	}

	switch {
	case raw.BBox.Valid():
		b := raw.BBox.Bound()
		feature.BBox = [4]float64{b.Min[0], b.Min[1], b.Max[0], b.Max[1]}
	case raw.Geometry != nil:
		b := raw.Geometry.Bound()
		feature.BBox = [4]float64{b.Min[0], b.Min[1], b.Max[0], b.Max[1]}
	default:
		return Feature{}, fmt.Errorf("%w: missing bounding box for %q", ErrDataset, feature.Key())
	}

	return feature, nil
}

func stringProperty(props geojson.Properties, key string) string {
	if v, ok := props[key].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

// idProperty accepts JSON numbers and numeric strings. A missing id is zero.
func idProperty(props geojson.Properties, key string) (int64, error) {
	switch v := props[key].(type) {
	case nil:
		return 0, nil
	case float64:
		return int64(v), nil
	case json.Number:
		id, err := v.Int64()
		if err != nil {
			return 0, fmt.Errorf("%w: %s: %w", ErrDataset, key, err)
		}
		return id, nil
	case string:
		id, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %s: %w", ErrDataset, key, err)
		}
		return id, nil
	default:
		return 0, fmt.Errorf("%w: %s has unsupported type %T", ErrDataset, key, v)
	}
}
