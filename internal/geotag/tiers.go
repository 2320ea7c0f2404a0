package geotag

import (
	"errors"
	"fmt"
	"time"

	"github.com/UnknownOlympus/gaia/internal/bbox"
	"github.com/UnknownOlympus/gaia/internal/models"
	"github.com/paulmach/orb"
)

var (
	// ErrNoPlace is returned by the place tier when the record has no place name.
	ErrNoPlace = errors.New("record has no place name")
	// ErrNoHint is returned by the coordinate tier when the record has no coordinate hint.
	ErrNoHint = errors.New("record has no coordinate hint")
	// ErrNoUserLocation is returned by the user profile tier when the profile has no location.
	ErrNoUserLocation = errors.New("record has no user location")
	// ErrNoCityCoordinate is returned when a resolved city has no coordinate table entry.
	ErrNoCityCoordinate = errors.New("city has no coordinate")
)

const (
	tierPlace       = "place"
	tierCoordinate  = "coordinate"
	tierUserProfile = "user_profile"
)

// hint is the coordinate extracted from a record before any tier runs.
type hint struct {
	coord  models.Coordinate
	source models.CoordinateSource
}

// Tag runs the inference chain on record, stores the result in record.GeoTag
// and returns it. A nil result means no tier could tag the record.
func (e *Engine) Tag(record *models.Record) *models.GeoTag {
	start := time.Now()
	defer func() {
		e.metrics.TagSeconds.Observe(time.Since(start).Seconds())
	}()

	h, hasHint := e.coordinateHint(record)

	tag, err := e.tagFromPlace(record, h, hasHint)
	if e.observe(tierPlace, err) {
		record.GeoTag = &tag
		return record.GeoTag
	}

	tag, err = e.tagFromCoordinate(h, hasHint)
	if e.observe(tierCoordinate, err) {
		record.GeoTag = &tag
		return record.GeoTag
	}

	// A record that carries a coordinate is never tagged from its profile text.
	if !hasHint {
		tag, err = e.tagFromUserProfile(record)
		if e.observe(tierUserProfile, err) {
			record.GeoTag = &tag
			return record.GeoTag
		}
	}

	record.GeoTag = nil
	return nil
}

// observe counts a tier outcome and reports whether the tier succeeded.
func (e *Engine) observe(tier string, err error) bool {
	if err == nil {
		e.metrics.TierOutcomes.WithLabelValues(tier, "hit").Inc()
		return true
	}
	e.metrics.TierOutcomes.WithLabelValues(tier, "miss").Inc()
	e.log.Debug("Tier did not tag record", "tier", tier, "reason", err)
	return false
}

// coordinateHint prefers exact coordinates over a sample from the place box.
func (e *Engine) coordinateHint(record *models.Record) (hint, bool) {
	if point, ok := record.Point(); ok {
		if point.Valid() {
			return hint{coord: point, source: models.CoordinateSourceCoordinates}, true
		}
		e.log.Debug("Ignoring out of range coordinates", "coordinate", point)
	}

	corners, ok := record.PlaceCorners()
	if !ok {
		return hint{}, false
	}

	bound, err := bbox.FromCorners(corners)
	if err != nil {
		e.log.Debug("Ignoring unusable place bounding box", "error", err)
		return hint{}, false
	}

	coord, err := e.sampler.Sample(bound)
	if err != nil {
		e.log.Debug("Sampling failed, using place box center", "error", err)
		coord = boxCenter(bound)
	}

	return hint{coord: coord, source: models.CoordinateSourceBoundingBox}, true
}

func (e *Engine) tagFromPlace(record *models.Record, h hint, hasHint bool) (models.GeoTag, error) {
	name, ok := record.PlaceName()
	if !ok {
		return models.GeoTag{}, ErrNoPlace
	}

	identity, key, err := e.resolver.Resolve(name)
	if err != nil {
		return models.GeoTag{}, err
	}

	if hasHint {
		return models.GeoTag{
			GeoIdentity:      identity,
			Coordinate:       h.coord,
			CoordinateSource: h.source,
			Source:           models.SourcePlace,
		}, nil
	}

	coord, err := e.cityCoordinate(key)
	if err != nil {
		return models.GeoTag{}, err
	}

	return models.GeoTag{
		GeoIdentity:      identity,
		Coordinate:       coord,
		CoordinateSource: models.CoordinateSourceUserLocation,
		Source:           models.SourcePlace,
	}, nil
}

func (e *Engine) tagFromCoordinate(h hint, hasHint bool) (models.GeoTag, error) {
	if !hasHint {
		return models.GeoTag{}, ErrNoHint
	}

	identity, err := e.spatial.Locate(h.coord)
	if err != nil {
		return models.GeoTag{}, err
	}

	return models.GeoTag{
		GeoIdentity:      identity,
		Coordinate:       h.coord,
		CoordinateSource: h.source,
		Source:           models.SourceCoordinate,
	}, nil
}

func (e *Engine) tagFromUserProfile(record *models.Record) (models.GeoTag, error) {
	location, ok := record.UserLocation()
	if !ok {
		return models.GeoTag{}, ErrNoUserLocation
	}

	identity, key, err := e.resolver.Resolve(location)
	if err != nil {
		return models.GeoTag{}, err
	}

	coord, err := e.cityCoordinate(key)
	if err != nil {
		return models.GeoTag{}, err
	}

	return models.GeoTag{
		GeoIdentity:      identity,
		Coordinate:       coord,
		CoordinateSource: models.CoordinateSourceUserLocation,
		Source:           models.SourceUserProfile,
	}, nil
}

func boxCenter(b orb.Bound) models.Coordinate {
	center := b.Center()
	return models.Coordinate{Longitude: center[0], Latitude: center[1]}
}

func (e *Engine) cityCoordinate(key string) (models.Coordinate, error) {
	coord, ok := e.cities[key]
	if !ok {
		return models.Coordinate{}, fmt.Errorf("%w: %q", ErrNoCityCoordinate, key)
	}
	return coord, nil
}
