// Package spatial reverse-geocodes a coordinate to the city rectangle that
// contains it.
package spatial

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/UnknownOlympus/gaia/internal/bbox"
	"github.com/UnknownOlympus/gaia/internal/models"
	"github.com/UnknownOlympus/gaia/internal/reference"
	"github.com/tidwall/rtree"
)

var (
	// ErrOutOfRegion is returned for coordinates outside the continental USA box.
	ErrOutOfRegion = errors.New("coordinate is outside the supported region")
	// ErrNotFound is returned when no city rectangle contains the coordinate.
	ErrNotFound = errors.New("no city contains the coordinate")
	// ErrInconsistentSnapshot is returned when a geometry has no identity.
	ErrInconsistentSnapshot = errors.New("spatial snapshot is inconsistent")
)

// Snapshot is the persisted form of the index: the ordered list of rectangles
// and the identity of each one.
type Snapshot struct {
	Geometry   []bbox.Key
	Identities map[bbox.Key]models.GeoIdentity
}

// BuildSnapshot standardizes every feature box and keys it by its corners.
// Features whose box cannot be standardized are logged and skipped. When two
// cities share a rectangle the later one owns it.
func BuildSnapshot(features []reference.Feature, log *slog.Logger) Snapshot {
	snapshot := Snapshot{
		Geometry:   make([]bbox.Key, 0, len(features)),
		Identities: make(map[bbox.Key]models.GeoIdentity, len(features)),
	}

	skipped := 0
	for _, f := range features {
		bound, err := bbox.FromArray(f.BBox)
		if err != nil {
			skipped++
			log.Warn("Skipping feature with unusable bounding box", "city", f.Key(), "error", err)
			continue
		}

		key := bbox.KeyOf(bound)
		if _, exists := snapshot.Identities[key]; !exists {
			snapshot.Geometry = append(snapshot.Geometry, key)
		}
		snapshot.Identities[key] = models.GeoIdentity{
			StateID:    f.StateID,
			StateName:  f.StateName,
			CountyID:   f.CountyID,
			CountyName: f.CountyName,
			CityID:     f.CityID,
			CityName:   f.Name,
		}
	}

	log.Debug("Spatial snapshot built", "rectangles", len(snapshot.Geometry), "skipped", skipped)

	return snapshot
}

// Index answers point-in-rectangle queries. It is read-only after New and
// safe for concurrent use.
type Index struct {
	tree rtree.RTreeG[models.GeoIdentity]
	size int
}

// New builds the R-tree from a snapshot, inserting rectangles in list order.
func New(snapshot Snapshot) (*Index, error) {
	idx := &Index{}
	for i, key := range snapshot.Geometry {
		identity, ok := snapshot.Identities[key]
		if !ok {
			return nil, fmt.Errorf("%w: geometry %d has no identity", ErrInconsistentSnapshot, i)
		}
		b := key.Bound()
		idx.tree.Insert(b.Min, b.Max, identity)
	}
	idx.size = len(snapshot.Geometry)

	return idx, nil
}

// Len returns the number of indexed rectangles.
func (idx *Index) Len() int {
	return idx.size
}

// Locate returns the identity of the first rectangle containing coord.
// Overlapping rectangles are not ranked; the tree's enumeration order decides.
func (idx *Index) Locate(coord models.Coordinate) (models.GeoIdentity, error) {
	if !coord.WithinUSA() {
		return models.GeoIdentity{}, fmt.Errorf(
			"%w: lon=%v lat=%v", ErrOutOfRegion, coord.Longitude, coord.Latitude,
		)
	}

	point := [2]float64{coord.Longitude, coord.Latitude}

	var (
		found    models.GeoIdentity
		hasMatch bool
	)
	idx.tree.Search(point, point, func(_, _ [2]float64, identity models.GeoIdentity) bool {
		found, hasMatch = identity, true
		return false
	})

	if !hasMatch {
		return models.GeoIdentity{}, fmt.Errorf(
			"%w: lon=%v lat=%v", ErrNotFound, coord.Longitude, coord.Latitude,
		)
	}

	return found, nil
}
