package reference

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/UnknownOlympus/gaia/internal/models"
)

var (
	// ErrMalformedLocation is returned when the text is not of the form "City, ST".
	ErrMalformedLocation = errors.New("location is not in 'City, ST' form")
	// ErrUnknownState is returned when the state abbreviation is not in the state table.
	ErrUnknownState = errors.New("unknown state abbreviation")
	// ErrUnknownCity is returned when the city is not present in the city-state index.
	ErrUnknownCity = errors.New("unknown city")
)

// CityEntry holds the identifiers stored per "City, StateFullName" key.
type CityEntry struct {
	CityID     int64
	CountyID   int64
	StateID    int64
	CountyName string
}

// CityStateIndex maps "City, StateFullName" to the city identifiers.
type CityStateIndex map[string]CityEntry

// BuildCityStateIndex indexes every feature by its city-state key.
// Duplicate keys are overwritten by the later feature.
func BuildCityStateIndex(features []Feature, log *slog.Logger) CityStateIndex {
	index := make(CityStateIndex, len(features))
	duplicates := 0

	for _, f := range features {
		key := f.Key()
		if _, exists := index[key]; exists {
			duplicates++
		}
		index[key] = CityEntry{
			CityID:     f.CityID,
			CountyID:   f.CountyID,
			StateID:    f.StateID,
			CountyName: f.CountyName,
		}
	}

	if duplicates > 0 {
		log.Debug("City-state index has duplicate keys, last feature wins", "duplicates", duplicates)
	}

	return index
}

// Resolver turns "City, ST" text into a city identity.
type Resolver struct {
	states StateTable
	index  CityStateIndex
}

// NewResolver creates a resolver over a state table and a city-state index.
func NewResolver(states StateTable, index CityStateIndex) *Resolver {
	return &Resolver{states: states, index: index}
}

// Resolve parses text of the form "City, ST" and returns the matching identity
// together with the index key that was used.
func (r *Resolver) Resolve(text string) (models.GeoIdentity, string, error) {
	city, abbrev, found := strings.Cut(text, ",")
	if !found {
		return models.GeoIdentity{}, "", fmt.Errorf("%w: %q", ErrMalformedLocation, text)
	}
	city = strings.TrimSpace(city)
	// Anything after a second comma (", USA") is not part of the abbreviation.
	abbrev, _, _ = strings.Cut(abbrev, ",")

	stateName, ok := r.states.FullName(abbrev)
	if !ok {
		return models.GeoIdentity{}, "", fmt.Errorf("%w: %q", ErrUnknownState, strings.TrimSpace(abbrev))
	}

	key := CityStateKey(city, stateName)
	entry, ok := r.index[key]
	if !ok {
		return models.GeoIdentity{}, "", fmt.Errorf("%w: %q", ErrUnknownCity, key)
	}

	return models.GeoIdentity{
		StateID:    entry.StateID,
		StateName:  stateName,
		CountyID:   entry.CountyID,
		CountyName: entry.CountyName,
		CityID:     entry.CityID,
		CityName:   city,
	}, key, nil
}
