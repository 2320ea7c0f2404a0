package models

// CoordinateSource records which input field produced a tag's coordinate.
type CoordinateSource string

const (
	// CoordinateSourceCoordinates means the record carried exact coordinates.
	CoordinateSourceCoordinates CoordinateSource = "coordinates"
	// CoordinateSourceBoundingBox means the coordinate was sampled from the place bounding box.
	CoordinateSourceBoundingBox CoordinateSource = "bounding_box"
	// CoordinateSourceUserLocation means the coordinate came from the city coordinate table.
	CoordinateSourceUserLocation CoordinateSource = "user_location"
)

// Source records which inference tier produced a tag.
type Source string

const (
	// SourcePlace is the structured place tier.
	SourcePlace Source = "place"
	// SourceCoordinate is the reverse-geocoding tier.
	SourceCoordinate Source = "coordinate"
	// SourceUserProfile is the user profile location tier.
	SourceUserProfile Source = "user_profile"
)

// GeoIdentity is the state/county/city identity of a location. Its fields are
// always populated together.
type GeoIdentity struct {
	StateID    int64  `json:"stateID"`
	StateName  string `json:"stateName"`
	CountyID   int64  `json:"countyID"`
	CountyName string `json:"countyName"`
	CityID     int64  `json:"cityID"`
	CityName   string `json:"cityName"`
}

// GeoTag is the inferred location attached to a record.
type GeoTag struct {
	GeoIdentity

	Coordinate       Coordinate       `json:"coordinate"`
	CoordinateSource CoordinateSource `json:"coordinateSource"`
	Source           Source           `json:"source"`
}
