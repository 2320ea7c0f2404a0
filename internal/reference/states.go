package reference

import (
	"encoding/json"
	"fmt"
	"maps"
	"os"
	"strings"
)

// StateTable maps a two-letter state abbreviation to the full state name.
type StateTable map[string]string

// usStates is used when no abbreviation file is configured.
var usStates = StateTable{
	"AL": "Alabama", "AK": "Alaska", "AZ": "Arizona", "AR": "Arkansas",
	"CA": "California", "CO": "Colorado", "CT": "Connecticut", "DE": "Delaware",
	"FL": "Florida", "GA": "Georgia", "HI": "Hawaii", "ID": "Idaho",
	"IL": "Illinois", "IN": "Indiana", "IA": "Iowa", "KS": "Kansas",
	"KY": "Kentucky", "LA": "Louisiana", "ME": "Maine", "MD": "Maryland",
	"MA": "Massachusetts", "MI": "Michigan", "MN": "Minnesota", "MS": "Mississippi",
	"MO": "Missouri", "MT": "Montana", "NE": "Nebraska", "NV": "Nevada",
	"NH": "New Hampshire", "NJ": "New Jersey", "NM": "New Mexico", "NY": "New York",
	"NC": "North Carolina", "ND": "North Dakota", "OH": "Ohio", "OK": "Oklahoma",
	"OR": "Oregon", "PA": "Pennsylvania", "RI": "Rhode Island", "SC": "South Carolina",
	"SD": "South Dakota", "TN": "Tennessee", "TX": "Texas", "UT": "Utah",
	"VT": "Vermont", "VA": "Virginia", "WA": "Washington", "WV": "West Virginia",
	"WI": "Wisconsin", "WY": "Wyoming",
	// Territories
	"AS": "American Samoa", "DC": "District of Columbia", "GU": "Guam",
	"MP": "Northern Mariana Islands", "PR": "Puerto Rico", "VI": "Virgin Islands",
	// Armed Forces
	"AA": "Armed Forces Americas", "AE": "Armed Forces Europe", "AP": "Armed Forces Pacific",
}

// DefaultStates returns a copy of the built-in US state table.
func DefaultStates() StateTable {
	return maps.Clone(usStates)
}

// LoadStates reads a JSON object of abbreviation -> full name. An empty path
// returns the built-in table.
func LoadStates(path string) (StateTable, error) {
	if path == "" {
		return DefaultStates(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read state table: %w", ErrDataset, err)
	}

	var raw map[string]string
	if err = json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: failed to decode state table: %w", ErrDataset, err)
	}

	states := make(StateTable, len(raw))
	for abbrev, name := range raw {
		states[strings.ToUpper(strings.TrimSpace(abbrev))] = name
	}

	return states, nil
}

// FullName returns the full state name for an abbreviation.
func (s StateTable) FullName(abbrev string) (string, bool) {
	name, ok := s[strings.ToUpper(strings.TrimSpace(abbrev))]
	return name, ok
}
