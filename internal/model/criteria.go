package model

import (
	"encoding/json"
	"fmt"
	"regexp"
)

type SearchType string

const (
	SearchByAddress SearchType = "BY_ADDRESS"
	SearchByOwner   SearchType = "BY_OWNER"
	SearchByZone    SearchType = "BY_ZONE"
)

// ParseSearchType converts a raw string to a SearchType, returning an error
// for unknown values.
func ParseSearchType(s string) (SearchType, error) {
	st := SearchType(s)
	switch st {
	case SearchByAddress, SearchByOwner, SearchByZone:
		return st, nil
	}
	return "", fmt.Errorf("unknown search type %q", s)
}

// Criteria is the closed tagged union describing how to look up properties.
// Exactly one variant is set, matching the search type.
type Criteria struct {
	Address *AddressCriteria `json:"address,omitempty"`
	Owner   *OwnerCriteria   `json:"owner,omitempty"`
	Zone    *ZoneCriteria    `json:"zone,omitempty"`
}

type AddressCriteria struct {
	Address    string `json:"address"`
	PostalCode string `json:"postal_code,omitempty"`
}

type OwnerCriteria struct {
	Name  string `json:"name"`
	SIREN string `json:"siren,omitempty"`
}

type ZoneCriteria struct {
	Polygon []Vertex `json:"polygon"`
}

type Vertex struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// BoundingBox is the bbox pre-filter pushed down to the data source. Exact
// polygon containment is not applied; the bbox approximation is documented
// behaviour.
type BoundingBox struct {
	MinLat float64
	MaxLat float64
	MinLng float64
	MaxLng float64
}

// Bounds computes the polygon's bounding box.
func (z *ZoneCriteria) Bounds() BoundingBox {
	box := BoundingBox{
		MinLat: z.Polygon[0].Lat,
		MaxLat: z.Polygon[0].Lat,
		MinLng: z.Polygon[0].Lng,
		MaxLng: z.Polygon[0].Lng,
	}
	for _, v := range z.Polygon[1:] {
		if v.Lat < box.MinLat {
			box.MinLat = v.Lat
		}
		if v.Lat > box.MaxLat {
			box.MaxLat = v.Lat
		}
		if v.Lng < box.MinLng {
			box.MinLng = v.Lng
		}
		if v.Lng > box.MaxLng {
			box.MaxLng = v.Lng
		}
	}
	return box
}

var sirenPattern = regexp.MustCompile(`^\d{9}$`)

// ParseCriteria validates a loosely-typed payload into the closed union
// before it enters the core. Anything else is rejected.
func ParseCriteria(searchType SearchType, raw json.RawMessage) (*Criteria, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("criteria is required")
	}

	switch searchType {
	case SearchByAddress:
		var c AddressCriteria
		if err := json.Unmarshal(raw, &c); err != nil {
			return nil, fmt.Errorf("malformed address criteria: %w", err)
		}
		if c.Address == "" {
			return nil, fmt.Errorf("address is required")
		}
		return &Criteria{Address: &c}, nil

	case SearchByOwner:
		var c OwnerCriteria
		if err := json.Unmarshal(raw, &c); err != nil {
			return nil, fmt.Errorf("malformed owner criteria: %w", err)
		}
		if c.Name == "" && c.SIREN == "" {
			return nil, fmt.Errorf("owner name or siren is required")
		}
		if c.SIREN != "" && !sirenPattern.MatchString(c.SIREN) {
			return nil, fmt.Errorf("siren must be 9 digits")
		}
		return &Criteria{Owner: &c}, nil

	case SearchByZone:
		var c ZoneCriteria
		if err := json.Unmarshal(raw, &c); err != nil {
			return nil, fmt.Errorf("malformed zone criteria: %w", err)
		}
		if len(c.Polygon) < 3 {
			return nil, fmt.Errorf("polygon requires at least 3 vertices")
		}
		for _, v := range c.Polygon {
			if v.Lat < -90 || v.Lat > 90 || v.Lng < -180 || v.Lng > 180 {
				return nil, fmt.Errorf("vertex (%f, %f) out of range", v.Lat, v.Lng)
			}
		}
		return &Criteria{Zone: &c}, nil
	}

	return nil, fmt.Errorf("unknown search type %q", searchType)
}
