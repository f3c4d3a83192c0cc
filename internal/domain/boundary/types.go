// Package boundary defines the canonical model for political and
// administrative boundaries: typed metadata, WGS84 polygon geometry,
// provenance, and validity windows. Values are built once, validated,
// and treated as immutable afterwards so committed trees and snapshots
// never observe mutation.
package boundary

import "fmt"

// Type categorises an administrative area. The set is closed: precision
// ranking is an exhaustive switch so adding a type is a compile-checked
// change, not a map edit.
type Type string

const (
	TypeCityCouncilDistrict Type = "city_council_district"
	TypeCityCouncilWard     Type = "city_council_ward"
	TypeCityLimits          Type = "city_limits"
	TypeCounty              Type = "county"
	TypeState               Type = "state"
	TypeCountry             Type = "country"
)

// PrecisionRank orders types from finest (0) to coarsest. It panics on an
// unknown type; validation rejects unknown types before they reach ranking.
func (t Type) PrecisionRank() int {
	switch t {
	case TypeCityCouncilDistrict:
		return 0
	case TypeCityCouncilWard:
		return 1
	case TypeCityLimits:
		return 2
	case TypeCounty:
		return 3
	case TypeState:
		return 4
	case TypeCountry:
		return 5
	}
	panic(fmt.Sprintf("boundary: unknown type %q", string(t)))
}

// Valid reports whether t is one of the known boundary types.
func (t Type) Valid() bool {
	switch t {
	case TypeCityCouncilDistrict, TypeCityCouncilWard, TypeCityLimits,
		TypeCounty, TypeState, TypeCountry:
		return true
	}
	return false
}

// AllTypes returns every boundary type in ascending precision-rank order.
func AllTypes() []Type {
	return []Type{
		TypeCityCouncilDistrict,
		TypeCityCouncilWard,
		TypeCityLimits,
		TypeCounty,
		TypeState,
		TypeCountry,
	}
}
