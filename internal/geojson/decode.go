// Package geojson converts validated WGS84 FeatureCollection payloads from
// the acquisition layer into boundary geometries. It is the only place orb
// types appear; everything downstream works on the internal model.
package geojson

import (
	"fmt"
	"time"

	"github.com/paulmach/orb"
	orbgeojson "github.com/paulmach/orb/geojson"

	"github.com/civicproof/boundary-registry/internal/domain/boundary"
)

// Defaults fill metadata fields a feature's properties omit. Provenance is
// stamped per boundary by the caller (the ingestion job knows the source).
type Defaults struct {
	Type         boundary.Type
	Jurisdiction string
	Provenance   boundary.Provenance
	ValidFrom    time.Time
}

// FeatureError ties a per-feature decode or validation failure to the
// feature's position and claimed id, so ingestion can report it without
// dropping the rest of the collection.
type FeatureError struct {
	Index      int
	BoundaryID string
	Err        error
}

func (e FeatureError) Error() string {
	return fmt.Sprintf("feature %d (%q): %v", e.Index, e.BoundaryID, e.Err)
}

func (e FeatureError) Unwrap() error { return e.Err }

// DecodeFeatureCollection parses data and converts each feature into a
// boundary geometry. Malformed collections fail outright; individual
// invalid features are collected into the returned FeatureError slice
// while valid siblings decode normally.
func DecodeFeatureCollection(data []byte, defaults Defaults) ([]*boundary.Geometry, []FeatureError, error) {
	fc, err := orbgeojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, nil, fmt.Errorf("parse feature collection: %w", err)
	}

	var (
		geoms  []*boundary.Geometry
		failed []FeatureError
	)
	for i, feature := range fc.Features {
		md, err := metadataFromProperties(feature.Properties, defaults)
		if err != nil {
			failed = append(failed, FeatureError{Index: i, BoundaryID: feature.Properties.MustString("id", ""), Err: err})
			continue
		}

		polygons, err := polygonsFromGeometry(feature.Geometry)
		if err != nil {
			failed = append(failed, FeatureError{Index: i, BoundaryID: md.ID, Err: err})
			continue
		}

		geom, err := boundary.NewGeometry(md, polygons)
		if err != nil {
			failed = append(failed, FeatureError{Index: i, BoundaryID: md.ID, Err: err})
			continue
		}
		geoms = append(geoms, geom)
	}
	return geoms, failed, nil
}

func metadataFromProperties(props orbgeojson.Properties, defaults Defaults) (boundary.Metadata, error) {
	md := boundary.Metadata{
		ID:               props.MustString("id", ""),
		Name:             props.MustString("name", ""),
		Jurisdiction:     props.MustString("jurisdiction", defaults.Jurisdiction),
		JurisdictionCode: props.MustString("jurisdiction_code", ""),
		Provenance:       defaults.Provenance,
		ValidFrom:        defaults.ValidFrom,
	}

	md.Type = defaults.Type
	if raw := props.MustString("type", ""); raw != "" {
		md.Type = boundary.Type(raw)
	}

	if raw := props.MustString("valid_from", ""); raw != "" {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return boundary.Metadata{}, fmt.Errorf("parse valid_from: %w", err)
		}
		md.ValidFrom = ts.UTC()
	}
	if raw := props.MustString("valid_until", ""); raw != "" {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return boundary.Metadata{}, fmt.Errorf("parse valid_until: %w", err)
		}
		utc := ts.UTC()
		md.ValidUntil = &utc
	}

	return md, nil
}

func polygonsFromGeometry(geom orb.Geometry) ([]boundary.Polygon, error) {
	switch g := geom.(type) {
	case orb.Polygon:
		return []boundary.Polygon{convertPolygon(g)}, nil
	case orb.MultiPolygon:
		polys := make([]boundary.Polygon, 0, len(g))
		for _, p := range g {
			polys = append(polys, convertPolygon(p))
		}
		return polys, nil
	default:
		return nil, fmt.Errorf("unsupported geometry type %T: want Polygon or MultiPolygon", geom)
	}
}

func convertPolygon(p orb.Polygon) boundary.Polygon {
	rings := make([]boundary.Ring, 0, len(p))
	for _, r := range p {
		ring := make(boundary.Ring, 0, len(r))
		for _, pt := range r {
			ring = append(ring, boundary.Point{Lat: pt.Lat(), Lon: pt.Lon()})
		}
		// GeoJSON rings close explicitly; the internal model does not need
		// the duplicate vertex.
		if len(ring) >= 2 && ring[0] == ring[len(ring)-1] {
			ring = ring[:len(ring)-1]
		}
		rings = append(rings, ring)
	}
	return boundary.Polygon{Rings: rings}
}
