package merkle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civicproof/boundary-registry/internal/domain/boundary"
)

func leafGeom(t *testing.T, mutate func(*boundary.Metadata, *[]boundary.Polygon)) *boundary.Geometry {
	t.Helper()
	prov, err := boundary.NewProvenance("test-source", time.Now(), 90, nil)
	require.NoError(t, err)
	md := boundary.Metadata{
		ID:               "ocd-division/country:us/state:wa",
		Type:             boundary.TypeState,
		Name:             "Washington",
		Jurisdiction:     "US",
		JurisdictionCode: "US",
		Provenance:       prov,
		ValidFrom:        time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	polygons := []boundary.Polygon{{Rings: []boundary.Ring{{
		{Lat: 45.5, Lon: -124.8},
		{Lat: 45.5, Lon: -116.9},
		{Lat: 49.0, Lon: -116.9},
		{Lat: 49.0, Lon: -124.8},
	}}}}
	if mutate != nil {
		mutate(&md, &polygons)
	}
	g, err := boundary.NewGeometry(md, polygons)
	require.NoError(t, err)
	return g
}

func TestNewLeaf_Deterministic(t *testing.T) {
	h := NewPoseidonHasher()
	a := NewLeaf(h, leafGeom(t, nil))
	b := NewLeaf(h, leafGeom(t, nil))
	assert.Equal(t, a.Digest, b.Digest, "identical canonical input must produce identical digests")
	assert.Equal(t, "ocd-division/country:us/state:wa", a.BoundaryID)
}

func TestNewLeaf_FieldSensitivity(t *testing.T) {
	h := NewPoseidonHasher()
	base := NewLeaf(h, leafGeom(t, nil))

	until := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	mutations := map[string]func(*boundary.Metadata, *[]boundary.Polygon){
		"name": func(md *boundary.Metadata, _ *[]boundary.Polygon) {
			md.Name = "Washington State"
		},
		"jurisdiction": func(md *boundary.Metadata, _ *[]boundary.Polygon) {
			md.Jurisdiction = "CA"
		},
		"validFrom": func(md *boundary.Metadata, _ *[]boundary.Polygon) {
			md.ValidFrom = md.ValidFrom.AddDate(0, 0, 1)
		},
		"validUntil closes": func(md *boundary.Metadata, _ *[]boundary.Polygon) {
			md.ValidUntil = &until
		},
		"geometry vertex moves": func(_ *boundary.Metadata, polys *[]boundary.Polygon) {
			(*polys)[0].Rings[0][0].Lon += 0.0001
		},
	}

	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			leaf := NewLeaf(h, leafGeom(t, mutate))
			assert.NotEqual(t, base.Digest, leaf.Digest)
		})
	}
}

func TestNewLeaf_ProvenanceNotCommitted(t *testing.T) {
	// Provenance record ids are minted per fetch; committing them would make
	// every re-ingest of identical data a different leaf.
	h := NewPoseidonHasher()
	a := NewLeaf(h, leafGeom(t, nil))
	b := NewLeaf(h, leafGeom(t, func(md *boundary.Metadata, _ *[]boundary.Polygon) {
		md.Provenance.Confidence = 10
		md.Provenance.SourceID = "another-source"
	}))
	assert.Equal(t, a.Digest, b.Digest)
}
