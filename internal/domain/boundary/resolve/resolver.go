// Package resolve maps a coordinate to the most precise enclosing boundary
// valid at a point in time. The resolver is pure: no I/O, no caching, safe
// for concurrent use against an immutable candidate set.
package resolve

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/civicproof/boundary-registry/internal/domain/boundary"
)

// ErrNotFound is the normal miss outcome: the point lies outside every
// candidate that is valid at the requested time. It is not a failure.
var ErrNotFound = errors.New("no boundary contains the point")

// Resolution is the winning boundary for a query, with enough context for
// eligibility-proof callers to fetch the matching inclusion proof.
type Resolution struct {
	Boundary   boundary.Metadata `json:"boundary"`
	Type       boundary.Type     `json:"type"`
	Confidence int               `json:"confidence"`
	Point      boundary.Point    `json:"point"`
	AsOf       time.Time         `json:"as_of"`
	ResolvedAt time.Time         `json:"resolved_at"`
}

// Resolver performs hierarchical boundary resolution.
type Resolver struct{}

func New() *Resolver { return &Resolver{} }

// Resolve returns the finest-precision boundary containing p that is valid
// at asOf. Candidates failing the validity window or the bounding box are
// rejected before the exact point-in-polygon test. Ties at the same
// precision rank break by higher provenance confidence, then by most recent
// ValidFrom.
func (r *Resolver) Resolve(p boundary.Point, asOf time.Time, candidates []*boundary.Geometry) (Resolution, error) {
	if !p.InRange() {
		return Resolution{}, fmt.Errorf("resolve: %w: lat=%f lon=%f", boundary.ErrCoordinateRange, p.Lat, p.Lon)
	}

	var matches []*boundary.Geometry
	for _, cand := range candidates {
		if cand == nil || !cand.Metadata.ValidAt(asOf) {
			continue
		}
		if !cand.BBox.Contains(p) {
			continue
		}
		if Contains(cand, p) {
			matches = append(matches, cand)
		}
	}
	if len(matches) == 0 {
		return Resolution{}, ErrNotFound
	}

	sort.Slice(matches, func(i, j int) bool {
		mi, mj := matches[i].Metadata, matches[j].Metadata
		ri, rj := mi.Type.PrecisionRank(), mj.Type.PrecisionRank()
		if ri != rj {
			return ri < rj
		}
		if mi.Provenance.Confidence != mj.Provenance.Confidence {
			return mi.Provenance.Confidence > mj.Provenance.Confidence
		}
		if !mi.ValidFrom.Equal(mj.ValidFrom) {
			return mi.ValidFrom.After(mj.ValidFrom)
		}
		return mi.ID < mj.ID
	})

	winner := matches[0].Metadata
	return Resolution{
		Boundary:   winner,
		Type:       winner.Type,
		Confidence: winner.Provenance.Confidence,
		Point:      p,
		AsOf:       asOf,
		ResolvedAt: time.Now().UTC(),
	}, nil
}
