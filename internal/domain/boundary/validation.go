package boundary

import (
	"errors"
	"fmt"
)

var (
	ErrMissingID           = errors.New("missing boundary id")
	ErrMissingName         = errors.New("missing boundary name")
	ErrMissingJurisdiction = errors.New("missing jurisdiction")
	ErrMissingSourceID     = errors.New("missing provenance source id")
	ErrInvalidType         = errors.New("invalid boundary type")
	ErrInvalidValidity     = errors.New("validFrom must not be after validUntil")
	ErrInvalidConfidence   = errors.New("confidence must be between 0 and 100")
	ErrEmptyGeometry       = errors.New("geometry has no polygons")
	ErrRingTooShort        = errors.New("ring has fewer than 3 vertices")
	ErrCoordinateRange     = errors.New("coordinate outside WGS84 range")
	ErrRingWinding         = errors.New("ring winding violates right-hand rule")
	ErrLooseBBox           = errors.New("bounding box is not tight")
)

// ValidationError ties a validation failure to the boundary that caused it,
// so ingestion can report per-boundary failures without aborting a source job.
type ValidationError struct {
	BoundaryID string
	Err        error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("boundary %q: %v", e.BoundaryID, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// ValidateMetadata checks the identity fields the leaf encoding commits to.
func ValidateMetadata(md Metadata) error {
	if md.ID == "" {
		return ErrMissingID
	}
	if !md.Type.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidType, string(md.Type))
	}
	if md.Name == "" {
		return ErrMissingName
	}
	if md.Jurisdiction == "" {
		return ErrMissingJurisdiction
	}
	if md.ValidFrom.IsZero() {
		return errors.New("missing validFrom")
	}
	if md.ValidUntil != nil && md.ValidFrom.After(*md.ValidUntil) {
		return ErrInvalidValidity
	}
	if md.Provenance.Confidence < 0 || md.Provenance.Confidence > 100 {
		return ErrInvalidConfidence
	}
	return nil
}

func validatePolygons(polygons []Polygon) error {
	if len(polygons) == 0 {
		return ErrEmptyGeometry
	}
	for pi, poly := range polygons {
		if len(poly.Rings) == 0 {
			return fmt.Errorf("polygon %d: %w", pi, ErrEmptyGeometry)
		}
		for ri, ring := range poly.Rings {
			if err := validateRing(ring, ri == 0); err != nil {
				return fmt.Errorf("polygon %d ring %d: %w", pi, ri, err)
			}
		}
	}
	return nil
}

func validateRing(ring Ring, outer bool) error {
	n := len(ring)
	// Tolerate an explicit closing vertex when counting.
	if n >= 2 && ring[0] == ring[n-1] {
		n--
	}
	if n < 3 {
		return ErrRingTooShort
	}
	for _, pt := range ring {
		if !pt.InRange() {
			return fmt.Errorf("%w: lat=%f lon=%f", ErrCoordinateRange, pt.Lat, pt.Lon)
		}
	}
	// Right-hand rule: outer rings wind counterclockwise, holes clockwise.
	area := ring.SignedArea()
	if outer && area <= 0 {
		return fmt.Errorf("%w: outer ring must be counterclockwise", ErrRingWinding)
	}
	if !outer && area >= 0 {
		return fmt.Errorf("%w: hole must be clockwise", ErrRingWinding)
	}
	return nil
}
