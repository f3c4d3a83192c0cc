package boundary

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Provenance is the audit trail for one boundary: where it came from, when
// it was fetched, how much the acquisition layer trusts it, and what
// transformations it went through. Immutable once attached to metadata.
type Provenance struct {
	RecordID     string    `json:"record_id"`
	SourceID     string    `json:"source_id"`
	FetchedAt    time.Time `json:"fetched_at"`
	Confidence   int       `json:"confidence"` // 0-100
	TransformLog []string  `json:"transform_log,omitempty"`
}

// NewProvenance mints a provenance record with a fresh record id.
func NewProvenance(sourceID string, fetchedAt time.Time, confidence int, transformLog []string) (Provenance, error) {
	if sourceID == "" {
		return Provenance{}, ErrMissingSourceID
	}
	if confidence < 0 || confidence > 100 {
		return Provenance{}, fmt.Errorf("%w: got %d", ErrInvalidConfidence, confidence)
	}
	return Provenance{
		RecordID:     uuid.NewString(),
		SourceID:     sourceID,
		FetchedAt:    fetchedAt.UTC(),
		Confidence:   confidence,
		TransformLog: transformLog,
	}, nil
}

// Metadata identifies a boundary without its geometry. IDs are globally
// unique strings within a snapshot (typically an OCD identifier or a
// FIPS-derived code).
type Metadata struct {
	ID               string     `json:"id"`
	Type             Type       `json:"type"`
	Name             string     `json:"name"`
	Jurisdiction     string     `json:"jurisdiction"`
	JurisdictionCode string     `json:"jurisdiction_code,omitempty"`
	Provenance       Provenance `json:"provenance"`
	ValidFrom        time.Time  `json:"valid_from"`
	ValidUntil       *time.Time `json:"valid_until,omitempty"`
}

// ValidAt reports whether the boundary's validity window covers ts:
// ValidFrom <= ts < ValidUntil, with an absent ValidUntil meaning open-ended.
func (m Metadata) ValidAt(ts time.Time) bool {
	if ts.Before(m.ValidFrom) {
		return false
	}
	if m.ValidUntil != nil && !ts.Before(*m.ValidUntil) {
		return false
	}
	return true
}
