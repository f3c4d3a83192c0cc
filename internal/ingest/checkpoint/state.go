// Package checkpoint persists ingestion progress so an interrupted run can
// resume without reprocessing completed sources or skipping pending ones.
// Stores replace state atomically: after a crash the previous checkpoint is
// either fully intact or fully superseded, never half-written.
package checkpoint

import (
	"context"
	"errors"
	"time"

	"github.com/civicproof/boundary-registry/internal/domain/boundary"
	"github.com/civicproof/boundary-registry/internal/merkle"
)

var (
	// ErrNotFound means no checkpoint exists; a run starts fresh.
	ErrNotFound = errors.New("no checkpoint state")

	// ErrCorrupt means stored state exists but cannot be trusted. Resuming
	// is refused; a restart from scratch requires explicit operator
	// confirmation, never a silent discard.
	ErrCorrupt = errors.New("checkpoint state is corrupt")
)

// SourceState is the lifecycle of one source job within a run.
type SourceState string

const (
	SourcePending         SourceState = "pending"
	SourceSucceeded       SourceState = "succeeded"
	SourceSkipped         SourceState = "skipped" // unchanged since last run
	SourceFailed          SourceState = "failed"  // retried by a resumed run
	SourceFailedPermanent SourceState = "failed_permanent"
)

// Terminal reports whether a source job has finished for this run.
func (s SourceState) Terminal() bool {
	return s == SourceSucceeded || s == SourceSkipped || s == SourceFailedPermanent
}

// Leaf records a committed boundary's digest inside the checkpoint, so a
// resumed run rebuilds the tree for already-completed sources without
// refetching their geometry.
type Leaf struct {
	BoundaryID string        `json:"boundary_id"`
	Type       boundary.Type `json:"type"`
	Digest     merkle.Digest `json:"digest"`
}

// SourceStatus is the persisted status of one source job.
type SourceStatus struct {
	State      SourceState `json:"state"`
	RetryCount int         `json:"retry_count"`
	Checksum   string      `json:"checksum,omitempty"`
	LastError  string      `json:"last_error,omitempty"`
	Leaves     []Leaf      `json:"leaves,omitempty"`
	UpdatedAt  time.Time   `json:"updated_at"`
}

// State is the full progress marker for one ingestion run. It is written
// after every job reaches a terminal state and rolled over (Completed set,
// SnapshotID recorded) when the run commits.
type State struct {
	RunID            string                  `json:"run_id"`
	StartedAt        time.Time               `json:"started_at"`
	Cursor           int                     `json:"cursor"` // terminal jobs so far
	Processed        int                     `json:"processed"`
	Sources          map[string]SourceStatus `json:"sources"`
	LeafSetHash      string                  `json:"leaf_set_hash,omitempty"`
	ParentSnapshotID string                  `json:"parent_snapshot_id,omitempty"`
	SnapshotID       string                  `json:"snapshot_id,omitempty"`
	Completed        bool                    `json:"completed"`
	UpdatedAt        time.Time               `json:"updated_at"`
}

// New returns an empty state for a fresh run.
func New(runID, parentSnapshotID string) *State {
	now := time.Now().UTC()
	return &State{
		RunID:            runID,
		StartedAt:        now,
		Sources:          make(map[string]SourceStatus),
		ParentSnapshotID: parentSnapshotID,
		UpdatedAt:        now,
	}
}

// SetSource records a source status and advances the cursor counters.
func (s *State) SetSource(name string, status SourceStatus) {
	status.UpdatedAt = time.Now().UTC()
	s.Sources[name] = status
	s.Cursor = 0
	s.Processed = 0
	for _, st := range s.Sources {
		if st.State.Terminal() {
			s.Cursor++
		}
		if st.State == SourceSucceeded || st.State == SourceSkipped {
			s.Processed++
		}
	}
	s.UpdatedAt = status.UpdatedAt
}

// Store persists checkpoint state. Save replaces the previous state
// atomically; Load must be idempotent (re-reading yields the same
// resumable state).
type Store interface {
	Save(ctx context.Context, state *State) error
	Load(ctx context.Context) (*State, error)
	Clear(ctx context.Context) error
}
