// Package snapshot wraps a built multi-layer tree as an immutable,
// content-addressed version of the committed boundary set. A snapshot's id
// is its tree root digest, so two snapshots over identical leaf sets have
// identical ids; lineage is append-only via parent ids. Manifests retain
// digests and routing fields only — geometry stays with the acquisition
// layer's own store.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/civicproof/boundary-registry/internal/domain/boundary"
	"github.com/civicproof/boundary-registry/internal/merkle"
)

// ErrNotFound is returned when loading a snapshot id the store does not
// hold.
var ErrNotFound = errors.New("snapshot not found")

// Entry is one manifest line: a committed boundary's id, its layer type,
// the source job that produced it, and its leaf digest.
type Entry struct {
	BoundaryID string        `json:"boundary_id"`
	Type       boundary.Type `json:"type"`
	Source     string        `json:"source"`
	LeafDigest merkle.Digest `json:"leaf_digest"`
}

// Snapshot is an immutable committed version of the tree.
type Snapshot struct {
	ID         string            `json:"id"` // hex of the composite root
	Root       merkle.Digest     `json:"root"`
	LayerRoots []merkle.TypeRoot `json:"layer_roots"`
	Manifest   []Entry           `json:"manifest"` // boundary-id sorted
	CreatedAt  time.Time         `json:"created_at"`
	ParentID   string            `json:"parent_id,omitempty"`
}

// ListEntry is the lightweight listing row for a stored snapshot.
type ListEntry struct {
	ID        string    `json:"id"`
	ParentID  string    `json:"parent_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	LeafCount int       `json:"leaf_count"`
}

// Diff is the delta between two snapshots, derived purely from their
// manifests. Modified means the id exists in both with a different leaf
// digest — a metadata or geometry change, no geometric comparison needed.
type Diff struct {
	Added    []string `json:"added"`
	Removed  []string `json:"removed"`
	Modified []string `json:"modified"`
}

// Empty reports whether the diff carries no changes.
func (d Diff) Empty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0 && len(d.Modified) == 0
}

// Manager creates, lists, and prunes snapshots against a Store.
type Manager struct {
	store  Store
	logger zerolog.Logger
}

// NewManager wires a manager over store.
func NewManager(store Store, logger zerolog.Logger) *Manager {
	return &Manager{store: store, logger: logger.With().Str("component", "snapshot").Logger()}
}

// Create wraps the built tree and its manifest entries as a snapshot with
// parentID recorded for lineage. Identity is the tree root, not a sequence
// counter: creating from an identical leaf set yields the identical id, and
// saving an already-stored id is a no-op.
func (m *Manager) Create(ctx context.Context, tree *merkle.MultiLayerTree, entries []Entry, parentID string) (*Snapshot, error) {
	if tree == nil {
		return nil, fmt.Errorf("create snapshot: nil tree")
	}

	manifest := make([]Entry, len(entries))
	copy(manifest, entries)
	sort.Slice(manifest, func(i, j int) bool { return manifest[i].BoundaryID < manifest[j].BoundaryID })
	for i := 1; i < len(manifest); i++ {
		if manifest[i].BoundaryID == manifest[i-1].BoundaryID {
			return nil, fmt.Errorf("create snapshot: duplicate manifest entry %q", manifest[i].BoundaryID)
		}
	}

	snap := &Snapshot{
		ID:         tree.Root().Hex(),
		Root:       tree.Root(),
		LayerRoots: tree.LayerRoots(),
		Manifest:   manifest,
		CreatedAt:  time.Now().UTC(),
		ParentID:   parentID,
	}

	if err := m.store.Save(ctx, snap); err != nil {
		return nil, fmt.Errorf("save snapshot %s: %w", snap.ID, err)
	}

	m.logger.Info().
		Str("snapshot_id", snap.ID).
		Str("parent_id", parentID).
		Int("leaves", len(manifest)).
		Msg("snapshot: created")
	return snap, nil
}

// Load fetches a snapshot by id.
func (m *Manager) Load(ctx context.Context, id string) (*Snapshot, error) {
	return m.store.Load(ctx, id)
}

// Latest returns the newest stored snapshot, or nil when the store is
// empty.
func (m *Manager) Latest(ctx context.Context) (*Snapshot, error) {
	entries, err := m.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	if len(entries) == 0 {
		return nil, nil
	}
	return m.store.Load(ctx, entries[0].ID)
}

// List returns stored snapshots newest-first.
func (m *Manager) List(ctx context.Context) ([]ListEntry, error) {
	return m.store.List(ctx)
}

// ComputeDiff computes the delta between two snapshots as an O(n) merge
// over the two id-sorted manifests.
func ComputeDiff(older, newer *Snapshot) Diff {
	var diff Diff
	i, j := 0, 0
	for i < len(older.Manifest) && j < len(newer.Manifest) {
		oe, ne := older.Manifest[i], newer.Manifest[j]
		switch {
		case oe.BoundaryID == ne.BoundaryID:
			if oe.LeafDigest != ne.LeafDigest {
				diff.Modified = append(diff.Modified, ne.BoundaryID)
			}
			i++
			j++
		case oe.BoundaryID < ne.BoundaryID:
			diff.Removed = append(diff.Removed, oe.BoundaryID)
			i++
		default:
			diff.Added = append(diff.Added, ne.BoundaryID)
			j++
		}
	}
	for ; i < len(older.Manifest); i++ {
		diff.Removed = append(diff.Removed, older.Manifest[i].BoundaryID)
	}
	for ; j < len(newer.Manifest); j++ {
		diff.Added = append(diff.Added, newer.Manifest[j].BoundaryID)
	}
	return diff
}

// Cleanup removes snapshots older than retention. The full parent chain of
// every retained snapshot is protected, keeping lineage intact for audit
// and rollback. With dryRun set it only reports what would go.
func (m *Manager) Cleanup(ctx context.Context, retention time.Duration, dryRun bool) ([]ListEntry, error) {
	if retention <= 0 {
		return nil, fmt.Errorf("cleanup: retention must be positive")
	}

	entries, err := m.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	parentOf := make(map[string]string, len(entries))
	for _, e := range entries {
		parentOf[e.ID] = e.ParentID
	}

	// Seed the protected set with retained snapshots, then walk each
	// parent chain to its end so no ancestor of a kept snapshot is pruned.
	protected := make(map[string]bool)
	cutoff := time.Now().UTC().Add(-retention)
	var frontier []string
	for _, e := range entries {
		if e.CreatedAt.After(cutoff) {
			protected[e.ID] = true
			frontier = append(frontier, e.ID)
		}
	}
	for len(frontier) > 0 {
		id := frontier[len(frontier)-1]
		frontier = frontier[:len(frontier)-1]
		parent := parentOf[id]
		if parent == "" || protected[parent] {
			continue
		}
		protected[parent] = true
		frontier = append(frontier, parent)
	}

	var deleted []ListEntry
	for _, e := range entries {
		if protected[e.ID] || e.CreatedAt.After(cutoff) {
			continue
		}
		if !dryRun {
			if err := m.store.Delete(ctx, e.ID); err != nil {
				return deleted, fmt.Errorf("delete snapshot %s: %w", e.ID, err)
			}
		}
		deleted = append(deleted, e)
	}
	return deleted, nil
}
