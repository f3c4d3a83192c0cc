package merkle

import (
	"errors"
	"fmt"
	"sort"

	"github.com/civicproof/boundary-registry/internal/domain/boundary"
)

// ErrLeafNotFound is returned when proving a boundary id absent from the
// tree.
var ErrLeafNotFound = errors.New("leaf not found in tree")

// DuplicateLeafError signals two boundaries with the same id inside one
// layer. The builder rejects rather than silently deduplicating.
type DuplicateLeafError struct {
	BoundaryID string
	Type       boundary.Type
}

func (e *DuplicateLeafError) Error() string {
	return fmt.Sprintf("duplicate leaf %q in %s layer", e.BoundaryID, e.Type)
}

// LayerTree is the Merkle tree for one boundary type within one
// jurisdiction. Leaves are sorted ascending by boundary id before pairing,
// so the root is reproducible regardless of ingestion order. Immutable
// after construction.
type LayerTree struct {
	boundaryType boundary.Type
	leaves       []Leaf
	levels       [][]Digest // levels[0] = leaf digests, last = [root]
	root         Digest
}

// BuildLayerTree canonicalizes each boundary into a leaf and builds the
// layer tree for typ.
func BuildLayerTree(h Hasher, typ boundary.Type, boundaries []*boundary.Geometry) (*LayerTree, error) {
	leaves := make([]Leaf, 0, len(boundaries))
	for _, g := range boundaries {
		if g.Metadata.Type != typ {
			return nil, fmt.Errorf("boundary %q has type %s, want %s", g.Metadata.ID, g.Metadata.Type, typ)
		}
		leaves = append(leaves, NewLeaf(h, g))
	}
	return BuildLayerTreeFromLeaves(h, typ, leaves)
}

// BuildLayerTreeFromLeaves builds a layer tree from precomputed leaves.
// Snapshots retain only digests, so carry-forward of unchanged sources and
// proof regeneration both go through this path.
func BuildLayerTreeFromLeaves(h Hasher, typ boundary.Type, leaves []Leaf) (*LayerTree, error) {
	if len(leaves) == 0 {
		return nil, fmt.Errorf("%s layer: no leaves", typ)
	}

	sorted := make([]Leaf, len(leaves))
	copy(sorted, leaves)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].BoundaryID < sorted[j].BoundaryID })
	for i := 1; i < len(sorted); i++ {
		if sorted[i].BoundaryID == sorted[i-1].BoundaryID {
			return nil, &DuplicateLeafError{BoundaryID: sorted[i].BoundaryID, Type: typ}
		}
	}

	level := make([]Digest, len(sorted))
	for i, leaf := range sorted {
		level[i] = leaf.Digest
	}

	levels := [][]Digest{level}
	for len(level) > 1 {
		next := make([]Digest, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			left := level[i]
			// An odd tail pairs with itself rather than being dropped.
			right := left
			if i+1 < len(level) {
				right = level[i+1]
			}
			next = append(next, h.HashPair(left, right))
		}
		levels = append(levels, next)
		level = next
	}

	return &LayerTree{
		boundaryType: typ,
		leaves:       sorted,
		levels:       levels,
		root:         level[0],
	}, nil
}

// Type returns the boundary type this layer commits.
func (t *LayerTree) Type() boundary.Type { return t.boundaryType }

// Root returns the layer root digest.
func (t *LayerTree) Root() Digest { return t.root }

// Leaves returns the id-sorted leaves. Callers must not mutate the slice.
func (t *LayerTree) Leaves() []Leaf { return t.leaves }

// Leaf returns the leaf for boundaryID, if present.
func (t *LayerTree) Leaf(boundaryID string) (Leaf, bool) {
	i := sort.Search(len(t.leaves), func(i int) bool { return t.leaves[i].BoundaryID >= boundaryID })
	if i < len(t.leaves) && t.leaves[i].BoundaryID == boundaryID {
		return t.leaves[i], true
	}
	return Leaf{}, false
}

// Prove produces the inclusion proof for boundaryID: the ordered sibling
// path from leaf to root with left/right orientation at each level. Proof
// size is logarithmic in the leaf count.
func (t *LayerTree) Prove(boundaryID string) (Proof, error) {
	idx := sort.Search(len(t.leaves), func(i int) bool { return t.leaves[i].BoundaryID >= boundaryID })
	if idx >= len(t.leaves) || t.leaves[idx].BoundaryID != boundaryID {
		return Proof{}, fmt.Errorf("%w: %q", ErrLeafNotFound, boundaryID)
	}
	leaf := t.leaves[idx]

	steps := make([]ProofStep, 0, len(t.levels)-1)
	for _, level := range t.levels[:len(t.levels)-1] {
		sibling := idx ^ 1
		step := ProofStep{SiblingOnRight: idx%2 == 0}
		if sibling < len(level) {
			step.Sibling = level[sibling]
		} else {
			// Self-paired odd tail: the sibling is the node itself.
			step.Sibling = level[idx]
		}
		steps = append(steps, step)
		idx /= 2
	}

	return Proof{
		BoundaryID: boundaryID,
		LeafDigest: leaf.Digest,
		Steps:      steps,
	}, nil
}
