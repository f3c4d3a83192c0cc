package snapshot

import (
	"fmt"

	"github.com/civicproof/boundary-registry/internal/domain/boundary"
	"github.com/civicproof/boundary-registry/internal/merkle"
)

// RebuildTree reconstructs the multi-layer tree from a stored manifest.
// Manifests retain every leaf digest, so the rebuild reproduces the exact
// committed tree without touching geometry; the result must carry the
// snapshot's own root or the stored artifact has been tampered with.
func RebuildTree(h merkle.Hasher, snap *Snapshot) (*merkle.MultiLayerTree, error) {
	byType := make(map[boundary.Type][]merkle.Leaf)
	for _, e := range snap.Manifest {
		byType[e.Type] = append(byType[e.Type], merkle.Leaf{BoundaryID: e.BoundaryID, Digest: e.LeafDigest})
	}

	layers := make([]*merkle.LayerTree, 0, len(byType))
	for typ, leaves := range byType {
		layer, err := merkle.BuildLayerTreeFromLeaves(h, typ, leaves)
		if err != nil {
			return nil, fmt.Errorf("rebuild %s layer: %w", typ, err)
		}
		layers = append(layers, layer)
	}

	tree, err := merkle.BuildMultiLayerTree(h, layers)
	if err != nil {
		return nil, fmt.Errorf("rebuild tree: %w", err)
	}
	if tree.Root() != snap.Root {
		return nil, fmt.Errorf("rebuild tree: root %s does not match snapshot %s", tree.Root().Hex(), snap.ID)
	}
	return tree, nil
}

// EntryFor returns the manifest entry for boundaryID, if committed.
func (s *Snapshot) EntryFor(boundaryID string) (Entry, bool) {
	for _, e := range s.Manifest {
		if e.BoundaryID == boundaryID {
			return e, true
		}
	}
	return Entry{}, false
}
