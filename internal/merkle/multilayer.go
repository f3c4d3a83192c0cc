package merkle

import (
	"fmt"
	"sort"

	"github.com/civicproof/boundary-registry/internal/domain/boundary"
)

// multiLayerTag seeds the composite fold so a multi-layer root can never
// collide with a layer root over the same digests.
const multiLayerTag = "boundary-registry/multilayer/v1"

// TypeRoot pairs a boundary type with its layer root for composite folding
// and for verifiers recomputing the composite root from a proof bundle.
type TypeRoot struct {
	Type boundary.Type `json:"type"`
	Root Digest        `json:"root"`
}

// MultiLayerTree composes per-type layer trees for one jurisdiction into a
// single composite root. The fold runs in ascending precision-rank order
// and binds each layer's type, so the composite root is sensitive to which
// layers are present, not just to their roots.
type MultiLayerTree struct {
	layers map[boundary.Type]*LayerTree
	roots  []TypeRoot // rank-ascending
	root   Digest
}

// BuildMultiLayerTree folds the given layer trees into a composite root.
// At least one layer is required; two trees for the same type are an error.
func BuildMultiLayerTree(h Hasher, layers []*LayerTree) (*MultiLayerTree, error) {
	if len(layers) == 0 {
		return nil, fmt.Errorf("multilayer tree: no layers")
	}

	byType := make(map[boundary.Type]*LayerTree, len(layers))
	roots := make([]TypeRoot, 0, len(layers))
	for _, layer := range layers {
		if _, dup := byType[layer.Type()]; dup {
			return nil, fmt.Errorf("multilayer tree: duplicate layer for type %s", layer.Type())
		}
		byType[layer.Type()] = layer
		roots = append(roots, TypeRoot{Type: layer.Type(), Root: layer.Root()})
	}
	sortTypeRoots(roots)

	return &MultiLayerTree{
		layers: byType,
		roots:  roots,
		root:   FoldLayerRoots(h, roots),
	}, nil
}

// FoldLayerRoots computes the composite root from (type, layer root) pairs:
// acc = H(acc, H(H1(type), layerRoot)) over pairs in ascending precision
// rank, seeded with H1 of a domain tag. Exported so proof verifiers holding
// only layer roots can recompute the composite.
func FoldLayerRoots(h Hasher, roots []TypeRoot) Digest {
	ordered := make([]TypeRoot, len(roots))
	copy(ordered, roots)
	sortTypeRoots(ordered)

	acc := h.HashBytes([]byte(multiLayerTag))
	for _, tr := range ordered {
		bound := h.HashPair(h.HashBytes([]byte(tr.Type)), tr.Root)
		acc = h.HashPair(acc, bound)
	}
	return acc
}

// Root returns the composite root digest.
func (t *MultiLayerTree) Root() Digest { return t.root }

// LayerRoots returns the (type, root) pairs in ascending precision rank.
// Callers must not mutate the slice.
func (t *MultiLayerTree) LayerRoots() []TypeRoot { return t.roots }

// Layer returns the layer tree for typ, if present.
func (t *MultiLayerTree) Layer(typ boundary.Type) (*LayerTree, bool) {
	layer, ok := t.layers[typ]
	return layer, ok
}

// Prove produces the leaf-to-layer-root inclusion proof for boundaryID in
// the typ layer. Verifiers combine it with LayerRoots and FoldLayerRoots to
// reach the composite root.
func (t *MultiLayerTree) Prove(typ boundary.Type, boundaryID string) (Proof, error) {
	layer, ok := t.layers[typ]
	if !ok {
		return Proof{}, fmt.Errorf("multilayer tree: no %s layer", typ)
	}
	return layer.Prove(boundaryID)
}

func sortTypeRoots(roots []TypeRoot) {
	sort.Slice(roots, func(i, j int) bool {
		return roots[i].Type.PrecisionRank() < roots[j].Type.PrecisionRank()
	})
}
