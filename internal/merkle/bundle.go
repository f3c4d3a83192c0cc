package merkle

import (
	"errors"
	"fmt"

	"github.com/civicproof/boundary-registry/internal/domain/boundary"
)

// ErrBundleInvalid is wrapped by every Bundle verification failure.
var ErrBundleInvalid = errors.New("proof bundle invalid")

// Bundle packages everything an offline verifier needs to check that one
// boundary was committed in one snapshot: the leaf-to-layer-root path, the
// full set of layer roots, and the composite root the snapshot is addressed
// by. Verification needs no access to the registry.
type Bundle struct {
	SnapshotID string        `json:"snapshot_id"`
	BoundaryID string        `json:"boundary_id"`
	Type       boundary.Type `json:"type"`
	Proof      Proof         `json:"proof"`
	LayerRoots []TypeRoot    `json:"layer_roots"`
	Root       Digest        `json:"root"`
}

// NewBundle produces the verification bundle for boundaryID in the typ
// layer of tree.
func NewBundle(tree *MultiLayerTree, typ boundary.Type, boundaryID, snapshotID string) (Bundle, error) {
	proof, err := tree.Prove(typ, boundaryID)
	if err != nil {
		return Bundle{}, err
	}
	roots := tree.LayerRoots()
	layerRoots := make([]TypeRoot, len(roots))
	copy(layerRoots, roots)
	return Bundle{
		SnapshotID: snapshotID,
		BoundaryID: boundaryID,
		Type:       typ,
		Proof:      proof,
		LayerRoots: layerRoots,
		Root:       tree.Root(),
	}, nil
}

// Verify checks the bundle end to end: the sibling path must reach the
// claimed layer root, and folding the layer roots must reproduce the
// composite root. Returns nil only when both hold.
func (b Bundle) Verify(h Hasher) error {
	if b.BoundaryID != b.Proof.BoundaryID {
		return fmt.Errorf("%w: boundary id mismatch", ErrBundleInvalid)
	}

	var layerRoot Digest
	found := false
	for _, tr := range b.LayerRoots {
		if tr.Type == b.Type {
			layerRoot = tr.Root
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("%w: no %s layer root", ErrBundleInvalid, b.Type)
	}

	if !VerifyInclusion(h, layerRoot, b.Proof, b.Proof.LeafDigest) {
		return fmt.Errorf("%w: inclusion path does not reach the %s layer root", ErrBundleInvalid, b.Type)
	}
	if FoldLayerRoots(h, b.LayerRoots) != b.Root {
		return fmt.Errorf("%w: layer roots do not fold to the composite root", ErrBundleInvalid)
	}
	return nil
}
