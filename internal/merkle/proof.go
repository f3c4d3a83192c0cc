package merkle

// ProofStep is one level of an inclusion path. SiblingOnRight records the
// orientation: when true the running digest is the left input to H.
type ProofStep struct {
	Sibling        Digest `json:"sibling"`
	SiblingOnRight bool   `json:"sibling_on_right"`
}

// Proof is an ordered sibling path from a leaf to a layer root, consumable
// by the zero-knowledge proof construction layer.
type Proof struct {
	BoundaryID string      `json:"boundary_id"`
	LeafDigest Digest      `json:"leaf_digest"`
	Steps      []ProofStep `json:"steps"`
}

// VerifyInclusion recomputes the path from leafDigest through the proof and
// compares against root. A single differing byte anywhere in the leaf's
// canonical encoding changes its digest and fails verification.
func VerifyInclusion(h Hasher, root Digest, proof Proof, leafDigest Digest) bool {
	if proof.LeafDigest != leafDigest {
		return false
	}
	cur := leafDigest
	for _, step := range proof.Steps {
		if step.SiblingOnRight {
			cur = h.HashPair(cur, step.Sibling)
		} else {
			cur = h.HashPair(step.Sibling, cur)
		}
	}
	return cur == root
}
