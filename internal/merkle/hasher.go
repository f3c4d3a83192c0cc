package merkle

import (
	"fmt"
	"math/big"

	"github.com/iden3/go-iden3-crypto/poseidon"
)

// Hasher is the opaque hash primitive the tree builder folds over:
// a two-ary compression H(a,b) and a single-input H1(x). Implementations
// must be deterministic and side-effect free.
type Hasher interface {
	HashPair(a, b Digest) Digest
	HashBytes(data []byte) Digest
}

// PoseidonHasher backs the Hasher contract with the Poseidon permutation
// over the BN254 scalar field. Every digest this hasher emits is a field
// element, so outputs always feed back into HashPair without reduction.
type PoseidonHasher struct{}

// NewPoseidonHasher returns the production hasher.
func NewPoseidonHasher() PoseidonHasher { return PoseidonHasher{} }

func (PoseidonHasher) HashPair(a, b Digest) Digest {
	out, err := poseidon.Hash([]*big.Int{a.BigInt(), b.BigInt()})
	if err != nil {
		// Two field elements never exceed the permutation arity.
		panic(fmt.Sprintf("merkle: poseidon pair hash: %v", err))
	}
	return digestFromBigInt(out)
}

func (PoseidonHasher) HashBytes(data []byte) Digest {
	out, err := poseidon.HashBytes(data)
	if err != nil {
		panic(fmt.Sprintf("merkle: poseidon bytes hash: %v", err))
	}
	return digestFromBigInt(out)
}
