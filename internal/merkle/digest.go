// Package merkle commits boundary sets into Merkle trees: canonical leaf
// encoding, per-layer trees, a composite multi-layer root, and inclusion
// proofs. The hash primitive is pluggable; production uses Poseidon so the
// proofs stay friendly to the zero-knowledge circuit layer that consumes
// them.
package merkle

import (
	"encoding/hex"
	"fmt"
	"math/big"
)

// DigestSize is the fixed width of every digest in bytes.
const DigestSize = 32

// Digest is a fixed-width hash output, big-endian.
type Digest [DigestSize]byte

// Hex returns the lowercase hex encoding of the digest.
func (d Digest) Hex() string { return hex.EncodeToString(d[:]) }

// IsZero reports whether the digest is all zero bytes.
func (d Digest) IsZero() bool { return d == Digest{} }

// BigInt interprets the digest as a big-endian unsigned integer.
func (d Digest) BigInt() *big.Int { return new(big.Int).SetBytes(d[:]) }

// MarshalText encodes the digest as hex so it reads naturally in JSON
// manifests and proofs.
func (d Digest) MarshalText() ([]byte, error) {
	return []byte(d.Hex()), nil
}

// UnmarshalText decodes a hex digest.
func (d *Digest) UnmarshalText(text []byte) error {
	decoded, err := hex.DecodeString(string(text))
	if err != nil {
		return fmt.Errorf("decode digest: %w", err)
	}
	if len(decoded) != DigestSize {
		return fmt.Errorf("decode digest: got %d bytes, want %d", len(decoded), DigestSize)
	}
	copy(d[:], decoded)
	return nil
}

// DigestFromHex parses a lowercase or uppercase hex digest.
func DigestFromHex(s string) (Digest, error) {
	var d Digest
	if err := d.UnmarshalText([]byte(s)); err != nil {
		return Digest{}, err
	}
	return d, nil
}

func digestFromBigInt(v *big.Int) Digest {
	var d Digest
	v.FillBytes(d[:])
	return d
}
