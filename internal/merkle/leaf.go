package merkle

import (
	"bytes"
	"encoding/binary"
	"math"
	"time"

	"github.com/civicproof/boundary-registry/internal/domain/boundary"
)

// Leaf is the committed unit in a layer tree: one boundary's canonical
// digest plus the id it is keyed by.
type Leaf struct {
	BoundaryID string `json:"boundary_id"`
	Digest     Digest `json:"digest"`
}

// NewLeaf canonicalizes a boundary into its leaf digest:
// H1(canonical metadata encoding || geometry digest). Identical inputs
// always yield identical digests; any differing field, including a
// geometry-only change, yields a different digest under collision
// resistance of the hash.
func NewLeaf(h Hasher, g *boundary.Geometry) Leaf {
	geomDigest := GeometryDigest(h, g.Polygons)
	return Leaf{
		BoundaryID: g.Metadata.ID,
		Digest:     h.HashBytes(EncodeLeaf(g.Metadata, geomDigest)),
	}
}

// EncodeLeaf is the canonical byte serialization the leaf digest commits
// to: length-prefixed UTF-8 metadata fields in fixed order, the validity
// window as RFC3339 UTC (open-ended encoded as "-"), then the geometry
// digest. Callers hash the result with H1.
func EncodeLeaf(md boundary.Metadata, geometryDigest Digest) []byte {
	var buf bytes.Buffer
	writeField(&buf, md.ID)
	writeField(&buf, string(md.Type))
	writeField(&buf, md.Name)
	writeField(&buf, md.Jurisdiction)
	writeField(&buf, md.JurisdictionCode)
	writeField(&buf, md.ValidFrom.UTC().Format(time.RFC3339))
	if md.ValidUntil != nil {
		writeField(&buf, md.ValidUntil.UTC().Format(time.RFC3339))
	} else {
		writeField(&buf, "-")
	}
	buf.Write(geometryDigest[:])
	return buf.Bytes()
}

// GeometryDigest hashes the shape alone: polygon, ring, and vertex counts
// as big-endian uint32 length prefixes, each vertex as big-endian IEEE-754
// lon then lat. Deterministic for identical coordinate sequences.
func GeometryDigest(h Hasher, polygons []boundary.Polygon) Digest {
	var buf bytes.Buffer
	writeUint32(&buf, uint32(len(polygons)))
	for _, poly := range polygons {
		writeUint32(&buf, uint32(len(poly.Rings)))
		for _, ring := range poly.Rings {
			writeUint32(&buf, uint32(len(ring)))
			for _, pt := range ring {
				writeFloat64(&buf, pt.Lon)
				writeFloat64(&buf, pt.Lat)
			}
		}
	}
	return h.HashBytes(buf.Bytes())
}

func writeField(buf *bytes.Buffer, s string) {
	writeUint32(buf, uint32(len(s)))
	buf.WriteString(s)
}

func writeUint32(buf *bytes.Buffer, v uint32) {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	buf.Write(tmp[:])
}

func writeFloat64(buf *bytes.Buffer, v float64) {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], math.Float64bits(v))
	buf.Write(tmp[:])
}
