package global

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civicproof/boundary-registry/internal/merkle"
)

func countryRoots(h merkle.Hasher, codes ...string) map[string]merkle.Digest {
	roots := make(map[string]merkle.Digest, len(codes))
	for _, code := range codes {
		roots[code] = h.HashBytes([]byte("root-" + code))
	}
	return roots
}

func TestBuild(t *testing.T) {
	h := merkle.NewPoseidonHasher()
	tree, err := Build(h, countryRoots(h, "US", "CA", "FR", "DE", "JP"))
	require.NoError(t, err)

	assert.Equal(t, ContinentTableVersion, tree.TableVersion())
	assert.False(t, tree.Root().IsZero())

	continents := tree.ContinentRoots()
	require.Len(t, continents, 3)
	assert.Equal(t, "AS", continents[0].Code)
	assert.Equal(t, "EU", continents[1].Code)
	assert.Equal(t, "NA", continents[2].Code)

	na := tree.CountryRoots("NA")
	require.Len(t, na, 2)
	assert.Equal(t, "CA", na[0].Code)
	assert.Equal(t, "US", na[1].Code)
}

func TestBuild_Errors(t *testing.T) {
	h := merkle.NewPoseidonHasher()

	_, err := Build(h, nil)
	assert.Error(t, err)

	roots := countryRoots(h, "US")
	roots["XX"] = h.HashBytes([]byte("root-XX"))
	_, err = Build(h, roots)
	assert.ErrorContains(t, err, "not in continent table")
}

func TestBuild_OrderIndependent(t *testing.T) {
	// Maps iterate in random order; two builds over the same roots must
	// still agree because folding sorts by code.
	h := merkle.NewPoseidonHasher()
	codes := []string{"US", "CA", "MX", "FR", "DE", "GB", "JP", "KR", "BR", "AU"}

	a, err := Build(h, countryRoots(h, codes...))
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		b, err := Build(h, countryRoots(h, codes...))
		require.NoError(t, err)
		assert.Equal(t, a.Root(), b.Root())
	}
}

func TestGlobalRoot_SensitiveToMembership(t *testing.T) {
	h := merkle.NewPoseidonHasher()

	full, err := Build(h, countryRoots(h, "US", "CA", "FR"))
	require.NoError(t, err)
	missing, err := Build(h, countryRoots(h, "US", "FR"))
	require.NoError(t, err)
	assert.NotEqual(t, full.Root(), missing.Root())

	changed := countryRoots(h, "US", "CA", "FR")
	changed["US"] = h.HashBytes([]byte("different"))
	other, err := Build(h, changed)
	require.NoError(t, err)
	assert.NotEqual(t, full.Root(), other.Root())
}

func TestProveCountry(t *testing.T) {
	h := merkle.NewPoseidonHasher()
	tree, err := Build(h, countryRoots(h, "US", "CA", "MX", "FR", "DE", "JP"))
	require.NoError(t, err)

	proof, err := tree.ProveCountry("US")
	require.NoError(t, err)
	assert.Equal(t, "NA", proof.ContinentCode)
	assert.Equal(t, ContinentTableVersion, proof.TableVersion)
	assert.True(t, VerifyCountryProof(h, tree.Root(), proof))

	_, err = tree.ProveCountry("BR")
	assert.Error(t, err)
}

func TestVerifyCountryProof_RejectsTampering(t *testing.T) {
	h := merkle.NewPoseidonHasher()
	tree, err := Build(h, countryRoots(h, "US", "CA", "FR", "DE"))
	require.NoError(t, err)
	proof, err := tree.ProveCountry("US")
	require.NoError(t, err)

	t.Run("claimed country root not among siblings", func(t *testing.T) {
		bad := proof
		bad.CountryRoot = h.HashBytes([]byte("forged"))
		assert.False(t, VerifyCountryProof(h, tree.Root(), bad))
	})

	t.Run("tampered sibling root breaks the continental fold", func(t *testing.T) {
		bad := proof
		bad.CountryRoots = append([]CodeRoot(nil), proof.CountryRoots...)
		for i := range bad.CountryRoots {
			if bad.CountryRoots[i].Code == "CA" {
				bad.CountryRoots[i].Root[31] ^= 0x01
			}
		}
		assert.False(t, VerifyCountryProof(h, tree.Root(), bad))
	})

	t.Run("wrong global root", func(t *testing.T) {
		other, err := Build(h, countryRoots(h, "US", "CA"))
		require.NoError(t, err)
		assert.False(t, VerifyCountryProof(h, other.Root(), proof))
	})
}
