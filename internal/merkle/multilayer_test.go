package merkle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civicproof/boundary-registry/internal/domain/boundary"
)

func buildLayer(t *testing.T, h Hasher, typ boundary.Type, n int) *LayerTree {
	t.Helper()
	tree, err := BuildLayerTreeFromLeaves(h, typ, makeLeaves(h, n))
	require.NoError(t, err)
	return tree
}

func TestBuildMultiLayerTree(t *testing.T) {
	h := NewPoseidonHasher()
	city := buildLayer(t, h, boundary.TypeCityLimits, 5)
	county := buildLayer(t, h, boundary.TypeCounty, 3)
	state := buildLayer(t, h, boundary.TypeState, 2)

	tree, err := BuildMultiLayerTree(h, []*LayerTree{state, city, county})
	require.NoError(t, err)

	roots := tree.LayerRoots()
	require.Len(t, roots, 3)
	// Rank-ascending regardless of the order layers were passed in.
	assert.Equal(t, boundary.TypeCityLimits, roots[0].Type)
	assert.Equal(t, boundary.TypeCounty, roots[1].Type)
	assert.Equal(t, boundary.TypeState, roots[2].Type)

	// Same layers in any order fold to the same composite root.
	other, err := BuildMultiLayerTree(h, []*LayerTree{county, state, city})
	require.NoError(t, err)
	assert.Equal(t, tree.Root(), other.Root())
}

func TestBuildMultiLayerTree_Errors(t *testing.T) {
	h := NewPoseidonHasher()

	_, err := BuildMultiLayerTree(h, nil)
	assert.Error(t, err)

	a := buildLayer(t, h, boundary.TypeCounty, 3)
	b := buildLayer(t, h, boundary.TypeCounty, 4)
	_, err = BuildMultiLayerTree(h, []*LayerTree{a, b})
	assert.ErrorContains(t, err, "duplicate layer")
}

func TestCompositeRoot_SensitiveToLayerPresence(t *testing.T) {
	h := NewPoseidonHasher()
	city := buildLayer(t, h, boundary.TypeCityLimits, 5)
	county := buildLayer(t, h, boundary.TypeCounty, 3)

	both, err := BuildMultiLayerTree(h, []*LayerTree{city, county})
	require.NoError(t, err)
	cityOnly, err := BuildMultiLayerTree(h, []*LayerTree{city})
	require.NoError(t, err)

	assert.NotEqual(t, both.Root(), cityOnly.Root(),
		"dropping a layer must change the composite root")

	// A layer root attributed to a different type must also change it.
	swapped := []TypeRoot{
		{Type: boundary.TypeCityLimits, Root: county.Root()},
		{Type: boundary.TypeCounty, Root: city.Root()},
	}
	assert.NotEqual(t, both.Root(), FoldLayerRoots(h, swapped))
}

func TestBundle_VerifyEndToEnd(t *testing.T) {
	h := NewPoseidonHasher()
	city := buildLayer(t, h, boundary.TypeCityLimits, 5)
	county := buildLayer(t, h, boundary.TypeCounty, 3)
	tree, err := BuildMultiLayerTree(h, []*LayerTree{city, county})
	require.NoError(t, err)

	bundle, err := NewBundle(tree, boundary.TypeCityLimits, "boundary-002", "snap-1")
	require.NoError(t, err)
	require.NoError(t, bundle.Verify(h))

	t.Run("unknown boundary", func(t *testing.T) {
		_, err := NewBundle(tree, boundary.TypeCityLimits, "nope", "snap-1")
		assert.ErrorIs(t, err, ErrLeafNotFound)
	})

	t.Run("missing layer", func(t *testing.T) {
		_, err := NewBundle(tree, boundary.TypeState, "boundary-002", "snap-1")
		assert.Error(t, err)
	})

	t.Run("tampered layer root fails the fold", func(t *testing.T) {
		bad := bundle
		bad.LayerRoots = append([]TypeRoot(nil), bundle.LayerRoots...)
		for i := range bad.LayerRoots {
			if bad.LayerRoots[i].Type == boundary.TypeCounty {
				bad.LayerRoots[i].Root[31] ^= 0x01
			}
		}
		assert.ErrorIs(t, bad.Verify(h), ErrBundleInvalid)
	})

	t.Run("tampered composite root", func(t *testing.T) {
		bad := bundle
		bad.Root[31] ^= 0x01
		assert.ErrorIs(t, bad.Verify(h), ErrBundleInvalid)
	})
}
