package boundary

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPrecisionRank_Ordering(t *testing.T) {
	types := AllTypes()
	for i := 1; i < len(types); i++ {
		assert.Less(t, types[i-1].PrecisionRank(), types[i].PrecisionRank(),
			"%s should rank finer than %s", types[i-1], types[i])
	}
	assert.Equal(t, 0, TypeCityCouncilDistrict.PrecisionRank())
	assert.Equal(t, 5, TypeCountry.PrecisionRank())
}

func TestPrecisionRank_PanicsOnUnknown(t *testing.T) {
	assert.Panics(t, func() { Type("province").PrecisionRank() })
}

func TestTypeValid(t *testing.T) {
	for _, typ := range AllTypes() {
		assert.True(t, typ.Valid(), "%s should be valid", typ)
	}
	assert.False(t, Type("").Valid())
	assert.False(t, Type("province").Valid())
}
