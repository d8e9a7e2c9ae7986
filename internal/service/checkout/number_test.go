package checkout

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNumberEncoder(t *testing.T) {
	enc, err := NewNumberEncoder("salt")
	require.NoError(t, err)

	seen := map[string]bool{}
	for i := int64(1); i <= 200; i++ {
		n, err := enc.Encode(i)
		require.NoError(t, err)
		assert.Regexp(t, `^ORD-[A-Z2-9]{8,}$`, n)
		assert.False(t, seen[n], "duplicate %s", n)
		seen[n] = true
	}

	other, err := NewNumberEncoder("pepper")
	require.NoError(t, err)
	a, _ := enc.Encode(42)
	b, _ := other.Encode(42)
	assert.NotEqual(t, a, b)
}
