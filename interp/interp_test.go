package interp

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestApplyBasic(t *testing.T) {
	got, err := Apply("$A/$B", map[string]string{"A": "x", "B": "y"})
	require.NoError(t, err)
	require.Equal(t, "x/y", got)
}

func TestDeps(t *testing.T) {
	s := Parse("${A}/$B-literal")
	deps := s.Deps()
	require.Len(t, deps, 2)
	_, hasA := deps["A"]
	_, hasB := deps["B"]
	require.True(t, hasA)
	require.True(t, hasB)
}

func TestApplyUndefined(t *testing.T) {
	_, err := Apply("$MISSING", map[string]string{})
	require.Error(t, err)
}

func TestApplyBraced(t *testing.T) {
	got, err := Apply("prefix-${NAME}-suffix", map[string]string{"NAME": "mid"})
	require.NoError(t, err)
	require.Equal(t, "prefix-mid-suffix", got)
}

func TestApplyLoneDollar(t *testing.T) {
	got, err := Apply("price: $5", map[string]string{})
	require.NoError(t, err)
	require.Equal(t, "price: $5", got)
}
