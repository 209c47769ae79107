package tier

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRankIsStrictlyIncreasing(t *testing.T) {
	all := All()
	for i := 1; i < len(all); i++ {
		require.Less(t, Rank(all[i-1]), Rank(all[i]), "%s should rank below %s", all[i-1], all[i])
	}
	require.Equal(t, 0, Rank(Public))
	require.Equal(t, 4, Rank(Fellow))
}

func TestIsAtLeast(t *testing.T) {
	for _, actual := range All() {
		for _, required := range All() {
			require.Equal(t, Rank(actual) >= Rank(required), IsAtLeast(actual, required), "%s vs %s", actual, required)
		}
	}
	require.False(t, IsAtLeast(Tier("exco"), Public))
	require.False(t, IsAtLeast(Fellow, Tier("")))
}

func TestParse(t *testing.T) {
	parsed, err := Parse("  Associate ")
	require.NoError(t, err)
	require.Equal(t, Associate, parsed)

	_, err = Parse("trustee")
	require.Error(t, err)
}
