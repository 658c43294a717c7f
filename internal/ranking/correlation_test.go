package ranking

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func linear(n int, slope float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = slope * float64(i)
	}
	return out
}

func TestPearson(t *testing.T) {
	a := linear(30, 1)
	b := linear(30, 2)
	c := linear(30, -1)

	assert.InDelta(t, 1.0, Pearson(a, b), 1e-9)
	assert.InDelta(t, -1.0, Pearson(a, c), 1e-9)
	assert.Equal(t, 0.0, Pearson(a, []float64{1}))
	assert.Equal(t, 0.0, Pearson(a, make([]float64, 30))) // zero variance
}

func TestGreedyFilterDropsCorrelatedTwin(t *testing.T) {
	// A and B move identically, C is their mirror. Both B and C exceed
	// |corr|=0.85 against A, so only A survives the greedy pass and B
	// is padded back in score order. Exactly one of {B, C} stays
	// excluded, with a reason referencing A.
	tr := linear(40, 0.01)
	neg := linear(40, -0.01)
	returns := map[string][]float64{"A": tr, "B": tr, "C": neg}

	selected, excluded := GreedyFilter([]string{"A", "B", "C"}, returns, 0.85, 2)
	assert.Equal(t, []string{"A", "B"}, selected)
	assert.Len(t, excluded, 1)
	require.Contains(t, excluded, "C")
	assert.Contains(t, excluded["C"], "A")
	assert.Contains(t, excluded["C"], "0.85")
}

func TestGreedyFilterPadsWhenTooFewSurvive(t *testing.T) {
	tr := linear(40, 0.01)
	returns := map[string][]float64{"A": tr, "B": tr, "C": tr}

	selected, excluded := GreedyFilter([]string{"A", "B", "C"}, returns, 0.85, 2)
	// Everything correlates with A; B is padded back in score order.
	assert.Equal(t, []string{"A", "B"}, selected)
	assert.NotContains(t, excluded, "B")
	assert.Contains(t, excluded, "C")
}

func TestGreedyFilterRespectsTopN(t *testing.T) {
	returns := map[string][]float64{
		"A": linear(40, 0.01),
		"B": linear(40, -0.01),
		"C": {0.01, -0.02, 0.005, 0.01, -0.01, 0.02, -0.005, 0.01, 0.0, -0.01},
	}
	selected, _ := GreedyFilter([]string{"A", "B", "C"}, returns, 0.99, 2)
	assert.Len(t, selected, 2)
	assert.Equal(t, "A", selected[0])
}
