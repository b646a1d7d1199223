package stats

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDescribe(t *testing.T) {
	values := []float64{100, 150, 200, 250, 300}
	s, err := Describe(values)
	require.NoError(t, err)

	assert.Equal(t, 5, s.Count)
	assert.InDelta(t, 200, s.Mean, 1e-9)
	assert.InDelta(t, 79.0569, s.Std, 1e-3)
	assert.Equal(t, 100.0, s.Min)
	assert.Equal(t, 300.0, s.Max)
	assert.InEpsilon(t, 200, s.P50, 0.02)
	assert.True(t, s.P25 <= s.P50 && s.P50 <= s.P75)
}

func TestDescribe_EmptyAndSingle(t *testing.T) {
	s, err := Describe(nil)
	require.NoError(t, err)
	assert.Equal(t, 0, s.Count)
	assert.True(t, math.IsNaN(s.Mean))

	s, err = Describe([]float64{42})
	require.NoError(t, err)
	assert.Equal(t, 42.0, s.Mean)
	assert.True(t, math.IsNaN(s.Std))
	assert.Equal(t, 42.0, s.P75)
}

func TestQuantiles_ClampedToRange(t *testing.T) {
	qs, err := Quantiles([]float64{10, 10, 10}, 0.5, 0.95)
	require.NoError(t, err)
	assert.Equal(t, []float64{10, 10}, qs)

	_, err = Quantiles(nil, 0.5)
	assert.Error(t, err)
}
