package scope

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itohio/gooven/pkg/channel"
)

func points(n int) []channel.Point {
	pts := make([]channel.Point, n)
	for i := range n {
		pts[i] = channel.Point{At: time.Duration(i+1) * time.Second, Value: float64(i)}
	}
	return pts
}

func TestDownsample_NoDownsampling(t *testing.T) {
	src := points(3)

	result := Downsample(nil, src, 10)
	assert.Equal(t, src, result)

	dst := make([]channel.Point, 0, 10)
	result = Downsample(dst, src, 10)
	assert.Equal(t, src, result)
	assert.Equal(t, cap(dst), cap(result), "dst should be reused")
}

func TestDownsample_WithDownsampling(t *testing.T) {
	src := points(100)

	dst := make([]channel.Point, 0, 20)
	result := Downsample(dst, src, 10)
	require.Len(t, result, 10)

	assert.Equal(t, src[0], result[0])
	assert.Equal(t, src[99], result[9], "newest point is kept")
	for i := 1; i < len(result); i++ {
		assert.Greater(t, result[i].At, result[i-1].At, "order preserved")
	}
	assert.Equal(t, cap(dst), cap(result))
}

func TestDownsample_DestinationReuse(t *testing.T) {
	dst := make([]float64, 0, 4)
	first := Downsample(dst, []float64{1, 2}, 4)
	second := Downsample(first, []float64{3, 4, 5}, 4)

	assert.Equal(t, []float64{3, 4, 5}, second)
	assert.Equal(t, 4, cap(second))
}

func TestDownsample_Empty(t *testing.T) {
	assert.Empty(t, Downsample[float64](nil, nil, 10))
	assert.Len(t, Downsample(nil, []float64{1, 2, 3}, 0), 2)
}
