package frames

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mtfchart/pkg/bars"
)

func threeMinuteBars() []bars.Candle {
	return []bars.Candle{
		{T: -60_000, O: 1.0990, H: 1.0995, L: 1.0985, C: 1.0992},
		{T: 0, O: 1.0992, H: 1.0998, L: 1.0990, C: 1.0996},
		{T: 60_000, O: 1.1000, H: 1.1000, L: 1.1000, C: 1.1000},
	}
}

func TestTickExtendsSameBucket(t *testing.T) {
	series := threeMinuteBars()
	out, changed, closed := applyTick(series, bars.Res1m, 500, 1.1005, 90_000)
	require.True(t, changed)
	assert.Nil(t, closed)
	require.Len(t, out, 3)
	last := out[2]
	assert.Equal(t, int64(60_000), last.T)
	assert.Equal(t, 1.1000, last.O)
	assert.Equal(t, 1.1005, last.H)
	assert.Equal(t, 1.1000, last.L)
	assert.Equal(t, 1.1005, last.C)
	assert.Equal(t, 1.1000, series[2].C, "input must not be mutated")
}

func TestTickOpensNewBucket(t *testing.T) {
	series, _, _ := applyTick(threeMinuteBars(), bars.Res1m, 500, 1.1005, 90_000)
	out, changed, closed := applyTick(series, bars.Res1m, 500, 1.1010, 125_000)
	require.True(t, changed)
	require.NotNil(t, closed)
	assert.Equal(t, int64(60_000), closed.T)
	require.Len(t, out, 4)
	assert.Equal(t, bars.Candle{T: 120_000, O: 1.1005, H: 1.1010, L: 1.1005, C: 1.1010}, out[3])
}

func TestTickIgnoresOlderBucketAndNoops(t *testing.T) {
	series := threeMinuteBars()
	out, changed, closed := applyTick(series, bars.Res1m, 500, 1.2, 59_999)
	assert.False(t, changed)
	assert.Nil(t, closed)
	assert.Equal(t, series, out)

	_, changed, _ = applyTick(series, bars.Res1m, 500, 1.1000, 61_000)
	assert.False(t, changed, "identical tick changes nothing")

	_, changed, _ = applyTick(nil, bars.Res1m, 500, 1.1, 61_000)
	assert.False(t, changed, "frames without bars are not synthesized")
	_, changed, _ = applyTick(series, bars.Res1m, 500, 0, 61_000)
	assert.False(t, changed)
}

func TestTickEvictsOverCapacity(t *testing.T) {
	out, _, closed := applyTick(threeMinuteBars(), bars.Res1m, 3, 1.2, 200_000)
	require.NotNil(t, closed)
	require.Len(t, out, 3)
	assert.Equal(t, int64(0), out[0].T)
	assert.Equal(t, int64(180_000), out[2].T)
}

func TestTickProperties(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	series := threeMinuteBars()
	closes := 0
	for i := 0; i < 2000; i++ {
		ts := int64(rng.Intn(4_000_000)) - 100_000
		price := 1.09 + rng.Float64()*0.02
		prev := bars.Clone(series)
		last := prev[len(prev)-1]
		bucket := bars.BucketStart(ts, bars.Res1m)

		out, _, closed := applyTick(series, bars.Res1m, 50, price, ts)
		switch {
		case bucket < last.T:
			assert.Equal(t, prev, out)
			assert.Nil(t, closed)
		case bucket == last.T:
			tail := out[len(out)-1]
			assert.Equal(t, last.O, tail.O)
			assert.GreaterOrEqual(t, tail.H, last.H)
			assert.LessOrEqual(t, tail.L, last.L)
			assert.Equal(t, price, tail.C)
			assert.Nil(t, closed)
		default:
			require.NotNil(t, closed)
			closes++
			assert.Equal(t, last.C, out[len(out)-1].O)
			assert.Equal(t, bucket, out[len(out)-1].T)
		}
		for j := 1; j < len(out); j++ {
			require.Less(t, out[j-1].T, out[j].T)
		}
		assert.LessOrEqual(t, len(out), 50)
		series = out
	}
	assert.Positive(t, closes)
}
