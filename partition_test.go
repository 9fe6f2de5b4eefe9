package goedxcore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func peakPair(t *testing.T, base, overlapBase float64) []*Peak {
	t.Helper()
	peaks := []*Peak{
		mustPeak(t, PseudoVoigt, 50.0, 0.1, 100),
		mustPeak(t, PseudoVoigt, 50.3, 0.1, 100),
	}
	for _, p := range peaks {
		require.NoError(t, p.SetValue(Base, base))
		require.NoError(t, p.SetValue(OverlapBase, overlapBase))
	}
	return peaks
}

func TestPartition_OverlappingPeaksShareInterval(t *testing.T) {
	ivs := Partition(peakPair(t, 3, 3))

	require.Len(t, ivs, 1)
	assert.Equal(t, []int{0, 1}, ivs[0].Peaks)
	assert.InDelta(t, 49.7, ivs[0].Lo, 1e-9)
	assert.InDelta(t, 50.6, ivs[0].Hi, 1e-9)
}

func TestPartition_SeparateOverlapWindows(t *testing.T) {
	ivs := Partition(peakPair(t, 3, 0.5))

	require.Len(t, ivs, 2)
	assert.Equal(t, []int{0}, ivs[0].Peaks)
	assert.Equal(t, []int{1}, ivs[1].Peaks)
	// each interval is its peak's full base window, so they may overlap in energy
	assert.InDelta(t, 50.3, ivs[0].Hi, 1e-9)
	assert.InDelta(t, 50.0, ivs[1].Lo, 1e-9)
}

func TestPartition_BaseNarrowerThanOverlap(t *testing.T) {
	ivs := Partition(peakPair(t, 0.5, 3))

	require.Len(t, ivs, 2)
	assert.Equal(t, []int{0}, ivs[0].Peaks)
	assert.Equal(t, []int{1}, ivs[1].Peaks)
	assert.Less(t, ivs[0].Hi, ivs[1].Lo)
}

func TestPartition_IsolatedPeakIsItsBaseWindow(t *testing.T) {
	p := mustPeak(t, Gaussian, 12, 0.2, 10)
	ivs := Partition([]*Peak{p})

	require.Len(t, ivs, 1)
	lo, hi := p.BaseWindow()
	assert.Equal(t, Interval{Lo: lo, Hi: hi, Peaks: []int{0}}, ivs[0])
}

func TestPartition_EveryPeakExactlyOnce(t *testing.T) {
	centers := []float64{1, 1.2, 1.25, 3, 7, 7.1, 7.15, 7.5, 9.9, 10}
	var peaks []*Peak
	for _, c := range centers {
		p := mustPeak(t, PseudoVoigt, c, 0.05, 10)
		require.NoError(t, p.SetValue(OverlapBase, 2))
		peaks = append(peaks, p)
	}

	seen := make(map[int]int)
	for _, iv := range Partition(peaks) {
		assert.LessOrEqual(t, iv.Lo, iv.Hi)
		for _, i := range iv.Peaks {
			seen[i]++
		}
	}
	require.Len(t, seen, len(peaks))
	for i, n := range seen {
		assert.Equal(t, 1, n, "peak %d", i)
	}
}

func TestPartition_OrderIndependent(t *testing.T) {
	a := mustPeak(t, Gaussian, 5, 0.1, 10)
	b := mustPeak(t, Gaussian, 5.2, 0.1, 10)
	c := mustPeak(t, Gaussian, 9, 0.1, 10)
	for _, p := range []*Peak{a, b, c} {
		require.NoError(t, p.SetValue(OverlapBase, 2))
	}

	windows := func(peaks []*Peak) [][2]float64 {
		var res [][2]float64
		for _, iv := range Partition(peaks) {
			res = append(res, [2]float64{iv.Lo, iv.Hi})
		}
		return res
	}
	assert.Equal(t, windows([]*Peak{a, b, c}), windows([]*Peak{c, a, b}))
	assert.Equal(t, windows([]*Peak{a, b, c}), windows([]*Peak{b, c, a}))
}

func TestWindow_Intersects(t *testing.T) {
	w := Window{Lo: 1, Hi: 2}
	assert.True(t, w.Intersects(Window{Lo: 2, Hi: 3}), "touching ends")
	assert.True(t, w.Intersects(Window{Lo: 0, Hi: 5}))
	assert.True(t, Window{Lo: 0, Hi: 5}.Intersects(w))
	assert.False(t, w.Intersects(Window{Lo: 2.1, Hi: 3}))
}
