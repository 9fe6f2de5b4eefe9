package goedxcore

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// grid returns n+1 evenly spaced points from lo to hi.
func grid(lo, hi float64, n int) []float64 {
	x := make([]float64, n+1)
	for i := range x {
		x[i] = lo + (hi-lo)*float64(i)/float64(n)
	}
	return x
}

type synthPeak struct {
	kind                     PeakKind
	center, sigma, amplitude float64
}

// synthesize builds counts from the given peaks on a flat level.
func synthesize(t *testing.T, x []float64, level float64, peaks ...synthPeak) []float64 {
	t.Helper()
	y := make([]float64, len(x))
	for i := range y {
		y[i] = level
	}
	for _, sp := range peaks {
		p, err := NewPeak(sp.kind, sp.center, sp.sigma, sp.amplitude)
		require.NoError(t, err)
		p.addTo(y, x)
	}
	return y
}

func mustPeak(t *testing.T, kind PeakKind, center, sigma, amplitude float64) *Peak {
	t.Helper()
	p, err := NewPeak(kind, center, sigma, amplitude)
	require.NoError(t, err)
	return p
}
