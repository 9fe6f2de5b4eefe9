package goedxcore

import (
	"gonum.org/v1/gonum/floats"
)

// Metrics are Rietveld-style agreement factors between observed and calculated counts,
// weighted by 1/yo. They are undefined when any observed value is zero.
type Metrics struct {
	Chi2  float64 `json:"chi2"`
	Rwp2  float64 `json:"rwp2"`
	Rexp2 float64 `json:"rexp2"`
}

// ComputeMetrics compares observed yo with calculated yc.
func ComputeMetrics(yo, yc []float64) Metrics {
	n := len(yo)
	weighted := make([]float64, n)
	for i := range yo {
		d := yo[i] - yc[i]
		weighted[i] = d * d / yo[i]
	}
	// Σ w·yo² with w = 1/yo
	norm := floats.Sum(yo)

	m := Metrics{
		Rwp2:  floats.Sum(weighted) / norm,
		Rexp2: float64(n) / norm,
	}
	m.Chi2 = m.Rwp2 / m.Rexp2
	return m
}

// UpdateMetrics stores per-peak chi2 and rwp2, computed over each peak's open base
// window with the full model, and returns the global chi2. The global value covers
// the points inside any background domain, or the whole spectrum without backgrounds.
func UpdateMetrics(s *Spectrum) float64 {
	yPeaks, yBg := s.Model()
	yc := yPeaks
	floats.Add(yc, yBg)

	for _, p := range s.Peaks {
		lo, hi := p.BaseWindow()
		var o, c []float64
		for i, x := range s.X {
			if x > lo && x < hi {
				o = append(o, s.Y[i])
				c = append(c, yc[i])
			}
		}
		m := ComputeMetrics(o, c)
		p.setMetrics(m.Chi2, m.Rwp2)
	}

	if len(s.Backgrounds) == 0 {
		return ComputeMetrics(s.Y, yc).Chi2
	}
	var o, c []float64
	for i, x := range s.X {
		for _, b := range s.Backgrounds {
			if xmin, xmax := b.Domain(); x > xmin && x < xmax {
				o = append(o, s.Y[i])
				c = append(c, yc[i])
				break
			}
		}
	}
	return ComputeMetrics(o, c).Chi2
}
