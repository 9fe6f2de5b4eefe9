package goedxcore

import (
	"fmt"
	"math"
	"sort"
)

// Spectrum is one measured curve together with the model fitted to it.
// X and Y are not modified by refinement; Peaks and Backgrounds are updated in place.
type Spectrum struct {
	X, Y        []float64
	Peaks       []*Peak
	Backgrounds []*Background
}

// NewSpectrum validates the data and returns an empty model for it.
func NewSpectrum(x, y []float64) (*Spectrum, error) {
	s := &Spectrum{X: x, Y: y}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Validate checks that the data can be refined.
func (s *Spectrum) Validate() error {
	if len(s.X) != len(s.Y) {
		return fmt.Errorf("%w: %d x values, %d y values", ErrInvalidInput, len(s.X), len(s.Y))
	}
	if len(s.X) == 0 {
		return fmt.Errorf("%w: empty spectrum", ErrInvalidInput)
	}
	for i := range s.X {
		if !finite(s.X[i]) || !finite(s.Y[i]) {
			return fmt.Errorf("%w: non-finite point %d (%v, %v)", ErrInvalidInput, i, s.X[i], s.Y[i])
		}
	}
	for i, p := range s.Peaks {
		if p == nil {
			return fmt.Errorf("%w: peak %d is nil", ErrInvalidInput, i)
		}
	}
	for i, b := range s.Backgrounds {
		if b == nil {
			return fmt.Errorf("%w: background %d is nil", ErrInvalidInput, i)
		}
	}
	return nil
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

// SortPeaks orders peaks by center. Peaks with equal centers keep their order.
func SortPeaks(peaks []*Peak) {
	sort.SliceStable(peaks, func(i, j int) bool { return peaks[i].Center() < peaks[j].Center() })
}

// AddPeak inserts p keeping the peaks sorted and returns its index.
func (s *Spectrum) AddPeak(p *Peak) int {
	s.Peaks = append(s.Peaks, p)
	SortPeaks(s.Peaks)
	for i, q := range s.Peaks {
		if q == p {
			return i
		}
	}
	return -1
}

// RemovePeak deletes the i-th peak.
func (s *Spectrum) RemovePeak(i int) error {
	if i < 0 || i >= len(s.Peaks) {
		return fmt.Errorf("%w: peak %d of %d", ErrInvalidInput, i, len(s.Peaks))
	}
	s.Peaks = append(s.Peaks[:i], s.Peaks[i+1:]...)
	return nil
}

// EditPeak applies edit to the i-th peak and restores the ordering afterwards,
// even when edit fails halfway.
func (s *Spectrum) EditPeak(i int, edit func(p *Peak) error) error {
	if i < 0 || i >= len(s.Peaks) {
		return fmt.Errorf("%w: peak %d of %d", ErrInvalidInput, i, len(s.Peaks))
	}
	defer SortPeaks(s.Peaks)
	return edit(s.Peaks[i])
}

// AddBackground appends a background segment.
func (s *Spectrum) AddBackground(b *Background) {
	s.Backgrounds = append(s.Backgrounds, b)
}

// RemoveBackground deletes the i-th background segment.
func (s *Spectrum) RemoveBackground(i int) error {
	if i < 0 || i >= len(s.Backgrounds) {
		return fmt.Errorf("%w: background %d of %d", ErrInvalidInput, i, len(s.Backgrounds))
	}
	s.Backgrounds = append(s.Backgrounds[:i], s.Backgrounds[i+1:]...)
	return nil
}

// Model returns the current peak and background contributions over X.
func (s *Spectrum) Model() (peaks, background []float64) {
	peaks = make([]float64, len(s.X))
	background = make([]float64, len(s.X))
	for _, p := range s.Peaks {
		p.addTo(peaks, s.X)
	}
	for _, b := range s.Backgrounds {
		b.addTo(background, s.X)
	}
	return peaks, background
}
