// Package track follows one reflection across a series of spectra.
//
// Peak-finder candidates live in an Arena indexed by spectrum; a Track only holds
// references into it, so removing a track never touches the candidates.
package track

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/kacperjurak/goedxcore"
)

// Ref addresses one candidate in an Arena.
type Ref struct {
	Spectrum int `json:"spectrum"`
	Slot     int `json:"slot"`
}

// Arena stores peak-finder candidates per spectrum.
type Arena struct {
	spectra [][]goedxcore.Candidate
}

func NewArena(spectra int) *Arena {
	return &Arena{spectra: make([][]goedxcore.Candidate, spectra)}
}

// Add stores c for the given spectrum, growing the arena when needed.
func (a *Arena) Add(spectrum int, c goedxcore.Candidate) Ref {
	for len(a.spectra) <= spectrum {
		a.spectra = append(a.spectra, nil)
	}
	a.spectra[spectrum] = append(a.spectra[spectrum], c)
	return Ref{Spectrum: spectrum, Slot: len(a.spectra[spectrum]) - 1}
}

func (a *Arena) Get(r Ref) goedxcore.Candidate { return a.spectra[r.Spectrum][r.Slot] }

func (a *Arena) Spectra() int { return len(a.spectra) }

// Candidates returns the references of one spectrum's candidates.
func (a *Arena) Candidates(spectrum int) []Ref {
	if spectrum < 0 || spectrum >= len(a.spectra) {
		return nil
	}
	refs := make([]Ref, len(a.spectra[spectrum]))
	for i := range refs {
		refs[i] = Ref{Spectrum: spectrum, Slot: i}
	}
	return refs
}

func (a *Arena) update(r Ref, f func(c *goedxcore.Candidate)) {
	f(&a.spectra[r.Spectrum][r.Slot])
}

// Track is the same reflection in several spectra, ordered by spectrum.
type Track struct {
	refs []Ref
}

func New(r Ref) *Track { return &Track{refs: []Ref{r}} }

// Append adds a member and keeps the spectrum order.
func (t *Track) Append(r Ref) {
	t.refs = append(t.refs, r)
	sort.SliceStable(t.refs, func(i, j int) bool { return t.refs[i].Spectrum < t.refs[j].Spectrum })
}

func (t *Track) Refs() []Ref { return append([]Ref(nil), t.refs...) }

func (t *Track) Len() int { return len(t.refs) }

// Lookup returns the track's member in the given spectrum.
func (t *Track) Lookup(spectrum int) (Ref, bool) {
	for _, r := range t.refs {
		if r.Spectrum == spectrum {
			return r, true
		}
	}
	return Ref{}, false
}

// Centers returns the track as a series: spectrum indices and peak centers.
func (t *Track) Centers(a *Arena) (spectra []int, centers []float64) {
	for _, r := range t.refs {
		spectra = append(spectra, r.Spectrum)
		centers = append(centers, a.Get(r).Center)
	}
	return spectra, centers
}

func (t *Track) MeanCenter(a *Arena) float64 {
	_, cs := t.Centers(a)
	return stat.Mean(cs, nil)
}

// Dist is how far c lies from the track's last member.
func (t *Track) Dist(a *Arena, c goedxcore.Candidate) float64 {
	return math.Abs(a.Get(t.refs[len(t.refs)-1]).Center - c.Center)
}

// BuildTracks walks the spectra in order and appends every candidate to the first
// track whose last member is within maxShift of it, starting a new track otherwise.
// Tracks are returned sorted by mean center.
func BuildTracks(a *Arena, maxShift float64) []*Track {
	var tracks []*Track
	for s := 0; s < a.Spectra(); s++ {
	next:
		for _, r := range a.Candidates(s) {
			c := a.Get(r)
			for _, t := range tracks {
				if t.Dist(a, c) <= maxShift {
					t.Append(r)
					continue next
				}
			}
			tracks = append(tracks, New(r))
		}
	}
	sort.SliceStable(tracks, func(i, j int) bool { return tracks[i].MeanCenter(a) < tracks[j].MeanCenter(a) })
	return tracks
}

// Predict guesses the candidate for a spectrum the track has no member in, averaging
// the members weighted by the square root of their heights. The height comes from the
// data between the predicted bases.
func (t *Track) Predict(a *Arena, x, y []float64) (goedxcore.Candidate, error) {
	n := len(t.refs)
	var (
		weights = make([]float64, n)
		cx      = make([]float64, n)
		lb      = make([]float64, n)
		rb      = make([]float64, n)
		lip     = make([]float64, n)
		rip     = make([]float64, n)
	)
	for i, r := range t.refs {
		c := a.Get(r)
		weights[i] = math.Sqrt(c.Height)
		cx[i], lb[i], rb[i], lip[i], rip[i] = c.Center, c.LeftBase, c.RightBase, c.LeftIP, c.RightIP
	}

	res := goedxcore.Candidate{
		Center:    stat.Mean(cx, weights),
		LeftBase:  stat.Mean(lb, weights),
		RightBase: stat.Mean(rb, weights),
		LeftIP:    stat.Mean(lip, weights),
		RightIP:   stat.Mean(rip, weights),
	}

	var window []float64
	for i, v := range x {
		if v >= res.LeftBase && v <= res.RightBase {
			window = append(window, y[i])
		}
	}
	if len(window) == 0 {
		return goedxcore.Candidate{}, fmt.Errorf("%w: no data between %v and %v",
			goedxcore.ErrInvalidInput, res.LeftBase, res.RightBase)
	}
	lo := floats.Min(window)
	res.Height = floats.Max(window) - lo + 1
	res.LeftBaseHeight, res.RightBaseHeight = lo, lo
	return res, nil
}

// Shift moves every member of the track by the same energy.
func (t *Track) Shift(a *Arena, by float64) {
	for _, r := range t.refs {
		a.update(r, func(c *goedxcore.Candidate) { shift(c, by) })
	}
}

// Compress pulls outlying members toward the track's mean so that all centers fit in
// an energy range of the given width.
func (t *Track) Compress(a *Arena, width float64) {
	_, cs := t.Centers(a)
	if len(cs) == 0 {
		return
	}
	mean, lo, hi := stat.Mean(cs, nil), floats.Min(cs), floats.Max(cs)
	if hi == lo {
		return
	}
	newMin := (mean*(hi-lo) - width*(mean-lo)) / (hi - lo)
	newMax := newMin + width
	for _, r := range t.refs {
		a.update(r, func(c *goedxcore.Candidate) {
			switch {
			case c.Center > newMax:
				shift(c, newMax-c.Center)
			case c.Center < newMin:
				shift(c, newMin-c.Center)
			}
		})
	}
}

func shift(c *goedxcore.Candidate, by float64) {
	c.Center += by
	c.LeftBase += by
	c.RightBase += by
	c.LeftIP += by
	c.RightIP += by
}
