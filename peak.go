package goedxcore

import (
	"fmt"
	"math"
)

// PeakKind selects the peak profile function.
type PeakKind int

const (
	PseudoVoigt PeakKind = iota
	Gaussian
	Lorentzian
	numPeakKinds
)

// Param names a peak parameter.
type Param int

const (
	Center Param = iota
	Sigma
	Amplitude
	Fraction
	Height
	Width
	Base
	OverlapBase
	Chi2
	Rwp2
	numParams
)

var paramNames = [numParams]string{
	Center:      "center",
	Sigma:       "sigma",
	Amplitude:   "amplitude",
	Fraction:    "fraction",
	Height:      "height",
	Width:       "width",
	Base:        "base",
	OverlapBase: "overlap_base",
	Chi2:        "chi2",
	Rwp2:        "rwp2",
}

func (p Param) valid() bool { return p >= 0 && p < numParams }

func (p Param) String() string {
	if !p.valid() {
		return fmt.Sprintf("Param(%d)", int(p))
	}
	return paramNames[p]
}

// ParseParam returns the parameter with the given record name.
func ParseParam(name string) (Param, error) {
	for p, n := range paramNames {
		if n == name {
			return Param(p), nil
		}
	}
	return 0, fmt.Errorf("peak parameter %q: %w", name, ErrUnknownKind)
}

var (
	sqrt2Ln2   = math.Sqrt(2 * math.Ln2)
	fwhmFactor = 2 * sqrt2Ln2
)

func gaussian(x, amplitude, center, sigma float64) float64 {
	d := x - center
	return amplitude / (math.Sqrt(2*math.Pi) * sigma) * math.Exp(-d*d/(2*sigma*sigma))
}

func lorentzian(x, amplitude, center, sigma float64) float64 {
	d := (x - center) / sigma
	return amplitude / (1 + d*d) / (math.Pi * sigma)
}

func pseudoVoigt(x, amplitude, center, sigma, fraction float64) float64 {
	return (1-fraction)*gaussian(x, amplitude, center, sigma/sqrt2Ln2) +
		fraction*lorentzian(x, amplitude, center, sigma)
}

type peakKindInfo struct {
	name      string
	prefix    string
	refinable []Param
	fraction  float64 // fixed fraction for kinds that do not refine it
	shape     func(x, amplitude, center, sigma, fraction float64) float64
	// height is the peak maximum of the profile for the given primary parameters.
	height      func(amplitude, sigma, fraction float64) float64
	widthFactor float64
}

var peakKinds = [numPeakKinds]peakKindInfo{
	PseudoVoigt: {
		name:      "PseudoVoigt",
		prefix:    "pv",
		refinable: []Param{Center, Sigma, Amplitude, Fraction},
		shape:     pseudoVoigt,
		height: func(amplitude, sigma, fraction float64) float64 {
			return amplitude / sigma * ((1-fraction)*math.Sqrt(math.Ln2/math.Pi) + fraction/math.Pi)
		},
		widthFactor: fwhmFactor,
	},
	Gaussian: {
		name:      "Gaussian",
		prefix:    "gau",
		refinable: []Param{Center, Sigma, Amplitude},
		shape: func(x, amplitude, center, sigma, _ float64) float64 {
			return gaussian(x, amplitude, center, sigma)
		},
		height: func(amplitude, sigma, _ float64) float64 {
			return amplitude / (sigma * math.Sqrt(2*math.Pi))
		},
		widthFactor: fwhmFactor,
	},
	Lorentzian: {
		name:      "Lorentzian",
		prefix:    "lor",
		refinable: []Param{Center, Sigma, Amplitude},
		fraction:  1,
		shape: func(x, amplitude, center, sigma, _ float64) float64 {
			return lorentzian(x, amplitude, center, sigma)
		},
		height: func(amplitude, sigma, _ float64) float64 {
			return amplitude / (math.Pi * sigma)
		},
		widthFactor: 2,
	},
}

func (k PeakKind) valid() bool { return k >= 0 && k < numPeakKinds }

func (k PeakKind) String() string {
	if !k.valid() {
		return fmt.Sprintf("PeakKind(%d)", int(k))
	}
	return peakKinds[k].name
}

// Prefix is the short parameter prefix used when peaks are exported side by side.
func (k PeakKind) Prefix() string {
	if !k.valid() {
		return ""
	}
	return peakKinds[k].prefix
}

// ParsePeakKind returns the kind with the given name.
func ParsePeakKind(name string) (PeakKind, error) {
	for k, info := range peakKinds {
		if info.name == name {
			return PeakKind(k), nil
		}
	}
	return 0, fmt.Errorf("peak model %q: %w", name, ErrUnknownKind)
}

// Refinable reports whether p can be varied by the optimizer for this kind.
func (k PeakKind) Refinable(p Param) bool {
	if !k.valid() {
		return false
	}
	for _, r := range peakKinds[k].refinable {
		if r == p {
			return true
		}
	}
	return false
}

const (
	defaultBase        = 3.
	defaultOverlapBase = 1e-2
)

// Peak is one diffraction peak fitted against one spectrum.
//
// Primary parameters are center, sigma, amplitude and fraction; width and height are
// derived from them by RefreshDerived. Every setter keeps values inside their bounds.
type Peak struct {
	SpectrumIndex int
	Kind          PeakKind

	params [numParams]Value
	bounds [numParams]Bounds
	vary   [numParams]bool
}

// NewPeak creates a peak with default bounds around the given primary parameters:
// the center may move by half a width, sigma and amplitude are kept positive.
func NewPeak(kind PeakKind, center, sigma, amplitude float64) (*Peak, error) {
	if !kind.valid() {
		return nil, fmt.Errorf("peak model %d: %w", int(kind), ErrUnknownKind)
	}
	for _, v := range []float64{center, sigma, amplitude} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%w: non-finite peak parameter %v", ErrInvalidInput, v)
		}
	}
	if sigma <= 0 {
		return nil, fmt.Errorf("sigma %v: %w", sigma, ErrDegenerate)
	}
	info := peakKinds[kind]

	p := &Peak{Kind: kind}
	for i := range p.params {
		p.params[i] = V(math.NaN())
		p.bounds[i] = Bounds{Min: 0, Max: math.Inf(1)}
	}
	halfWidth := .5 * sigma * info.widthFactor

	p.params[Center] = V(center)
	p.params[Sigma] = V(sigma)
	p.params[Amplitude] = V(amplitude)
	p.params[Fraction] = V(info.fraction)
	p.params[Base] = V(defaultBase)
	p.params[OverlapBase] = V(defaultOverlapBase)

	p.bounds[Center] = Bounds{Min: center - halfWidth, Max: center + halfWidth}
	p.bounds[Sigma] = Bounds{Min: math.Min(1e-4, sigma/2), Max: math.Max(1., 2*sigma)}
	p.bounds[Amplitude] = Bounds{Min: 0, Max: math.Max(1e7, 10*amplitude)}
	p.bounds[Fraction] = Bounds{Min: 0, Max: 1}

	for _, r := range info.refinable {
		p.vary[r] = true
	}
	p.params[Amplitude].Value = p.bounds[Amplitude].Clamp(amplitude)
	p.RefreshDerived()
	return p, nil
}

// Candidate is what a peak finder reports for one peak: its apex, the interpolated
// positions where the peak crosses its half height, and its bases.
type Candidate struct {
	Center, Height                  float64
	LeftIP, RightIP                 float64
	LeftBase, RightBase             float64
	LeftBaseHeight, RightBaseHeight float64
}

// NewPeakFromCandidate derives initial parameters from peak finder output.
func NewPeakFromCandidate(kind PeakKind, spectrum int, c Candidate) (*Peak, error) {
	if !kind.valid() {
		return nil, fmt.Errorf("peak model %d: %w", int(kind), ErrUnknownKind)
	}
	info := peakKinds[kind]
	width := c.RightIP - c.LeftIP
	if !(width > 0) {
		return nil, fmt.Errorf("candidate at %v has width %v: %w", c.Center, width, ErrDegenerate)
	}
	sigma := width / info.widthFactor
	height := math.Abs(c.Height - (c.LeftBaseHeight+c.RightBaseHeight)/2)
	amplitude := height / info.height(1, sigma, info.fraction)

	p, err := NewPeak(kind, c.Center, sigma, amplitude)
	if err != nil {
		return nil, err
	}
	p.SpectrumIndex = spectrum
	return p, nil
}

// Clone returns an independent copy of the peak assigned to another spectrum.
func (p *Peak) Clone(spectrum int) *Peak {
	c := *p
	c.SpectrumIndex = spectrum
	return &c
}

// Get returns the current estimate of a parameter, NaN for an unknown one.
func (p *Peak) Get(param Param) Value {
	if !param.valid() {
		return V(math.NaN())
	}
	return p.params[param]
}

// Bounds returns the allowed range of a parameter.
func (p *Peak) Bounds(param Param) Bounds {
	if !param.valid() {
		return Unbounded
	}
	return p.bounds[param]
}

// Varies reports whether the optimizer refines the parameter.
func (p *Peak) Varies(param Param) bool { return param.valid() && p.vary[param] }

func (p *Peak) Center() float64 { return p.params[Center].Value }
func (p *Peak) Sigma() float64  { return p.params[Sigma].Value }

// BaseWindow is the region over which the peak's own metrics are evaluated.
func (p *Peak) BaseWindow() (lo, hi float64) {
	return p.window(p.params[Base].Value)
}

// OverlapWindow is the region in which other peaks force a joint refinement.
func (p *Peak) OverlapWindow() (lo, hi float64) {
	return p.window(p.params[OverlapBase].Value)
}

func (p *Peak) window(halfSigmas float64) (float64, float64) {
	c, s := p.params[Center].Value, p.params[Sigma].Value
	return c - halfSigmas*s, c + halfSigmas*s
}

// Evaluate returns the profile at x.
func (p *Peak) Evaluate(x float64) float64 {
	return peakKinds[p.Kind].shape(x,
		p.params[Amplitude].Value, p.params[Center].Value, p.params[Sigma].Value, p.params[Fraction].Value)
}

// Eval evaluates the profile over xs.
func (p *Peak) Eval(xs []float64) []float64 {
	res := make([]float64, len(xs))
	p.addTo(res, xs)
	return res
}

func (p *Peak) addTo(dst, xs []float64) {
	shape := peakKinds[p.Kind].shape
	a, c, s, f := p.params[Amplitude].Value, p.params[Center].Value, p.params[Sigma].Value, p.params[Fraction].Value
	for i, x := range xs {
		dst[i] += shape(x, a, c, s, f)
	}
}

// SetValue sets a parameter, clamping it into its bounds. Width and height are
// converted to sigma and amplitude; the fit metrics cannot be set.
func (p *Peak) SetValue(param Param, v float64) error {
	if math.IsNaN(v) {
		return fmt.Errorf("%s: %w: NaN", param, ErrInvalidInput)
	}
	info := peakKinds[p.Kind]
	switch param {
	case Width:
		return p.SetValue(Sigma, v/info.widthFactor)
	case Height:
		perAmplitude := info.height(1, p.params[Sigma].Value, p.params[Fraction].Value)
		return p.SetValue(Amplitude, v/perAmplitude)
	case Chi2, Rwp2:
		return fmt.Errorf("%s is computed, not set: %w", param, ErrInvalidInput)
	case Sigma:
		if v <= 0 {
			return fmt.Errorf("sigma %v: %w", v, ErrDegenerate)
		}
	case Base, OverlapBase:
		if v < 0 {
			return fmt.Errorf("%s %v: %w", param, v, ErrDegenerate)
		}
	case Fraction:
		if !p.Kind.Refinable(Fraction) {
			return fmt.Errorf("%s has a fixed fraction: %w", info.name, ErrInvalidInput)
		}
	}
	if !param.valid() {
		return fmt.Errorf("%s: %w", param, ErrUnknownKind)
	}
	p.params[param] = V(p.bounds[param].Clamp(v))
	p.RefreshDerived()
	return nil
}

// SetBounds replaces the range of a parameter and clamps its value into it.
func (p *Peak) SetBounds(param Param, min, max float64) error {
	if math.IsNaN(min) || math.IsNaN(max) || min > max {
		return fmt.Errorf("%s bounds (%v, %v): %w", param, min, max, ErrInvalidInput)
	}
	info := peakKinds[p.Kind]
	switch param {
	case Width:
		return p.SetBounds(Sigma, min/info.widthFactor, max/info.widthFactor)
	case Height:
		perAmplitude := info.height(1, p.params[Sigma].Value, p.params[Fraction].Value)
		return p.SetBounds(Amplitude, min/perAmplitude, max/perAmplitude)
	case Sigma:
		if min <= 0 {
			return fmt.Errorf("sigma lower bound %v: %w", min, ErrDegenerate)
		}
	}
	if !param.valid() {
		return fmt.Errorf("%s: %w", param, ErrUnknownKind)
	}
	p.bounds[param] = Bounds{Min: min, Max: max}
	if v := p.params[param].Value; !math.IsNaN(v) {
		if c := p.bounds[param].Clamp(v); c != v {
			p.params[param] = V(c)
		}
	}
	p.RefreshDerived()
	return nil
}

// SetVary switches refinement of a parameter on or off.
func (p *Peak) SetVary(param Param, vary bool) error {
	if !param.valid() {
		return fmt.Errorf("%s: %w", param, ErrUnknownKind)
	}
	if vary && !p.Kind.Refinable(param) {
		return fmt.Errorf("%s cannot vary for %s: %w", param, p.Kind, ErrInvalidInput)
	}
	p.vary[param] = vary
	return nil
}

// RefreshDerived recomputes width and height with their uncertainties and ranges from
// the primary parameters. Sigma is not checked: a zero sigma yields NaN or Inf.
func (p *Peak) RefreshDerived() {
	info := peakKinds[p.Kind]
	p.params[Width] = Scale(p.params[Sigma], info.widthFactor)
	p.params[Height] = Propagate(func(x []float64) float64 {
		return info.height(x[0], x[1], x[2])
	}, p.params[Amplitude], p.params[Sigma], p.params[Fraction])

	sb, ab := p.bounds[Sigma], p.bounds[Amplitude]
	p.bounds[Width] = Bounds{Min: sb.Min * info.widthFactor, Max: sb.Max * info.widthFactor}
	perAmplitude := info.height(1, p.params[Sigma].Value, p.params[Fraction].Value)
	p.bounds[Height] = Bounds{Min: ab.Min * perAmplitude, Max: ab.Max * perAmplitude}
}

// varied lists the parameters the optimizer refines, in a fixed order.
func (p *Peak) varied() []Param {
	var res []Param
	for _, r := range peakKinds[p.Kind].refinable {
		if p.vary[r] {
			res = append(res, r)
		}
	}
	return res
}

func (p *Peak) setMetrics(chi2, rwp2 float64) {
	p.params[Chi2] = V(chi2)
	p.params[Rwp2] = V(rwp2)
}

// setRefined stores an optimizer estimate without touching bounds.
func (p *Peak) setRefined(param Param, v Value) {
	v.Value = p.bounds[param].Clamp(v.Value)
	p.params[param] = v
}
