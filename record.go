package goedxcore

import (
	"fmt"
	"math"
)

// PeakRecord is the serializable form of a Peak. It carries every parameter with its
// uncertainty, every bound and every vary flag, so FromRecord(Record()) is lossless.
type PeakRecord struct {
	Kind          string            `json:"kind" yaml:"kind"`
	SpectrumIndex int               `json:"spectrum_index" yaml:"spectrum_index"`
	Params        map[string]Value  `json:"params" yaml:"params"`
	Bounds        map[string]Bounds `json:"bounds" yaml:"bounds"`
	Vary          map[string]bool   `json:"vary" yaml:"vary"`
}

func (p *Peak) Record() PeakRecord {
	rec := PeakRecord{
		Kind:          p.Kind.String(),
		SpectrumIndex: p.SpectrumIndex,
		Params:        make(map[string]Value, numParams),
		Bounds:        make(map[string]Bounds, numParams),
		Vary:          make(map[string]bool, numParams),
	}
	for i := Param(0); i < numParams; i++ {
		rec.Params[i.String()] = p.params[i]
		rec.Bounds[i.String()] = p.bounds[i]
		rec.Vary[i.String()] = p.vary[i]
	}
	return rec
}

// PeakFromRecord rebuilds a peak as recorded, with every value clamped into its bounds.
// Hand-written records may leave parameters out: fraction, base and overlap_base
// take the kind's defaults, width and height are derived when either is missing,
// anything else is NaN. Missing bounds are unbounded.
func PeakFromRecord(rec PeakRecord) (*Peak, error) {
	kind, err := ParsePeakKind(rec.Kind)
	if err != nil {
		return nil, err
	}
	p := &Peak{Kind: kind, SpectrumIndex: rec.SpectrumIndex}
	for i := range p.params {
		p.params[i] = V(math.NaN())
		p.bounds[i] = Unbounded
	}
	p.params[Fraction] = V(peakKinds[kind].fraction)
	p.params[Base] = V(defaultBase)
	p.params[OverlapBase] = V(defaultOverlapBase)
	for name, v := range rec.Params {
		param, err := ParseParam(name)
		if err != nil {
			return nil, err
		}
		p.params[param] = v
	}
	for name, b := range rec.Bounds {
		param, err := ParseParam(name)
		if err != nil {
			return nil, err
		}
		p.bounds[param] = b
	}
	for name, vary := range rec.Vary {
		param, err := ParseParam(name)
		if err != nil {
			return nil, err
		}
		if vary && !kind.Refinable(param) {
			return nil, fmt.Errorf("%w: %s cannot vary for %s", ErrInvalidInput, param, kind)
		}
		p.vary[param] = vary
	}
	clamped := false
	for i := range p.params {
		v := p.params[i].Value
		if c := p.bounds[i].Clamp(v); c != v && !math.IsNaN(v) {
			p.params[i].Value = c
			clamped = true
		}
	}
	_, hasWidth := rec.Params[Width.String()]
	_, hasHeight := rec.Params[Height.String()]
	if clamped || !hasWidth || !hasHeight {
		p.RefreshDerived()
	}
	return p, nil
}

// BackgroundRecord is the serializable form of a Background.
type BackgroundRecord struct {
	Kind   string            `json:"kind" yaml:"kind"`
	Degree int               `json:"degree" yaml:"degree"`
	Params map[string]Value  `json:"params" yaml:"params"`
	Bounds map[string]Bounds `json:"bounds" yaml:"bounds"`
	Vary   map[string]bool   `json:"vary,omitempty" yaml:"vary,omitempty"`
	BreakX []float64         `json:"break_x,omitempty" yaml:"break_x,omitempty"`
	BreakY []float64         `json:"break_y,omitempty" yaml:"break_y,omitempty"`
}

func (b *Background) Record() BackgroundRecord {
	rec := BackgroundRecord{
		Kind:   b.Kind.String(),
		Degree: b.degree,
		Params: make(map[string]Value),
		Bounds: make(map[string]Bounds),
	}
	n := bgCoef0
	if b.Kind == Chebyshev {
		n = numBackgroundParams
		rec.Vary = make(map[string]bool, MaxChebyshevDegree+1)
	}
	for i := 0; i < n; i++ {
		name := backgroundParamName(i)
		rec.Params[name] = b.params[i]
		rec.Bounds[name] = b.bounds[i]
		if i >= bgCoef0 {
			rec.Vary[name] = b.vary[i]
		}
	}
	rec.BreakX, rec.BreakY = b.Breakpoints()
	if len(rec.BreakX) == 0 {
		rec.BreakX, rec.BreakY = nil, nil
	}
	return rec
}

// BackgroundFromRecord rebuilds a background segment, clamping values into their bounds.
// The domain must be valid.
// A Chebyshev record without vary flags refines all its coefficients.
func BackgroundFromRecord(rec BackgroundRecord) (*Background, error) {
	kind, err := ParseBackgroundKind(rec.Kind)
	if err != nil {
		return nil, err
	}
	xmin, okMin := rec.Params["xmin"]
	xmax, okMax := rec.Params["xmax"]
	if !okMin || !okMax {
		return nil, fmt.Errorf("%w: background record without xmin/xmax", ErrInvalidInput)
	}
	b, err := newBackground(kind, xmin.Value, xmax.Value)
	if err != nil {
		return nil, err
	}
	if kind == Chebyshev {
		if rec.Degree < 0 || rec.Degree > MaxChebyshevDegree {
			return nil, fmt.Errorf("degree %d outside [0, %d]: %w", rec.Degree, MaxChebyshevDegree, ErrDegenerate)
		}
		if rec.Vary == nil {
			// no flags recorded: vary c0..c_degree like NewChebyshev
			b.vary[bgCoef0] = true
			if err := b.SetDegree(rec.Degree); err != nil {
				return nil, err
			}
		} else {
			b.degree = rec.Degree
		}
	}

	for name, v := range rec.Params {
		i, err := b.recordParam(name)
		if err != nil {
			return nil, err
		}
		b.params[i] = v
	}
	for name, bounds := range rec.Bounds {
		i, err := b.recordParam(name)
		if err != nil {
			return nil, err
		}
		b.bounds[i] = bounds
	}
	for i := range b.params {
		b.params[i].Value = b.bounds[i].Clamp(b.params[i].Value)
	}
	for name, vary := range rec.Vary {
		i, err := b.recordParam(name)
		if err != nil {
			return nil, err
		}
		if i < bgCoef0 && vary {
			return nil, fmt.Errorf("%w: %s cannot vary", ErrInvalidInput, name)
		}
		b.vary[i] = vary
	}

	if kind == Interpolation && len(rec.BreakX)+len(rec.BreakY) > 0 {
		if err := b.SetBreakpoints(rec.BreakX, rec.BreakY); err != nil {
			return nil, err
		}
	}
	return b, nil
}

func (b *Background) recordParam(name string) (int, error) {
	i, err := parseBackgroundParam(name)
	if err != nil {
		return 0, err
	}
	if i >= bgCoef0 && b.Kind != Chebyshev {
		return 0, fmt.Errorf("%s has no parameter %q: %w", b.Kind, name, ErrUnknownKind)
	}
	return i, nil
}
