package goedxcore

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/interp"
	"gonum.org/v1/gonum/stat"
)

// BackgroundKind selects the background function of a segment.
type BackgroundKind int

const (
	Chebyshev BackgroundKind = iota
	Interpolation
	numBackgroundKinds
)

var backgroundKindNames = [numBackgroundKinds]string{
	Chebyshev:     "Chebyshev",
	Interpolation: "Interpolation",
}

func (k BackgroundKind) valid() bool { return k >= 0 && k < numBackgroundKinds }

func (k BackgroundKind) String() string {
	if !k.valid() {
		return fmt.Sprintf("BackgroundKind(%d)", int(k))
	}
	return backgroundKindNames[k]
}

// ParseBackgroundKind returns the kind with the given name.
func ParseBackgroundKind(name string) (BackgroundKind, error) {
	for k, n := range backgroundKindNames {
		if n == name {
			return BackgroundKind(k), nil
		}
	}
	return 0, fmt.Errorf("background model %q: %w", name, ErrUnknownKind)
}

// MaxChebyshevDegree is the highest supported polynomial degree.
const MaxChebyshevDegree = 11

const (
	bgXMin = iota
	bgXMax
	bgCoef0
	numBackgroundParams = bgCoef0 + MaxChebyshevDegree + 1
)

func backgroundParamName(i int) string {
	switch i {
	case bgXMin:
		return "xmin"
	case bgXMax:
		return "xmax"
	}
	return "c" + strconv.Itoa(i-bgCoef0)
}

func parseBackgroundParam(name string) (int, error) {
	switch name {
	case "xmin":
		return bgXMin, nil
	case "xmax":
		return bgXMax, nil
	}
	if rest, ok := strings.CutPrefix(name, "c"); ok {
		k, err := strconv.Atoi(rest)
		if err == nil && k >= 0 && k <= MaxChebyshevDegree {
			return bgCoef0 + k, nil
		}
	}
	return 0, fmt.Errorf("background parameter %q: %w", name, ErrUnknownKind)
}

// Background is one background segment defined on (xmin, xmax).
type Background struct {
	Kind BackgroundKind

	degree int
	params [numBackgroundParams]Value
	bounds [numBackgroundParams]Bounds
	vary   [numBackgroundParams]bool

	// Interpolation breakpoints, rebuilt by Fit.
	breakX, breakY []float64
	fn             *interp.PiecewiseLinear
}

func newBackground(kind BackgroundKind, xmin, xmax float64) (*Background, error) {
	b := &Background{Kind: kind}
	for i := range b.params {
		b.params[i] = V(0)
		b.bounds[i] = Unbounded
	}
	if err := b.SetDomain(xmin, xmax); err != nil {
		return nil, err
	}
	return b, nil
}

// NewChebyshev creates a polynomial segment with zero coefficients c0..c_degree, all varied.
func NewChebyshev(xmin, xmax float64, degree int) (*Background, error) {
	b, err := newBackground(Chebyshev, xmin, xmax)
	if err != nil {
		return nil, err
	}
	b.vary[bgCoef0] = true
	if err := b.SetDegree(degree); err != nil {
		return nil, err
	}
	return b, nil
}

// NewInterpolation creates a segment that linearly interpolates background-only data.
// It evaluates to zero until its first Fit.
func NewInterpolation(xmin, xmax float64) (*Background, error) {
	return newBackground(Interpolation, xmin, xmax)
}

// Domain returns the segment's (xmin, xmax).
func (b *Background) Domain() (xmin, xmax float64) {
	return b.params[bgXMin].Value, b.params[bgXMax].Value
}

// SetDomain moves the segment. Bounds must be finite and xmin < xmax.
func (b *Background) SetDomain(xmin, xmax float64) error {
	if math.IsNaN(xmin) || math.IsNaN(xmax) || math.IsInf(xmin, 0) || math.IsInf(xmax, 0) || xmin >= xmax {
		return fmt.Errorf("background domain (%v, %v): %w", xmin, xmax, ErrDegenerate)
	}
	b.params[bgXMin] = V(xmin)
	b.params[bgXMax] = V(xmax)
	return nil
}

func (b *Background) Degree() int { return b.degree }

// SetDegree changes the number of Chebyshev terms. Coefficients entering the sum start
// varied, the ones leaving it stop varying.
func (b *Background) SetDegree(degree int) error {
	if b.Kind != Chebyshev {
		return fmt.Errorf("%s has no degree: %w", b.Kind, ErrInvalidInput)
	}
	if degree < 0 || degree > MaxChebyshevDegree {
		return fmt.Errorf("degree %d outside [0, %d]: %w", degree, MaxChebyshevDegree, ErrDegenerate)
	}
	for k := 0; k <= MaxChebyshevDegree; k++ {
		switch {
		case k <= degree && k > b.degree:
			b.vary[bgCoef0+k] = true
		case k > degree:
			b.vary[bgCoef0+k] = false
		}
	}
	b.degree = degree
	return nil
}

// Coef returns Chebyshev coefficient k.
func (b *Background) Coef(k int) Value {
	if k < 0 || k > MaxChebyshevDegree {
		return V(math.NaN())
	}
	return b.params[bgCoef0+k]
}

func (b *Background) checkCoef(k int) error {
	if b.Kind != Chebyshev {
		return fmt.Errorf("%s has no coefficients: %w", b.Kind, ErrInvalidInput)
	}
	if k < 0 || k > MaxChebyshevDegree {
		return fmt.Errorf("coefficient c%d: %w", k, ErrUnknownKind)
	}
	return nil
}

// SetCoef sets coefficient k, clamped into its bounds.
func (b *Background) SetCoef(k int, v float64) error {
	if err := b.checkCoef(k); err != nil {
		return err
	}
	if math.IsNaN(v) {
		return fmt.Errorf("c%d: %w: NaN", k, ErrInvalidInput)
	}
	b.params[bgCoef0+k] = V(b.bounds[bgCoef0+k].Clamp(v))
	return nil
}

// SetCoefBounds replaces the range of coefficient k and clamps it.
func (b *Background) SetCoefBounds(k int, min, max float64) error {
	if err := b.checkCoef(k); err != nil {
		return err
	}
	if math.IsNaN(min) || math.IsNaN(max) || min > max {
		return fmt.Errorf("c%d bounds (%v, %v): %w", k, min, max, ErrInvalidInput)
	}
	i := bgCoef0 + k
	b.bounds[i] = Bounds{Min: min, Max: max}
	if c := b.bounds[i].Clamp(b.params[i].Value); c != b.params[i].Value {
		b.params[i] = V(c)
	}
	return nil
}

func (b *Background) CoefBounds(k int) Bounds {
	if k < 0 || k > MaxChebyshevDegree {
		return Unbounded
	}
	return b.bounds[bgCoef0+k]
}

// SetCoefVary switches refinement of coefficient k.
func (b *Background) SetCoefVary(k int, vary bool) error {
	if err := b.checkCoef(k); err != nil {
		return err
	}
	if vary && k > b.degree {
		return fmt.Errorf("c%d is above degree %d: %w", k, b.degree, ErrInvalidInput)
	}
	b.vary[bgCoef0+k] = vary
	return nil
}

func (b *Background) CoefVaries(k int) bool {
	if k < 0 || k > MaxChebyshevDegree {
		return false
	}
	return b.vary[bgCoef0+k]
}

// Breakpoints returns a copy of the interpolation table.
func (b *Background) Breakpoints() (xs, ys []float64) {
	return append([]float64(nil), b.breakX...), append([]float64(nil), b.breakY...)
}

// SetBreakpoints replaces the interpolation table. xs must be strictly increasing.
func (b *Background) SetBreakpoints(xs, ys []float64) error {
	if b.Kind != Interpolation {
		return fmt.Errorf("%s has no breakpoints: %w", b.Kind, ErrInvalidInput)
	}
	if len(xs) == 0 && len(ys) == 0 {
		b.breakX, b.breakY, b.fn = nil, nil, nil
		return nil
	}
	if len(xs) != len(ys) || len(xs) < 2 {
		return fmt.Errorf("%w: %d breakpoint x, %d y", ErrInvalidInput, len(xs), len(ys))
	}
	for i := 1; i < len(xs); i++ {
		if !(xs[i] > xs[i-1]) {
			return fmt.Errorf("%w: breakpoints not strictly increasing at %v", ErrInvalidInput, xs[i])
		}
	}
	bx := append([]float64(nil), xs...)
	by := append([]float64(nil), ys...)
	var fn interp.PiecewiseLinear
	if err := fn.Fit(bx, by); err != nil {
		return fmt.Errorf("%w: breakpoints: %v", ErrInvalidInput, err)
	}
	b.breakX, b.breakY, b.fn = bx, by, &fn
	return nil
}

// varied lists the coefficient slots the Chebyshev fit refines.
func (b *Background) varied() []int {
	var res []int
	for k := 0; k <= b.degree; k++ {
		if b.vary[bgCoef0+k] {
			res = append(res, bgCoef0+k)
		}
	}
	return res
}

// Evaluate returns the background at x; zero outside (xmin, xmax).
func (b *Background) Evaluate(x float64) float64 {
	xmin, xmax := b.Domain()
	switch b.Kind {
	case Chebyshev:
		var c [MaxChebyshevDegree + 1]float64
		for k := 0; k <= b.degree; k++ {
			c[k] = b.params[bgCoef0+k].Value
		}
		return chebyshev(x, xmin, xmax, c[:b.degree+1])
	case Interpolation:
		if b.fn == nil || !(x > xmin && x < xmax) {
			return 0
		}
		n := len(b.breakX)
		switch {
		case x <= b.breakX[0]:
			return b.breakY[0]
		case x >= b.breakX[n-1]:
			return b.breakY[n-1]
		}
		return b.fn.Predict(x)
	}
	return math.NaN()
}

// Eval evaluates the background over xs.
func (b *Background) Eval(xs []float64) []float64 {
	res := make([]float64, len(xs))
	b.addTo(res, xs)
	return res
}

func (b *Background) addTo(dst, xs []float64) {
	for i, x := range xs {
		dst[i] += b.Evaluate(x)
	}
}

// chebyshev sums c_k T_k(t) for t = (x-xmin)/(xmax-xmin) in (0, 1); it is zero
// elsewhere and never negative.
func chebyshev(x, xmin, xmax float64, c []float64) float64 {
	t := (x - xmin) / (xmax - xmin)
	if !(t > 0 && t < 1) {
		return 0
	}
	tPrev, tCur := 1., t
	sum := c[0]
	for k := 1; k < len(c); k++ {
		sum += c[k] * tCur
		tPrev, tCur = tCur, 2*t*tCur-tPrev
	}
	if sum < 0 {
		return 0
	}
	return sum
}

// Fit refines the segment against yResidual, the data with everything else subtracted.
// excluded lists the peak base windows; only Interpolation uses them.
func (b *Background) Fit(x, yResidual []float64, excluded []Window) error {
	if len(x) != len(yResidual) {
		return fmt.Errorf("%w: %d x values, %d y values", ErrInvalidInput, len(x), len(yResidual))
	}
	switch b.Kind {
	case Chebyshev:
		return b.fitChebyshev(x, yResidual)
	case Interpolation:
		return b.fitInterpolation(x, yResidual, excluded)
	}
	return fmt.Errorf("background model %d: %w", int(b.Kind), ErrUnknownKind)
}

func (b *Background) fitChebyshev(x, y []float64) error {
	slots := b.varied()
	if len(slots) == 0 {
		return nil
	}
	xmin, xmax := b.Domain()
	var xs, ys []float64
	for i, v := range x {
		if t := (v - xmin) / (xmax - xmin); t > 0 && t < 1 {
			xs = append(xs, v)
			ys = append(ys, y[i])
		}
	}
	if len(xs) == 0 {
		return fmt.Errorf("no data inside (%v, %v)", xmin, xmax)
	}
	norm := floats.Max(ys)
	if norm == 0 {
		norm = 1
	}

	var coefs [MaxChebyshevDegree + 1]float64
	for k := 0; k <= b.degree; k++ {
		coefs[k] = b.params[bgCoef0+k].Value
	}
	x0 := make([]float64, len(slots))
	bounds := make([]Bounds, len(slots))
	allZero := true
	for i, s := range slots {
		x0[i] = b.params[s].Value
		bounds[i] = b.bounds[s]
		allZero = allZero && x0[i] == 0
	}
	// A zero polynomial sits on the clamp at 0; start from the mean level instead.
	if allZero && slots[0] == bgCoef0 {
		x0[0] = bounds[0].Clamp(stat.Mean(ys, nil))
	}

	degree := b.degree
	res, err := solveLSQ(lsqProblem{
		size:   len(xs),
		x0:     x0,
		bounds: bounds,
		residual: func(dst, p []float64) {
			c := coefs
			for i, s := range slots {
				c[s-bgCoef0] = p[i]
			}
			for i, v := range xs {
				dst[i] = (ys[i] - chebyshev(v, xmin, xmax, c[:degree+1])) / norm
			}
		},
	})
	if err != nil {
		return err
	}
	for i, s := range slots {
		b.params[s] = Value{Value: b.bounds[s].Clamp(res.X[i]), Std: res.Std[i]}
	}
	return nil
}

func (b *Background) fitInterpolation(x, y []float64, excluded []Window) error {
	xmin, xmax := b.Domain()
	type point struct{ x, y float64 }
	var kept []point
	for i, v := range x {
		inside := false
		for _, w := range excluded {
			if v > w.Lo && v < w.Hi {
				inside = true
				break
			}
		}
		if !inside {
			kept = append(kept, point{v, y[i]})
		}
	}
	sort.Slice(kept, func(i, j int) bool { return kept[i].x < kept[j].x })

	// Domain edges inside a peak window snap to the nearest kept point outside it.
	for _, w := range excluded {
		if w.Lo <= xmin && xmin <= w.Hi {
			xmin = w.Lo
			for _, p := range kept {
				if p.x <= w.Lo {
					xmin = p.x
				}
			}
		}
		if w.Lo <= xmax && xmax <= w.Hi {
			xmax = w.Hi
			for i := len(kept) - 1; i >= 0; i-- {
				if kept[i].x >= w.Hi {
					xmax = kept[i].x
				}
			}
		}
	}

	var xs, ys []float64
	for _, p := range kept {
		if p.x < xmin || p.x > xmax {
			continue
		}
		if n := len(xs); n > 0 && xs[n-1] == p.x {
			continue
		}
		xs = append(xs, p.x)
		ys = append(ys, p.y)
	}
	if len(xs) < 2 {
		return fmt.Errorf("%d background points left in (%v, %v) after removing peaks", len(xs), xmin, xmax)
	}
	return b.SetBreakpoints(xs, ys)
}
