package goedxcore

import (
	"errors"
	"fmt"
	"math"

	"github.com/maorshutman/lm"
	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/mat"
)

const (
	maxIterations = 1000
	lmTau         = 1e-3
	lmEps         = 1e-10
	objectiveTol  = 1e-16
)

// lsqProblem is a least-squares problem over external (bounded) parameters.
// residual must be safe to call concurrently: it may not share scratch buffers.
type lsqProblem struct {
	size     int
	x0       []float64
	bounds   []Bounds
	residual func(dst, x []float64)
}

type lsqResult struct {
	X   []float64
	Std []float64
}

// solveLSQ runs Levenberg-Marquardt on p. Bounds are honored by solving in an
// unconstrained internal space mapped onto the bounds (sine for two-sided bounds,
// square root for one-sided ones), as MINUIT and lmfit do.
func solveLSQ(p lsqProblem) (res lsqResult, err error) {
	dim := len(p.x0)
	if dim == 0 {
		return res, errors.New("no parameters to refine")
	}
	if p.size < dim {
		return res, fmt.Errorf("%d data points for %d parameters", p.size, dim)
	}

	// LM panics on singular systems.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("levenberg-marquardt panicked: %v", r)
		}
	}()

	tr := boundTransform(p.bounds)
	fnc := func(dst, u []float64) {
		p.residual(dst, tr.external(u))
	}
	jac := lm.NumJac{Func: fnc}

	problem := lm.LMProblem{
		Dim:        dim,
		Size:       p.size,
		Func:       fnc,
		Jac:        jac.Jac,
		InitParams: tr.internal(p.x0),
		Tau:        lmTau,
		Eps1:       lmEps,
		Eps2:       lmEps,
	}

	out, err := lm.LM(problem, &lm.Settings{Iterations: maxIterations, ObjectiveTol: objectiveTol})
	if err != nil {
		return res, fmt.Errorf("levenberg-marquardt: %w", err)
	}

	res.X = tr.external(out.X)
	for i, v := range res.X {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return lsqResult{}, fmt.Errorf("non-finite solution for parameter %d", i)
		}
	}
	res.Std = covarianceStd(p.residual, res.X, p.size)
	return res, nil
}

// covarianceStd returns sqrt(diag(inverse(JᵀJ))) for the residual Jacobian at x.
// A singular JᵀJ gives NaN for every parameter.
func covarianceStd(residual func(dst, x []float64), x []float64, size int) []float64 {
	std := make([]float64, len(x))
	jac := mat.NewDense(size, len(x), nil)
	fd.Jacobian(jac, residual, x, &fd.JacobianSettings{Formula: fd.Central})

	var jtj, inv mat.Dense
	jtj.Mul(jac.T(), jac)
	if err := inv.Inverse(&jtj); err != nil {
		var cond mat.Condition
		if !errors.As(err, &cond) {
			for i := range std {
				std[i] = math.NaN()
			}
			return std
		}
	}
	for i := range std {
		std[i] = math.Sqrt(inv.At(i, i))
	}
	return std
}

type transform []Bounds

func boundTransform(b []Bounds) transform { return transform(b) }

// internal maps bounded parameters into the solver's unconstrained space.
func (t transform) internal(x []float64) []float64 {
	u := make([]float64, len(x))
	for i, v := range x {
		b := t[i]
		lo, hi := !math.IsInf(b.Min, -1), !math.IsInf(b.Max, 1)
		v = b.Clamp(v)
		switch {
		case lo && hi:
			if b.Max == b.Min {
				u[i] = 0
				continue
			}
			u[i] = math.Asin(clampUnit(2*(v-b.Min)/(b.Max-b.Min) - 1))
		case lo:
			u[i] = math.Sqrt((v-b.Min+1)*(v-b.Min+1) - 1)
		case hi:
			u[i] = math.Sqrt((b.Max-v+1)*(b.Max-v+1) - 1)
		default:
			u[i] = v
		}
	}
	return u
}

// external maps solver coordinates back into the bounded parameter space.
func (t transform) external(u []float64) []float64 {
	x := make([]float64, len(u))
	for i, v := range u {
		b := t[i]
		lo, hi := !math.IsInf(b.Min, -1), !math.IsInf(b.Max, 1)
		switch {
		case lo && hi:
			x[i] = b.Min + (math.Sin(v)+1)*(b.Max-b.Min)/2
		case lo:
			x[i] = b.Min - 1 + math.Sqrt(v*v+1)
		case hi:
			x[i] = b.Max + 1 - math.Sqrt(v*v+1)
		default:
			x[i] = v
		}
	}
	return x
}

func clampUnit(v float64) float64 {
	return math.Max(-1, math.Min(1, v))
}
