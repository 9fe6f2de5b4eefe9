package goedxcore

import (
	"fmt"
)

// paramUpdate is one refined parameter waiting to be written back.
type paramUpdate struct {
	peak  int
	param Param
	value Value
}

type intervalResult struct {
	interval Interval
	updates  []paramUpdate
	err      error
}

// optimizeInterval refines the varied parameters of the interval's peaks against y
// (background already subtracted), restricted to the open interval. Peaks outside the
// interval contribute their current profiles as a fixed offset. snapshot is read only.
func optimizeInterval(iv Interval, snapshot []Peak, x, y []float64) intervalResult {
	res := intervalResult{interval: iv}

	var ix, iy []float64
	for i, v := range x {
		if v > iv.Lo && v < iv.Hi {
			ix = append(ix, v)
			iy = append(iy, y[i])
		}
	}

	member := make(map[int]bool, len(iv.Peaks))
	for _, i := range iv.Peaks {
		member[i] = true
	}
	static := make([]float64, len(ix))
	for j := range snapshot {
		if !member[j] {
			snapshot[j].addTo(static, ix)
		}
	}
	for i := range iy {
		iy[i] -= static[i]
	}

	var (
		slots  []paramUpdate
		x0     []float64
		bounds []Bounds
	)
	for _, i := range iv.Peaks {
		p := &snapshot[i]
		for _, param := range p.varied() {
			slots = append(slots, paramUpdate{peak: i, param: param})
			x0 = append(x0, p.params[param].Value)
			bounds = append(bounds, p.bounds[param])
		}
	}
	if len(slots) == 0 {
		return res
	}

	out, err := solveLSQ(lsqProblem{
		size:   len(ix),
		x0:     x0,
		bounds: bounds,
		residual: func(dst, v []float64) {
			local := make(map[int]*Peak, len(iv.Peaks))
			for _, i := range iv.Peaks {
				p := snapshot[i]
				local[i] = &p
			}
			for k, s := range slots {
				local[s.peak].params[s.param].Value = v[k]
			}
			copy(dst, iy)
			for _, i := range iv.Peaks {
				p := local[i]
				for k, xv := range ix {
					dst[k] -= p.Evaluate(xv)
				}
			}
		},
	})
	if err != nil {
		res.err = fmt.Errorf("interval (%v, %v): %w", iv.Lo, iv.Hi, err)
		return res
	}

	for k := range slots {
		slots[k].value = Value{Value: out.X[k], Std: out.Std[k]}
	}
	res.updates = slots
	return res
}
