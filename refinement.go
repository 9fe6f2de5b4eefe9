// Package goedxcore refines diffraction peaks and background on an energy-dispersive spectrum.
package goedxcore

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"
)

// Config controls the refinement cycle.
type Config struct {
	// MaxCycles caps the number of background/peak cycles.
	MaxCycles int `toml:"max_cycles" json:"max_cycles" yaml:"max_cycles"`
	// MinChiChange is the relative chi2 improvement below which the cycle stops.
	MinChiChange float64 `toml:"min_chi_change" json:"min_chi_change" yaml:"min_chi_change"`
	// Parallel refines independent intervals concurrently.
	Parallel bool `toml:"parallel" json:"parallel" yaml:"parallel"`
}

func DefaultConfig() Config {
	return Config{
		MaxCycles:    10,
		MinChiChange: 0.1,
		Parallel:     false,
	}
}

func (c Config) Validate() error {
	if c.MaxCycles < 1 {
		return fmt.Errorf("%w: max_cycles %d < 1", ErrInvalidInput, c.MaxCycles)
	}
	if !(c.MinChiChange >= 0) || math.IsInf(c.MinChiChange, 0) {
		return fmt.Errorf("%w: min_chi_change %v", ErrInvalidInput, c.MinChiChange)
	}
	return nil
}

// Result summarizes a FitToPrecision run.
type Result struct {
	Chi2              float64 `json:"chi2" yaml:"chi2"`
	Cycles            int     `json:"cycles" yaml:"cycles"`
	FailedIntervals   int     `json:"failed_intervals" yaml:"failed_intervals"`
	FailedBackgrounds int     `json:"failed_backgrounds" yaml:"failed_backgrounds"`
}

type jsonResult struct {
	Chi2              jsonFloat `json:"chi2"`
	Cycles            int       `json:"cycles"`
	FailedIntervals   int       `json:"failed_intervals"`
	FailedBackgrounds int       `json:"failed_backgrounds"`
}

func (r Result) MarshalJSON() ([]byte, error) {
	return json.Marshal(jsonResult{
		Chi2:              jsonFloat(r.Chi2),
		Cycles:            r.Cycles,
		FailedIntervals:   r.FailedIntervals,
		FailedBackgrounds: r.FailedBackgrounds,
	})
}

func (r *Result) UnmarshalJSON(data []byte) error {
	var jr jsonResult
	if err := json.Unmarshal(data, &jr); err != nil {
		return err
	}
	*r = Result{
		Chi2:              float64(jr.Chi2),
		Cycles:            jr.Cycles,
		FailedIntervals:   jr.FailedIntervals,
		FailedBackgrounds: jr.FailedBackgrounds,
	}
	return nil
}

// Refiner alternates background and peak refinement on a spectrum. A Refiner holds
// no per-spectrum state and may refine different spectra concurrently.
type Refiner struct {
	cfg     Config
	log     *zap.Logger
	workers int
}

type Option func(*Refiner)

// WithLogger sets the logger used for cycle progress and interval failures.
func WithLogger(l *zap.Logger) Option {
	return func(r *Refiner) {
		if l != nil {
			r.log = l
		}
	}
}

// WithWorkers bounds the goroutines used for parallel interval refinement.
func WithWorkers(n int) Option {
	return func(r *Refiner) { r.workers = n }
}

func NewRefiner(cfg Config, opts ...Option) (*Refiner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	r := &Refiner{cfg: cfg, log: zap.NewNop()}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

func (r *Refiner) Config() Config { return r.cfg }

// FitBackground refits every background segment against the data minus the peaks and
// minus the other segments, then updates the metrics and returns the global chi2.
// A segment whose fit fails is logged and left unchanged.
func (r *Refiner) FitBackground(s *Spectrum) (float64, error) {
	if err := s.Validate(); err != nil {
		return math.NaN(), err
	}
	chi2, _ := r.fitBackground(s)
	return chi2, nil
}

func (r *Refiner) fitBackground(s *Spectrum) (float64, int) {
	excluded := make([]Window, len(s.Peaks))
	for i, p := range s.Peaks {
		excluded[i].Lo, excluded[i].Hi = p.BaseWindow()
	}

	yPeaks, _ := s.Model()
	failed := 0
	for i, b := range s.Backgrounds {
		residual := make([]float64, len(s.Y))
		for k := range residual {
			residual[k] = s.Y[k] - yPeaks[k]
		}
		for j, other := range s.Backgrounds {
			if j != i {
				for k, x := range s.X {
					residual[k] -= other.Evaluate(x)
				}
			}
		}
		if err := b.Fit(s.X, residual, excluded); err != nil {
			xmin, xmax := b.Domain()
			r.log.Error("background fit failed",
				zap.Int("background", i),
				zap.Stringer("kind", b.Kind),
				zap.Float64("xmin", xmin),
				zap.Float64("xmax", xmax),
				zap.Error(err))
			failed++
		}
	}
	return UpdateMetrics(s), failed
}

// FitPeaks refines the varied peak parameters interval by interval against the data
// minus the background, re-sorts the peaks and updates the metrics. It returns the
// global chi2 and the number of intervals whose solve failed.
func (r *Refiner) FitPeaks(s *Spectrum) (float64, int, error) {
	if err := s.Validate(); err != nil {
		return math.NaN(), 0, err
	}
	if len(s.Peaks) == 0 {
		return math.NaN(), 0, fmt.Errorf("%w: no peaks to refine", ErrInvalidInput)
	}
	chi2, failed := r.fitPeaks(s)
	return chi2, failed, nil
}

func (r *Refiner) fitPeaks(s *Spectrum) (float64, int) {
	start := time.Now()

	_, yBg := s.Model()
	residual := make([]float64, len(s.Y))
	for i := range residual {
		residual[i] = s.Y[i] - yBg[i]
	}

	intervals := Partition(s.Peaks)
	snapshot := make([]Peak, len(s.Peaks))
	for i, p := range s.Peaks {
		snapshot[i] = *p
	}

	results := dispatch(intervals, r.cfg.Parallel, r.workers, func(iv Interval) intervalResult {
		return optimizeInterval(iv, snapshot, s.X, residual)
	})

	failed := 0
	for _, res := range results {
		if res.err != nil {
			r.log.Error("interval refinement failed",
				zap.Float64("lo", res.interval.Lo),
				zap.Float64("hi", res.interval.Hi),
				zap.Ints("peaks", res.interval.Peaks),
				zap.Error(res.err))
			failed++
			continue
		}
		for _, u := range res.updates {
			s.Peaks[u.peak].setRefined(u.param, u.value)
		}
	}
	for _, p := range s.Peaks {
		p.RefreshDerived()
	}
	SortPeaks(s.Peaks)

	chi2 := UpdateMetrics(s)
	r.log.Debug("peaks refined",
		zap.Int("intervals", len(intervals)),
		zap.Int("failed", failed),
		zap.Float64("chi2", chi2),
		zap.Duration("elapsed", time.Since(start)))
	return chi2, failed
}

// FitToPrecision alternates FitBackground and FitPeaks. It stops once a cycle improves
// chi2 by a positive relative amount smaller than MinChiChange, or after MaxCycles.
// A chi2 that gets worse or stays flat does not stop the loop early.
func (r *Refiner) FitToPrecision(s *Spectrum) (Result, error) {
	if err := s.Validate(); err != nil {
		return Result{Chi2: math.NaN()}, err
	}
	if len(s.Peaks) == 0 {
		return Result{Chi2: math.NaN()}, fmt.Errorf("%w: no peaks to refine", ErrInvalidInput)
	}

	var res Result
	prev := UpdateMetrics(s)
	for cycle := 1; ; cycle++ {
		_, bgFailed := r.fitBackground(s)
		chi2, failed := r.fitPeaks(s)
		res.Cycles = cycle
		res.FailedBackgrounds += bgFailed
		res.FailedIntervals += failed

		change := (prev - chi2) / chi2
		r.log.Debug("refinement cycle",
			zap.Int("cycle", cycle),
			zap.Float64("chi2", chi2),
			zap.Float64("change", change))
		if change > 0 && change < r.cfg.MinChiChange {
			break
		}
		if cycle >= r.cfg.MaxCycles {
			break
		}
		prev = chi2
	}

	res.Chi2 = UpdateMetrics(s)
	return res, nil
}
