package goedxcore

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func singlePeakSpectrum(t *testing.T) *Spectrum {
	t.Helper()
	x := grid(0, 100, 1000)
	y := synthesize(t, x, 5, synthPeak{Gaussian, 50, 1, 1000})

	s, err := NewSpectrum(x, y)
	require.NoError(t, err)
	s.AddPeak(mustPeak(t, Gaussian, 50.05, 0.9, 950))
	bg, err := NewChebyshev(0, 100, 0)
	require.NoError(t, err)
	s.AddBackground(bg)
	return s
}

func TestFitToPrecision_SingleGaussian(t *testing.T) {
	s := singlePeakSpectrum(t)
	r, err := NewRefiner(DefaultConfig())
	require.NoError(t, err)

	res, err := r.FitToPrecision(s)
	require.NoError(t, err)

	p := s.Peaks[0]
	assert.InDelta(t, 50, p.Center(), 1e-2)
	assert.InDelta(t, 1, p.Sigma(), 1e-2)
	assert.InDelta(t, 1000, p.Get(Amplitude).Value, 10)
	assert.InDelta(t, 5, s.Backgrounds[0].Coef(0).Value, 0.25)
	assert.False(t, math.IsNaN(p.Get(Center).Std))
	assert.Less(t, res.Chi2, 1e-2)
	assert.GreaterOrEqual(t, res.Cycles, 1)
	assert.LessOrEqual(t, res.Cycles, DefaultConfig().MaxCycles)
	assert.Zero(t, res.FailedIntervals)
	assert.Zero(t, res.FailedBackgrounds)
}

func TestFitToPrecision_RunsMaxCyclesWithoutVariedParameters(t *testing.T) {
	x := grid(0, 100, 1000)
	y := synthesize(t, x, 5, synthPeak{Gaussian, 50, 1, 1000})
	s, err := NewSpectrum(x, y)
	require.NoError(t, err)

	p := mustPeak(t, Gaussian, 50.2, 1, 900)
	for _, param := range []Param{Center, Sigma, Amplitude} {
		require.NoError(t, p.SetVary(param, false))
	}
	s.AddPeak(p)

	r, err := NewRefiner(Config{MaxCycles: 3, MinChiChange: 0.1})
	require.NoError(t, err)
	res, err := r.FitToPrecision(s)
	require.NoError(t, err)

	assert.Equal(t, 3, res.Cycles)
	assert.Zero(t, res.FailedIntervals)
	assert.Equal(t, 50.2, s.Peaks[0].Center())
	assert.Greater(t, res.Chi2, 0.)
}

func threePeakSpectrum(t *testing.T) *Spectrum {
	t.Helper()
	x := grid(0, 100, 2000)
	y := synthesize(t, x, 20,
		synthPeak{Gaussian, 30, 0.8, 500},
		synthPeak{PseudoVoigt, 70, 0.6, 400},
		synthPeak{PseudoVoigt, 71.2, 0.6, 300})

	s, err := NewSpectrum(x, y)
	require.NoError(t, err)
	s.AddPeak(mustPeak(t, Gaussian, 30.1, 0.7, 450))
	s.AddPeak(mustPeak(t, PseudoVoigt, 69.9, 0.5, 380))
	s.AddPeak(mustPeak(t, PseudoVoigt, 71.3, 0.55, 320))
	for _, p := range s.Peaks {
		require.NoError(t, p.SetValue(OverlapBase, 3))
	}
	bg, err := NewChebyshev(0, 100, 1)
	require.NoError(t, err)
	s.AddBackground(bg)
	return s
}

func TestFitToPrecision_ParallelMatchesSequential(t *testing.T) {
	refine := func(parallel bool) []byte {
		s := threePeakSpectrum(t)
		r, err := NewRefiner(Config{MaxCycles: 4, MinChiChange: 0.01, Parallel: parallel}, WithWorkers(3))
		require.NoError(t, err)
		res, err := r.FitToPrecision(s)
		require.NoError(t, err)

		records := make([]PeakRecord, len(s.Peaks))
		for i, p := range s.Peaks {
			records[i] = p.Record()
		}
		data, err := json.Marshal(struct {
			Result Result
			Peaks  []PeakRecord
		}{res, records})
		require.NoError(t, err)
		return data
	}

	assert.Equal(t, string(refine(false)), string(refine(true)))
}

func TestFitPeaks_JointIntervalConverges(t *testing.T) {
	s := threePeakSpectrum(t)
	require.NoError(t, s.Backgrounds[0].SetCoef(0, 20))
	require.NoError(t, s.Backgrounds[0].SetCoefVary(0, false))
	require.NoError(t, s.Backgrounds[0].SetCoefVary(1, false))

	ivs := Partition(s.Peaks)
	require.Len(t, ivs, 2)
	assert.Equal(t, []int{1, 2}, ivs[1].Peaks)

	r, err := NewRefiner(DefaultConfig())
	require.NoError(t, err)
	_, failed, err := r.FitPeaks(s)
	require.NoError(t, err)
	assert.Zero(t, failed)

	assert.InDelta(t, 30, s.Peaks[0].Center(), 1e-3)
	assert.InDelta(t, 70, s.Peaks[1].Center(), 1e-2)
	assert.InDelta(t, 71.2, s.Peaks[2].Center(), 1e-2)
}

func TestFitPeaks_IsolatedPeakLeavesOthersUnchanged(t *testing.T) {
	x := grid(0, 100, 2000)
	y := synthesize(t, x, 10,
		synthPeak{Gaussian, 30, 0.8, 500},
		synthPeak{PseudoVoigt, 70, 0.6, 400})
	s, err := NewSpectrum(x, y)
	require.NoError(t, err)

	s.AddPeak(mustPeak(t, Gaussian, 30.1, 0.7, 450))
	frozen := mustPeak(t, PseudoVoigt, 70.05, 0.55, 380)
	for _, param := range []Param{Center, Sigma, Amplitude, Fraction} {
		require.NoError(t, frozen.SetVary(param, false))
	}
	s.AddPeak(frozen)
	bg, err := NewChebyshev(0, 100, 0)
	require.NoError(t, err)
	require.NoError(t, bg.SetCoef(0, 10))
	s.AddBackground(bg)

	require.Len(t, Partition(s.Peaks), 2)
	before := frozen.Record()

	r, err := NewRefiner(DefaultConfig())
	require.NoError(t, err)
	_, failed, err := r.FitPeaks(s)
	require.NoError(t, err)
	assert.Zero(t, failed)

	assert.InDelta(t, 30, s.Peaks[0].Center(), 1e-2)
	after := s.Peaks[1].Record()
	for _, name := range []string{"center", "sigma", "amplitude", "fraction", "width", "height"} {
		assert.Equal(t, before.Params[name].Value, after.Params[name].Value, name)
	}
}

func TestFitPeaks_LogsFailedInterval(t *testing.T) {
	x := grid(0, 100, 100)
	y := make([]float64, len(x))
	for i := range y {
		y[i] = 5
	}
	s, err := NewSpectrum(x, y)
	require.NoError(t, err)
	// the base window holds a single point for three parameters
	s.AddPeak(mustPeak(t, Gaussian, 50, 0.1, 1))

	core, logs := observer.New(zapcore.ErrorLevel)
	r, err := NewRefiner(DefaultConfig(), WithLogger(zap.New(core)))
	require.NoError(t, err)

	_, failed, err := r.FitPeaks(s)
	require.NoError(t, err)
	assert.Equal(t, 1, failed)
	assert.Equal(t, 50., s.Peaks[0].Center(), "a failed interval leaves its peaks alone")

	entries := logs.FilterMessage("interval refinement failed").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.InDelta(t, 49.7, fields["lo"], 1e-9)
	assert.InDelta(t, 50.3, fields["hi"], 1e-9)
	assert.Contains(t, fields, "error")
}

func TestFitToPrecision_CountsFailedBackgrounds(t *testing.T) {
	s := singlePeakSpectrum(t)
	far, err := NewChebyshev(200, 300, 0)
	require.NoError(t, err)
	s.AddBackground(far)

	core, logs := observer.New(zapcore.ErrorLevel)
	r, err := NewRefiner(Config{MaxCycles: 2, MinChiChange: 0}, WithLogger(zap.New(core)))
	require.NoError(t, err)

	res, err := r.FitToPrecision(s)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Cycles)
	assert.Equal(t, 2, res.FailedBackgrounds)
	assert.Equal(t, 2, logs.FilterMessage("background fit failed").Len())
	assert.InDelta(t, 50, s.Peaks[0].Center(), 1e-2)
}

func TestRefiner_InvalidInput(t *testing.T) {
	_, err := NewRefiner(Config{MaxCycles: 0, MinChiChange: 0.1})
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = NewRefiner(Config{MaxCycles: 1, MinChiChange: math.NaN()})
	assert.ErrorIs(t, err, ErrInvalidInput)

	r, err := NewRefiner(DefaultConfig())
	require.NoError(t, err)

	s, err := NewSpectrum([]float64{1, 2, 3}, []float64{1, 2, 3})
	require.NoError(t, err)
	res, err := r.FitToPrecision(s)
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.True(t, math.IsNaN(res.Chi2))
	_, _, err = r.FitPeaks(s)
	assert.ErrorIs(t, err, ErrInvalidInput)

	s.Y = s.Y[:2]
	_, err = r.FitBackground(s)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestResultJSON_NaNChi2(t *testing.T) {
	data, err := json.Marshal(Result{Chi2: math.NaN(), Cycles: 2})
	require.NoError(t, err)
	assert.JSONEq(t, `{"chi2":"NaN","cycles":2,"failed_intervals":0,"failed_backgrounds":0}`, string(data))

	var res Result
	require.NoError(t, json.Unmarshal(data, &res))
	assert.True(t, math.IsNaN(res.Chi2))
	assert.Equal(t, 2, res.Cycles)
}
