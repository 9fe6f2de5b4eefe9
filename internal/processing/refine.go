package processing

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kacperjurak/goedxcore"
	"github.com/kacperjurak/goedxcore/pkg/models"
)

// Processor turns refinement requests into refined models
type Processor struct {
	defaults goedxcore.Config
	log      *zap.Logger
}

// NewProcessor creates a processor using defaults for requests without their own settings
func NewProcessor(defaults goedxcore.Config, log *zap.Logger) *Processor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Processor{defaults: defaults, log: log}
}

// Spectrum builds the spectrum and its starting model from a request
func Spectrum(req models.RefineRequest) (*goedxcore.Spectrum, error) {
	s, err := goedxcore.NewSpectrum(req.X, req.Y)
	if err != nil {
		return nil, err
	}
	for i, rec := range req.Peaks {
		p, err := goedxcore.PeakFromRecord(rec)
		if err != nil {
			return nil, fmt.Errorf("peak %d: %w", i, err)
		}
		s.AddPeak(p)
	}
	for i, rec := range req.Backgrounds {
		b, err := goedxcore.BackgroundFromRecord(rec)
		if err != nil {
			return nil, fmt.Errorf("background %d: %w", i, err)
		}
		s.AddBackground(b)
	}
	return s, nil
}

// Process refines one spectrum. Interval failures are logged by the engine and only
// counted in the result; errors are returned for requests that cannot be refined.
func (p *Processor) Process(req models.RefineRequest) (models.RefineResponse, error) {
	start := time.Now()

	cfg := p.defaults
	if req.Refinement != nil {
		cfg = *req.Refinement
	}
	refiner, err := goedxcore.NewRefiner(cfg, goedxcore.WithLogger(p.log.With(zap.String("request_id", req.ID))))
	if err != nil {
		return models.RefineResponse{}, err
	}

	s, err := Spectrum(req)
	if err != nil {
		return models.RefineResponse{}, err
	}

	res, err := refiner.FitToPrecision(s)
	if err != nil {
		return models.RefineResponse{}, err
	}

	resp := models.RefineResponse{
		ID:             req.ID,
		Result:         res,
		Peaks:          make([]goedxcore.PeakRecord, len(s.Peaks)),
		Backgrounds:    make([]goedxcore.BackgroundRecord, len(s.Backgrounds)),
		ProcessingTime: time.Since(start),
	}
	for i, pk := range s.Peaks {
		resp.Peaks[i] = pk.Record()
	}
	for i, b := range s.Backgrounds {
		resp.Backgrounds[i] = b.Record()
	}

	p.log.Info("spectrum refined",
		zap.String("request_id", req.ID),
		zap.Int("points", len(req.X)),
		zap.Int("peaks", len(s.Peaks)),
		zap.Float64("chi2", res.Chi2),
		zap.Int("cycles", res.Cycles),
		zap.Int("failed_intervals", res.FailedIntervals),
		zap.Duration("elapsed", resp.ProcessingTime))
	return resp, nil
}

// ProcessorFunc adapts the processor to the worker pool
func (p *Processor) ProcessorFunc() func(models.RefineRequest) (models.RefineResponse, error) {
	return p.Process
}
