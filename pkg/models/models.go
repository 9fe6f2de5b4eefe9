package models

import (
	"time"

	"github.com/kacperjurak/goedxcore"
)

// RefineRequest is one spectrum with the starting model to refine against it
type RefineRequest struct {
	ID          string                       `json:"id,omitempty" yaml:"id,omitempty"`
	X           []float64                    `json:"x" yaml:"x"`
	Y           []float64                    `json:"y" yaml:"y"`
	Peaks       []goedxcore.PeakRecord       `json:"peaks" yaml:"peaks"`
	Backgrounds []goedxcore.BackgroundRecord `json:"backgrounds" yaml:"backgrounds"`
	// Refinement overrides the server's refinement settings for this spectrum
	Refinement *goedxcore.Config `json:"refinement,omitempty" yaml:"refinement,omitempty"`
}

// RefineResponse is the refined model of one spectrum
type RefineResponse struct {
	ID             string                       `json:"id" yaml:"id"`
	Result         goedxcore.Result             `json:"result" yaml:"result"`
	Peaks          []goedxcore.PeakRecord       `json:"peaks" yaml:"peaks"`
	Backgrounds    []goedxcore.BackgroundRecord `json:"backgrounds" yaml:"backgrounds"`
	ProcessingTime time.Duration                `json:"processing_time_ns" yaml:"processing_time"`
}

// BatchItem represents a single spectrum with iteration number
type BatchItem struct {
	Request   RefineRequest `json:"request"`
	Iteration int           `json:"iteration"`
}

// Batch is a series of spectra refined asynchronously
type Batch struct {
	BatchID   string      `json:"batch_id"`
	Timestamp time.Time   `json:"timestamp"`
	Spectra   []BatchItem `json:"spectra"`
}

// BatchAccepted is returned when a batch has been queued
type BatchAccepted struct {
	Success bool   `json:"success"`
	BatchID string `json:"batch_id"`
	Spectra int    `json:"spectra"`
	Message string `json:"message"`
}

// WorkItem represents a single refinement task
type WorkItem struct {
	ID        int
	RequestID string
	BatchID   string
	Iteration int
	Request   RefineRequest
	StartTime time.Time
}

// WorkResult contains the result of a refinement task
type WorkResult struct {
	ID             int
	RequestID      string
	BatchID        string
	Iteration      int
	Response       RefineResponse
	Err            error
	ProcessingTime time.Duration
}

func (r WorkResult) Success() bool { return r.Err == nil }

// WebhookItem is one finished spectrum waiting to be delivered
type WebhookItem struct {
	RequestID string
	BatchID   string
	Iteration int
	Response  *RefineResponse
	Error     string
}

// WebhookPayload is the JSON body posted to the webhook
type WebhookPayload struct {
	ID        string          `json:"id"`
	BatchID   string          `json:"batch_id,omitempty"`
	Iteration int             `json:"iteration"`
	Time      string          `json:"time"`
	Success   bool            `json:"success"`
	Error     string          `json:"error,omitempty"`
	Result    *RefineResponse `json:"result,omitempty"`
}

// SpectrumTiming tracks performance metrics for individual spectrum processing
type SpectrumTiming struct {
	Iteration      int           `json:"iteration"`
	ProcessingTime time.Duration `json:"processing_time_ns"`
	Chi2           float64       `json:"chi2"`
	Cycles         int           `json:"cycles"`
	Success        bool          `json:"success"`
}
