package handlers

import (
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"

	"github.com/kacperjurak/goedxcore/internal/utils"
	"github.com/kacperjurak/goedxcore/pkg/models"
	"github.com/kacperjurak/goedxcore/pkg/worker"
)

// BatchHandler queues a series of spectra on the worker pool; each result goes to the webhook
type BatchHandler struct {
	workerPool *worker.Pool
	maxBytes   int64
	log        *zap.Logger
	// done is called with the timings once a batch has finished, for tests and callers
	// that need to wait for it
	done func(batchID string, timings []models.SpectrumTiming)
}

// NewBatchHandler creates a new batch handler
func NewBatchHandler(pool *worker.Pool, maxBytes int64, log *zap.Logger) *BatchHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &BatchHandler{workerPool: pool, maxBytes: maxBytes, log: log}
}

// OnDone registers a callback run after every finished batch
func (h *BatchHandler) OnDone(f func(batchID string, timings []models.SpectrumTiming)) {
	h.done = f
}

// ServeHTTP implements the http.Handler interface
func (h *BatchHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !preflight(w, r) {
		return
	}

	var batch models.Batch
	if !decode(w, r, h.maxBytes, &batch) {
		return
	}
	if len(batch.Spectra) == 0 {
		writeError(w, "No spectra provided in batch", http.StatusBadRequest)
		return
	}
	if batch.BatchID == "" {
		batch.BatchID = utils.GenerateID()
	}

	h.log.Info("batch processing started",
		zap.String("batch_id", batch.BatchID),
		zap.Int("spectra", len(batch.Spectra)))

	go h.processBatchAsync(batch)

	writeJSON(w, http.StatusAccepted, models.BatchAccepted{
		Success: true,
		BatchID: batch.BatchID,
		Spectra: len(batch.Spectra),
		Message: "Batch processing started with worker pool",
	})
}

// processBatchAsync submits every spectrum and forwards each result to the webhook queue
func (h *BatchHandler) processBatchAsync(batch models.Batch) {
	batchStart := time.Now()
	results := make(chan models.WorkResult, len(batch.Spectra))
	timings := make([]models.SpectrumTiming, 0, len(batch.Spectra))

	submitted := 0
	for i, item := range batch.Spectra {
		job := h.createWorkItem(i, item, batch.BatchID)
		if err := h.workerPool.SubmitJob(job, results); err != nil {
			h.log.Error("batch submission stopped",
				zap.String("batch_id", batch.BatchID),
				zap.Int("submitted", submitted),
				zap.Error(err))
			break
		}
		submitted++
	}

	for received := 0; received < submitted; received++ {
		timings = append(timings, h.processResult(<-results))
	}

	h.logSummary(batch.BatchID, time.Since(batchStart), timings)
	if h.done != nil {
		h.done(batch.BatchID, timings)
	}
}

// createWorkItem converts a batch item to a work item
func (h *BatchHandler) createWorkItem(id int, item models.BatchItem, batchID string) models.WorkItem {
	req := item.Request
	if req.ID == "" {
		req.ID = fmt.Sprintf("%s_iter_%03d", batchID, item.Iteration)
	}
	return models.WorkItem{
		ID:        id,
		RequestID: req.ID,
		BatchID:   batchID,
		Iteration: item.Iteration,
		Request:   req,
		StartTime: time.Now(),
	}
}

// processResult queues the webhook for one result and returns its timing
func (h *BatchHandler) processResult(result models.WorkResult) models.SpectrumTiming {
	item := models.WebhookItem{
		RequestID: result.RequestID,
		BatchID:   result.BatchID,
		Iteration: result.Iteration,
	}
	timing := models.SpectrumTiming{
		Iteration:      result.Iteration,
		ProcessingTime: result.ProcessingTime,
		Success:        result.Success(),
	}
	if result.Success() {
		resp := result.Response
		item.Response = &resp
		timing.Chi2 = resp.Result.Chi2
		timing.Cycles = resp.Result.Cycles
	} else {
		item.Error = result.Err.Error()
	}
	h.workerPool.QueueWebhook(item)

	h.log.Debug("processed spectrum",
		zap.String("batch_id", result.BatchID),
		zap.Int("iteration", result.Iteration),
		zap.Bool("success", timing.Success))
	return timing
}

// logSummary reports throughput and quality statistics for a finished batch
func (h *BatchHandler) logSummary(batchID string, total time.Duration, timings []models.SpectrumTiming) {
	var (
		durations []float64
		chi2s     []float64
		success   int
	)
	for _, t := range timings {
		durations = append(durations, float64(t.ProcessingTime)/float64(time.Millisecond))
		if t.Success {
			success++
			chi2s = append(chi2s, t.Chi2)
		}
	}

	fields := []zap.Field{
		zap.String("batch_id", batchID),
		zap.Int("spectra", len(timings)),
		zap.Int("successful", success),
		zap.Duration("total", total),
	}
	if len(durations) > 0 {
		mean, std := stat.MeanStdDev(durations, nil)
		fields = append(fields,
			zap.Float64("mean_spectrum_ms", mean),
			zap.Float64("std_spectrum_ms", std),
			zap.Float64("spectra_per_second", float64(len(timings))/total.Seconds()))
	}
	if len(chi2s) > 0 {
		fields = append(fields, zap.Float64("mean_chi2", stat.Mean(chi2s, nil)))
	}
	h.log.Info("batch processing completed", fields...)
}
