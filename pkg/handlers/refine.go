package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/kacperjurak/goedxcore/internal/utils"
	"github.com/kacperjurak/goedxcore/pkg/models"
)

// RefineHandler refines a single spectrum synchronously
type RefineHandler struct {
	processor ProcessorFunc
	maxBytes  int64
	log       *zap.Logger
}

// NewRefineHandler creates a new refine handler
func NewRefineHandler(processor ProcessorFunc, maxBytes int64, log *zap.Logger) *RefineHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &RefineHandler{processor: processor, maxBytes: maxBytes, log: log}
}

// ServeHTTP implements the http.Handler interface
func (h *RefineHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !preflight(w, r) {
		return
	}

	var req models.RefineRequest
	if !decode(w, r, h.maxBytes, &req) {
		return
	}
	if len(req.X) == 0 {
		writeError(w, "No data points provided", http.StatusBadRequest)
		return
	}
	if req.ID == "" {
		req.ID = utils.GenerateID()
	}

	h.log.Debug("refine request received",
		zap.String("request_id", req.ID),
		zap.Int("points", len(req.X)),
		zap.Int("peaks", len(req.Peaks)))

	resp, err := h.processor(req)
	if err != nil {
		status := statusFor(err)
		if status >= http.StatusInternalServerError {
			h.log.Error("refinement failed", zap.String("request_id", req.ID), zap.Error(err))
		}
		writeError(w, err.Error(), status)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
