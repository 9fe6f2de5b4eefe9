package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/kacperjurak/goedxcore"
	"github.com/kacperjurak/goedxcore/pkg/models"
)

// ProcessorFunc refines one spectrum
type ProcessorFunc func(req models.RefineRequest) (models.RefineResponse, error)

// setupCORS sets up CORS headers
func setupCORS(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
}

// preflight answers OPTIONS and rejects everything but POST; it reports whether
// the request should be handled further
func preflight(w http.ResponseWriter, r *http.Request) bool {
	setupCORS(w)
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return false
	}
	if r.Method != http.MethodPost {
		writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	return true
}

// decode reads a JSON body of at most maxBytes
func decode(w http.ResponseWriter, r *http.Request, maxBytes int64, v interface{}) bool {
	if maxBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, "Request body too large", http.StatusRequestEntityTooLarge)
			return false
		}
		writeError(w, "Invalid JSON format", http.StatusBadRequest)
		return false
	}
	return true
}

// statusFor maps engine errors onto HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, goedxcore.ErrInvalidInput),
		errors.Is(err, goedxcore.ErrUnknownKind),
		errors.Is(err, goedxcore.ErrDegenerate):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, statusCode int, v interface{}) {
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes an error response
func writeError(w http.ResponseWriter, message string, statusCode int) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}
