package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/kiranshivaraju/storepulse/internal/ai"
	"github.com/kiranshivaraju/storepulse/internal/api/response"
	"github.com/kiranshivaraju/storepulse/internal/apikey"
	"github.com/kiranshivaraju/storepulse/internal/feedback"
	"github.com/kiranshivaraju/storepulse/internal/report"
	"github.com/kiranshivaraju/storepulse/internal/store"
)

// writeError maps service errors onto the error envelope.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, report.ErrInvalidScope),
		errors.Is(err, report.ErrInvalidRetry),
		errors.Is(err, report.ErrInvalidStatus),
		errors.Is(err, feedback.ErrInvalidSubmission),
		errors.Is(err, apikey.ErrInvalidScope):
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error(), nil)
	case errors.Is(err, store.ErrNotFound):
		response.Error(w, http.StatusNotFound, "NOT_FOUND", "Resource not found", nil)
	case errors.Is(err, store.ErrJobNotActive):
		response.Error(w, http.StatusConflict, "JOB_NOT_ACTIVE",
			"Job is already finished and cannot be changed", nil)
	case errors.Is(err, store.ErrDuplicateKey):
		response.Error(w, http.StatusConflict, "DUPLICATE", "Resource already exists", nil)
	case errors.Is(err, ai.ErrProviderUnavailable):
		response.Error(w, http.StatusBadGateway, "AI_PROVIDER_UNAVAILABLE",
			"The AI provider is not available", nil)
	case errors.Is(err, ai.ErrInferenceTimeout):
		response.Error(w, http.StatusGatewayTimeout, "AI_INFERENCE_TIMEOUT",
			"AI analysis took too long and was cancelled", nil)
	default:
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
			"An unexpected error occurred", nil)
	}
}
