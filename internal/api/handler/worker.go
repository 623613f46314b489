package handler

import (
	"context"
	"net/http"

	"github.com/kiranshivaraju/storepulse/internal/api/response"
	"github.com/kiranshivaraju/storepulse/internal/report"
)

// Runner processes at most one queued job per call.
type Runner interface {
	RunOnce(ctx context.Context) (report.Outcome, error)
}

// NewRunWorkerHandler returns an http.HandlerFunc for POST /api/v1/worker/run.
// It is meant to be hit by a scheduler; each call handles at most one job.
func NewRunWorkerHandler(wk Runner) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		out, err := wk.RunOnce(r.Context())
		if err != nil {
			writeError(w, r, err)
			return
		}
		response.JSON(w, out)
	}
}
