package handler

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/kiranshivaraju/storepulse/internal/api/response"
	"github.com/kiranshivaraju/storepulse/internal/feedback"
)

// maxFormBytes caps the feedback form body.
const maxFormBytes = 64 << 10

// Submitter is the part of feedback.Service the form endpoint depends on.
type Submitter interface {
	Submit(ctx context.Context, sub feedback.Submission) (feedback.Result, error)
}

type submitResponse struct {
	Success   bool `json:"success"`
	Duplicate bool `json:"duplicate,omitempty"`
}

// NewFeedbackHandler returns an http.HandlerFunc for POST /api/v1/feedback.
// The body is a URL-encoded or multipart form posted by store managers.
func NewFeedbackHandler(svc Submitter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
		if err := parseForm(r); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid form body", nil)
			return
		}

		positive, err := parseImpact(r.FormValue("positive_impact"))
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "positive_impact must be a number", nil)
			return
		}
		negative, err := parseImpact(r.FormValue("negative_impact"))
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "negative_impact must be a number", nil)
			return
		}

		res, err := svc.Submit(r.Context(), feedback.Submission{
			IdempotencyKey: r.FormValue("idempotency_key"),
			StoreID:        r.FormValue("store_id"),
			RegionCode:     r.FormValue("region_code"),
			ManagerName:    r.FormValue("manager_name"),
			ISOWeek:        r.FormValue("iso_week"),
			MonthKey:       r.FormValue("month_key"),
			TopPositive:    r.FormValue("top_positive"),
			TopNegative:    r.FormValue("top_negative"),
			PositiveImpact: positive,
			NegativeImpact: negative,
			Notes:          r.FormValue("notes"),
		})
		if err != nil {
			writeError(w, r, err)
			return
		}
		response.JSON(w, submitResponse{Success: true, Duplicate: res.Duplicate})
	}
}

func parseForm(r *http.Request) error {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		return r.ParseMultipartForm(maxFormBytes)
	}
	return r.ParseForm()
}

// parseImpact reads a dollar amount, tolerating "$" and thousands separators.
// A blank value is zero. NaN and infinities are not amounts.
func parseImpact(raw string) (float64, error) {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "$")
	raw = strings.ReplaceAll(raw, ",", "")
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%q is not a finite amount", raw)
	}
	return v, nil
}
