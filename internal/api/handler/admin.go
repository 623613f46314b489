package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	mw "github.com/kiranshivaraju/storepulse/internal/api/middleware"
	"github.com/kiranshivaraju/storepulse/internal/api/response"
	"github.com/kiranshivaraju/storepulse/internal/apikey"
	"github.com/kiranshivaraju/storepulse/pkg/models"
)

const actionCancelJob = "cancel_job"

type adminActionRequest struct {
	Action string `json:"action"`
	JobID  string `json:"job_id"`
	Note   string `json:"note"`
}

// NewAdminActionsHandler returns an http.HandlerFunc for POST /api/v1/admin/actions.
// The only action today is cancel_job.
func NewAdminActionsHandler(svc Jobs) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req adminActionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}

		switch req.Action {
		case actionCancelJob:
			id, err := uuid.Parse(req.JobID)
			if err != nil {
				response.Error(w, http.StatusBadRequest, "INVALID_JOB_ID", "Invalid job ID format", nil)
				return
			}
			note := req.Note
			if name, ok := mw.GetCallerName(r); ok && strings.TrimSpace(note) == "" {
				note = "canceled by " + name
			}
			job, err := svc.Cancel(r.Context(), id, note)
			if err != nil {
				writeError(w, r, err)
				return
			}
			response.JSON(w, jobResponse{Job: job})
		default:
			response.Error(w, http.StatusBadRequest, "UNKNOWN_ACTION", "Unknown admin action",
				map[string]any{"supported": []string{actionCancelJob}})
		}
	}
}

// KeyStore is the slice of store.Store used to manage API keys.
type KeyStore interface {
	CreateAPIKey(ctx context.Context, key *models.APIKey) error
	ListAPIKeys(ctx context.Context) ([]*models.APIKey, error)
	RevokeAPIKey(ctx context.Context, id uuid.UUID) error
}

type createKeyRequest struct {
	Name   string   `json:"name"`
	Scopes []string `json:"scopes"`
}

type createKeyResponse struct {
	*models.APIKey
	Key string `json:"key"`
}

// NewCreateKeyHandler returns an http.HandlerFunc for POST /api/v1/admin/keys.
// The raw key appears in this response only.
func NewCreateKeyHandler(ks KeyStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createKeyRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}
		if strings.TrimSpace(req.Name) == "" {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "name is required", nil)
			return
		}

		raw, key, err := apikey.Generate(req.Name, req.Scopes)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if err := ks.CreateAPIKey(r.Context(), key); err != nil {
			writeError(w, r, err)
			return
		}
		response.Created(w, createKeyResponse{APIKey: key, Key: raw})
	}
}

// NewListKeysHandler returns an http.HandlerFunc for GET /api/v1/admin/keys.
func NewListKeysHandler(ks KeyStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		keys, err := ks.ListAPIKeys(r.Context())
		if err != nil {
			writeError(w, r, err)
			return
		}
		if keys == nil {
			keys = []*models.APIKey{}
		}
		response.List(w, map[string]any{"keys": keys}, response.ListMeta{Count: len(keys)})
	}
}

// NewRevokeKeyHandler returns an http.HandlerFunc for DELETE /api/v1/admin/keys/{keyID}.
// A key cannot revoke itself.
func NewRevokeKeyHandler(ks KeyStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "keyID"))
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_KEY_ID", "Invalid key ID format", nil)
			return
		}
		if self, ok := mw.GetKeyID(r); ok && self == id {
			response.Error(w, http.StatusConflict, "SELF_REVOKE", "An API key cannot revoke itself", nil)
			return
		}
		if err := ks.RevokeAPIKey(r.Context(), id); err != nil {
			writeError(w, r, err)
			return
		}
		response.NoContent(w)
	}
}
