// Package client is a small Go client for the storepulse HTTP API, used by
// the CLI and by anything that wants to enqueue a report and wait for it.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/storepulse/pkg/models"
)

// ErrGaveUp is returned by WaitForJob when the job is still not terminal at
// the deadline. The job itself is left alone on the server.
var ErrGaveUp = errors.New("gave up waiting for job")

// APIError is a non-2xx response decoded from the error envelope.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("storepulse api: %d %s: %s", e.Status, e.Code, e.Message)
}

// Client talks to one storepulse server with one API key.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// New returns a Client for baseURL, e.g. "http://localhost:8080".
func New(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// EnqueueRequest mirrors the POST /api/v1/reports/jobs body.
type EnqueueRequest struct {
	ScopeType string     `json:"scope_type,omitempty"`
	ScopeKey  string     `json:"scope_key,omitempty"`
	ISOWeek   string     `json:"iso_week,omitempty"`
	MonthKey  string     `json:"month_key,omitempty"`
	CreatedBy string     `json:"created_by,omitempty"`
	RetryOf   *uuid.UUID `json:"retry_of,omitempty"`
}

// SnapshotQuery selects the scope for LatestSnapshot.
type SnapshotQuery struct {
	ScopeType string
	ScopeKey  string
	ISOWeek   string
	MonthKey  string
}

// WorkerResult is what one POST /api/v1/worker/run did.
type WorkerResult struct {
	Processed int        `json:"processed"`
	JobID     *uuid.UUID `json:"job_id,omitempty"`
	Status    string     `json:"status,omitempty"`
	GenMS     *int64     `json:"gen_ms,omitempty"`
}

type jobEnvelope struct {
	Job *models.Job `json:"job"`
}

// Enqueue creates a report job and returns it in queued state.
func (c *Client) Enqueue(ctx context.Context, req EnqueueRequest) (*models.Job, error) {
	var out jobEnvelope
	if err := c.do(ctx, http.MethodPost, "/api/v1/reports/jobs", nil, req, &out); err != nil {
		return nil, err
	}
	return out.Job, nil
}

// GetJob returns the job, or nil if the server has no job with that id.
func (c *Client) GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	var out jobEnvelope
	q := url.Values{"job_id": {id.String()}}
	if err := c.do(ctx, http.MethodGet, "/api/v1/reports/jobs", q, nil, &out); err != nil {
		return nil, err
	}
	return out.Job, nil
}

// Cancel asks the server to cancel a queued or running job.
func (c *Client) Cancel(ctx context.Context, id uuid.UUID, note string) (*models.Job, error) {
	body := map[string]string{"action": "cancel_job", "job_id": id.String(), "note": note}
	var out jobEnvelope
	if err := c.do(ctx, http.MethodPost, "/api/v1/admin/actions", nil, body, &out); err != nil {
		return nil, err
	}
	return out.Job, nil
}

// LatestSnapshot returns the newest snapshot for the scope, or nil if none exists.
func (c *Client) LatestSnapshot(ctx context.Context, sq SnapshotQuery) (*models.Snapshot, error) {
	q := url.Values{}
	for k, v := range map[string]string{
		"scope_type": sq.ScopeType,
		"scope_key":  sq.ScopeKey,
		"iso_week":   sq.ISOWeek,
		"month_key":  sq.MonthKey,
	} {
		if v != "" {
			q.Set(k, v)
		}
	}
	var out struct {
		Snapshot *models.Snapshot `json:"snapshot"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/snapshots/latest", q, nil, &out); err != nil {
		return nil, err
	}
	return out.Snapshot, nil
}

// RunWorker triggers one worker pass on the server.
func (c *Client) RunWorker(ctx context.Context) (*WorkerResult, error) {
	var out WorkerResult
	if err := c.do(ctx, http.MethodPost, "/api/v1/worker/run", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		rdr = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, rdr)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var env struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&env)
		return &APIError{Status: resp.StatusCode, Code: env.Error.Code, Message: env.Error.Message}
	}

	if out == nil {
		return nil
	}
	env := struct {
		Data any `json:"data"`
	}{Data: out}
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("decoding %s %s response: %w", method, path, err)
	}
	return nil
}
