package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/storepulse/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeData(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{"data": data})
}

func TestEnqueue(t *testing.T) {
	jobID := uuid.New()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "POST", r.Method)
		assert.Equal(t, "/api/v1/reports/jobs", r.URL.Path)
		assert.Equal(t, "Bearer sp_secret", r.Header.Get("Authorization"))

		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "region", body["scope_type"])
		assert.Equal(t, "AKL", body["scope_key"])
		assert.NotContains(t, body, "month_key")

		writeData(w, http.StatusAccepted, map[string]any{"job": models.Job{ID: jobID, Status: "queued", ScopeType: "region"}})
	}))
	defer srv.Close()

	c := New(srv.URL+"/", "sp_secret")
	job, err := c.Enqueue(context.Background(), EnqueueRequest{ScopeType: "region", ScopeKey: "AKL"})
	require.NoError(t, err)
	assert.Equal(t, jobID, job.ID)
	assert.Equal(t, "queued", job.Status)
}

func TestAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"code":"INVALID_REQUEST","message":"invalid scope"}}`))
	}))
	defer srv.Close()

	_, err := New(srv.URL, "k").Enqueue(context.Background(), EnqueueRequest{ScopeType: "planet"})
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Equal(t, "INVALID_REQUEST", apiErr.Code)
	assert.Equal(t, "invalid scope", apiErr.Message)
}

func TestGetJob_Missing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NotEmpty(t, r.URL.Query().Get("job_id"))
		writeData(w, http.StatusOK, map[string]any{"job": nil})
	}))
	defer srv.Close()

	job, err := New(srv.URL, "k").GetJob(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Nil(t, job)
}

func TestLatestSnapshot(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "store", q.Get("scope_type"))
		assert.Equal(t, "S001", q.Get("scope_key"))
		assert.False(t, q.Has("iso_week"))
		if q.Get("month_key") == "2025-09" {
			writeData(w, http.StatusOK, map[string]any{"snapshot": nil})
			return
		}
		writeData(w, http.StatusOK, map[string]any{"snapshot": models.Snapshot{RowsUsed: 7, GenModel: "llama3"}})
	}))
	defer srv.Close()
	c := New(srv.URL, "k")

	snap, err := c.LatestSnapshot(context.Background(), SnapshotQuery{ScopeType: "store", ScopeKey: "S001"})
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, 7, snap.RowsUsed)

	snap, err = c.LatestSnapshot(context.Background(), SnapshotQuery{ScopeType: "store", ScopeKey: "S001", MonthKey: "2025-09"})
	require.NoError(t, err)
	assert.Nil(t, snap)
}

func TestCancelAndRunWorker(t *testing.T) {
	jobID := uuid.New()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/admin/actions":
			var body map[string]string
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "cancel_job", body["action"])
			assert.Equal(t, jobID.String(), body["job_id"])
			writeData(w, http.StatusOK, map[string]any{"job": models.Job{ID: jobID, Status: "canceled"}})
		case "/api/v1/worker/run":
			writeData(w, http.StatusOK, map[string]any{"processed": 0})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()
	c := New(srv.URL, "k")

	job, err := c.Cancel(context.Background(), jobID, "dup")
	require.NoError(t, err)
	assert.Equal(t, "canceled", job.Status)

	res, err := c.RunWorker(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, res.Processed)
	assert.Nil(t, res.JobID)
}

func jobServer(t *testing.T, id uuid.UUID, statusAt func(poll int) string) (*httptest.Server, *atomic.Int32, *atomic.Int32) {
	t.Helper()
	var polls, cancels atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/reports/jobs":
			n := int(polls.Add(1))
			writeData(w, http.StatusOK, map[string]any{"job": models.Job{ID: id, Status: statusAt(n)}})
		case "/api/v1/admin/actions":
			cancels.Add(1)
			writeData(w, http.StatusOK, map[string]any{"job": nil})
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &polls, &cancels
}

func TestWaitForJob_ReturnsTerminal(t *testing.T) {
	id := uuid.New()
	srv, polls, _ := jobServer(t, id, func(n int) string {
		switch {
		case n < 2:
			return "queued"
		case n < 3:
			return "running"
		}
		return "succeeded"
	})

	var seen []string
	job, err := New(srv.URL, "k").WaitForJob(context.Background(), id, WaitOptions{
		Interval: 5 * time.Millisecond,
		Timeout:  2 * time.Second,
		OnPoll:   func(j *models.Job) { seen = append(seen, j.Status) },
	})
	require.NoError(t, err)
	assert.Equal(t, "succeeded", job.Status)
	assert.Equal(t, int32(3), polls.Load())
	assert.Equal(t, []string{"queued", "running"}, seen)
}

func TestWaitForJob_GivesUpWithoutCanceling(t *testing.T) {
	id := uuid.New()
	srv, polls, cancels := jobServer(t, id, func(int) string { return "running" })

	job, err := New(srv.URL, "k").WaitForJob(context.Background(), id, WaitOptions{
		Interval: 5 * time.Millisecond,
		Timeout:  40 * time.Millisecond,
	})
	assert.True(t, errors.Is(err, ErrGaveUp))
	require.NotNil(t, job)
	assert.Equal(t, "running", job.Status)
	assert.Greater(t, polls.Load(), int32(1))
	assert.Equal(t, int32(0), cancels.Load())
}

func TestWaitForJob_Missing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeData(w, http.StatusOK, map[string]any{"job": nil})
	}))
	defer srv.Close()

	_, err := New(srv.URL, "k").WaitForJob(context.Background(), uuid.New(), WaitOptions{Interval: time.Millisecond})
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrGaveUp))
}

func TestWaitForJob_ContextCanceled(t *testing.T) {
	id := uuid.New()
	srv, _, _ := jobServer(t, id, func(int) string { return "queued" })

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := New(srv.URL, "k").WaitForJob(ctx, id, WaitOptions{Interval: 5 * time.Millisecond, Timeout: time.Minute})
	assert.Error(t, err)
	assert.False(t, errors.Is(err, ErrGaveUp))
}

func TestWaitForJob_RetriesThrottledAndServerErrors(t *testing.T) {
	id := uuid.New()
	var polls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch polls.Add(1) {
		case 1:
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"error":{"code":"RATE_LIMIT_EXCEEDED","message":"Too many requests"}}`))
		case 2:
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"error":{"code":"INTERNAL_ERROR","message":"db restarting"}}`))
		default:
			writeData(w, http.StatusOK, map[string]any{"job": map[string]any{"job_id": id, "status": "succeeded"}})
		}
	}))
	defer srv.Close()

	job, err := New(srv.URL, "k").WaitForJob(context.Background(), id, WaitOptions{
		Interval: 5 * time.Millisecond,
		Timeout:  2 * time.Second,
	})
	require.NoError(t, err)
	assert.Equal(t, "succeeded", job.Status)
	assert.Equal(t, int32(3), polls.Load())
}

func TestWaitForJob_PersistentServerErrorGivesUp(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte(`{"error":{"code":"BAD_GATEWAY","message":"upstream down"}}`))
	}))
	defer srv.Close()

	job, err := New(srv.URL, "k").WaitForJob(context.Background(), uuid.New(), WaitOptions{
		Interval: 5 * time.Millisecond,
		Timeout:  30 * time.Millisecond,
	})
	assert.True(t, errors.Is(err, ErrGaveUp))
	assert.Contains(t, err.Error(), "upstream down")
	assert.Nil(t, job)
}

func TestWaitForJob_ClientErrorStopsImmediately(t *testing.T) {
	var polls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		polls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"code":"UNAUTHORIZED","message":"Invalid API key"}}`))
	}))
	defer srv.Close()

	_, err := New(srv.URL, "k").WaitForJob(context.Background(), uuid.New(), WaitOptions{
		Interval: 5 * time.Millisecond,
		Timeout:  time.Second,
	})
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
	assert.False(t, errors.Is(err, ErrGaveUp))
	assert.Equal(t, int32(1), polls.Load())
}
