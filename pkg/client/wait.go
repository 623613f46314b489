package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/storepulse/pkg/models"
)

const (
	DefaultPollInterval = 3 * time.Second
	DefaultWaitTimeout  = 60 * time.Second
)

// WaitOptions controls WaitForJob. Zero values take the defaults.
type WaitOptions struct {
	Interval time.Duration
	Timeout  time.Duration
	// OnPoll, if set, sees every non-terminal job observed while waiting.
	OnPoll func(*models.Job)
}

// WaitForJob polls the job until it reaches a terminal status and returns
// it. Throttled, 5xx and unreachable polls are retried on the next tick.
// Past the timeout it returns ErrGaveUp along with the last job seen.
// Giving up never cancels the job.
func (c *Client) WaitForJob(ctx context.Context, id uuid.UUID, opts WaitOptions) (*models.Job, error) {
	if opts.Interval <= 0 {
		opts.Interval = DefaultPollInterval
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultWaitTimeout
	}

	deadline := time.NewTimer(opts.Timeout)
	defer deadline.Stop()
	tick := time.NewTicker(opts.Interval)
	defer tick.Stop()

	var last *models.Job
	var lastErr error
	for {
		job, err := c.GetJob(ctx, id)
		switch {
		case err == nil && job == nil:
			return nil, fmt.Errorf("job %s not found", id)
		case err == nil:
			last, lastErr = job, nil
			if models.IsTerminal(job.Status) {
				return job, nil
			}
			if opts.OnPoll != nil {
				opts.OnPoll(job)
			}
		case ctx.Err() == nil && transient(err):
			lastErr = err
		default:
			return last, err
		}

		select {
		case <-ctx.Done():
			return last, ctx.Err()
		case <-deadline.C:
			return last, gaveUp(id, last, lastErr, opts.Timeout)
		case <-tick.C:
		}
	}
}

// transient reports whether a failed poll is worth repeating: the server
// throttled us, had a 5xx, or could not be reached.
func transient(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status == http.StatusTooManyRequests || apiErr.Status >= 500
	}
	var urlErr *url.Error
	return errors.As(err, &urlErr)
}

func gaveUp(id uuid.UUID, last *models.Job, lastErr error, timeout time.Duration) error {
	state := "unseen"
	if last != nil {
		state = "still " + last.Status
	}
	if lastErr != nil {
		return fmt.Errorf("%w: job %s %s after %s (last poll: %v)", ErrGaveUp, id, state, timeout, lastErr)
	}
	return fmt.Errorf("%w: job %s %s after %s", ErrGaveUp, id, state, timeout)
}
