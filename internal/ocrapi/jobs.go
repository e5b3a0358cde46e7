package ocrapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/joseph-ayodele/plansets/internal/extract"
)

const (
	jobCompleted = "completed"
	jobError     = "error"
	jobFailed    = "failed"
)

// waitForJob polls GET /job/{id} until the job completes, fails, or JobTimeout passes.
func (c *Client) waitForJob(ctx context.Context, tr *transcript, step, jobID string) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.JobTimeout)
	defer cancel()

	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	for {
		raw, err := c.send(ctx, tr, http.MethodGet, "/job/"+jobID, nil)
		switch {
		case err == nil:
			var job struct {
				Status string `json:"status"`
			}
			if err := decode(step, raw, &job); err != nil {
				return err
			}
			switch job.Status {
			case jobCompleted:
				return nil
			case jobError, jobFailed:
				return &extract.PermanentError{Step: step, Reason: "job " + jobID + " failed"}
			}
			c.logger.Debug("ocrapi.job.pending", "job_id", jobID, "status", job.Status)
		case ctx.Err() != nil:
		default:
			// A failed poll is not a failed job; keep polling until the deadline.
			c.logger.Debug("ocrapi.job.poll_error", "job_id", jobID, "error", err)
		}

		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return &extract.TransientError{Step: step, Err: fmt.Errorf("job %s not finished after %s", jobID, c.cfg.JobTimeout)}
			}
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
