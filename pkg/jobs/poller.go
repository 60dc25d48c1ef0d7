// © 2026 Platform Engineering Labs Inc.
//
// SPDX-License-Identifier: FSL-1.1-ALv2

// Package jobs waits for asynchronous CloudStack jobs to finish.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/platform-engineering-labs/formae-plugin-cloudstack/pkg/cloud"
)

// DefaultInterval is the fixed delay between job status queries.
const DefaultInterval = 2 * time.Second

var errJobPending = errors.New("job still pending")

// Poller repeatedly queries an async job until it leaves the pending state.
// Polling is not bounded by an attempt count; cancel the context to give up
// on a job.
type Poller struct {
	api      cloud.AsyncJobQuerier
	interval time.Duration
	timer    backoff.Timer // nil means real time
	log      zerolog.Logger
}

// Option configures a Poller.
type Option func(*Poller)

// WithInterval overrides the delay between status queries.
func WithInterval(d time.Duration) Option {
	return func(p *Poller) { p.interval = d }
}

// WithTimer substitutes the wait timer. Tests use this to poll without
// sleeping.
func WithTimer(t backoff.Timer) Option {
	return func(p *Poller) { p.timer = t }
}

// NewPoller builds a Poller querying jobs through api.
func NewPoller(api cloud.AsyncJobQuerier, opts ...Option) *Poller {
	p := &Poller{
		api:      api,
		interval: DefaultInterval,
		log:      zerolog.New(os.Stderr).Level(zerolog.Disabled),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Wait blocks until the job succeeds, fails, or ctx is cancelled. An empty
// jobID means the preceding call was synchronous: Wait returns (nil, nil)
// without issuing a single query. A failed job surfaces as *cloud.JobError.
func (p *Poller) Wait(ctx context.Context, jobID string) (*cloud.AsyncJob, error) {
	if jobID == "" {
		return nil, nil
	}

	var job *cloud.AsyncJob
	query := func() error {
		j, err := p.api.QueryAsyncJob(ctx, jobID)
		if err != nil {
			return backoff.Permanent(err)
		}
		switch j.Status {
		case cloud.JobSucceeded:
			job = j
			return nil
		case cloud.JobFailed:
			return backoff.Permanent(&cloud.JobError{JobID: jobID, ErrorText: j.ErrorText})
		default:
			p.log.Debug().Str("job", jobID).Msg("job pending")
			return errJobPending
		}
	}

	b := backoff.WithContext(backoff.NewConstantBackOff(p.interval), ctx)
	if err := backoff.RetryNotifyWithTimer(query, b, nil, p.timer); err != nil {
		return nil, err
	}
	return job, nil
}

// WaitExtract waits for the job and decodes the resource stored under key in
// the job result payload into out. With an empty jobID nothing is decoded and
// out is left untouched.
func (p *Poller) WaitExtract(ctx context.Context, jobID, key string, out any) error {
	job, err := p.Wait(ctx, jobID)
	if err != nil || job == nil {
		return err
	}
	return ExtractResult(job, key, out)
}

// ExtractResult decodes the resource stored under key in a finished job's
// result payload into out.
func ExtractResult(job *cloud.AsyncJob, key string, out any) error {
	if len(job.Result) == 0 {
		return fmt.Errorf("job %s has no result payload", job.ID)
	}
	var payload map[string]json.RawMessage
	if err := json.Unmarshal(job.Result, &payload); err != nil {
		return fmt.Errorf("decode result of job %s: %w", job.ID, err)
	}
	raw, ok := payload[key]
	if !ok {
		return fmt.Errorf("job %s result has no %q field", job.ID, key)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %q of job %s: %w", key, job.ID, err)
	}
	return nil
}
