package api

import (
	"context"
	"errors"
	"time"
)

const (
	defaultPollInitialDelay = 2 * time.Second
	defaultPollMaxDelay     = 300 * time.Second
	defaultPollMaxRetries   = 20
)

// pollSettings bounds the retry loop. Fixed in production; tests
// shrink the delays.
type pollSettings struct {
	initialDelay time.Duration
	maxDelay     time.Duration
	maxRetries   int
}

func defaultPollSettings() pollSettings {
	return pollSettings{
		initialDelay: defaultPollInitialDelay,
		maxDelay:     defaultPollMaxDelay,
		maxRetries:   defaultPollMaxRetries,
	}
}

// StatusObserver receives every fetched job record during polling,
// intermediate and final. Implementations should return quickly;
// panics are recovered and never abort the poll.
type StatusObserver func(job VerificationJob)

// PollVerificationStatus polls a job until it reaches a terminal
// state or the retry budget runs out.
//
// Backoff doubles from 2s up to a 300s per-wait cap, for at most 20
// retries. Terminal failures (*VerificationError, *JobNotFoundError)
// and transport errors return immediately and are never retried. A
// job still non-terminal after the full budget returns ErrInProgress
// so callers can distinguish "check back later" from a definitive
// failure. Waits are context-aware; cancellation returns ctx.Err().
func (c *Client) PollVerificationStatus(ctx context.Context, jobID string, observer StatusObserver) (VerificationJob, error) {
	delay := c.poll.initialDelay

	for attempt := 0; attempt <= c.poll.maxRetries; attempt++ {
		result, err := c.GetJobStatus(ctx, jobID)
		if err != nil {
			return VerificationJob{}, err
		}

		notifyObserver(observer, result.Job)

		if result.Done {
			return result.Job, nil
		}
		if attempt == c.poll.maxRetries {
			break
		}

		if err := sleepCtx(ctx, delay); err != nil {
			return VerificationJob{}, err
		}
		delay *= 2
		if delay > c.poll.maxDelay {
			delay = c.poll.maxDelay
		}
	}

	return VerificationJob{}, ErrInProgress
}

func notifyObserver(observer StatusObserver, job VerificationJob) {
	if observer == nil {
		return
	}
	defer func() {
		// Observer failures must not abort polling.
		_ = recover()
	}()
	observer(job)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// IsInProgress reports whether err is the budget-exhaustion outcome.
func IsInProgress(err error) bool {
	return errors.Is(err, ErrInProgress)
}
