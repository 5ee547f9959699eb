package verification

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/stelatos/starkverify/pkg/api"
	"github.com/stelatos/starkverify/pkg/history"
)

// BatchContract is one entry of a batch request.
type BatchContract struct {
	ClassHash    string `yaml:"class-hash" json:"class_hash"`
	ContractName string `yaml:"contract-name" json:"contract_name"`
	Package      string `yaml:"package,omitempty" json:"package,omitempty"`
}

// BatchResult is the outcome of one batch entry. JobID is empty when
// submission failed before acceptance; Error carries the failure text
// for that entry.
type BatchResult struct {
	ClassHash    string `json:"class_hash"`
	ContractName string `json:"contract_name"`
	Package      string `json:"package,omitempty"`
	JobID        string `json:"job_id,omitempty"`
	Status       string `json:"status,omitempty"`
	Error        string `json:"error,omitempty"`
}

// BatchSummary aggregates a batch run. Results preserve submission
// order so callers can zip them back to the input contract list.
type BatchSummary struct {
	Total     int           `json:"total"`
	Submitted int           `json:"submitted"`
	Results   []BatchResult `json:"results"`
}

// BatchProgress receives settled/pending counts after every watch
// sweep for live progress display.
type BatchProgress func(succeeded, pending, failed int)

// BatchConfig tunes the orchestrator.
type BatchConfig struct {
	// Delay is the minimum gap between consecutive submissions.
	// No delay is applied after the final submission. Default: 1s.
	Delay time.Duration

	// FailFast aborts the whole batch on the first submission error.
	FailFast bool

	// WatchInterval is the sleep between watch sweeps. Default: 5s.
	WatchInterval time.Duration

	// DefaultPackage fills contract entries with no package override.
	DefaultPackage string
}

func (c *BatchConfig) applyDefaults() {
	if c.Delay <= 0 {
		c.Delay = time.Second
	}
	if c.WatchInterval <= 0 {
		c.WatchInterval = 5 * time.Second
	}
}

// SubmitFunc performs the collect-and-send path for one contract. It
// returns the job id the service assigned together with the metadata
// that went into the submission, so ledger entries carry the same
// toolchain versions as single-job submissions.
type SubmitFunc func(ctx context.Context, contract BatchContract) (string, api.ProjectMetadata, error)

// Orchestrator submits batches sequentially and tracks all accepted
// jobs on one shared polling cadence.
type Orchestrator struct {
	fetcher StatusFetcher
	ledger  Ledger
	network string
	config  BatchConfig
	limiter *rate.Limiter
}

// StatusFetcher issues one non-retrying status call per job per sweep.
type StatusFetcher interface {
	GetJobStatus(ctx context.Context, jobID string) (api.StatusResult, error)
}

// NewOrchestrator builds a batch orchestrator. The ledger may be nil.
func NewOrchestrator(fetcher StatusFetcher, ledger Ledger, network string, cfg BatchConfig) *Orchestrator {
	cfg.applyDefaults()
	return &Orchestrator{
		fetcher: fetcher,
		ledger:  ledger,
		network: network,
		config:  cfg,
		limiter: rate.NewLimiter(rate.Every(cfg.Delay), 1),
	}
}

// SubmitBatch submits the contracts in input order through submit.
//
// The rate limiter spaces consecutive submissions by the configured
// delay. On a submission error the entry's result records the error
// text and iteration continues, unless FailFast is set, in which case
// the partial summary and the error are returned immediately.
func (o *Orchestrator) SubmitBatch(ctx context.Context, contracts []BatchContract, submit SubmitFunc) (*BatchSummary, error) {
	summary := &BatchSummary{
		Total:   len(contracts),
		Results: make([]BatchResult, 0, len(contracts)),
	}

	for _, contract := range contracts {
		if contract.Package == "" {
			contract.Package = o.config.DefaultPackage
		}

		if err := o.limiter.Wait(ctx); err != nil {
			return summary, err
		}

		result := BatchResult{
			ClassHash:    contract.ClassHash,
			ContractName: contract.ContractName,
			Package:      contract.Package,
		}

		jobID, meta, err := submit(ctx, contract)
		if err != nil {
			result.Error = err.Error()
			summary.Results = append(summary.Results, result)
			if o.config.FailFast {
				return summary, fmt.Errorf("batch aborted at contract %s: %w", contract.ContractName, err)
			}
			continue
		}

		result.JobID = jobID
		result.Status = api.StatusSubmitted.String()
		summary.Results = append(summary.Results, result)
		summary.Submitted++

		if o.ledger != nil {
			packageName := meta.PackageName
			if packageName == "" {
				packageName = contract.Package
			}
			_ = o.ledger.Insert(ctx, history.Record{
				JobID:        jobID,
				ClassHash:    contract.ClassHash,
				ContractName: contract.ContractName,
				Network:      o.network,
				Status:       api.StatusSubmitted.String(),
				PackageName:  packageName,
				ScarbVersion: meta.ScarbVersion,
				CairoVersion: meta.CairoVersion,
				DojoVersion:  meta.DojoVersion,
			})
		}
	}

	return summary, nil
}

// WatchBatch tracks every accepted job in the summary until all are
// settled, updating statuses in place.
//
// Each sweep issues one non-retrying status fetch per unsettled entry.
// Fetch errors are recorded on the entry, which then counts as
// settled. After every full sweep the progress callback receives the
// current counts; if anything is still pending the orchestrator
// sleeps one watch interval and sweeps again. Result order never
// changes.
func (o *Orchestrator) WatchBatch(ctx context.Context, summary *BatchSummary, progress BatchProgress) (*BatchSummary, error) {
	for {
		for i := range summary.Results {
			result := &summary.Results[i]
			if settled(result) {
				continue
			}

			status, err := o.fetcher.GetJobStatus(ctx, result.JobID)
			if err != nil {
				if ctx.Err() != nil {
					return summary, ctx.Err()
				}
				result.Error = err.Error()
				if terminal, ok := terminalStatusForError(err); ok {
					result.Status = terminal
				}
				if o.ledger != nil && result.Status != "" {
					_ = o.ledger.UpdateStatus(ctx, result.JobID, result.Status)
				}
				continue
			}

			newStatus := status.Job.Status.String()
			if newStatus != result.Status {
				result.Status = newStatus
				if o.ledger != nil {
					_ = o.ledger.UpdateStatus(ctx, result.JobID, newStatus)
				}
			}
		}

		succeeded, pending, failed := tally(summary)
		if progress != nil {
			progress(succeeded, pending, failed)
		}
		if pending == 0 {
			return summary, nil
		}

		timer := time.NewTimer(o.config.WatchInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return summary, ctx.Err()
		case <-timer.C:
		}
	}
}

// settled reports whether an entry needs no further status fetches:
// it never got a job id, it errored, or it reached a terminal status.
func settled(r *BatchResult) bool {
	if r.JobID == "" || r.Error != "" {
		return true
	}
	return api.ParseJobStatus(r.Status).IsTerminal()
}

func tally(summary *BatchSummary) (succeeded, pending, failed int) {
	for i := range summary.Results {
		r := &summary.Results[i]
		switch {
		case r.Status == api.StatusSuccess.String():
			succeeded++
		case !settled(r):
			pending++
		default:
			failed++
		}
	}
	return succeeded, pending, failed
}
