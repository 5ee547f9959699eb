// Package verification coordinates verification jobs end to end:
// single submissions with ledger bookkeeping, and batch submission
// plus shared-cadence tracking of many jobs at once.
package verification

import (
	"context"
	"errors"
	"fmt"

	"github.com/stelatos/starkverify/pkg/api"
	"github.com/stelatos/starkverify/pkg/history"
)

// Client is the protocol surface the orchestrator consumes.
// *api.Client satisfies it.
type Client interface {
	VerifyClass(ctx context.Context, classHash string, license string, name string, meta api.ProjectMetadata, files []api.FileInfo) (string, error)
	GetJobStatus(ctx context.Context, jobID string) (api.StatusResult, error)
	PollVerificationStatus(ctx context.Context, jobID string, observer api.StatusObserver) (api.VerificationJob, error)
}

// Ledger is the slice of the history store the orchestrator needs.
// Nil ledgers are allowed; bookkeeping is then skipped.
type Ledger interface {
	Insert(ctx context.Context, rec history.Record) error
	UpdateStatus(ctx context.Context, jobID string, status string) error
}

// SubmitInput is one prepared submission.
type SubmitInput struct {
	ClassHash    string
	ContractName string
	License      string
	Meta         api.ProjectMetadata
	Files        []api.FileInfo
}

// Service wires the protocol client to the ledger for single-job
// verification flows.
type Service struct {
	client  Client
	ledger  Ledger
	network string
}

// NewService builds a verification service. The ledger may be nil.
func NewService(client Client, ledger Ledger, network string) *Service {
	return &Service{client: client, ledger: ledger, network: network}
}

// Submit sends one verification job and records it in the ledger.
func (s *Service) Submit(ctx context.Context, in SubmitInput) (string, error) {
	jobID, err := s.client.VerifyClass(ctx, in.ClassHash, in.License, in.ContractName, in.Meta, in.Files)
	if err != nil {
		return "", err
	}

	if s.ledger != nil {
		rec := history.Record{
			JobID:        jobID,
			ClassHash:    in.ClassHash,
			ContractName: in.ContractName,
			Network:      s.network,
			Status:       api.StatusSubmitted.String(),
			PackageName:  in.Meta.PackageName,
			ScarbVersion: in.Meta.ScarbVersion,
			CairoVersion: in.Meta.CairoVersion,
			DojoVersion:  in.Meta.DojoVersion,
		}
		if err := s.ledger.Insert(ctx, rec); err != nil {
			// The job is already accepted remotely; a ledger fault
			// must not fail the submission.
			return jobID, fmt.Errorf("job %s submitted but not recorded locally: %w", jobID, err)
		}
	}
	return jobID, nil
}

// Watch polls a job to a terminal outcome, mirroring every observed
// status into the ledger. Terminal failures update the ledger before
// the error is returned.
func (s *Service) Watch(ctx context.Context, jobID string, observer api.StatusObserver) (api.VerificationJob, error) {
	wrapped := observer
	if s.ledger != nil {
		wrapped = func(job api.VerificationJob) {
			_ = s.ledger.UpdateStatus(ctx, jobID, job.Status.String())
			if observer != nil {
				observer(job)
			}
		}
	}

	job, err := s.client.PollVerificationStatus(ctx, jobID, wrapped)
	if err != nil {
		if s.ledger != nil {
			if status, ok := terminalStatusForError(err); ok {
				_ = s.ledger.UpdateStatus(ctx, jobID, status)
			}
		}
		return api.VerificationJob{}, err
	}
	return job, nil
}

// terminalStatusForError maps a terminal poll failure to the status
// string recorded in the ledger.
func terminalStatusForError(err error) (string, bool) {
	var verErr *api.VerificationError
	if errors.As(err, &verErr) {
		if verErr.Category == api.CategoryCompilation {
			return api.StatusCompileFailed.String(), true
		}
		return api.StatusFail.String(), true
	}
	return "", false
}
