package verification

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stelatos/starkverify/pkg/api"
	"github.com/stelatos/starkverify/pkg/history"
)

type fakeFetcher struct {
	mu sync.Mutex
	// statuses maps job id to the sequence of results returned on
	// successive fetches. The last entry repeats.
	statuses map[string][]api.StatusResult
	errs     map[string]error
	calls    map[string]int
}

func (f *fakeFetcher) GetJobStatus(ctx context.Context, jobID string) (api.StatusResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = map[string]int{}
	}
	n := f.calls[jobID]
	f.calls[jobID] = n + 1

	if err, ok := f.errs[jobID]; ok {
		return api.StatusResult{}, err
	}
	seq := f.statuses[jobID]
	if len(seq) == 0 {
		return api.StatusResult{}, fmt.Errorf("no scripted status for %s", jobID)
	}
	if n >= len(seq) {
		n = len(seq) - 1
	}
	return seq[n], nil
}

type fakeLedger struct {
	mu       sync.Mutex
	inserted []history.Record
	updates  map[string][]string
}

func (l *fakeLedger) Insert(ctx context.Context, rec history.Record) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.inserted = append(l.inserted, rec)
	return nil
}

func (l *fakeLedger) UpdateStatus(ctx context.Context, jobID string, status string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.updates == nil {
		l.updates = map[string][]string{}
	}
	l.updates[jobID] = append(l.updates[jobID], status)
	return nil
}

func pendingResult(jobID string, status api.JobStatus) api.StatusResult {
	return api.StatusResult{Job: api.VerificationJob{JobID: jobID, Status: status}}
}

func doneResult(jobID string) api.StatusResult {
	return api.StatusResult{Done: true, Job: api.VerificationJob{JobID: jobID, Status: api.StatusSuccess}}
}

func fastConfig() BatchConfig {
	return BatchConfig{Delay: time.Millisecond, WatchInterval: time.Millisecond}
}

func TestSubmitBatchMiddleFailureContinues(t *testing.T) {
	ledger := &fakeLedger{}
	o := NewOrchestrator(&fakeFetcher{}, ledger, "sepolia", fastConfig())

	contracts := []BatchContract{
		{ClassHash: "0x1", ContractName: "a"},
		{ClassHash: "0x2", ContractName: "b"},
		{ClassHash: "0x3", ContractName: "c"},
	}
	submit := func(ctx context.Context, c BatchContract) (string, api.ProjectMetadata, error) {
		if c.ContractName == "b" {
			return "", api.ProjectMetadata{}, errors.New("service rejected submission")
		}
		return "job-" + c.ContractName, api.ProjectMetadata{}, nil
	}

	summary, err := o.SubmitBatch(context.Background(), contracts, submit)
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Total)
	assert.Equal(t, 2, summary.Submitted)
	require.Len(t, summary.Results, 3)

	assert.Equal(t, "job-a", summary.Results[0].JobID)
	assert.Empty(t, summary.Results[1].JobID)
	assert.Contains(t, summary.Results[1].Error, "service rejected submission")
	assert.Equal(t, "job-c", summary.Results[2].JobID)

	// Only accepted jobs reach the ledger.
	require.Len(t, ledger.inserted, 2)
	assert.Equal(t, "job-a", ledger.inserted[0].JobID)
	assert.Equal(t, "sepolia", ledger.inserted[0].Network)
}

func TestSubmitBatchRecordsToolchainVersions(t *testing.T) {
	ledger := &fakeLedger{}
	o := NewOrchestrator(&fakeFetcher{}, ledger, "sepolia", fastConfig())

	submit := func(ctx context.Context, c BatchContract) (string, api.ProjectMetadata, error) {
		return "job-" + c.ContractName, api.ProjectMetadata{
			PackageName:  "counter_project",
			ScarbVersion: "2.8.4",
			CairoVersion: "2.8.2",
			DojoVersion:  "1.0.0",
		}, nil
	}

	_, err := o.SubmitBatch(context.Background(), []BatchContract{
		{ClassHash: "0x1", ContractName: "a"},
	}, submit)
	require.NoError(t, err)

	// Batch entries carry the same toolchain facts as single-job
	// submissions.
	require.Len(t, ledger.inserted, 1)
	rec := ledger.inserted[0]
	assert.Equal(t, "counter_project", rec.PackageName)
	assert.Equal(t, "2.8.4", rec.ScarbVersion)
	assert.Equal(t, "2.8.2", rec.CairoVersion)
	assert.Equal(t, "1.0.0", rec.DojoVersion)
}

func TestSubmitBatchFailFastAborts(t *testing.T) {
	o := NewOrchestrator(&fakeFetcher{}, nil, "dev", BatchConfig{Delay: time.Millisecond, FailFast: true})

	var submitted []string
	submit := func(ctx context.Context, c BatchContract) (string, api.ProjectMetadata, error) {
		if c.ContractName == "b" {
			return "", api.ProjectMetadata{}, errors.New("boom")
		}
		submitted = append(submitted, c.ContractName)
		return "job-" + c.ContractName, api.ProjectMetadata{}, nil
	}

	summary, err := o.SubmitBatch(context.Background(), []BatchContract{
		{ClassHash: "0x1", ContractName: "a"},
		{ClassHash: "0x2", ContractName: "b"},
		{ClassHash: "0x3", ContractName: "c"},
	}, submit)
	require.Error(t, err)

	assert.Equal(t, []string{"a"}, submitted, "contracts after the failure must not be submitted")
	assert.Equal(t, 1, summary.Submitted)
}

func TestSubmitBatchAppliesDefaultPackage(t *testing.T) {
	cfg := fastConfig()
	cfg.DefaultPackage = "shared_pkg"
	o := NewOrchestrator(&fakeFetcher{}, nil, "dev", cfg)

	var got []string
	submit := func(ctx context.Context, c BatchContract) (string, api.ProjectMetadata, error) {
		got = append(got, c.Package)
		return "j", api.ProjectMetadata{}, nil
	}

	_, err := o.SubmitBatch(context.Background(), []BatchContract{
		{ClassHash: "0x1", ContractName: "a"},
		{ClassHash: "0x2", ContractName: "b", Package: "override"},
	}, submit)
	require.NoError(t, err)
	assert.Equal(t, []string{"shared_pkg", "override"}, got)
}

func TestWatchBatchSweepsUntilSettled(t *testing.T) {
	fetcher := &fakeFetcher{
		statuses: map[string][]api.StatusResult{
			"job-a": {pendingResult("job-a", api.StatusProcessing), doneResult("job-a")},
			"job-c": {doneResult("job-c")},
		},
		errs: map[string]error{
			"job-b": &api.VerificationError{Category: api.CategoryCompilation, Message: "missing module"},
		},
	}
	ledger := &fakeLedger{}
	o := NewOrchestrator(fetcher, ledger, "dev", fastConfig())

	summary := &BatchSummary{
		Total:     3,
		Submitted: 3,
		Results: []BatchResult{
			{ClassHash: "0x1", ContractName: "a", JobID: "job-a", Status: "Submitted"},
			{ClassHash: "0x2", ContractName: "b", JobID: "job-b", Status: "Submitted"},
			{ClassHash: "0x3", ContractName: "c", JobID: "job-c", Status: "Submitted"},
		},
	}

	var sweeps [][3]int
	got, err := o.WatchBatch(context.Background(), summary, func(s, p, f int) {
		sweeps = append(sweeps, [3]int{s, p, f})
	})
	require.NoError(t, err)

	// Order equals submission order regardless of completion order.
	require.Len(t, got.Results, 3)
	assert.Equal(t, "job-a", got.Results[0].JobID)
	assert.Equal(t, "job-b", got.Results[1].JobID)
	assert.Equal(t, "job-c", got.Results[2].JobID)

	assert.Equal(t, "Success", got.Results[0].Status)
	assert.Equal(t, "CompileFailed", got.Results[1].Status)
	assert.Contains(t, got.Results[1].Error, "missing module")
	assert.Equal(t, "Success", got.Results[2].Status)

	// Two sweeps: job-a pending after the first, settled after the second.
	require.Len(t, sweeps, 2)
	assert.Equal(t, [3]int{1, 1, 1}, sweeps[0])
	assert.Equal(t, [3]int{2, 0, 1}, sweeps[1])

	// Terminal entries must not be fetched again once settled.
	assert.Equal(t, 2, fetcher.calls["job-a"])
	assert.Equal(t, 1, fetcher.calls["job-b"])
	assert.Equal(t, 1, fetcher.calls["job-c"])

	// Ledger saw every status change.
	assert.Contains(t, ledger.updates["job-a"], "Success")
	assert.Contains(t, ledger.updates["job-b"], "CompileFailed")
}

func TestWatchBatchSkipsFailedSubmissions(t *testing.T) {
	fetcher := &fakeFetcher{
		statuses: map[string][]api.StatusResult{
			"job-a": {doneResult("job-a")},
		},
	}
	o := NewOrchestrator(fetcher, nil, "dev", fastConfig())

	summary := &BatchSummary{
		Total:     2,
		Submitted: 1,
		Results: []BatchResult{
			{ClassHash: "0x1", ContractName: "a", JobID: "job-a", Status: "Submitted"},
			{ClassHash: "0x2", ContractName: "b", Error: "submission failed"},
		},
	}

	got, err := o.WatchBatch(context.Background(), summary, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, fetcher.calls["job-b"])
	assert.Equal(t, "Success", got.Results[0].Status)
}

func TestWatchBatchContextCancellation(t *testing.T) {
	fetcher := &fakeFetcher{
		statuses: map[string][]api.StatusResult{
			"job-a": {pendingResult("job-a", api.StatusProcessing)},
		},
	}
	cfg := BatchConfig{Delay: time.Millisecond, WatchInterval: time.Hour}
	o := NewOrchestrator(fetcher, nil, "dev", cfg)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	summary := &BatchSummary{
		Total:     1,
		Submitted: 1,
		Results:   []BatchResult{{JobID: "job-a", Status: "Submitted"}},
	}
	_, err := o.WatchBatch(ctx, summary, nil)
	require.ErrorIs(t, err, context.Canceled)
}
