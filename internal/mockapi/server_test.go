package mockapi

import (
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stelatos/starkverify/pkg/api"
)

func newTestClient(t *testing.T) *api.Client {
	t.Helper()
	srv := httptest.NewServer(New("127.0.0.1", 0).Handler())
	t.Cleanup(srv.Close)

	client, err := api.NewClient(api.Config{BaseURL: srv.URL})
	require.NoError(t, err)
	return client
}

func submitFixture(t *testing.T, client *api.Client, contractName string) string {
	t.Helper()
	dir := t.TempDir()
	manifest := filepath.Join(dir, "Scarb.toml")
	require.NoError(t, os.WriteFile(manifest, []byte("[package]\nname = \"demo\"\n"), 0o644))
	source := filepath.Join(dir, "lib.cairo")
	require.NoError(t, os.WriteFile(source, []byte("mod demo;\n"), 0o644))

	jobID, err := client.VerifyClass(context.Background(), "0xdeadbeef", "MIT", contractName,
		api.ProjectMetadata{PackageName: "demo", ContractFile: "src/lib.cairo"},
		[]api.FileInfo{
			{Name: "Scarb.toml", Path: manifest},
			{Name: "src/lib.cairo", Path: source},
		})
	require.NoError(t, err)
	return jobID
}

func TestSubmitAndProgressToSuccess(t *testing.T) {
	client := newTestClient(t)
	jobID := submitFixture(t, client, "counter")
	require.NotEmpty(t, jobID)

	// Jobs advance one stage per fetch: Submitted, Processing,
	// Compiled, then Success.
	wantPending := []api.JobStatus{api.StatusSubmitted, api.StatusProcessing, api.StatusCompiled}
	for _, want := range wantPending {
		result, err := client.GetJobStatus(context.Background(), jobID)
		require.NoError(t, err)
		assert.False(t, result.Done)
		assert.Equal(t, want, result.Job.Status)
	}

	result, err := client.GetJobStatus(context.Background(), jobID)
	require.NoError(t, err)
	assert.True(t, result.Done)
	assert.Equal(t, api.StatusSuccess, result.Job.Status)
	assert.Equal(t, "0xdeadbeef", result.Job.ClassHash)
}

func TestScriptedCompileFailure(t *testing.T) {
	client := newTestClient(t)
	jobID := submitFixture(t, client, "compile_fail_demo")

	var verErr *api.VerificationError
	for i := 0; i < 5; i++ {
		_, err := client.GetJobStatus(context.Background(), jobID)
		if err == nil {
			continue
		}
		require.ErrorAs(t, err, &verErr)
		break
	}
	require.NotNil(t, verErr, "job must reach CompileFailed")
	assert.Equal(t, api.CategoryCompilation, verErr.Category)
	// The connectivity marker is replaced with the fixed message.
	assert.Contains(t, verErr.Message, "currently unavailable")
}

func TestScriptedVerificationFailure(t *testing.T) {
	client := newTestClient(t)
	jobID := submitFixture(t, client, "fail_demo")

	var verErr *api.VerificationError
	for i := 0; i < 6; i++ {
		_, err := client.GetJobStatus(context.Background(), jobID)
		if err == nil {
			continue
		}
		require.ErrorAs(t, err, &verErr)
		break
	}
	require.NotNil(t, verErr)
	assert.Equal(t, api.CategoryVerification, verErr.Category)
	assert.Contains(t, verErr.Message, "does not match")
}

func TestClassLookup(t *testing.T) {
	client := newTestClient(t)
	submitFixture(t, client, "counter")

	exists, err := client.GetClass(context.Background(), "0xdeadbeef")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = client.GetClass(context.Background(), "0xunknown")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestStatusUnknownJob(t *testing.T) {
	client := newTestClient(t)
	_, err := client.GetJobStatus(context.Background(), "no-such-job")

	var notFound *api.JobNotFoundError
	require.ErrorAs(t, err, &notFound)
}

func TestPollAgainstMockService(t *testing.T) {
	// The engine's real backoff makes this take ~15s.
	if testing.Short() {
		t.Skip("full poll engine run")
	}

	client := newTestClient(t)
	jobID := submitFixture(t, client, "counter")

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	var observed int
	job, err := client.PollVerificationStatus(ctx, jobID, func(api.VerificationJob) { observed++ })
	require.NoError(t, err)
	assert.Equal(t, api.StatusSuccess, job.Status)
	assert.Equal(t, 4, observed)
}
