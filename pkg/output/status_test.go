package output

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stelatos/starkverify/pkg/api"
	"github.com/stelatos/starkverify/pkg/verification"
)

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"text", FormatText, false},
		{"", FormatText, false},
		{"JSON", FormatJSON, false},
		{" table ", FormatTable, false},
		{"xml", "", true},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseFormat(%q) succeeded, want error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseFormat(%q): %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ParseFormat(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{45 * time.Second, "45s"},
		{90 * time.Second, "1m 30s"},
		{3900 * time.Second, "1h 5m"},
	}
	for _, tt := range tests {
		if got := FormatDuration(tt.in); got != tt.want {
			t.Errorf("FormatDuration(%v) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestProgressBar(t *testing.T) {
	bar := ProgressBar(40)
	if !strings.Contains(bar, "(40%)") {
		t.Errorf("bar = %q", bar)
	}
	if strings.Count(bar, "█") != 8 || strings.Count(bar, "░") != 12 {
		t.Errorf("bar cells wrong: %q", bar)
	}

	full := ProgressBar(100)
	if strings.Count(full, "█") != 20 || strings.Contains(full, "░") {
		t.Errorf("full bar wrong: %q", full)
	}
}

func TestEstimateRemaining(t *testing.T) {
	// With history: Processing scales the average to 85%.
	eta := ETA{Average: 100 * time.Second, Valid: true}
	remaining, ok := EstimateRemaining(api.StatusProcessing, 10*time.Second, eta)
	if !ok || remaining != 75*time.Second {
		t.Errorf("remaining = %v, %v; want 75s", remaining, ok)
	}

	// Without history: fixed stage totals.
	remaining, ok = EstimateRemaining(api.StatusSubmitted, 10*time.Second, ETA{})
	if !ok || remaining != 30*time.Second {
		t.Errorf("fallback remaining = %v, %v; want 30s", remaining, ok)
	}

	// Elapsed past the estimate clamps to zero, never negative.
	remaining, ok = EstimateRemaining(api.StatusCompiled, time.Hour, ETA{})
	if !ok || remaining != 0 {
		t.Errorf("clamped remaining = %v, %v", remaining, ok)
	}

	// Terminal states carry no estimate.
	if _, ok := EstimateRemaining(api.StatusSuccess, time.Second, eta); ok {
		t.Error("terminal status must have no estimate")
	}
}

func TestFormatStatusText(t *testing.T) {
	now := time.Now()
	job := api.VerificationJob{
		JobID:            "job-1",
		Status:           api.StatusProcessing,
		ClassHash:        "0xabc",
		Name:             "counter",
		CreatedTimestamp: float64(now.Add(-30 * time.Second).Unix()),
	}

	text := FormatStatusText(job, ETA{}, now)
	for _, want := range []string{"Job ID: job-1", "Status: Processing", "Class Hash: 0xabc", "Contract: counter", "Progress:", "Elapsed:"} {
		if !strings.Contains(text, want) {
			t.Errorf("missing %q in:\n%s", want, text)
		}
	}
}

func TestFormatStatusTextFailureShowsMessage(t *testing.T) {
	job := api.VerificationJob{
		JobID:             "job-1",
		Status:            api.StatusCompileFailed,
		StatusDescription: "compilation error",
		Message:           "missing module counter",
	}

	text := FormatStatusText(job, ETA{}, time.Now())
	if !strings.Contains(text, "Reason: compilation error") {
		t.Errorf("missing reason in:\n%s", text)
	}
	if !strings.Contains(text, "Message: missing module counter") {
		t.Errorf("missing message in:\n%s", text)
	}
	if strings.Contains(text, "Progress:") {
		t.Errorf("terminal status must not show progress bar:\n%s", text)
	}
}

func TestFormatStatusJSON(t *testing.T) {
	job := api.VerificationJob{JobID: "j", Status: api.StatusSuccess}
	out, err := FormatStatusJSON(job)
	if err != nil {
		t.Fatalf("FormatStatusJSON: %v", err)
	}
	if !strings.Contains(out, `"job_id": "j"`) || !strings.Contains(out, `"status": "Success"`) {
		t.Errorf("json = %s", out)
	}
}

func TestFormatInlineStatus(t *testing.T) {
	now := time.Now()
	job := api.VerificationJob{
		JobID:            "j",
		Status:           api.StatusProcessing,
		CreatedTimestamp: float64(now.Add(-10 * time.Second).Unix()),
	}
	line := FormatInlineStatus(job, ETA{}, now)
	if !strings.Contains(line, "Processing") || !strings.Contains(line, "elapsed") {
		t.Errorf("line = %q", line)
	}
	if strings.Contains(line, "\n") {
		t.Errorf("inline status must be a single line: %q", line)
	}
}

func TestWriteInlineClearsLine(t *testing.T) {
	var buf bytes.Buffer
	WriteInline(&buf, "progress")
	if !strings.HasPrefix(buf.String(), "\r\x1b[2K") {
		t.Errorf("output = %q", buf.String())
	}
}

func TestFormatBatchSummary(t *testing.T) {
	summary := &verification.BatchSummary{
		Total:     2,
		Submitted: 1,
		Results: []verification.BatchResult{
			{ContractName: "a", ClassHash: "0x1", JobID: "job-a", Status: "Success"},
			{ContractName: "b", ClassHash: "0x2", Error: "submission failed\ndetails"},
		},
	}

	text := FormatBatchSummary(summary)
	for _, want := range []string{"Total: 2", "Submitted: 1", "job-a", "Success", "submission failed"} {
		if !strings.Contains(text, want) {
			t.Errorf("missing %q in:\n%s", want, text)
		}
	}
	if strings.Contains(text, "details") {
		t.Errorf("multi-line errors must be truncated to the first line:\n%s", text)
	}
}
