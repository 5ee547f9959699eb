// Package output renders verification jobs, batch summaries, and
// ledger entries for the terminal: plain text, JSON, tables, and the
// overwrite-in-place live status line.
package output

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/stelatos/starkverify/pkg/api"
)

// Format selects a rendering style.
type Format string

const (
	FormatText  Format = "text"
	FormatJSON  Format = "json"
	FormatTable Format = "table"
)

// ParseFormat validates a user-supplied format name.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case FormatText, "":
		return FormatText, nil
	case FormatJSON:
		return FormatJSON, nil
	case FormatTable:
		return FormatTable, nil
	default:
		return "", fmt.Errorf("unknown output format %q (expected text, json, or table)", s)
	}
}

// ETA carries the historical average verification time when the
// ledger has enough samples. Display only; never contractual.
type ETA struct {
	Average time.Duration
	Valid   bool
}

// FormatDuration renders a duration the way the status line shows it.
func FormatDuration(d time.Duration) string {
	secs := int64(d.Seconds())
	if secs < 60 {
		return fmt.Sprintf("%ds", secs)
	}
	if secs < 3600 {
		return fmt.Sprintf("%dm %ds", secs/60, secs%60)
	}
	return fmt.Sprintf("%dh %dm", secs/3600, (secs%3600)/60)
}

// progressPercentage maps a status onto the verification flow:
// Submitted → Processing → Compiled → terminal.
func progressPercentage(status api.JobStatus) int {
	switch status {
	case api.StatusSubmitted:
		return 10
	case api.StatusProcessing:
		return 40
	case api.StatusCompiled:
		return 85
	case api.StatusSuccess, api.StatusFail, api.StatusCompileFailed:
		return 100
	default:
		return 0
	}
}

// ProgressBar renders a 20-cell bar for the given percentage.
func ProgressBar(percentage int) string {
	if percentage < 0 {
		percentage = 0
	}
	if percentage > 100 {
		percentage = 100
	}
	filled := percentage * 20 / 100
	return fmt.Sprintf("%s%s (%d%%)", strings.Repeat("█", filled), strings.Repeat("░", 20-filled), percentage)
}

// Elapsed computes how long a job has been running: creation to last
// update for terminal jobs, creation to now otherwise.
func Elapsed(job api.VerificationJob, now time.Time) (time.Duration, bool) {
	if job.CreatedTimestamp <= 0 {
		return 0, false
	}
	created := time.Unix(int64(job.CreatedTimestamp), 0)
	if job.Status.IsTerminal() && job.UpdatedTimestamp > 0 {
		updated := time.Unix(int64(job.UpdatedTimestamp), 0)
		if updated.After(created) {
			return updated.Sub(created), true
		}
		return 0, false
	}
	if now.Before(created) {
		return 0, false
	}
	return now.Sub(created), true
}

// EstimateRemaining guesses time left for a non-terminal job.
//
// With a ledger average the estimate scales by stage: a Submitted job
// has the whole average ahead, Processing about 85% of it, Compiled
// about 10%. Without history, fixed stage totals stand in (40s, 35s,
// 5s). Terminal and unknown stages have no estimate.
func EstimateRemaining(status api.JobStatus, elapsed time.Duration, eta ETA) (time.Duration, bool) {
	var total time.Duration
	if eta.Valid {
		switch status {
		case api.StatusSubmitted:
			total = eta.Average
		case api.StatusProcessing:
			total = eta.Average * 85 / 100
		case api.StatusCompiled:
			total = eta.Average * 10 / 100
		default:
			return 0, false
		}
	} else {
		switch status {
		case api.StatusSubmitted:
			total = 40 * time.Second
		case api.StatusProcessing:
			total = 35 * time.Second
		case api.StatusCompiled:
			total = 5 * time.Second
		default:
			return 0, false
		}
	}

	remaining := total - elapsed
	if remaining < 0 {
		remaining = 0
	}
	return remaining, true
}

func statusEmoji(status api.JobStatus) string {
	switch status {
	case api.StatusSuccess:
		return "✅"
	case api.StatusFail, api.StatusCompileFailed:
		return "❌"
	default:
		return "⏳"
	}
}

func formatTimestamp(ts float64) string {
	if ts <= 0 {
		return ""
	}
	return time.Unix(int64(ts), 0).UTC().Format("2006-01-02 15:04:05 UTC")
}

// FormatStatusText renders the full multi-line status report.
func FormatStatusText(job api.VerificationJob, eta ETA, now time.Time) string {
	var b strings.Builder

	fmt.Fprintf(&b, "%s Verification Status\n\n", statusEmoji(job.Status))
	fmt.Fprintf(&b, "Job ID: %s\n", job.JobID)
	fmt.Fprintf(&b, "Status: %s\n", job.Status)
	if !job.Status.IsTerminal() {
		fmt.Fprintf(&b, "Progress: %s\n", ProgressBar(progressPercentage(job.Status)))
	}
	if job.ClassHash != "" {
		fmt.Fprintf(&b, "Class Hash: %s\n", job.ClassHash)
	}
	if job.Name != "" {
		fmt.Fprintf(&b, "Contract: %s\n", job.Name)
	}
	if job.ContractFile != "" {
		fmt.Fprintf(&b, "Contract File: %s\n", job.ContractFile)
	}
	if ts := formatTimestamp(job.CreatedTimestamp); ts != "" {
		fmt.Fprintf(&b, "Started: %s\n", ts)
	}
	if ts := formatTimestamp(job.UpdatedTimestamp); ts != "" {
		fmt.Fprintf(&b, "Last Updated: %s\n", ts)
	}

	if elapsed, ok := Elapsed(job, now); ok {
		fmt.Fprintf(&b, "Elapsed: %s\n", FormatDuration(elapsed))
		if remaining, ok := EstimateRemaining(job.Status, elapsed, eta); ok {
			fmt.Fprintf(&b, "Estimated Remaining: ~%s\n", FormatDuration(remaining))
		}
	}

	if job.Version != "" {
		fmt.Fprintf(&b, "Cairo Version: %s\n", job.Version)
	}
	if job.DojoVersion != "" {
		fmt.Fprintf(&b, "Dojo Version: %s\n", job.DojoVersion)
	}
	if job.License != "" {
		fmt.Fprintf(&b, "License: %s\n", job.License)
	}

	if job.Status == api.StatusFail || job.Status == api.StatusCompileFailed {
		if job.StatusDescription != "" {
			fmt.Fprintf(&b, "Reason: %s\n", job.StatusDescription)
		}
		if job.Message != "" {
			fmt.Fprintf(&b, "Message: %s\n", job.Message)
		}
	}

	return b.String()
}

// FormatStatusJSON renders the job record as indented JSON.
func FormatStatusJSON(job api.VerificationJob) (string, error) {
	data, err := json.MarshalIndent(job, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode job record: %w", err)
	}
	return string(data), nil
}

// FormatStatusTable renders the job record as an aligned two-column
// table.
func FormatStatusTable(job api.VerificationJob, eta ETA, now time.Time) string {
	var b strings.Builder
	w := tabwriter.NewWriter(&b, 0, 4, 2, ' ', 0)

	row := func(key, value string) {
		if value != "" {
			fmt.Fprintf(w, "%s\t%s\n", key, value)
		}
	}

	row("Job ID", job.JobID)
	row("Status", job.Status.String())
	if !job.Status.IsTerminal() {
		row("Progress", fmt.Sprintf("%d%%", progressPercentage(job.Status)))
	}
	row("Class Hash", job.ClassHash)
	row("Contract", job.Name)
	row("Contract File", job.ContractFile)
	row("Started", formatTimestamp(job.CreatedTimestamp))
	row("Last Updated", formatTimestamp(job.UpdatedTimestamp))
	if elapsed, ok := Elapsed(job, now); ok {
		row("Elapsed", FormatDuration(elapsed))
		if remaining, ok := EstimateRemaining(job.Status, elapsed, eta); ok {
			row("Estimated Remaining", "~"+FormatDuration(remaining))
		}
	}
	row("Cairo Version", job.Version)
	row("License", job.License)

	_ = w.Flush()
	return b.String()
}

// FormatInlineStatus renders the one-line live status for watch mode.
func FormatInlineStatus(job api.VerificationJob, eta ETA, now time.Time) string {
	stage := job.Status.String()

	elapsed, hasElapsed := Elapsed(job, now)
	if !hasElapsed {
		return fmt.Sprintf("⏳ %s", stage)
	}

	bar := ProgressBar(progressPercentage(job.Status))
	if remaining, ok := EstimateRemaining(job.Status, elapsed, eta); ok {
		return fmt.Sprintf("⏳ %s %s [%s elapsed, ~%s remaining]", stage, bar, FormatDuration(elapsed), FormatDuration(remaining))
	}
	return fmt.Sprintf("⏳ %s %s [%s elapsed]", stage, bar, FormatDuration(elapsed))
}

// FormatStatus dispatches on the requested format.
func FormatStatus(job api.VerificationJob, format Format, eta ETA, now time.Time) (string, error) {
	switch format {
	case FormatJSON:
		return FormatStatusJSON(job)
	case FormatTable:
		return FormatStatusTable(job, eta, now), nil
	default:
		return FormatStatusText(job, eta, now), nil
	}
}
