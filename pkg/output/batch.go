package output

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/stelatos/starkverify/pkg/history"
	"github.com/stelatos/starkverify/pkg/verification"
)

// inlineClear rewinds the cursor and clears the line so the next
// write overwrites the previous progress report.
const inlineClear = "\r\x1b[2K"

// WriteInline overwrites the current terminal line with s.
func WriteInline(w io.Writer, s string) {
	fmt.Fprint(w, inlineClear+s)
}

// FormatBatchProgress renders the per-sweep progress counts.
func FormatBatchProgress(succeeded, pending, failed int) string {
	return fmt.Sprintf("⏳ Batch verification: %d succeeded, %d pending, %d failed", succeeded, pending, failed)
}

// FormatBatchSummary renders the final batch report.
func FormatBatchSummary(summary *verification.BatchSummary) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Batch Verification Summary\n\n")
	fmt.Fprintf(&b, "Total: %d\n", summary.Total)
	fmt.Fprintf(&b, "Submitted: %d\n\n", summary.Submitted)

	w := tabwriter.NewWriter(&b, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "CONTRACT\tCLASS HASH\tJOB ID\tSTATUS\tERROR")
	for _, r := range summary.Results {
		status := r.Status
		if status == "" {
			status = "-"
		}
		jobID := r.JobID
		if jobID == "" {
			jobID = "-"
		}
		errText := r.Error
		if errText == "" {
			errText = "-"
		} else {
			errText = firstLine(errText)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", r.ContractName, truncateHash(r.ClassHash), jobID, status, errText)
	}
	_ = w.Flush()

	return b.String()
}

// FormatHistoryTable renders ledger entries newest first.
func FormatHistoryTable(records []history.Record) string {
	if len(records) == 0 {
		return "No verification history.\n"
	}

	var b strings.Builder
	w := tabwriter.NewWriter(&b, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "JOB ID\tCONTRACT\tCLASS HASH\tNETWORK\tSTATUS\tSUBMITTED\tCOMPLETED")
	for _, r := range records {
		completed := "-"
		if r.CompletedAt != nil {
			completed = r.CompletedAt.UTC().Format("2006-01-02 15:04:05")
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.JobID, r.ContractName, truncateHash(r.ClassHash), r.Network, r.Status,
			r.SubmittedAt.UTC().Format("2006-01-02 15:04:05"), completed)
	}
	_ = w.Flush()
	return b.String()
}

// FormatHistoryStats renders the ledger stats block.
func FormatHistoryStats(stats history.Stats) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Verification History\n\n")
	fmt.Fprintf(&b, "Total: %d\n", stats.Total)
	fmt.Fprintf(&b, "Succeeded: %d\n", stats.Succeeded)
	fmt.Fprintf(&b, "Failed: %d\n", stats.Failed)
	fmt.Fprintf(&b, "Pending: %d\n", stats.Pending)
	return b.String()
}

// truncateHash shortens long class hashes for table display.
func truncateHash(hash string) string {
	if len(hash) <= 18 {
		return hash
	}
	return hash[:16] + ".."
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
