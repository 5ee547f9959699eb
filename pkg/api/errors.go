package api

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInProgress reports that a job's retry budget was exhausted while
// the job was still non-terminal. It is not a failure; callers may
// check back later with the status command.
var ErrInProgress = errors.New("verification job is still in progress")

// RequestFailure is an HTTP exchange that ended with an unexpected
// status. It keeps the offending URL for diagnostics and renders
// remediation suggestions keyed by the status code.
type RequestFailure struct {
	URL        string
	StatusCode int
	Body       string
}

func (e *RequestFailure) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[E002] HTTP request failed: %s returned status %d", e.URL, e.StatusCode)
	if e.Body != "" {
		fmt.Fprintf(&b, "\n\nServer response: %s", e.Body)
	}
	b.WriteString("\n\nSuggestions:")
	for _, s := range requestSuggestions(e.StatusCode, e.URL) {
		b.WriteString("\n  • ")
		b.WriteString(s)
	}
	return b.String()
}

func requestSuggestions(status int, url string) []string {
	switch {
	case status == 400:
		return []string{
			"Check that all required parameters are provided",
			"Verify the request format is correct",
		}
	case status == 401:
		return []string{
			"Check your authentication credentials",
			"Verify API key is valid and not expired",
		}
	case status == 404:
		return []string{
			"Check that the URL is correct: " + url,
			"Verify the resource exists",
			"Check if the service is running",
		}
	case status == 413:
		return []string{
			"The request payload is too large (maximum 10MB)",
			"Consider reducing the size of your project files",
			"Remove unnecessary files or large assets",
			"Try without --test-files or --lock-file flags",
		}
	case status == 429:
		return []string{
			"Wait a moment before retrying",
			"Consider reducing request frequency",
		}
	case status >= 500 && status <= 599:
		return []string{
			"The server is experiencing issues",
			"Try again in a few minutes",
			"Check service status if available",
		}
	default:
		return []string{
			"Check your internet connection",
			"Verify the server URL is correct",
			"Try again in a few moments",
		}
	}
}

// FailureCategory splits terminal job failures into the two classes
// the service distinguishes.
type FailureCategory string

const (
	CategoryVerification FailureCategory = "verification"
	CategoryCompilation  FailureCategory = "compilation"
)

// VerificationError is a terminal failure reported by the service for
// a job. It is never retried.
type VerificationError struct {
	Category FailureCategory
	Message  string
}

func (e *VerificationError) Error() string {
	var b strings.Builder
	switch e.Category {
	case CategoryCompilation:
		fmt.Fprintf(&b, "[E005] Compilation failed: %s", e.Message)
		b.WriteString("\n\nSuggestions:")
		b.WriteString("\n  • Check that the project compiles locally with the same toolchain")
		b.WriteString("\n  • Verify the scarb and cairo versions match your local build")
		b.WriteString("\n  • Ensure all dependencies are declared in Scarb.toml")
	default:
		fmt.Fprintf(&b, "[E006] Verification failed: %s", e.Message)
		b.WriteString("\n\nSuggestions:")
		b.WriteString("\n  • Verify the class hash matches the declared contract")
		b.WriteString("\n  • Check that the submitted sources produce the declared class")
		b.WriteString("\n  • Confirm you targeted the correct network")
	}
	return b.String()
}

// JobNotFoundError reports a job id the service does not know.
// Distinct from a generic transport failure; the id is likely
// mistyped or expired.
type JobNotFoundError struct {
	JobID string
}

func (e *JobNotFoundError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[E007] Verification job '%s' not found", e.JobID)
	b.WriteString("\n\nSuggestions:")
	b.WriteString("\n  • Check the job id for typos")
	b.WriteString("\n  • The job may have expired on the service")
	b.WriteString("\n  • Re-submit the verification to obtain a new job id")
	return b.String()
}
