// Package api implements the HTTP client for the remote class
// verification service: job submission, status fetches, and the
// bounded poll-until-done engine built on top of them.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

const payloadTooLargeMessage = "Request payload too large. Maximum allowed size is 10MB."

const payloadTooLargeDetail = "Request payload too large. The project files exceed the maximum allowed size of 10MB. Try reducing file sizes or removing unnecessary files."

const compileServiceUnavailable = "Cairo compilation service is currently unavailable. Please try again later."

// Config configures the verification service client.
type Config struct {
	// BaseURL is the resolved service endpoint, e.g.
	// https://api.voyager.online/beta. Required; there is no
	// placeholder default.
	BaseURL string

	// HTTPClient overrides the transport. Default: 30s timeout client.
	HTTPClient *http.Client
}

// Client talks to a Voyager-style class verification service.
type Client struct {
	base *url.URL
	http *http.Client
	poll pollSettings
}

// NewClient validates the base URL and builds a client.
func NewClient(cfg Config) (*Client, error) {
	raw := strings.TrimSpace(cfg.BaseURL)
	if raw == "" {
		return nil, fmt.Errorf("api base url is required")
	}
	base, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse api base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("api base url %q must be http(s)", raw)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	return &Client{base: base, http: httpClient, poll: defaultPollSettings()}, nil
}

// VerifyClassURL returns the submission endpoint for a class hash.
func (c *Client) VerifyClassURL(classHash string) string {
	return c.base.JoinPath("class-verify", classHash).String()
}

// JobStatusURL returns the status endpoint for a job id.
func (c *Client) JobStatusURL(jobID string) string {
	return c.base.JoinPath("class-verify", "job", jobID).String()
}

// ClassURL returns the class lookup endpoint for a class hash.
func (c *Client) ClassURL(classHash string) string {
	return c.base.JoinPath("classes", classHash).String()
}

// GetClass reports whether a class hash is known on-chain. A 404
// means not declared; any other non-200 answer is a RequestFailure.
func (c *Client) GetClass(ctx context.Context, classHash string) (bool, error) {
	endpoint := c.ClassURL(classHash)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return false, fmt.Errorf("build class request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return false, fmt.Errorf("fetch class: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, &RequestFailure{URL: endpoint, StatusCode: resp.StatusCode, Body: readBody(resp.Body)}
	}
}

// VerifyClass submits a verification job and returns the job id the
// service assigned.
//
// File contents are read from disk at submission time. Scarb manifest
// files have their [dev-dependencies] section stripped before
// transmission since the remote builder cannot resolve test-only
// dependencies.
func (c *Client) VerifyClass(ctx context.Context, classHash string, license string, name string, meta ProjectMetadata, files []FileInfo) (string, error) {
	if len(files) == 0 {
		return "", fmt.Errorf("no files to submit for class %s", classHash)
	}

	if strings.TrimSpace(license) == "" {
		license = "NONE"
	}

	filesMap := make(map[string]string, len(files))
	for _, file := range files {
		content, err := os.ReadFile(file.Path)
		if err != nil {
			return "", fmt.Errorf("read submission file %s: %w", file.Path, err)
		}
		text := string(content)
		if file.Name == "Scarb.toml" || strings.HasSuffix(file.Name, "/Scarb.toml") {
			text = filterManifestContent(text)
		}
		filesMap[file.Name] = text
	}

	body := submissionRequest{
		CompilerVersion: meta.CairoVersion,
		ScarbVersion:    meta.ScarbVersion,
		PackageName:     meta.PackageName,
		Name:            name,
		ContractFile:    meta.ContractFile,
		ContractName:    meta.ContractFile,
		ProjectDirPath:  meta.ProjectDirPath,
		BuildTool:       meta.BuildTool,
		License:         license,
		DojoVersion:     meta.DojoVersion,
		Files:           filesMap,
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("encode submission request: %w", err)
	}

	endpoint := c.VerifyClassURL(classHash)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build submission request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("submit verification: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusBadRequest:
		var svcErr serviceError
		msg := readBody(resp.Body)
		if err := json.Unmarshal([]byte(msg), &svcErr); err == nil && svcErr.Error != "" {
			msg = svcErr.Error
		}
		return "", &RequestFailure{URL: endpoint, StatusCode: resp.StatusCode, Body: msg}
	case http.StatusRequestEntityTooLarge:
		// The body may be truncated or absent on 413; use the fixed message.
		return "", &RequestFailure{URL: endpoint, StatusCode: resp.StatusCode, Body: payloadTooLargeMessage}
	default:
		return "", &RequestFailure{URL: endpoint, StatusCode: resp.StatusCode, Body: readBody(resp.Body)}
	}

	var dispatch jobDispatch
	if err := json.NewDecoder(resp.Body).Decode(&dispatch); err != nil {
		return "", &RequestFailure{URL: endpoint, StatusCode: http.StatusOK, Body: fmt.Sprintf("failed to parse JSON response: %v", err)}
	}
	if dispatch.JobID == "" {
		return "", &RequestFailure{URL: endpoint, StatusCode: http.StatusOK, Body: "response is missing job_id"}
	}
	return dispatch.JobID, nil
}

// GetJobStatus fetches and classifies the current state of a job.
//
// A Success job yields StatusResult{Done: true}. Non-terminal statuses
// (Submitted, Processing, Compiled, Unknown) yield a pending result
// carrying the record as served. Fail and CompileFailed return a
// *VerificationError and are never retried by callers.
func (c *Client) GetJobStatus(ctx context.Context, jobID string) (StatusResult, error) {
	endpoint := c.JobStatusURL(jobID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return StatusResult{}, fmt.Errorf("build status request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return StatusResult{}, fmt.Errorf("fetch job status: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return StatusResult{}, &JobNotFoundError{JobID: jobID}
	default:
		return StatusResult{}, &RequestFailure{URL: endpoint, StatusCode: resp.StatusCode, Body: readBody(resp.Body)}
	}

	var job VerificationJob
	if err := json.NewDecoder(resp.Body).Decode(&job); err != nil {
		// Malformed JSON is a hard failure, not a retryable condition.
		return StatusResult{}, &RequestFailure{URL: endpoint, StatusCode: http.StatusOK, Body: fmt.Sprintf("failed to parse JSON response: %v", err)}
	}

	switch job.Status {
	case StatusSuccess:
		return StatusResult{Done: true, Job: job}, nil
	case StatusFail:
		return StatusResult{}, &VerificationError{
			Category: CategoryVerification,
			Message:  classifyFailureMessage(job, false),
		}
	case StatusCompileFailed:
		return StatusResult{}, &VerificationError{
			Category: CategoryCompilation,
			Message:  classifyFailureMessage(job, true),
		}
	default:
		return StatusResult{Done: false, Job: job}, nil
	}
}

// classifyFailureMessage resolves the human-readable failure text for
// a terminal job: message, then status description, then a generic
// fallback. Known service error patterns are replaced with fixed
// actionable messages.
func classifyFailureMessage(job VerificationJob, compile bool) string {
	msg := job.Message
	if msg == "" {
		msg = job.StatusDescription
	}
	if msg == "" {
		msg = "unknown failure"
	}

	if strings.Contains(strings.ToLower(msg), "payload too large") {
		return payloadTooLargeDetail
	}
	if compile && strings.Contains(msg, "Couldn't connect to cairo compilation service") {
		return compileServiceUnavailable
	}
	return msg
}

// filterManifestContent removes the [dev-dependencies] section from a
// Scarb.toml. The section is replaced with a marker comment so the
// transmitted manifest stays readable.
func filterManifestContent(content string) string {
	lines := make([]string, 0, strings.Count(content, "\n")+1)
	inDevDeps := false

	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimLeft(line, " \t")
		if strings.HasPrefix(trimmed, "[dev-dependencies]") {
			inDevDeps = true
			lines = append(lines, "# [dev-dependencies] section removed for remote compilation")
			continue
		}
		if strings.HasPrefix(trimmed, "[") {
			if inDevDeps {
				lines = append(lines, "")
			}
			inDevDeps = false
			lines = append(lines, line)
			continue
		}
		if inDevDeps {
			continue
		}
		lines = append(lines, line)
	}

	return strings.Join(lines, "\n")
}

func readBody(r io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(r, 64*1024))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}
