package api

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// JobStatus is the lifecycle state of a remote verification job.
//
// NOTE: The numeric codes are part of the wire contract; the service
// historically emitted them as bare integers and later switched to
// string names, so both forms are accepted on decode.
type JobStatus int

const (
	StatusSubmitted     JobStatus = 0
	StatusCompiled      JobStatus = 1
	StatusCompileFailed JobStatus = 2
	StatusFail          JobStatus = 3
	StatusSuccess       JobStatus = 4
	StatusProcessing    JobStatus = 5
	StatusUnknown       JobStatus = 6
)

var statusNames = map[JobStatus]string{
	StatusSubmitted:     "Submitted",
	StatusCompiled:      "Compiled",
	StatusCompileFailed: "CompileFailed",
	StatusFail:          "Fail",
	StatusSuccess:       "Success",
	StatusProcessing:    "Processing",
	StatusUnknown:       "Unknown",
}

func (s JobStatus) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return "Unknown"
}

// IsTerminal reports whether no further transition can occur.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case StatusSuccess, StatusFail, StatusCompileFailed:
		return true
	default:
		return false
	}
}

// ParseJobStatus maps a status name to its code. Unrecognized names
// map to StatusUnknown rather than failing; the polling layer treats
// unknown statuses as "still in progress".
func ParseJobStatus(name string) JobStatus {
	for code, n := range statusNames {
		if strings.EqualFold(n, name) {
			return code
		}
	}
	return StatusUnknown
}

func (s JobStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *JobStatus) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" || trimmed == "null" {
		*s = StatusUnknown
		return nil
	}

	if code, err := strconv.Atoi(trimmed); err == nil {
		if _, ok := statusNames[JobStatus(code)]; ok {
			*s = JobStatus(code)
		} else {
			*s = StatusUnknown
		}
		return nil
	}

	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return fmt.Errorf("decode job status: %w", err)
	}
	*s = ParseJobStatus(name)
	return nil
}
