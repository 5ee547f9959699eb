package api

// VerificationJob is the service's record of one verification job.
//
// Timestamps are float seconds since the Unix epoch, as served.
type VerificationJob struct {
	JobID             string    `json:"job_id"`
	Status            JobStatus `json:"status"`
	StatusDescription string    `json:"status_description,omitempty"`
	Message           string    `json:"message,omitempty"`
	ErrorCategory     string    `json:"error_category,omitempty"`
	ClassHash         string    `json:"class_hash,omitempty"`
	CreatedTimestamp  float64   `json:"created_timestamp,omitempty"`
	UpdatedTimestamp  float64   `json:"updated_timestamp,omitempty"`
	Address           string    `json:"address,omitempty"`
	ContractFile      string    `json:"contract_file,omitempty"`
	Name              string    `json:"name,omitempty"`
	Version           string    `json:"version,omitempty"`
	License           string    `json:"license,omitempty"`
	ScarbVersion      string    `json:"scarb_version,omitempty"`
	DojoVersion       string    `json:"dojo_version,omitempty"`
	BuildTool         string    `json:"build_tool,omitempty"`
}

// StatusResult is the outcome of a single status fetch that did not
// end in an error. Done distinguishes a finished (Success) job from
// one still moving through the queue; Job is populated either way so
// observers can render intermediate progress.
type StatusResult struct {
	Done bool
	Job  VerificationJob
}

// FileInfo pairs a file's path inside the submission bundle with its
// location on disk. Name is a relative, forward-slash path and is the
// key under which the file's content is transmitted.
type FileInfo struct {
	Name string
	Path string
}

// ProjectMetadata carries the toolchain and layout facts the service
// needs to reproduce a build.
type ProjectMetadata struct {
	CairoVersion   string
	ScarbVersion   string
	PackageName    string
	ContractFile   string
	ProjectDirPath string
	BuildTool      string
	DojoVersion    string
}

type submissionRequest struct {
	CompilerVersion string            `json:"compiler_version"`
	ScarbVersion    string            `json:"scarb_version"`
	PackageName     string            `json:"package_name"`
	Name            string            `json:"name"`
	ContractFile    string            `json:"contract_file"`
	ContractName    string            `json:"contract_name"`
	ProjectDirPath  string            `json:"project_dir_path"`
	BuildTool       string            `json:"build_tool"`
	License         string            `json:"license"`
	DojoVersion     string            `json:"dojo_version,omitempty"`
	Files           map[string]string `json:"files"`
}

type jobDispatch struct {
	JobID string `json:"job_id"`
}

type serviceError struct {
	Error string `json:"error"`
}
