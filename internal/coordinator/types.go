// Package coordinator implements the authoritative queue+registry state
// machine: hosts, jobs, services, leases, versioning, and snapshot/merge.
package coordinator

import "time"

// Host is a registered worker process.
type Host struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	RegisteredAt   time.Time `json:"registeredAt"`
	Capabilities   []string  `json:"capabilities"`
	MaxParallel    int       `json:"maxParallel"`
	ActiveLeases   int       `json:"activeLeases"`
	LastSeenAt     time.Time `json:"lastSeenAt"`
	Version        int64     `json:"version"`
	UpdatedBy      string    `json:"updatedBy"`
}

// JobStatus enumerates the lifecycle states of a Job.
type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobLeased    JobStatus = "leased"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// PayloadKind discriminates the job payload variant.
type PayloadKind string

const (
	PayloadShell      PayloadKind = "shell"
	PayloadOpenclawRun PayloadKind = "openclaw-run"
)

// Payload is a tagged variant describing what a host should execute.
//
// Kind "shell" uses Command/Args/Cwd/Env/TimeoutMs.
// Kind "openclaw-run" uses Args/OpenclawDir/Env/TimeoutMs.
type Payload struct {
	Kind        PayloadKind       `json:"kind"`
	Command     string            `json:"command,omitempty"`
	Args        []string          `json:"args,omitempty"`
	Cwd         string            `json:"cwd,omitempty"`
	Env         map[string]string `json:"env,omitempty"`
	OpenclawDir string            `json:"openclawDir,omitempty"`
	TimeoutMs   int64             `json:"timeoutMs,omitempty"`
}

// Requirement describes the capabilities a host must have to run a job or
// service.
type Requirement struct {
	RequiredCapabilities []string `json:"requiredCapabilities"`
}

// Result holds the outcome of a completed job execution.
type Result struct {
	FinishedAt time.Time `json:"finishedAt"`
	DurationMs int64     `json:"durationMs"`
	ExitCode   int       `json:"exitCode"`
	Stdout     string    `json:"stdout"`
	Stderr     string    `json:"stderr"`
}

// Job is a unit of work submitted to the queue.
type Job struct {
	ID              string     `json:"id"`
	CreatedAt       time.Time  `json:"createdAt"`
	Status          JobStatus  `json:"status"`
	Attempts        int        `json:"attempts"`
	AssignedHostID  string     `json:"assignedHostId,omitempty"`
	LeaseExpiresAt  *time.Time `json:"leaseExpiresAt,omitempty"`
	Payload         Payload    `json:"payload"`
	Requirement     Requirement `json:"requirement"`
	SubmittedBy     string     `json:"submittedBy,omitempty"`
	Result          *Result    `json:"result,omitempty"`
	Error           string     `json:"error,omitempty"`
	Version         int64      `json:"version"`
	UpdatedBy       string     `json:"updatedBy"`
}

// ServiceStatus enumerates the derived lifecycle states of a Service.
type ServiceStatus string

const (
	ServicePending ServiceStatus = "pending"
	ServiceRunning ServiceStatus = "running"
	ServiceFailed  ServiceStatus = "failed"
)

// AssignmentStatus enumerates the per-host state of a service assignment.
type AssignmentStatus string

const (
	AssignmentPending AssignmentStatus = "pending"
	AssignmentRunning AssignmentStatus = "running"
	AssignmentFailed  AssignmentStatus = "failed"
)

// Assignment is a single host's claim on a service replica slot.
type Assignment struct {
	HostID    string           `json:"hostId"`
	Status    AssignmentStatus `json:"status"`
	Endpoint  string           `json:"endpoint,omitempty"`
	Error     string           `json:"error,omitempty"`
	StartedAt *time.Time       `json:"startedAt,omitempty"`
	UpdatedAt time.Time        `json:"updatedAt"`
}

// Service is a long-lived deployment spread across up to Replicas hosts.
type Service struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	Command      string        `json:"command"`
	Args         []string      `json:"args,omitempty"`
	Cwd          string        `json:"cwd,omitempty"`
	Env          map[string]string `json:"env,omitempty"`
	Replicas     int           `json:"replicas"`
	Requirement  Requirement   `json:"requirement"`
	Status       ServiceStatus `json:"status"`
	Assignments  []Assignment  `json:"assignments"`
	CreatedAt    time.Time     `json:"createdAt"`
	UpdatedAt    time.Time     `json:"updatedAt"`
	Version      int64         `json:"version"`
	UpdatedBy    string        `json:"updatedBy"`
}

// Snapshot is the full observable state of a coordinator node, transferable
// over the wire for replication, merge, and checkpoint/restore.
type Snapshot struct {
	NodeID   string    `json:"nodeId"`
	Hosts    []Host    `json:"hosts"`
	Jobs     []Job     `json:"jobs"`
	Services []Service `json:"services"`
}
