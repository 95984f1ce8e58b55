package coordinator

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// State is the in-memory authoritative queue+registry, mirrored to a
// Durable store on every mutation. All exported methods take the single
// coarse lock and complete synchronously, so a checkpoint taken immediately
// before a mutation reflects an exact pre-image (spec §5).
type State struct {
	mu sync.Mutex

	nodeID  string
	leaseMs time.Duration

	hosts    map[string]Host
	jobs     map[string]Job
	services map[string]Service

	nextVersion int64

	durable Durable
	now     func() time.Time
}

// Option configures a new State.
type Option func(*State)

// WithDurable sets the durable mirror. Defaults to a no-op mirror.
func WithDurable(d Durable) Option {
	return func(s *State) { s.durable = d }
}

// WithClock overrides the time source, for deterministic tests.
func WithClock(now func() time.Time) Option {
	return func(s *State) { s.now = now }
}

// New creates an empty State for the given node, owning leaseMs as the
// default lease duration for claimed jobs.
func New(nodeID string, leaseMs time.Duration, opts ...Option) *State {
	s := &State{
		nodeID:      nodeID,
		leaseMs:     leaseMs,
		hosts:       make(map[string]Host),
		jobs:        make(map[string]Job),
		services:    make(map[string]Service),
		nextVersion: 1,
		durable:     nopDurable{},
		now:         time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// LoadFromDurable repopulates state from the durable mirror at startup and
// recomputes nextVersion from the max persisted version.
func (s *State) LoadFromDurable() error {
	snap, err := s.durable.LoadAll()
	if err != nil {
		return fmt.Errorf("loading durable state: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.adopt(snap)
	return nil
}

func (s *State) nextVersionLocked() int64 {
	v := s.nextVersion
	s.nextVersion++
	return v
}

// --- Hosts ---

// RegisterHost is idempotent on hostID: if the host already exists its
// activeLeases and registeredAt are preserved. If hostID is empty one is
// minted.
func (s *State) RegisterHost(hostID, name string, capabilities []string, maxParallel int) (Host, error) {
	if name == "" {
		return Host{}, errBadRequest("name is required")
	}
	if maxParallel <= 0 {
		maxParallel = 1
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if hostID == "" {
		hostID = "host_" + uuid.NewString()
	}

	existing, ok := s.hosts[hostID]
	h := Host{
		ID:           hostID,
		Name:         name,
		Capabilities: normalizeCapabilities(capabilities),
		MaxParallel:  maxParallel,
		LastSeenAt:   now,
		Version:      s.nextVersionLocked(),
		UpdatedBy:    s.nodeID,
	}
	if ok {
		h.RegisteredAt = existing.RegisteredAt
		h.ActiveLeases = existing.ActiveLeases
	} else {
		h.RegisteredAt = now
		h.ActiveLeases = 0
	}

	s.hosts[hostID] = h
	if err := s.durable.PutHost(h); err != nil {
		return Host{}, errInternal("persisting host: %v", err)
	}
	return h, nil
}

// Heartbeat updates a host's lastSeenAt, and activeLeases if a finite
// non-negative value is supplied.
func (s *State) Heartbeat(hostID string, activeLeases *int) (Host, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.hosts[hostID]
	if !ok {
		return Host{}, errInternal("unknown host %q", hostID)
	}

	h.LastSeenAt = s.now()
	if activeLeases != nil && *activeLeases >= 0 {
		h.ActiveLeases = *activeLeases
	}
	h.Version = s.nextVersionLocked()
	h.UpdatedBy = s.nodeID

	s.hosts[hostID] = h
	if err := s.durable.PutHost(h); err != nil {
		return Host{}, errInternal("persisting host: %v", err)
	}
	return h, nil
}

// --- Jobs ---

// EnqueueJob creates a new queued job.
func (s *State) EnqueueJob(payload Payload, requirement Requirement, submittedBy string) (Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	j := Job{
		ID:          "job_" + uuid.NewString(),
		CreatedAt:   now,
		Status:      JobQueued,
		Attempts:    0,
		Payload:     payload,
		Requirement: Requirement{RequiredCapabilities: normalizeCapabilities(requirement.RequiredCapabilities)},
		SubmittedBy: trimSubmitter(submittedBy),
		Version:     s.nextVersionLocked(),
		UpdatedBy:   s.nodeID,
	}

	s.jobs[j.ID] = j
	if err := s.durable.PutJob(j); err != nil {
		return Job{}, errInternal("persisting job: %v", err)
	}
	return j, nil
}

// ClaimJob requeues expired leases, then assigns the oldest eligible queued
// job to hostID under a fresh lease.
func (s *State) ClaimJob(hostID string) (*Job, error) {
	_, _ = s.RequeueExpiredLeases()

	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.hosts[hostID]
	if !ok {
		return nil, errInternal("unknown host %q", hostID)
	}
	if h.ActiveLeases >= h.MaxParallel {
		return nil, nil
	}

	var best *Job
	for id := range s.jobs {
		j := s.jobs[id]
		if j.Status != JobQueued {
			continue
		}
		if !isSubset(j.Requirement.RequiredCapabilities, h.Capabilities) {
			continue
		}
		if best == nil || j.CreatedAt.Before(best.CreatedAt) || (j.CreatedAt.Equal(best.CreatedAt) && j.ID < best.ID) {
			jj := j
			best = &jj
		}
	}
	if best == nil {
		return nil, nil
	}

	now := s.now()
	leaseExp := now.Add(s.leaseMs)
	best.Status = JobLeased
	best.AssignedHostID = hostID
	best.Attempts++
	best.LeaseExpiresAt = &leaseExp
	best.Version = s.nextVersionLocked()
	best.UpdatedBy = s.nodeID
	s.jobs[best.ID] = *best

	h.ActiveLeases++
	h.Version = s.nextVersionLocked()
	h.UpdatedBy = s.nodeID
	s.hosts[hostID] = h

	if err := s.durable.PutJob(*best); err != nil {
		return nil, errInternal("persisting job: %v", err)
	}
	if err := s.durable.PutHost(h); err != nil {
		return nil, errInternal("persisting host: %v", err)
	}

	out := cloneJob(*best)
	return &out, nil
}

// CompleteParams carries the fields reported by a host on job completion.
type CompleteParams struct {
	HostID     string
	Success    bool
	DurationMs int64
	ExitCode   int
	Stdout     string
	Stderr     string
	Error      string
}

// CompleteJob transitions a leased job to completed or failed. Only the
// currently assigned host may complete it.
func (s *State) CompleteJob(jobID string, p CompleteParams) (Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.hosts[p.HostID]; !ok {
		return Job{}, errInternal("unknown host %q", p.HostID)
	}
	j, ok := s.jobs[jobID]
	if !ok {
		return Job{}, errInternal("unknown job %q", jobID)
	}
	if j.Status != JobLeased {
		return Job{}, errInternal("job %q is not leased", jobID)
	}
	if j.AssignedHostID != p.HostID {
		return Job{}, errInternal("job is assigned to %s", j.AssignedHostID)
	}

	now := s.now()
	if p.Success {
		j.Status = JobCompleted
		j.Result = &Result{
			FinishedAt: now,
			DurationMs: p.DurationMs,
			ExitCode:   p.ExitCode,
			Stdout:     p.Stdout,
			Stderr:     p.Stderr,
		}
		j.Error = ""
	} else {
		j.Status = JobFailed
		j.Error = p.Error
		j.Result = &Result{
			FinishedAt: now,
			DurationMs: p.DurationMs,
			ExitCode:   p.ExitCode,
			Stdout:     p.Stdout,
			Stderr:     p.Stderr,
		}
	}
	j.LeaseExpiresAt = nil
	j.Version = s.nextVersionLocked()
	j.UpdatedBy = s.nodeID
	s.jobs[jobID] = j

	h := s.hosts[p.HostID]
	if h.ActiveLeases > 0 {
		h.ActiveLeases--
	}
	h.Version = s.nextVersionLocked()
	h.UpdatedBy = s.nodeID
	s.hosts[p.HostID] = h

	if err := s.durable.PutJob(j); err != nil {
		return Job{}, errInternal("persisting job: %v", err)
	}
	if err := s.durable.PutHost(h); err != nil {
		return Job{}, errInternal("persisting host: %v", err)
	}
	return j, nil
}

// RequeueExpiredLeases returns every job whose lease has expired to queued,
// decrementing the previously assigned host's activeLeases. Returns the
// count of jobs requeued. Attempts are preserved (the next claim increments
// again).
func (s *State) RequeueExpiredLeases() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	count := 0
	for id, j := range s.jobs {
		if j.Status != JobLeased || j.LeaseExpiresAt == nil || j.LeaseExpiresAt.After(now) {
			continue
		}
		hostID := j.AssignedHostID
		j.Status = JobQueued
		j.AssignedHostID = ""
		j.LeaseExpiresAt = nil
		j.Version = s.nextVersionLocked()
		j.UpdatedBy = s.nodeID
		s.jobs[id] = j
		if err := s.durable.PutJob(j); err != nil {
			return count, errInternal("persisting job: %v", err)
		}

		if h, ok := s.hosts[hostID]; ok {
			if h.ActiveLeases > 0 {
				h.ActiveLeases--
			}
			h.Version = s.nextVersionLocked()
			h.UpdatedBy = s.nodeID
			s.hosts[hostID] = h
			if err := s.durable.PutHost(h); err != nil {
				return count, errInternal("persisting host: %v", err)
			}
		}
		count++
	}
	return count, nil
}

// --- Services ---

// DeployService creates a new pending service.
func (s *State) DeployService(name, command string, args []string, cwd string, env map[string]string, replicas int, requirement Requirement) (Service, error) {
	if name == "" || command == "" {
		return Service{}, errBadRequest("name and command are required")
	}
	if replicas < 1 {
		replicas = 1
	}
	caps := normalizeCapabilities(requirement.RequiredCapabilities)
	if len(caps) == 0 {
		caps = []string{"service-host"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	svc := Service{
		ID:          "svc_" + uuid.NewString(),
		Name:        name,
		Command:     command,
		Args:        args,
		Cwd:         cwd,
		Env:         env,
		Replicas:    replicas,
		Requirement: Requirement{RequiredCapabilities: caps},
		Status:      ServicePending,
		Assignments: nil,
		CreatedAt:   now,
		UpdatedAt:   now,
		Version:     s.nextVersionLocked(),
		UpdatedBy:   s.nodeID,
	}

	s.services[svc.ID] = svc
	if err := s.durable.PutService(svc); err != nil {
		return Service{}, errInternal("persisting service: %v", err)
	}
	return svc, nil
}

// ListServices returns all services ordered by creation time.
func (s *State) ListServices() []Service {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sortedServices(s.services)
}

// GetService returns a single service by id.
func (s *State) GetService(id string) (Service, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	svc, ok := s.services[id]
	if !ok {
		return Service{}, false
	}
	return cloneService(svc), true
}

// ClaimService scans services by creation order for the first one hostID is
// capability-eligible for, returning its existing non-failed assignment if
// one already exists, or appending a new pending assignment if capacity
// remains. A service on which hostID already has a failed assignment is
// skipped. Returns nil if no service matches.
func (s *State) ClaimService(hostID string) (*Service, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.hosts[hostID]
	if !ok {
		return nil, errInternal("unknown host %q", hostID)
	}

	for _, svc := range sortedServices(s.services) {
		if !isSubset(svc.Requirement.RequiredCapabilities, h.Capabilities) {
			continue
		}

		failedHere := false
		for i := range svc.Assignments {
			if svc.Assignments[i].HostID != hostID {
				continue
			}
			if svc.Assignments[i].Status != AssignmentFailed {
				out := cloneService(svc)
				return &out, nil
			}
			failedHere = true
		}
		if failedHere {
			continue
		}

		active := 0
		for _, a := range svc.Assignments {
			if a.Status != AssignmentFailed {
				active++
			}
		}
		if active >= svc.Replicas {
			continue
		}

		svc.Assignments = append(svc.Assignments, Assignment{
			HostID:    hostID,
			Status:    AssignmentPending,
			UpdatedAt: s.now(),
		})
		svc.Status = deriveServiceStatus(svc.Assignments)
		svc.UpdatedAt = s.now()
		svc.Version = s.nextVersionLocked()
		svc.UpdatedBy = s.nodeID
		s.services[svc.ID] = svc

		if err := s.durable.PutService(svc); err != nil {
			return nil, errInternal("persisting service: %v", err)
		}
		out := cloneService(svc)
		return &out, nil
	}

	return nil, nil
}

// ReportParams carries the fields a host reports about its service
// assignment.
type ReportParams struct {
	HostID   string
	Status   AssignmentStatus
	Endpoint string
	Error    string
}

// ReportService updates the matching assignment's status and recomputes the
// service's derived status.
func (s *State) ReportService(id string, p ReportParams) (Service, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	svc, ok := s.services[id]
	if !ok {
		return Service{}, errInternal("unknown service %q", id)
	}

	idx := -1
	for i := range svc.Assignments {
		if svc.Assignments[i].HostID == p.HostID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return Service{}, errInternal("host %q has no assignment on service %q", p.HostID, id)
	}

	now := s.now()
	a := svc.Assignments[idx]
	wasRunning := a.Status == AssignmentRunning
	a.Status = p.Status
	a.Endpoint = trimEndpoint(p.Endpoint)
	a.Error = p.Error
	a.UpdatedAt = now
	if !wasRunning && p.Status == AssignmentRunning && a.StartedAt == nil {
		started := now
		a.StartedAt = &started
	}
	svc.Assignments[idx] = a

	svc.Status = deriveServiceStatus(svc.Assignments)
	svc.UpdatedAt = now
	svc.Version = s.nextVersionLocked()
	svc.UpdatedBy = s.nodeID
	s.services[id] = svc

	if err := s.durable.PutService(svc); err != nil {
		return Service{}, errInternal("persisting service: %v", err)
	}
	return cloneService(svc), nil
}

func deriveServiceStatus(assignments []Assignment) ServiceStatus {
	hasRunning, hasPending := false, false
	for _, a := range assignments {
		switch a.Status {
		case AssignmentRunning:
			hasRunning = true
		case AssignmentPending:
			hasPending = true
		}
	}
	switch {
	case hasRunning:
		return ServiceRunning
	case hasPending:
		return ServicePending
	default:
		return ServiceFailed
	}
}

// cloneHost, cloneJob, and cloneService copy the slice and pointer fields
// so a snapshot (or any value handed back to a caller) never aliases the
// live maps. Without this, an in-place assignment update would corrupt a
// checkpoint taken before it.
func cloneHost(h Host) Host {
	h.Capabilities = append([]string(nil), h.Capabilities...)
	return h
}

func clonePayload(p Payload) Payload {
	p.Args = append([]string(nil), p.Args...)
	if p.Env != nil {
		env := make(map[string]string, len(p.Env))
		for k, v := range p.Env {
			env[k] = v
		}
		p.Env = env
	}
	return p
}

func cloneJob(j Job) Job {
	j.Payload = clonePayload(j.Payload)
	j.Requirement.RequiredCapabilities = append([]string(nil), j.Requirement.RequiredCapabilities...)
	if j.LeaseExpiresAt != nil {
		t := *j.LeaseExpiresAt
		j.LeaseExpiresAt = &t
	}
	if j.Result != nil {
		r := *j.Result
		j.Result = &r
	}
	return j
}

func cloneService(svc Service) Service {
	svc.Args = append([]string(nil), svc.Args...)
	if svc.Env != nil {
		env := make(map[string]string, len(svc.Env))
		for k, v := range svc.Env {
			env[k] = v
		}
		svc.Env = env
	}
	svc.Requirement.RequiredCapabilities = append([]string(nil), svc.Requirement.RequiredCapabilities...)
	assignments := make([]Assignment, len(svc.Assignments))
	for i, a := range svc.Assignments {
		if a.StartedAt != nil {
			t := *a.StartedAt
			a.StartedAt = &t
		}
		assignments[i] = a
	}
	svc.Assignments = assignments
	return svc
}

func sortedServices(m map[string]Service) []Service {
	out := make([]Service, 0, len(m))
	for _, v := range m {
		out = append(out, cloneService(v))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func sortedJobs(m map[string]Job) []Job {
	out := make([]Job, 0, len(m))
	for _, v := range m {
		out = append(out, cloneJob(v))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func sortedHosts(m map[string]Host) []Host {
	out := make([]Host, 0, len(m))
	for _, v := range m {
		out = append(out, cloneHost(v))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].RegisteredAt.Equal(out[j].RegisteredAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].RegisteredAt.Before(out[j].RegisteredAt)
	})
	return out
}

// --- Snapshot / checkpoint / restore ---

// Snapshot first requeues expired leases, then returns a deep copy of the
// full observable state, ordered.
func (s *State) Snapshot() Snapshot {
	_, _ = s.RequeueExpiredLeases()
	return s.checkpointLocked()
}

// Checkpoint returns a snapshot without requeuing expired leases first,
// intended as a pre-image for rollback.
func (s *State) Checkpoint() Snapshot {
	return s.checkpointLocked()
}

func (s *State) checkpointLocked() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		NodeID:   s.nodeID,
		Hosts:    sortedHosts(s.hosts),
		Jobs:     sortedJobs(s.jobs),
		Services: sortedServices(s.services),
	}
}

// Restore clears all state and repopulates it from snap, recomputing
// nextVersion, and replaces the durable mirror atomically.
func (s *State) Restore(snap Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.durable.ReplaceAll(snap); err != nil {
		return errInternal("replacing durable mirror: %v", err)
	}
	s.adopt(snap)
	return nil
}

// adopt clears and repopulates the in-memory maps from snap. Caller must
// hold s.mu.
func (s *State) adopt(snap Snapshot) {
	s.hosts = make(map[string]Host, len(snap.Hosts))
	s.jobs = make(map[string]Job, len(snap.Jobs))
	s.services = make(map[string]Service, len(snap.Services))

	var maxVersion int64
	for _, h := range snap.Hosts {
		s.hosts[h.ID] = h
		if h.Version > maxVersion {
			maxVersion = h.Version
		}
	}
	for _, j := range snap.Jobs {
		s.jobs[j.ID] = j
		if j.Version > maxVersion {
			maxVersion = j.Version
		}
	}
	for _, svc := range snap.Services {
		s.services[svc.ID] = svc
		if svc.Version > maxVersion {
			maxVersion = svc.Version
		}
	}
	if maxVersion+1 > s.nextVersion {
		s.nextVersion = maxVersion + 1
	} else if s.nextVersion == 0 {
		s.nextVersion = 1
	}
}

// NodeID returns the coordinator's own node id.
func (s *State) NodeID() string { return s.nodeID }
