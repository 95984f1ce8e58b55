package coordinator

import (
	"testing"
	"time"
)

func TestRegisterAndClaim(t *testing.T) {
	s := New("node-a", time.Minute)

	h, err := s.RegisterHost("", "openclaw-a", []string{"shell", "openclaw"}, 2)
	if err != nil {
		t.Fatalf("RegisterHost: %v", err)
	}

	j, err := s.EnqueueJob(Payload{Kind: PayloadOpenclawRun, Args: []string{"run"}}, Requirement{RequiredCapabilities: []string{"openclaw"}}, "")
	if err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}

	claimed, err := s.ClaimJob(h.ID)
	if err != nil {
		t.Fatalf("ClaimJob: %v", err)
	}
	if claimed == nil {
		t.Fatal("expected a claimed job, got nil")
	}
	if claimed.ID != j.ID {
		t.Fatalf("claimed job id = %q, want %q", claimed.ID, j.ID)
	}
	if claimed.Status != JobLeased {
		t.Fatalf("status = %q, want leased", claimed.Status)
	}
	if claimed.AssignedHostID != h.ID {
		t.Fatalf("assignedHostId = %q, want %q", claimed.AssignedHostID, h.ID)
	}
}

func TestLeaseExpiryRequeues(t *testing.T) {
	cur := time.Now()
	clock := func() time.Time { return cur }
	s := New("node-a", 10*time.Millisecond, WithClock(clock))

	h, _ := s.RegisterHost("", "host-a", []string{"shell"}, 1)
	_, _ = s.EnqueueJob(Payload{Kind: PayloadShell, Command: "true"}, Requirement{}, "")

	first, err := s.ClaimJob(h.ID)
	if err != nil || first == nil {
		t.Fatalf("first claim failed: %v", err)
	}
	if first.Attempts != 1 {
		t.Fatalf("attempts = %d, want 1", first.Attempts)
	}

	cur = cur.Add(20 * time.Millisecond)
	n, err := s.RequeueExpiredLeases()
	if err != nil {
		t.Fatalf("RequeueExpiredLeases: %v", err)
	}
	if n != 1 {
		t.Fatalf("requeued = %d, want 1", n)
	}

	second, err := s.ClaimJob(h.ID)
	if err != nil || second == nil {
		t.Fatalf("second claim failed: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("re-claimed job id = %q, want %q", second.ID, first.ID)
	}
	if second.Attempts != 2 {
		t.Fatalf("attempts = %d, want 2", second.Attempts)
	}
}

func TestCompleteJob(t *testing.T) {
	s := New("node-a", time.Minute)
	h, _ := s.RegisterHost("", "host-a", []string{"shell"}, 1)
	j, _ := s.EnqueueJob(Payload{Kind: PayloadShell, Command: "true"}, Requirement{}, "")

	claimed, _ := s.ClaimJob(h.ID)
	if claimed == nil {
		t.Fatal("expected claim")
	}

	done, err := s.CompleteJob(j.ID, CompleteParams{
		HostID: h.ID, Success: true, DurationMs: 42, ExitCode: 0, Stdout: "ok\n",
	})
	if err != nil {
		t.Fatalf("CompleteJob: %v", err)
	}
	if done.Status != JobCompleted {
		t.Fatalf("status = %q, want completed", done.Status)
	}
	if done.Result == nil || done.Result.Stdout != "ok\n" {
		t.Fatalf("result = %+v", done.Result)
	}

	snap := s.Snapshot()
	for _, hh := range snap.Hosts {
		if hh.ID == h.ID && hh.ActiveLeases != 0 {
			t.Fatalf("activeLeases = %d, want 0", hh.ActiveLeases)
		}
	}
}

func TestCompleteJobRejectsWrongHost(t *testing.T) {
	s := New("node-a", time.Minute)
	h1, _ := s.RegisterHost("", "host-1", []string{"shell"}, 1)
	_, _ = s.RegisterHost("host-2", "host-2", []string{"shell"}, 1)
	j, _ := s.EnqueueJob(Payload{Kind: PayloadShell, Command: "true"}, Requirement{}, "")
	_, _ = s.ClaimJob(h1.ID)

	if _, err := s.CompleteJob(j.ID, CompleteParams{HostID: "host-2", Success: true}); err == nil {
		t.Fatal("expected error completing a job assigned to a different host")
	}
}

func TestCheckpointRollback(t *testing.T) {
	s := New("node-a", time.Minute)
	checkpoint := s.Checkpoint()

	_, _ = s.RegisterHost("", "host-a", []string{"shell"}, 1)
	_, _ = s.EnqueueJob(Payload{Kind: PayloadShell, Command: "true"}, Requirement{}, "")

	if err := s.Restore(checkpoint); err != nil {
		t.Fatalf("Restore: %v", err)
	}

	snap := s.Snapshot()
	if len(snap.Hosts) != 0 || len(snap.Jobs) != 0 {
		t.Fatalf("expected empty state after rollback, got %d hosts %d jobs", len(snap.Hosts), len(snap.Jobs))
	}
}

func TestMergeSnapshotIsIdempotent(t *testing.T) {
	a := New("node-a", time.Minute)
	_, _ = a.RegisterHost("", "host-a", []string{"shell"}, 1)
	_, _ = a.EnqueueJob(Payload{Kind: PayloadShell, Command: "true"}, Requirement{}, "")
	snapA := a.Snapshot()

	b := New("node-b", time.Minute)
	res, err := b.MergeSnapshot(snapA)
	if err != nil {
		t.Fatalf("MergeSnapshot: %v", err)
	}
	if !res.Changed {
		t.Fatal("expected first merge to report changed=true")
	}

	bSnap := b.Snapshot()
	if len(bSnap.Hosts) != 1 || len(bSnap.Jobs) != 1 {
		t.Fatalf("b snapshot after merge = %+v", bSnap)
	}

	res2, err := b.MergeSnapshot(snapA)
	if err != nil {
		t.Fatalf("second MergeSnapshot: %v", err)
	}
	if res2.Changed {
		t.Fatal("expected second merge to report changed=false")
	}
}

func TestServiceClaimAndReport(t *testing.T) {
	s := New("node-a", time.Minute)
	h, _ := s.RegisterHost("", "host-a", []string{"service-host"}, 2)

	svc, err := s.DeployService("web", "serve", nil, "", nil, 1, Requirement{})
	if err != nil {
		t.Fatalf("DeployService: %v", err)
	}

	claimed, err := s.ClaimService(h.ID)
	if err != nil || claimed == nil {
		t.Fatalf("ClaimService: %v, %v", claimed, err)
	}
	if claimed.ID != svc.ID {
		t.Fatalf("claimed service id = %q, want %q", claimed.ID, svc.ID)
	}
	if len(claimed.Assignments) != 1 || claimed.Assignments[0].HostID != h.ID {
		t.Fatalf("assignments = %+v", claimed.Assignments)
	}

	again, err := s.ClaimService(h.ID)
	if err != nil || again == nil {
		t.Fatalf("second ClaimService: %v, %v", again, err)
	}
	if len(again.Assignments) != 1 {
		t.Fatalf("claiming an already-assigned host should not add a second assignment: %+v", again.Assignments)
	}

	reported, err := s.ReportService(svc.ID, ReportParams{HostID: h.ID, Status: AssignmentRunning, Endpoint: "http://127.0.0.1:9000/"})
	if err != nil {
		t.Fatalf("ReportService: %v", err)
	}
	if reported.Status != ServiceRunning {
		t.Fatalf("service status = %q, want running", reported.Status)
	}
	if reported.Assignments[0].Endpoint != "http://127.0.0.1:9000" {
		t.Fatalf("endpoint = %q, want trailing slash trimmed", reported.Assignments[0].Endpoint)
	}
}

func TestVersionsAreMonotone(t *testing.T) {
	s := New("node-a", time.Minute)
	h, _ := s.RegisterHost("", "host-a", []string{"shell"}, 1)
	j1, _ := s.EnqueueJob(Payload{Kind: PayloadShell, Command: "true"}, Requirement{}, "")
	j2, _ := s.EnqueueJob(Payload{Kind: PayloadShell, Command: "true"}, Requirement{}, "")

	if !(h.Version < j1.Version && j1.Version < j2.Version) {
		t.Fatalf("expected strictly increasing versions, got %d, %d, %d", h.Version, j1.Version, j2.Version)
	}
}
