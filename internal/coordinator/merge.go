package coordinator

import "time"

// versioned is the common metadata every entity carries for conflict
// resolution.
type versioned struct {
	version   int64
	updatedAt time.Time
	updatedBy string
}

// shouldAdopt implements the last-writer-wins total order: higher version
// wins; ties break on updatedAt (lexicographic/chronological, higher wins);
// further ties break on updatedBy (lexicographically higher wins).
func shouldAdopt(local, incoming versioned) bool {
	if incoming.version != local.version {
		return incoming.version > local.version
	}
	if !incoming.updatedAt.Equal(local.updatedAt) {
		return incoming.updatedAt.After(local.updatedAt)
	}
	return incoming.updatedBy > local.updatedBy
}

func hostVersioned(h Host) versioned {
	return versioned{version: h.Version, updatedAt: h.LastSeenAt, updatedBy: h.UpdatedBy}
}

func jobVersioned(j Job) versioned {
	// Jobs carry no explicit updatedAt; CreatedAt never changes post-create
	// but is a stable, monotone-enough proxy since ties are resolved by
	// version first and version is globally unique per mutation.
	return versioned{version: j.Version, updatedAt: j.CreatedAt, updatedBy: j.UpdatedBy}
}

func serviceVersioned(svc Service) versioned {
	return versioned{version: svc.Version, updatedAt: svc.UpdatedAt, updatedBy: svc.UpdatedBy}
}

// MergeResult reports whether a mergeSnapshot call changed local state.
type MergeResult struct {
	Changed bool
}

// MergeSnapshot adopts each incoming host/job/service when there is no
// local copy, or when shouldAdopt says the incoming copy should win. Bumps
// nextVersion to stay ahead of every adopted version.
func (s *State) MergeSnapshot(incoming Snapshot) (MergeResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	changed := false
	var maxAdopted int64

	for _, h := range incoming.Hosts {
		local, ok := s.hosts[h.ID]
		if !ok || shouldAdopt(hostVersioned(local), hostVersioned(h)) {
			s.hosts[h.ID] = h
			changed = true
			if err := s.durable.PutHost(h); err != nil {
				return MergeResult{}, errInternal("persisting merged host: %v", err)
			}
			if h.Version > maxAdopted {
				maxAdopted = h.Version
			}
		}
	}
	for _, j := range incoming.Jobs {
		local, ok := s.jobs[j.ID]
		if !ok || shouldAdopt(jobVersioned(local), jobVersioned(j)) {
			s.jobs[j.ID] = j
			changed = true
			if err := s.durable.PutJob(j); err != nil {
				return MergeResult{}, errInternal("persisting merged job: %v", err)
			}
			if j.Version > maxAdopted {
				maxAdopted = j.Version
			}
		}
	}
	for _, svc := range incoming.Services {
		local, ok := s.services[svc.ID]
		if !ok || shouldAdopt(serviceVersioned(local), serviceVersioned(svc)) {
			s.services[svc.ID] = svc
			changed = true
			if err := s.durable.PutService(svc); err != nil {
				return MergeResult{}, errInternal("persisting merged service: %v", err)
			}
			if svc.Version > maxAdopted {
				maxAdopted = svc.Version
			}
		}
	}

	if maxAdopted+1 > s.nextVersion {
		s.nextVersion = maxAdopted + 1
	}

	return MergeResult{Changed: changed}, nil
}
