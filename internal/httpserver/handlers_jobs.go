package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/KairoCuan/skyclaw/internal/coordinator"
	"github.com/KairoCuan/skyclaw/internal/replication"
	"github.com/KairoCuan/skyclaw/internal/telemetry"
)

// jobsHandler provides the job submission and completion routes.
type jobsHandler struct {
	state  *coordinator.State
	quorum *replication.Quorum
	mut    *mutationRunner
}

// Routes returns a chi.Router with all job routes mounted.
func (h *jobsHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.handleEnqueue)
	r.Post("/{id}/complete", h.handleComplete)
	return r
}

func (h *jobsHandler) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	h.mut.run(w, r, "/v1/jobs", func(body []byte) (int, any, error) {
		var req struct {
			Payload     coordinator.Payload     `json:"payload" validate:"required"`
			Requirement coordinator.Requirement `json:"requirement"`
			SubmittedBy string                  `json:"submittedBy"`
		}
		if err := DecodeBody(body, &req); err != nil {
			return 0, nil, coordinator.BadRequestErr("invalid job body: %v", err)
		}

		job, err := replication.Do(r.Context(), h.quorum, func() (coordinator.Job, error) {
			return h.state.EnqueueJob(req.Payload, req.Requirement, req.SubmittedBy)
		})
		if err != nil {
			return 0, nil, err
		}
		telemetry.JobsEnqueuedTotal.Inc()
		return http.StatusOK, map[string]any{"job": job}, nil
	})
}

func (h *jobsHandler) handleComplete(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "id")
	h.mut.run(w, r, "/v1/jobs/"+jobID+"/complete", func(body []byte) (int, any, error) {
		var req struct {
			HostID     string `json:"hostId" validate:"required"`
			Success    bool   `json:"success"`
			DurationMs int64  `json:"durationMs"`
			ExitCode   int    `json:"exitCode"`
			Stdout     string `json:"stdout"`
			Stderr     string `json:"stderr"`
			Error      string `json:"error"`
		}
		if err := DecodeBody(body, &req); err != nil {
			return 0, nil, coordinator.BadRequestErr("invalid complete body: %v", err)
		}

		job, err := replication.Do(r.Context(), h.quorum, func() (coordinator.Job, error) {
			return h.state.CompleteJob(jobID, coordinator.CompleteParams{
				HostID:     req.HostID,
				Success:    req.Success,
				DurationMs: req.DurationMs,
				ExitCode:   req.ExitCode,
				Stdout:     req.Stdout,
				Stderr:     req.Stderr,
				Error:      req.Error,
			})
		})
		if err != nil {
			return 0, nil, err
		}

		outcome := "completed"
		if !req.Success {
			outcome = "failed"
		}
		telemetry.JobsCompletedTotal.WithLabelValues(outcome).Inc()

		return http.StatusOK, map[string]any{"job": job}, nil
	})
}
