package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/KairoCuan/skyclaw/internal/apikeys"
	"github.com/KairoCuan/skyclaw/internal/coordinator"
	"github.com/KairoCuan/skyclaw/internal/replication"
	"github.com/KairoCuan/skyclaw/internal/telemetry"
)

// publicHandler provides the API-key-gated public job submission surface.
type publicHandler struct {
	state      *coordinator.State
	quorum     *replication.Quorum
	keys       *apikeys.Set
	corsOrigin string
	mut        *mutationRunner
}

// Routes returns a chi.Router with the public job routes mounted, wrapped
// in the CORS and API-key middleware that apply only to this surface.
func (h *publicHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(PublicCORS(h.corsOrigin))
	r.Use(RequirePublicKey(h.keys))
	r.Post("/jobs", h.handleSubmit)
	r.Get("/jobs/{id}", h.handleGet)
	return r
}

// publicJobView is the job shape returned on the public surface: submittedBy
// is elided since it encodes the caller's own key label, an implementation
// detail the submitter already knows.
type publicJobView struct {
	ID             string                  `json:"id"`
	CreatedAt      string                  `json:"createdAt"`
	Status         coordinator.JobStatus   `json:"status"`
	Attempts       int                     `json:"attempts"`
	AssignedHostID string                  `json:"assignedHostId,omitempty"`
	Payload        coordinator.Payload     `json:"payload"`
	Requirement    coordinator.Requirement `json:"requirement"`
	Result         *coordinator.Result     `json:"result,omitempty"`
	Error          string                  `json:"error,omitempty"`
}

func toPublicJobView(j coordinator.Job) publicJobView {
	return publicJobView{
		ID:             j.ID,
		CreatedAt:      j.CreatedAt.Format("2006-01-02T15:04:05.000Z07:00"),
		Status:         j.Status,
		Attempts:       j.Attempts,
		AssignedHostID: j.AssignedHostID,
		Payload:        j.Payload,
		Requirement:    j.Requirement,
		Result:         j.Result,
		Error:          j.Error,
	}
}

func (h *publicHandler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	key, _ := PublicKeyFromContext(r.Context())

	h.mut.run(w, r, "/v1/public/jobs", func(body []byte) (int, any, error) {
		var req struct {
			Payload     coordinator.Payload     `json:"payload" validate:"required"`
			Requirement coordinator.Requirement `json:"requirement"`
		}
		if err := DecodeBody(body, &req); err != nil {
			return 0, nil, coordinator.BadRequestErr("invalid job body: %v", err)
		}

		if req.Payload.Kind == coordinator.PayloadShell && !key.AllowShell {
			return 0, nil, coordinator.ForbiddenErr("shell payloads are not permitted for this key")
		}
		if !key.AllowsCapabilities(req.Requirement.RequiredCapabilities) {
			return 0, nil, coordinator.ForbiddenErr("requiredCapabilities exceed what this key allows")
		}

		submittedBy := "public:" + publicLabel(key)

		job, err := replication.Do(r.Context(), h.quorum, func() (coordinator.Job, error) {
			return h.state.EnqueueJob(req.Payload, req.Requirement, submittedBy)
		})
		if err != nil {
			return 0, nil, err
		}
		telemetry.JobsEnqueuedTotal.Inc()
		return http.StatusOK, map[string]any{"job": toPublicJobView(job)}, nil
	})
}

func (h *publicHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	key, _ := PublicKeyFromContext(r.Context())
	id := chi.URLParam(r, "id")

	snap := h.state.Snapshot()
	submittedBy := "public:" + publicLabel(key)

	for _, j := range snap.Jobs {
		if j.ID != id {
			continue
		}
		if j.SubmittedBy != submittedBy {
			break
		}
		Respond(w, http.StatusOK, map[string]any{"job": toPublicJobView(j)})
		return
	}

	RespondError(w, http.StatusNotFound, "not_found", "unknown job")
}

func publicLabel(k apikeys.Key) string {
	if k.Label != "" {
		return k.Label
	}
	return k.Key
}
