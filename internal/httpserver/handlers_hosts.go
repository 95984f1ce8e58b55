package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/KairoCuan/skyclaw/internal/coordinator"
	"github.com/KairoCuan/skyclaw/internal/replication"
	"github.com/KairoCuan/skyclaw/internal/telemetry"
)

// hostsHandler provides the host-facing routes: registration, heartbeat,
// and the job/service claim polls.
type hostsHandler struct {
	state  *coordinator.State
	quorum *replication.Quorum
	mut    *mutationRunner
}

// Routes returns a chi.Router with all host routes mounted.
func (h *hostsHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/register", h.handleRegister)
	r.Route("/{id}", func(r chi.Router) {
		r.Post("/heartbeat", h.handleHeartbeat)
		r.Post("/claim", h.handleClaim)
		r.Post("/services/claim", h.handleClaimService)
	})
	return r
}

func (h *hostsHandler) handleRegister(w http.ResponseWriter, r *http.Request) {
	h.mut.run(w, r, "/v1/hosts/register", func(body []byte) (int, any, error) {
		var req struct {
			HostID       string   `json:"hostId"`
			Name         string   `json:"name" validate:"required"`
			Capabilities []string `json:"capabilities"`
			MaxParallel  int      `json:"maxParallel" validate:"gte=0"`
		}
		if err := DecodeBody(body, &req); err != nil {
			return 0, nil, coordinator.BadRequestErr("invalid register body: %v", err)
		}

		host, err := replication.Do(r.Context(), h.quorum, func() (coordinator.Host, error) {
			return h.state.RegisterHost(req.HostID, req.Name, req.Capabilities, req.MaxParallel)
		})
		if err != nil {
			return 0, nil, err
		}
		telemetry.HostsRegisteredTotal.Inc()
		return http.StatusOK, map[string]any{"host": host}, nil
	})
}

func (h *hostsHandler) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	hostID := chi.URLParam(r, "id")
	h.mut.run(w, r, "/v1/hosts/"+hostID+"/heartbeat", func(body []byte) (int, any, error) {
		var req struct {
			ActiveLeases *int `json:"activeLeases"`
		}
		if err := DecodeBody(body, &req); err != nil {
			return 0, nil, coordinator.BadRequestErr("invalid heartbeat body: %v", err)
		}

		host, err := replication.Do(r.Context(), h.quorum, func() (coordinator.Host, error) {
			return h.state.Heartbeat(hostID, req.ActiveLeases)
		})
		if err != nil {
			return 0, nil, err
		}
		return http.StatusOK, map[string]any{"host": host}, nil
	})
}

func (h *hostsHandler) handleClaim(w http.ResponseWriter, r *http.Request) {
	hostID := chi.URLParam(r, "id")
	h.mut.run(w, r, "/v1/hosts/"+hostID+"/claim", func(_ []byte) (int, any, error) {
		job, err := replication.Do(r.Context(), h.quorum, func() (*coordinator.Job, error) {
			return h.state.ClaimJob(hostID)
		})
		if err != nil {
			return 0, nil, err
		}
		if job != nil {
			telemetry.JobsClaimedTotal.WithLabelValues(hostID).Inc()
		}
		return http.StatusOK, map[string]any{"job": job}, nil
	})
}

func (h *hostsHandler) handleClaimService(w http.ResponseWriter, r *http.Request) {
	hostID := chi.URLParam(r, "id")
	h.mut.run(w, r, "/v1/hosts/"+hostID+"/services/claim", func(_ []byte) (int, any, error) {
		svc, err := replication.Do(r.Context(), h.quorum, func() (*coordinator.Service, error) {
			return h.state.ClaimService(hostID)
		})
		if err != nil {
			return 0, nil, err
		}
		return http.StatusOK, map[string]any{"service": svc}, nil
	})
}
