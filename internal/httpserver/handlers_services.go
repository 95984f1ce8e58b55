package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/KairoCuan/skyclaw/internal/coordinator"
	"github.com/KairoCuan/skyclaw/internal/replication"
	"github.com/KairoCuan/skyclaw/internal/telemetry"
)

// servicesHandler provides the service deploy, list, get, and report
// routes.
type servicesHandler struct {
	state  *coordinator.State
	quorum *replication.Quorum
	mut    *mutationRunner
}

// Routes returns a chi.Router with all service routes mounted.
func (h *servicesHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.handleDeploy)
	r.Get("/", h.handleList)
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.handleGet)
		r.Post("/report", h.handleReport)
	})
	return r
}

func (h *servicesHandler) handleDeploy(w http.ResponseWriter, r *http.Request) {
	h.mut.run(w, r, "/v1/services", func(body []byte) (int, any, error) {
		var req struct {
			Name                 string            `json:"name" validate:"required"`
			Command              string            `json:"command" validate:"required"`
			Args                 []string          `json:"args"`
			Cwd                  string            `json:"cwd"`
			Env                  map[string]string `json:"env"`
			Replicas             int               `json:"replicas" validate:"gte=0"`
			RequiredCapabilities []string          `json:"requiredCapabilities"`
		}
		if err := DecodeBody(body, &req); err != nil {
			return 0, nil, coordinator.BadRequestErr("invalid service body: %v", err)
		}

		svc, err := replication.Do(r.Context(), h.quorum, func() (coordinator.Service, error) {
			return h.state.DeployService(req.Name, req.Command, req.Args, req.Cwd, req.Env, req.Replicas,
				coordinator.Requirement{RequiredCapabilities: req.RequiredCapabilities})
		})
		if err != nil {
			return 0, nil, err
		}
		telemetry.ServicesDeployedTotal.Inc()
		return http.StatusOK, map[string]any{"service": svc}, nil
	})
}

func (h *servicesHandler) handleList(w http.ResponseWriter, _ *http.Request) {
	Respond(w, http.StatusOK, map[string]any{"services": h.state.ListServices()})
}

func (h *servicesHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	svc, ok := h.state.GetService(id)
	if !ok {
		RespondError(w, http.StatusNotFound, "not_found", "unknown service")
		return
	}
	Respond(w, http.StatusOK, map[string]any{"service": svc})
}

func (h *servicesHandler) handleReport(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	h.mut.run(w, r, "/v1/services/"+id+"/report", func(body []byte) (int, any, error) {
		var req struct {
			HostID   string                       `json:"hostId" validate:"required"`
			Status   coordinator.AssignmentStatus `json:"status" validate:"required,oneof=pending running failed"`
			Endpoint string                       `json:"endpoint"`
			Error    string                       `json:"error"`
		}
		if err := DecodeBody(body, &req); err != nil {
			return 0, nil, coordinator.BadRequestErr("invalid report body: %v", err)
		}

		svc, err := replication.Do(r.Context(), h.quorum, func() (coordinator.Service, error) {
			return h.state.ReportService(id, coordinator.ReportParams{
				HostID:   req.HostID,
				Status:   req.Status,
				Endpoint: req.Endpoint,
				Error:    req.Error,
			})
		})
		if err != nil {
			return 0, nil, err
		}
		return http.StatusOK, map[string]any{"service": svc}, nil
	})
}
