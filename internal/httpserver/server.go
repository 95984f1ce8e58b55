package httpserver

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/KairoCuan/skyclaw/internal/apikeys"
	"github.com/KairoCuan/skyclaw/internal/coordinator"
	"github.com/KairoCuan/skyclaw/internal/idempotency"
	"github.com/KairoCuan/skyclaw/internal/replication"
)

// Server holds the coordinator's HTTP router. The route surface is built
// from per-domain handlers, each exposing a Routes() chi.Router that is
// mounted under its path prefix.
type Server struct {
	Router *chi.Mux
	Logger *slog.Logger
}

// NewServer wires the full request router: health, replication, the
// authenticated hosts/jobs/services surface, and the public job-submission
// surface.
func NewServer(
	logger *slog.Logger,
	state *coordinator.State,
	quorum *replication.Quorum,
	peers *replication.PeerSet,
	ledger *idempotency.Ledger,
	publicKeys *apikeys.Set,
	authToken string,
	publicCORSOrigin string,
	metricsReg *prometheus.Registry,
) *Server {
	s := &Server{Router: chi.NewRouter(), Logger: logger}

	mut := &mutationRunner{ledger: ledger, logger: logger}
	hosts := &hostsHandler{state: state, quorum: quorum, mut: mut}
	jobs := &jobsHandler{state: state, quorum: quorum, mut: mut}
	services := &servicesHandler{state: state, quorum: quorum, mut: mut}
	network := &networkHandler{state: state, quorum: quorum, peers: peers, mut: mut}
	public := &publicHandler{state: state, quorum: quorum, keys: publicKeys, corsOrigin: publicCORSOrigin, mut: mut}

	s.Router.Use(RequestID)
	s.Router.Use(Logger(logger))
	s.Router.Use(Metrics)
	s.Router.Use(middleware.Recoverer)

	s.Router.Handle("/metrics", promhttp.HandlerFor(metricsReg, promhttp.HandlerOpts{}))

	s.Router.Group(func(r chi.Router) {
		r.Use(RequireToken(authToken))

		r.Get("/health", network.handleHealth)
		r.Get("/v1/state", network.handleState)
		r.Post("/v1/replicate/snapshot", network.handleReplicateSnapshot)

		// Mount domain handlers.
		r.Mount("/v1/network", network.Routes())
		r.Mount("/v1/hosts", hosts.Routes())
		r.Mount("/v1/jobs", jobs.Routes())
		r.Mount("/v1/services", services.Routes())
	})

	s.Router.Mount("/v1/public", public.Routes())

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Router.ServeHTTP(w, r)
}
