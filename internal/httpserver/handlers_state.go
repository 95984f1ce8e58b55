package httpserver

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/KairoCuan/skyclaw/internal/coordinator"
	"github.com/KairoCuan/skyclaw/internal/replication"
)

// networkHandler provides the cluster-facing surface: health, full-state
// reads, peer-pushed snapshot merges, and the gossip peer list/join routes.
type networkHandler struct {
	state  *coordinator.State
	quorum *replication.Quorum
	peers  *replication.PeerSet
	mut    *mutationRunner
}

// Routes returns a chi.Router with the peer-membership routes mounted.
// Health, state, and replicate don't share the /v1/network prefix and are
// registered on the parent router directly.
func (h *networkHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/peers", h.handlePeers)
	r.Post("/join", h.handleJoin)
	return r
}

func (h *networkHandler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	Respond(w, http.StatusOK, map[string]any{"ok": true, "nodeId": h.state.NodeID()})
}

func (h *networkHandler) handleState(w http.ResponseWriter, _ *http.Request) {
	Respond(w, http.StatusOK, h.state.Snapshot())
}

func (h *networkHandler) handleReplicateSnapshot(w http.ResponseWriter, r *http.Request) {
	h.mut.run(w, r, "/v1/replicate/snapshot", func(body []byte) (int, any, error) {
		var snap coordinator.Snapshot
		if err := json.Unmarshal(body, &snap); err != nil {
			return 0, nil, coordinator.BadRequestErr("invalid snapshot body: %v", err)
		}
		result, err := h.quorum.MergeSnapshot(snap)
		if err != nil {
			return 0, nil, err
		}
		return http.StatusOK, map[string]any{
			"ok":      true,
			"changed": result.Changed,
			"nodeId":  h.state.NodeID(),
		}, nil
	})
}

func (h *networkHandler) handlePeers(w http.ResponseWriter, _ *http.Request) {
	Respond(w, http.StatusOK, map[string]any{
		"nodeId": h.state.NodeID(),
		"self":   h.peers.Self(),
		"peers":  h.peers.List(),
	})
}

func (h *networkHandler) handleJoin(w http.ResponseWriter, r *http.Request) {
	h.mut.run(w, r, "/v1/network/join", func(body []byte) (int, any, error) {
		var req struct {
			URL string `json:"url" validate:"required"`
		}
		if err := DecodeBody(body, &req); err != nil {
			return 0, nil, coordinator.BadRequestErr("invalid join body: %v", err)
		}
		h.peers.Add(req.URL)
		return http.StatusOK, map[string]any{
			"nodeId": h.state.NodeID(),
			"self":   h.peers.Self(),
			"peers":  h.peers.List(),
		}, nil
	})
}
