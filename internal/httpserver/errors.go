package httpserver

import (
	"errors"
	"net/http"

	"github.com/KairoCuan/skyclaw/internal/coordinator"
	"github.com/KairoCuan/skyclaw/internal/replication"
)

// RespondCoordinatorError maps a coordinator/replication error to the
// appropriate HTTP status and writes it. Replication shortfalls are 503
// (the caller should retry or wait for peer discovery); state errors like
// an unknown host or a bad status transition surface as 500.
func RespondCoordinatorError(w http.ResponseWriter, err error) {
	var cerr *coordinator.Error
	if errors.As(err, &cerr) {
		switch cerr.Kind {
		case coordinator.KindBadRequest:
			RespondError(w, http.StatusBadRequest, "bad_request", cerr.Message)
		case coordinator.KindForbidden:
			RespondError(w, http.StatusForbidden, "forbidden", cerr.Message)
		default:
			RespondError(w, http.StatusInternalServerError, "internal", cerr.Message)
		}
		return
	}

	var insufficient replication.ErrInsufficientPeers
	if errors.As(err, &insufficient) {
		RespondError(w, http.StatusServiceUnavailable, "insufficient_peers", insufficient.Error())
		return
	}

	var quorumFailed replication.ErrQuorumFailed
	if errors.As(err, &quorumFailed) {
		RespondError(w, http.StatusServiceUnavailable, "replication_target_not_met", quorumFailed.Error())
		return
	}

	RespondError(w, http.StatusInternalServerError, "internal", err.Error())
}
