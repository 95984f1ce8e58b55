package httpserver

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/KairoCuan/skyclaw/internal/idempotency"
	"github.com/KairoCuan/skyclaw/internal/telemetry"
)

const maxMutationBody = 1 << 20 // 1 MiB

// mutationFunc performs a single state mutation given the raw request
// body, returning the HTTP status and JSON-encodable payload to respond
// with on success.
type mutationFunc func(body []byte) (status int, payload any, err error)

// mutationRunner wraps every mutating route with the idempotency-ledger
// protocol. It is shared by all domain handlers so the replay semantics
// are identical across the surface.
type mutationRunner struct {
	ledger *idempotency.Ledger
	logger *slog.Logger
}

// run implements the idempotency protocol around a single mutating route:
// replay a cached response for a reused key, reject a reused key presented
// with a different body, and persist the outcome of a fresh key only after
// it succeeds.
func (m *mutationRunner) run(w http.ResponseWriter, r *http.Request, route string, fn mutationFunc) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxMutationBody))
	if err != nil {
		RespondError(w, http.StatusBadRequest, "bad_request", "request body too large or unreadable")
		return
	}

	key := r.Header.Get("x-idempotency-key")
	if key == "" {
		status, payload, err := fn(body)
		if err != nil {
			RespondCoordinatorError(w, err)
			return
		}
		Respond(w, status, payload)
		return
	}

	hash, err := idempotency.HashRequest(route, body)
	if err != nil {
		RespondError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	status, cached, hit, err := m.ledger.Check(route, key, hash)
	if err == idempotency.ErrKeyReuseConflict {
		telemetry.IdempotencyHitsTotal.WithLabelValues("conflict").Inc()
		RespondError(w, http.StatusConflict, "conflict", "idempotency key reuse conflict")
		return
	}
	if err != nil {
		RespondError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	if hit {
		telemetry.IdempotencyHitsTotal.WithLabelValues("replay").Inc()
		RespondRaw(w, status, cached)
		return
	}
	telemetry.IdempotencyHitsTotal.WithLabelValues("miss").Inc()

	status, payload, err := fn(body)
	if err != nil {
		RespondCoordinatorError(w, err)
		return
	}

	// Serialize exactly as Respond would (2-space indent, trailing newline)
	// so a replay of the stored body is byte-identical to this response.
	responseBody, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		RespondError(w, http.StatusInternalServerError, "internal", fmt.Sprintf("marshalling response: %v", err))
		return
	}
	responseBody = append(responseBody, '\n')
	if err := m.ledger.Save(route, key, hash, status, responseBody); err != nil {
		m.logger.Error("saving idempotency record", "route", route, "key", key, "error", err)
	}

	RespondRaw(w, status, responseBody)
}
