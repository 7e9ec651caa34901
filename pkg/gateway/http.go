package gateway

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"tipbot/pkg/bus"
)

type transaction struct {
	Events []json.RawMessage `json:"events"`
}

type matrixError struct {
	ErrCode string `json:"errcode"`
	Error   string `json:"error"`
}

// routes serves the health and status endpoints and the Matrix application-service endpoints.
func (s *Service) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)

	r.Route("/_matrix", func(r chi.Router) {
		r.Get("/mau/live", s.handleHealth)
		r.Get("/mau/ready", s.handleReady)

		r.Group(func(r chi.Router) {
			r.Use(s.requireHSToken)
			r.Put("/app/v1/transactions/{txnID}", s.handleTransaction)
		})
	})

	return r
}

func (s *Service) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.respondStatus(w, http.StatusOK, "ok")
}

func (s *Service) handleReady(w http.ResponseWriter, _ *http.Request) {
	statusCode := http.StatusOK
	status := "ready"
	if !s.isReady() {
		statusCode = http.StatusServiceUnavailable
		status = "not_ready"
	}

	s.respondStatus(w, statusCode, status)
}

func (s *Service) respondStatus(w http.ResponseWriter, statusCode int, status string) {
	s.writeJSON(w, statusCode, s.currentStatus(status))
}

// handleTransaction acknowledges a pushed transaction. A transaction id seen
// before is acknowledged again without being processed twice; the id is only
// claimed once the body decodes.
func (s *Service) handleTransaction(w http.ResponseWriter, r *http.Request) {
	txnID := chi.URLParam(r, "txnID")

	if s.deps.Transactions.IsProcessed(txnID) {
		s.log.Debug("Transaction already processed", "txn_id", txnID)
		s.writeJSON(w, http.StatusOK, struct{}{})
		return
	}

	var body transaction
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&body); err != nil {
		s.writeJSON(w, http.StatusBadRequest, matrixError{ErrCode: "M_NOT_JSON", Error: "invalid transaction body"})
		return
	}

	if !s.deps.Transactions.MarkProcessed(txnID) {
		s.log.Debug("Transaction processed concurrently", "txn_id", txnID)
		s.writeJSON(w, http.StatusOK, struct{}{})
		return
	}

	s.deps.Bus.PublishEvent(r.Context(), bus.Event{
		Type:    bus.EventTransaction,
		Payload: map[string]string{"txn_id": txnID, "events": strconv.Itoa(len(body.Events))},
	})
	s.log.Info("Received transaction", "txn_id", txnID, "events", len(body.Events))

	s.writeJSON(w, http.StatusOK, struct{}{})
}

// requireHSToken checks the homeserver token from the Authorization header
// or the legacy access_token query parameter.
func (s *Service) requireHSToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		expected := strings.TrimSpace(s.cfg.Gateway.HSToken)
		if expected == "" {
			s.writeJSON(w, http.StatusNotFound, matrixError{ErrCode: "M_UNRECOGNIZED", Error: "application service is not configured"})
			return
		}

		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if token == "" || token == r.Header.Get("Authorization") {
			token = r.URL.Query().Get("access_token")
		}
		if token == "" {
			s.writeJSON(w, http.StatusUnauthorized, matrixError{ErrCode: "M_UNAUTHORIZED", Error: "missing token"})
			return
		}
		if subtle.ConstantTimeCompare([]byte(token), []byte(expected)) != 1 {
			s.writeJSON(w, http.StatusForbidden, matrixError{ErrCode: "M_FORBIDDEN", Error: "invalid token"})
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Service) writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log.Error("Failed to write response", "error", err)
	}
}
