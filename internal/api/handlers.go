// Package api serves operations and state over JSON/HTTP.
package api

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/access_mon/internal/daemon"
	"github.com/eliteGoblin/focusd/access_mon/internal/domain"
	"github.com/eliteGoblin/focusd/access_mon/internal/policy"
	"github.com/eliteGoblin/focusd/access_mon/internal/usecase"
)

// maxRequestBytes bounds operation arguments.
const maxRequestBytes = 1 << 20

// Service is the part of usecase.Service the transport needs.
type Service interface {
	Execute(ctx context.Context, op policy.Operation) domain.Result
	Users() []usecase.UserView
	User(id string) (usecase.UserView, bool)
	Enforcers() []usecase.EnforcerView
	Enforcer(id string) (usecase.EnforcerView, bool)
}

// OperationResponse is the body returned for every executed operation.
type OperationResponse struct {
	Kind      string         `json:"kind"`
	Outcome   domain.Outcome `json:"outcome"`
	CreatedID string         `json:"created_id,omitempty"`
}

// HealthResponse is the body of GET /api/health.
type HealthResponse struct {
	Status    string        `json:"status"`
	Timestamp string        `json:"timestamp"`
	Daemon    daemon.Status `json:"daemon"`
}

// Handler serves the HTTP API.
type Handler struct {
	service  Service
	registry *policy.Registry
	status   *daemon.StatusHandle
	logger   *zap.Logger
}

// NewHandler creates the API handler.
func NewHandler(service Service, registry *policy.Registry, status *daemon.StatusHandle, logger *zap.Logger) *Handler {
	return &Handler{service: service, registry: registry, status: status, logger: logger}
}

// ListOperations handles GET /api/operations
func (h *Handler) ListOperations(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string][]string{"kinds": h.registry.List()})
}

// ExecuteOperation handles POST /api/operations/{kind}
func (h *Handler) ExecuteOperation(w http.ResponseWriter, r *http.Request) {
	kind := mux.Vars(r)["kind"]

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	if err != nil {
		WriteError(w, http.StatusRequestEntityTooLarge, err.Error())
		return
	}

	op, err := h.registry.Decode(kind, body)
	if err != nil {
		if errors.Is(err, policy.ErrUnknownKind) {
			WriteError(w, http.StatusNotFound, err.Error())
			return
		}
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	res := h.service.Execute(r.Context(), op)
	h.logger.Info("operation executed",
		zap.String("kind", kind),
		zap.String("outcome", string(res.Outcome)))

	WriteJSON(w, statusForOutcome(res.Outcome), OperationResponse{
		Kind:      kind,
		Outcome:   res.Outcome,
		CreatedID: res.CreatedID,
	})
}

// statusForOutcome maps domain outcomes onto HTTP status codes. The body
// always carries the exact outcome.
func statusForOutcome(o domain.Outcome) int {
	switch o {
	case domain.OutcomeSuccess:
		return http.StatusOK
	case domain.OutcomeNoSuchUser, domain.OutcomeNoSuchPolicy,
		domain.OutcomeNoSuchRule, domain.OutcomeNoSuchEnforcer:
		return http.StatusNotFound
	case domain.OutcomeTooManyAttempts:
		return http.StatusTooManyRequests
	case domain.OutcomeWrongPassword:
		return http.StatusForbidden
	case domain.OutcomeInternalError:
		return http.StatusInternalServerError
	default:
		return http.StatusUnprocessableEntity
	}
}

// ListUsers handles GET /api/users
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, h.service.Users())
}

// GetUser handles GET /api/users/{id}
func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	user, ok := h.service.User(id)
	if !ok {
		WriteError(w, http.StatusNotFound, "no such user: "+id)
		return
	}
	WriteJSON(w, http.StatusOK, user)
}

// ListEnforcers handles GET /api/enforcers
func (h *Handler) ListEnforcers(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, h.service.Enforcers())
}

// GetEnforcer handles GET /api/enforcers/{id}
func (h *Handler) GetEnforcer(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	enforcer, ok := h.service.Enforcer(id)
	if !ok {
		WriteError(w, http.StatusNotFound, "no such enforcer: "+id)
		return
	}
	WriteJSON(w, http.StatusOK, enforcer)
}

// CheckHealth handles GET /api/health
// Reports unhealthy once the heartbeat is older than staleAfter.
func (h *Handler) CheckHealth(w http.ResponseWriter, r *http.Request) {
	snap := h.status.Snapshot()
	status := "healthy"
	if snap.LastHeartbeat.IsZero() || time.Since(snap.LastHeartbeat) > staleAfter {
		status = "unhealthy"
	}
	WriteJSON(w, http.StatusOK, HealthResponse{
		Status:    status,
		Timestamp: time.Now().Format(time.RFC3339),
		Daemon:    snap,
	})
}

// Three missed heartbeats at the default interval.
const staleAfter = 90 * time.Second
