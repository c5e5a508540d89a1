// Package api exposes the registry commands over HTTP.
//
// Every handler turns the request into an AppCommand, hands it to a
// Dispatcher and waits for the correlated result. Domain errors map to
// status codes as follows:
//
//	Create, Update, InvalidRequest  400
//	NotFound                        404
//	Destroy                         410
//	InvalidResponse                 422
//	Terminate                       503
//	no response                     503
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/o008/registry/coreengine/command"
	"github.com/o008/registry/coreengine/request"
)

// Logger interface for the HTTP layer.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Dispatcher sends a command and waits for its result. The bool is false
// when no result arrived.
type Dispatcher interface {
	DispatchAndWait(ctx context.Context, cmd command.DispatchCommand) (command.Result, bool)
}

// HealthChecker reports whether the backing store is reachable.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

const healthTimeout = 2 * time.Second

// Handler routes registry requests.
type Handler struct {
	dispatcher Dispatcher
	health     HealthChecker
	logger     Logger
	mux        *http.ServeMux
}

// NewHandler creates the router. health may be nil.
func NewHandler(d Dispatcher, health HealthChecker, logger Logger) *Handler {
	h := &Handler{
		dispatcher: d,
		health:     health,
		logger:     logger,
		mux:        http.NewServeMux(),
	}
	h.routes()
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *Handler) routes() {
	h.handle("POST /tenant", h.createTenant)
	h.handle("GET /tenant/{tenant}", h.getTenant)

	h.handle("POST /builder", h.createBuilder)
	h.handle("GET /builder/{builder}", h.getBuilder)
	h.handle("DELETE /builder/{builder}", h.deleteBuilder)

	h.handle("POST /tenant/{tenant}/app", h.createApplication)
	h.handle("GET /app/{app}/tenant/{tenant}", h.getApplication)

	h.handle("GET /service/{service}/app/{app}/tenant/{tenant}", h.getService)
	h.handle("GET /service/{service}/app/{app}/tenant/{tenant}/versions", h.getServiceVersions)
	h.handle("PUT /service/{service}/app/{app}/tenant/{tenant}", h.persistService)
	h.handle("PUT /service/{service}/app/{app}/tenant/{tenant}/version/{version}", h.persistServiceVersion)

	h.handle("GET /healthz", h.healthz)
	h.mux.Handle("GET /metrics", promhttp.Handler())
}

func (h *Handler) handle(pattern string, fn http.HandlerFunc) {
	h.mux.Handle(pattern, Chain(fn,
		LoggingMiddleware(h.logger, pattern),
		RecoveryMiddleware(h.logger, pattern),
	))
}

// =============================================================================
// TENANT & BUILDER
// =============================================================================

func (h *Handler) createTenant(w http.ResponseWriter, r *http.Request) {
	var body request.Tenant
	if !h.decode(w, r, &body) {
		return
	}
	h.dispatch(w, r, command.CreateTenant{Request: body}, http.StatusCreated)
}

func (h *Handler) getTenant(w http.ResponseWriter, r *http.Request) {
	req := request.GetTenant(r.PathValue("tenant"))
	h.dispatch(w, r, command.GetTenant{Request: req}, http.StatusOK)
}

func (h *Handler) createBuilder(w http.ResponseWriter, r *http.Request) {
	var body request.Builder
	if !h.decode(w, r, &body) {
		return
	}
	h.dispatch(w, r, command.CreateBuilder{Request: body}, http.StatusCreated)
}

func (h *Handler) getBuilder(w http.ResponseWriter, r *http.Request) {
	req := request.GetBuilder(r.PathValue("builder"))
	h.dispatch(w, r, command.GetBuilder{Request: req}, http.StatusOK)
}

func (h *Handler) deleteBuilder(w http.ResponseWriter, r *http.Request) {
	req := request.GetBuilder(r.PathValue("builder"))
	h.dispatch(w, r, command.DeleteBuilder{Request: req}, http.StatusOK)
}

// =============================================================================
// APPLICATION & SERVICE
// =============================================================================

// createApplication takes the tenant from the path; a tenant in the body is
// ignored.
func (h *Handler) createApplication(w http.ResponseWriter, r *http.Request) {
	var body request.Application
	if !h.decode(w, r, &body) {
		return
	}
	tenant := request.GetTenant(r.PathValue("tenant"))
	body.Tenant = &tenant
	h.dispatch(w, r, command.CreateApplication{Request: body}, http.StatusCreated)
}

func (h *Handler) getApplication(w http.ResponseWriter, r *http.Request) {
	req := request.GetApplication(r.PathValue("app"), r.PathValue("tenant"))
	h.dispatch(w, r, command.GetApplication{Request: req}, http.StatusOK)
}

func (h *Handler) getService(w http.ResponseWriter, r *http.Request) {
	h.dispatch(w, r, command.GetService{Request: serviceFromPath(r)}, http.StatusOK)
}

func (h *Handler) getServiceVersions(w http.ResponseWriter, r *http.Request) {
	h.dispatch(w, r, command.GetServiceVersions{Request: serviceFromPath(r)}, http.StatusOK)
}

func (h *Handler) persistService(w http.ResponseWriter, r *http.Request) {
	var body request.Service
	if !h.decode(w, r, &body) {
		return
	}
	h.dispatch(w, r, command.PersistService{Source: serviceFromPath(r), Request: body}, http.StatusAccepted)
}

func (h *Handler) persistServiceVersion(w http.ResponseWriter, r *http.Request) {
	var body request.ServiceVersion
	if !h.decode(w, r, &body) {
		return
	}
	source := request.GetServiceVersion(
		r.PathValue("version"),
		r.PathValue("service"),
		r.PathValue("app"),
		r.PathValue("tenant"),
	)
	h.dispatch(w, r, command.PersistServiceVersion{Source: source, Request: body}, http.StatusAccepted)
}

func serviceFromPath(r *http.Request) request.Service {
	return request.GetService(r.PathValue("service"), r.PathValue("app"), r.PathValue("tenant"))
}

// =============================================================================
// HEALTH
// =============================================================================

func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	if h.health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()
		if err := h.health.Ping(ctx); err != nil {
			http.Error(w, "store unavailable", http.StatusServiceUnavailable)
			return
		}
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok"))
}

// =============================================================================
// HELPERS
// =============================================================================

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return false
	}
	return true
}

func (h *Handler) dispatch(w http.ResponseWriter, r *http.Request, cmd command.AppCommand, okStatus int) {
	result, ok := h.dispatcher.DispatchAndWait(r.Context(), command.App(cmd))
	if !ok {
		if h.logger != nil {
			h.logger.Warn("dispatch_no_response", "command", cmd.Name())
		}
		http.Error(w, "no response from dispatcher", http.StatusServiceUnavailable)
		return
	}
	if result.Err != nil {
		code, msg := StatusFor(result.Err)
		http.Error(w, msg, code)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(okStatus)
	_, _ = w.Write(result.Value)
}

// StatusFor maps a dispatch error to an HTTP status and response text.
func StatusFor(err error) (int, string) {
	if command.IsTerminate(err) {
		return http.StatusServiceUnavailable, "api server is shutting down"
	}

	var appErr *command.AppCommandError
	if !errors.As(err, &appErr) {
		return http.StatusInternalServerError, err.Error()
	}
	switch appErr.Kind {
	case command.KindNotFound:
		return http.StatusNotFound, appErr.Error()
	case command.KindDestroy:
		return http.StatusGone, appErr.Error()
	case command.KindInvalidResponse:
		return http.StatusUnprocessableEntity, appErr.Error()
	default:
		return http.StatusBadRequest, appErr.Error()
	}
}
