package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/iota-uz/leadrouter/modules/leads/domain/entities/assignment"
	"github.com/iota-uz/leadrouter/modules/leads/domain/entities/lead"
	"github.com/iota-uz/leadrouter/modules/leads/presentation/controllers/dtos"
	"github.com/iota-uz/leadrouter/modules/leads/services"
	"github.com/iota-uz/leadrouter/pkg/application"
	"github.com/iota-uz/leadrouter/pkg/composables"
	"github.com/iota-uz/leadrouter/pkg/httpapi"
)

type leadAssigner interface {
	Intake(ctx context.Context, req services.IntakeRequest) (*services.AssignResult, error)
	Assign(ctx context.Context, leadID, requestedBy int64) (*services.AssignResult, error)
	AssignToUser(ctx context.Context, leadID, userID, actorID int64) (*assignment.Assignment, error)
	Reject(ctx context.Context, leadID, userID int64, reason string) error
}

type accessAuthorizer interface {
	Authorize(ctx context.Context, viewer, leadID int64, mode services.ViewMode) (*services.AccessDecision, error)
}

type visibilityResolver interface {
	Visibility(ctx context.Context, viewer int64, mode services.ViewMode) services.Visibility
}

type distributionReporter interface {
	Stats(ctx context.Context, actorID int64) (*services.DistributionStats, error)
	Simulate(ctx context.Context, actorID int64, n int) (*services.SimulationResult, error)
}

type LeadsAPIController struct {
	assignments  leadAssigner
	gate         accessAuthorizer
	hierarchy    visibilityResolver
	distribution distributionReporter
	apiPrefix    string
}

func NewLeadsAPIController(app application.Application) application.Controller {
	return &LeadsAPIController{
		assignments:  app.Service(services.AssignmentService{}).(*services.AssignmentService),
		gate:         app.Service(services.AccessGate{}).(*services.AccessGate),
		hierarchy:    app.Service(services.HierarchyService{}).(*services.HierarchyService),
		distribution: app.Service(services.DistributionService{}).(*services.DistributionService),
		apiPrefix:    "/api/leads",
	}
}

func (c *LeadsAPIController) Key() string {
	return c.apiPrefix
}

func (c *LeadsAPIController) Register(r *mux.Router) {
	api := r.PathPrefix(c.apiPrefix).Subrouter()

	api.HandleFunc("/intake", c.Intake).Methods(http.MethodPost)
	api.HandleFunc("/visibility", c.GetVisibility).Methods(http.MethodGet)
	api.HandleFunc("/distribution/stats", c.GetDistributionStats).Methods(http.MethodGet)
	api.HandleFunc("/distribution/simulate", c.SimulateDistribution).Methods(http.MethodPost)

	api.HandleFunc("/{id:[0-9]+}/assign", c.Assign).Methods(http.MethodPost)
	api.HandleFunc("/{id:[0-9]+}/assign-user", c.AssignToUser).Methods(http.MethodPost)
	api.HandleFunc("/{id:[0-9]+}/reject", c.Reject).Methods(http.MethodPost)
	api.HandleFunc("/{id:[0-9]+}/access", c.GetAccess).Methods(http.MethodGet)
}

func (c *LeadsAPIController) Intake(w http.ResponseWriter, r *http.Request) {
	requestID := composables.UseRequestID(r.Context())
	if _, ok := requireActor(w, r, requestID); !ok {
		return
	}
	handleIntake(w, r, c.assignments, requestID)
}

func handleIntake(w http.ResponseWriter, r *http.Request, assignments leadAssigner, requestID string) {
	var req dtos.IntakeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	in := services.IntakeRequest{
		ExternalID: req.ExternalID,
		Name:       req.Name,
		Interest:   req.Interest,
		Note:       req.Note,
	}
	if req.Source != "" {
		in.Source = lead.ParseSource(req.Source)
	}
	res, err := assignments.Intake(r.Context(), in)
	if err != nil {
		writeServiceError(w, requestID, err)
		return
	}
	status := http.StatusOK
	if res.Outcome == services.OutcomeAllocated || res.Outcome == services.OutcomeUnassigned {
		status = http.StatusCreated
	}
	writeJSON(w, status, res)
}

func (c *LeadsAPIController) Assign(w http.ResponseWriter, r *http.Request) {
	requestID := composables.UseRequestID(r.Context())
	actorID, ok := requireActor(w, r, requestID)
	if !ok {
		return
	}
	leadID, ok := pathID(w, r, requestID)
	if !ok {
		return
	}
	res, err := c.assignments.Assign(r.Context(), leadID, actorID)
	if err != nil {
		writeServiceError(w, requestID, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (c *LeadsAPIController) AssignToUser(w http.ResponseWriter, r *http.Request) {
	requestID := composables.UseRequestID(r.Context())
	actorID, ok := requireActor(w, r, requestID)
	if !ok {
		return
	}
	leadID, ok := pathID(w, r, requestID)
	if !ok {
		return
	}
	var req dtos.AssignUserRequest
	if !decodeBody(w, r, &req) {
		return
	}
	a, err := c.assignments.AssignToUser(r.Context(), leadID, req.UserID, actorID)
	if err != nil {
		writeServiceError(w, requestID, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (c *LeadsAPIController) Reject(w http.ResponseWriter, r *http.Request) {
	requestID := composables.UseRequestID(r.Context())
	actorID, ok := requireActor(w, r, requestID)
	if !ok {
		return
	}
	leadID, ok := pathID(w, r, requestID)
	if !ok {
		return
	}
	var req dtos.RejectRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := c.assignments.Reject(r.Context(), leadID, actorID, req.Reason); err != nil {
		writeServiceError(w, requestID, err)
		return
	}
	writeJSON(w, http.StatusOK, dtos.RejectResponse{LeadID: leadID, Status: string(lead.StateRejected)})
}

func (c *LeadsAPIController) GetAccess(w http.ResponseWriter, r *http.Request) {
	requestID := composables.UseRequestID(r.Context())
	viewer, ok := requireActor(w, r, requestID)
	if !ok {
		return
	}
	leadID, ok := pathID(w, r, requestID)
	if !ok {
		return
	}
	mode, ok := viewMode(w, r, requestID)
	if !ok {
		return
	}
	decision, err := c.gate.Authorize(r.Context(), viewer, leadID, mode)
	if err != nil {
		writeServiceError(w, requestID, err)
		return
	}
	writeJSON(w, http.StatusOK, decision)
}

func (c *LeadsAPIController) GetVisibility(w http.ResponseWriter, r *http.Request) {
	requestID := composables.UseRequestID(r.Context())
	viewer, ok := requireActor(w, r, requestID)
	if !ok {
		return
	}
	mode, ok := viewMode(w, r, requestID)
	if !ok {
		return
	}
	vis := c.hierarchy.Visibility(r.Context(), viewer, mode)
	ids := vis.UserIDs
	if ids == nil {
		ids = []int64{}
	}
	writeJSON(w, http.StatusOK, dtos.VisibilityResponse{
		ViewerID: viewer,
		Mode:     string(mode),
		All:      vis.All,
		UserIDs:  ids,
		Degraded: vis.Degraded,
	})
}

func (c *LeadsAPIController) GetDistributionStats(w http.ResponseWriter, r *http.Request) {
	requestID := composables.UseRequestID(r.Context())
	actorID, ok := requireActor(w, r, requestID)
	if !ok {
		return
	}
	stats, err := c.distribution.Stats(r.Context(), actorID)
	if err != nil {
		writeServiceError(w, requestID, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (c *LeadsAPIController) SimulateDistribution(w http.ResponseWriter, r *http.Request) {
	requestID := composables.UseRequestID(r.Context())
	actorID, ok := requireActor(w, r, requestID)
	if !ok {
		return
	}
	var req dtos.SimulateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	res, err := c.distribution.Simulate(r.Context(), actorID, req.Leads)
	if err != nil {
		writeServiceError(w, requestID, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func requireActor(w http.ResponseWriter, r *http.Request, requestID string) (int64, bool) {
	id, err := composables.UseActor(r.Context())
	if err != nil {
		writeAPIError(w, http.StatusUnauthorized, requestID, services.CodeUnauthenticated, "authenticated user required")
		return 0, false
	}
	return id, true
}

func pathID(w http.ResponseWriter, r *http.Request, requestID string) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil || id <= 0 {
		writeAPIError(w, http.StatusBadRequest, requestID, services.CodeInvalidInput, "lead id is invalid")
		return 0, false
	}
	return id, true
}

func viewMode(w http.ResponseWriter, r *http.Request, requestID string) (services.ViewMode, bool) {
	mode, err := services.ParseViewMode(r.URL.Query().Get("mode"))
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, requestID, services.CodeInvalidInput, err.Error())
		return "", false
	}
	return mode, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	err := httpapi.DecodeJSON(r, dst)
	if err == nil {
		return true
	}
	var decErr *httpapi.DecodeError
	if errors.As(err, &decErr) {
		_ = httpapi.WriteDecodeError(w, decErr)
		return false
	}
	writeAPIError(w, http.StatusBadRequest, composables.UseRequestID(r.Context()), "INVALID_BODY", err.Error())
	return false
}

func writeServiceError(w http.ResponseWriter, requestID string, err error) {
	var svcErr *services.ServiceError
	if errors.As(err, &svcErr) {
		writeAPIError(w, svcErr.Status, requestID, svcErr.Code, svcErr.Message)
		return
	}
	writeAPIError(w, http.StatusInternalServerError, requestID, services.CodeInternal, err.Error())
}

func writeAPIError(w http.ResponseWriter, status int, requestID, code, message string) {
	writeJSON(w, status, httpapi.ErrorEnvelope{
		Code:    code,
		Message: message,
		Meta:    httpapi.RequestMeta(requestID),
	})
}

func writeJSON[T any](w http.ResponseWriter, status int, payload T) {
	w.Header().Set("Content-Type", httpapi.ContentType)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
