package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"callwatch/internal/attention"
	id "callwatch/pkg/domain"
	"callwatch/pkg/platform/httputil"
	"callwatch/pkg/requestcontext"
)

// Service defines the engine operations the transport exposes.
type Service interface {
	EmitEvent(ctx context.Context, req attention.EmitEventRequest) (id.EventID, error)
	HumanOverride(ctx context.Context, req attention.OverrideRequest) (id.DecisionID, error)
	ListEvents(ctx context.Context, orgID id.OrgID, filter attention.ListFilter) ([]attention.EventWithDecision, error)
}

// Handler wires attention endpoints to the engine service.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// New constructs an attention handler.
func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts attention endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Route("/organizations/{orgID}", func(r chi.Router) {
		r.Post("/events", h.HandleEmitEvent)
		r.Get("/events", h.HandleListEvents)
		r.Post("/events/{eventID}/overrides", h.HandleOverride)
	})
}

// HandleEmitEvent handles POST /organizations/{orgID}/events.
func (h *Handler) HandleEmitEvent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	orgID, err := id.ParseOrgID(chi.URLParam(r, "orgID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, err := httputil.Decode[EmitEventRequest](r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	eventID, err := h.service.EmitEvent(ctx, req.ToDomain(orgID))
	if err != nil {
		h.logger.ErrorContext(ctx, "emit event failed",
			"request_id", requestcontext.RequestID(ctx),
			"org_id", orgID,
			"event_type", req.EventType,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, EmitEventResponse{EventID: eventID.String()})
}

// HandleOverride handles POST /organizations/{orgID}/events/{eventID}/overrides.
func (h *Handler) HandleOverride(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	orgID, err := id.ParseOrgID(chi.URLParam(r, "orgID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	eventID, err := id.ParseEventID(chi.URLParam(r, "eventID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, err := httputil.Decode[OverrideRequest](r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	domainReq, err := req.ToDomain(orgID, eventID, requestcontext.ActorUserID(ctx))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	decisionID, err := h.service.HumanOverride(ctx, domainReq)
	if err != nil {
		h.logger.ErrorContext(ctx, "override failed",
			"request_id", requestcontext.RequestID(ctx),
			"org_id", orgID,
			"event_id", eventID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, OverrideResponse{DecisionID: decisionID.String()})
}

// HandleListEvents handles GET /organizations/{orgID}/events.
func (h *Handler) HandleListEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	orgID, err := id.ParseOrgID(chi.URLParam(r, "orgID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	query := r.URL.Query()
	filter, err := parseListFilter(query.Get("decision"), query.Get("from"), query.Get("to"), query.Get("limit"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	items, err := h.service.ListEvents(ctx, orgID, filter)
	if err != nil {
		h.logger.ErrorContext(ctx, "list events failed",
			"request_id", requestcontext.RequestID(ctx),
			"org_id", orgID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromListing(items))
}
