package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"callwatch/internal/attention/models"
	"callwatch/internal/digest"
	id "callwatch/pkg/domain"
	"callwatch/pkg/platform/httputil"
	"callwatch/pkg/requestcontext"
)

// Service defines the digest operation the transport exposes.
type Service interface {
	Generate(ctx context.Context, req digest.GenerateRequest) (id.DigestID, error)
}

// Handler wires digest endpoints to the digest service.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// New constructs a digest handler.
func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts digest endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/organizations/{orgID}/digests", h.HandleGenerate)
}

// GenerateRequest is the wire shape for POST /organizations/{orgID}/digests.
type GenerateRequest struct {
	DigestType  string    `json:"digest_type"`
	PeriodStart time.Time `json:"period_start"`
	PeriodEnd   time.Time `json:"period_end"`
	GeneratedBy string    `json:"generated_by"`
}

// GenerateResponse returns the id of the appended digest.
type GenerateResponse struct {
	DigestID string `json:"digest_id"`
}

// HandleGenerate handles POST /organizations/{orgID}/digests.
func (h *Handler) HandleGenerate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	orgID, err := id.ParseOrgID(chi.URLParam(r, "orgID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, err := httputil.Decode[GenerateRequest](r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	digestType, err := models.ParseDigestType(req.DigestType)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	digestID, err := h.service.Generate(ctx, digest.GenerateRequest{
		OrgID:       orgID,
		Type:        digestType,
		PeriodStart: req.PeriodStart,
		PeriodEnd:   req.PeriodEnd,
		GeneratedBy: req.GeneratedBy,
	})
	if err != nil {
		h.logger.ErrorContext(ctx, "digest generation failed",
			"request_id", requestcontext.RequestID(ctx),
			"org_id", orgID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, GenerateResponse{DigestID: digestID.String()})
}
