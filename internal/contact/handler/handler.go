package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"reconciler/internal/contact/models"
	dErrors "reconciler/pkg/domain-errors"
	"reconciler/pkg/platform/httputil"
	"reconciler/pkg/requestcontext"
)

// Service is the contact reconciliation API used by the handler.
type Service interface {
	Identify(ctx context.Context, ids models.Identifiers) (*models.ConsolidatedContact, error)
	Lookup(ctx context.Context, id models.ContactID) (*models.ConsolidatedContact, error)
}

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

const healthTimeout = 2 * time.Second

// Handler serves the identify endpoint and its companions.
type Handler struct {
	service Service
	store   Pinger
	logger  *slog.Logger
}

// New creates a contact Handler.
func New(service Service, store Pinger, logger *slog.Logger) *Handler {
	return &Handler{
		service: service,
		store:   store,
		logger:  logger,
	}
}

// Register registers the contact routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/", h.HandleUsage)
	r.Get("/health", h.HandleHealth)
	r.Post("/identify", h.HandleIdentify)
	r.Get("/contacts/{id}", h.HandleGetContact)
}

// HandleIdentify reconciles the submitted email and phone number.
func (h *Handler) HandleIdentify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeJSON[IdentifyRequest](w, r, h.logger)
	if !ok {
		return
	}

	contact, err := h.service.Identify(ctx, req.Identifiers())
	if err != nil {
		h.logFailure(ctx, "identify failed", err)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "identify served",
		"request_id", requestID,
		"primary_id", contact.PrimaryID,
		"secondary_count", len(contact.SecondaryIDs),
	)
	httputil.WriteJSON(w, http.StatusOK, toIdentifyResponse(contact))
}

// HandleGetContact returns the cluster view for any live contact id.
func (h *Handler) HandleGetContact(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "contact id must be a positive integer"))
		return
	}

	contact, err := h.service.Lookup(ctx, models.ContactID(id))
	if err != nil {
		h.logFailure(ctx, "contact lookup failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toIdentifyResponse(contact))
}

// HandleHealth pings the store.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	if err := h.store.Ping(ctx); err != nil {
		h.logger.WarnContext(ctx, "health check failed", "error", err)
		httputil.WriteJSON(w, http.StatusServiceUnavailable, HealthResponse{Status: "unhealthy"})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, HealthResponse{Status: "healthy"})
}

// HandleUsage describes the API.
func (h *Handler) HandleUsage(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, UsageResponse{
		Message:  "Identity Reconciliation API",
		Endpoint: "POST /identify",
		Example: map[string]string{
			"email":       "test@example.com",
			"phoneNumber": "1234567890",
		},
	})
}

func (h *Handler) logFailure(ctx context.Context, msg string, err error) {
	code := dErrors.CodeOf(err)
	attrs := []any{
		"request_id", requestcontext.RequestID(ctx),
		"code", code,
		"error", err,
	}
	switch code {
	case dErrors.CodeBadRequest, dErrors.CodeValidation, dErrors.CodeNotFound:
		h.logger.WarnContext(ctx, msg, attrs...)
	default:
		h.logger.ErrorContext(ctx, msg, attrs...)
	}
}
