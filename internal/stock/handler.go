package stock

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/dynaclean/dynaflow/internal/platform/httpx"
	"github.com/dynaclean/dynaflow/internal/rbac"
	"github.com/dynaclean/dynaflow/internal/shared"
)

// Handler wires HTTP endpoints for the stock ledger.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

// NewHandler constructs stock handler.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac}
}

// MountRoutes registers stock routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermStockView))
		r.Get("/availability", h.handleAvailability)
		r.Get("/movements", h.handleListMovements)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermStockMove))
		r.Post("/movements", h.handleRecordMovement)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermStockReserve))
		r.Post("/reservations", h.handleReserve)
		r.Delete("/reservations/{id}", h.handleRelease)
	})
}

func (h *Handler) handleAvailability(w http.ResponseWriter, r *http.Request) {
	availability, err := h.service.GetAvailability(r.Context(), r.URL.Query().Get("item_code"))
	if err != nil {
		h.fail(w, "stock availability", err)
		return
	}
	httpx.JSON(w, http.StatusOK, availability)
}

func (h *Handler) handleListMovements(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := MovementFilter{ItemCode: q.Get("item_code"), Zone: q.Get("zone")}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			httpx.RespondError(w, shared.Validationf("limit must be a positive integer"))
			return
		}
		filter.Limit = limit
	}
	movements, err := h.service.ListMovements(r.Context(), filter)
	if err != nil {
		h.fail(w, "list movements", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"movements": movements})
}

func (h *Handler) handleRecordMovement(w http.ResponseWriter, r *http.Request) {
	var input MovementInput
	if err := httpx.Bind(r, &input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	id, _ := shared.IdentityFromContext(r.Context())
	input.Actor = id.Username
	movement, err := h.service.RecordMovement(r.Context(), input)
	if err != nil {
		h.fail(w, "record movement", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, movement)
}

func (h *Handler) handleReserve(w http.ResponseWriter, r *http.Request) {
	var input ReserveInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if input.Token == "" {
		input.Token = r.Header.Get("Idempotency-Key")
	}
	if err := httpx.Validate(input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	id, _ := shared.IdentityFromContext(r.Context())
	input.Actor = id.Username
	res, err := h.service.Reserve(r.Context(), input)
	if err != nil {
		h.fail(w, "reserve stock", err)
		return
	}
	httpx.JSON(w, http.StatusOK, res)
}

func (h *Handler) handleRelease(w http.ResponseWriter, r *http.Request) {
	resID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, shared.Validationf("invalid reservation id"))
		return
	}
	id, _ := shared.IdentityFromContext(r.Context())
	res, err := h.service.Release(r.Context(), resID, id.Username)
	if err != nil {
		h.fail(w, "release reservation", err)
		return
	}
	httpx.JSON(w, http.StatusOK, res)
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if !shared.IsClientError(err) {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
