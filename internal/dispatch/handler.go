package dispatch

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/dynaclean/dynaflow/internal/platform/httpx"
	"github.com/dynaclean/dynaflow/internal/rbac"
	"github.com/dynaclean/dynaflow/internal/shared"
)

// Handler manages dispatch HTTP endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

// NewHandler creates a new handler.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac}
}

// MountRoutes registers routes on the router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermDispatchView))
		r.Get("/", h.list)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermDispatchEdit))
		r.Post("/", h.add)
		r.Patch("/{id}/serial", h.updateSerial)
	})
}

// list handles GET /dispatch?order_id= or ?quote_number=
func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var (
		entries []Entry
		err     error
	)
	switch {
	case q.Get("order_id") != "":
		orderID, perr := strconv.ParseInt(q.Get("order_id"), 10, 64)
		if perr != nil {
			httpx.RespondError(w, shared.Validationf("invalid order_id"))
			return
		}
		entries, err = h.service.ListByOrderID(r.Context(), orderID)
	case q.Get("quote_number") != "":
		entries, err = h.service.ListForOrder(r.Context(), q.Get("quote_number"))
	default:
		httpx.RespondError(w, shared.Validationf("order_id or quote_number required"))
		return
	}
	if err != nil {
		h.fail(w, "list dispatch", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"entries": entries})
}

// add handles POST /dispatch
func (h *Handler) add(w http.ResponseWriter, r *http.Request) {
	var in EntryInput
	if err := httpx.Bind(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	id, _ := shared.IdentityFromContext(r.Context())
	entry, err := h.service.AddEntry(r.Context(), in, id.Username)
	if err != nil {
		h.fail(w, "add dispatch entry", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, entry)
}

type serialRequest struct {
	SerialNo string `json:"serial_no" validate:"max=128"`
}

// updateSerial handles PATCH /dispatch/{id}/serial
func (h *Handler) updateSerial(w http.ResponseWriter, r *http.Request) {
	entryID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.RespondError(w, shared.Validationf("invalid id"))
		return
	}
	var req serialRequest
	if err := httpx.Bind(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	id, _ := shared.IdentityFromContext(r.Context())
	entry, err := h.service.UpdateSerial(r.Context(), entryID, req.SerialNo, id.Username)
	if err != nil {
		h.fail(w, "update serial", err)
		return
	}
	httpx.JSON(w, http.StatusOK, entry)
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if !shared.IsClientError(err) {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
