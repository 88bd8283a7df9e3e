package orders

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dynaclean/dynaflow/internal/platform/httpx"
	"github.com/dynaclean/dynaflow/internal/rbac"
	"github.com/dynaclean/dynaflow/internal/shared"
)

// IdempotencyHeader carries the client retry key.
const IdempotencyHeader = "Idempotency-Key"

// Handler manages order HTTP endpoints.
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
		r.Use(h.rbac.RequireAny(shared.PermOrderView))
		r.Get("/", h.handleList)
		r.Get("/{id}", h.handleGet)
		// Ownership of delivery is checked against booking_by, not a permission.
		r.Post("/{id}/delivery", h.handleDelivered)
		r.Post("/{id}/delivery/otp", h.handleDeliveryOTP)
	})
	r.With(h.rbac.RequireAll(shared.PermOrderCreate)).Post("/", h.handleCreate)
	r.With(h.rbac.RequireAll(shared.PermOrderAccountConfirm)).Post("/{id}/account", h.simple(h.service.ConfirmAccount, "confirm account"))
	r.With(h.rbac.RequireAll(shared.PermOrderAdminConfirm)).Post("/{id}/admin", h.simple(h.service.ConfirmAdmin, "confirm admin"))
	r.With(h.rbac.RequireAll(shared.PermOrderReserve)).Post("/{id}/reserve", h.simple(h.service.ReserveStock, "reserve stock"))
	r.With(h.rbac.RequireAll(shared.PermOrderDispatch)).Post("/{id}/dispatch", h.handleDispatch)
	r.With(h.rbac.RequireAll(shared.PermOrderInstall)).Post("/{id}/installation", h.simple(h.service.MarkInstalled, "mark installed"))
	r.With(h.rbac.RequireAll(shared.PermOrderComplete)).Post("/{id}/complete", h.simple(h.service.Complete, "complete order"))
	r.With(h.rbac.RequireAll(shared.PermOrderCancel)).Post("/{id}/cancel", h.simple(h.service.Cancel, "cancel order"))
	r.With(h.rbac.RequireAll(shared.PermOrderReturn)).Post("/{id}/returns", h.handleReturned)
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermOrderDelete))
		r.Post("/{id}", h.simple(h.service.Delete, "delete order"))
		r.Delete("/{id}", h.simple(h.service.Delete, "delete order"))
	})
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var in CreateInput
	if err := httpx.Bind(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	id, _ := shared.IdentityFromContext(r.Context())
	out, err := h.service.Create(r.Context(), in, id)
	if err != nil {
		h.fail(w, "create order", err)
		return
	}
	status := http.StatusOK
	if out.Result == ResultSucceeded {
		status = http.StatusCreated
	}
	httpx.JSON(w, status, out)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	filter, err := parseListFilter(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	orders, page, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.fail(w, "list orders", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"orders": orders, "pagination": page})
}

func parseListFilter(r *http.Request) (ListFilter, error) {
	q := r.URL.Query()
	filter := ListFilter{
		CreatedBy:   q.Get("created_by"),
		BookingBy:   q.Get("booking_by"),
		QuoteNumber: q.Get("quote_number"),
	}
	if raw := q.Get("stage"); raw != "" {
		stage, ok := ParseStage(raw)
		if !ok {
			return ListFilter{}, shared.Validationf("unknown stage %q", raw)
		}
		filter.Stage = stage
	}
	if raw := q.Get("cancelled"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return ListFilter{}, shared.Validationf("cancelled must be a boolean")
		}
		filter.Cancelled = &v
	}
	if raw := q.Get("created_from"); raw != "" {
		from, err := time.Parse(time.DateOnly, raw)
		if err != nil {
			return ListFilter{}, shared.Validationf("created_from must be YYYY-MM-DD")
		}
		filter.CreatedFrom = from
	}
	if raw := q.Get("created_to"); raw != "" {
		to, err := time.Parse(time.DateOnly, raw)
		if err != nil {
			return ListFilter{}, shared.Validationf("created_to must be YYYY-MM-DD")
		}
		filter.CreatedTo = to.AddDate(0, 0, 1)
	}
	for name, dst := range map[string]*int{"page": &filter.Page, "per_page": &filter.PerPage} {
		if raw := q.Get(name); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 0 {
				return ListFilter{}, shared.Validationf("%s must be a positive integer", name)
			}
			*dst = n
		}
	}
	return filter, nil
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := orderID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	order, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.fail(w, "get order", err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) handleDispatch(w http.ResponseWriter, r *http.Request) {
	var in DispatchInput
	if err := bindOptional(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.run(w, r, "dispatch order", func(id int64, cmd Command) (Outcome, error) {
		return h.service.Dispatch(r.Context(), id, in, cmd)
	})
}

func (h *Handler) handleDelivered(w http.ResponseWriter, r *http.Request) {
	var in DeliveryInput
	if err := bindOptional(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.run(w, r, "mark delivered", func(id int64, cmd Command) (Outcome, error) {
		return h.service.MarkDelivered(r.Context(), id, in, cmd)
	})
}

func (h *Handler) handleDeliveryOTP(w http.ResponseWriter, r *http.Request) {
	id, err := orderID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	actor, _ := shared.IdentityFromContext(r.Context())
	if err := h.service.IssueDeliveryOTP(r.Context(), id, actor); err != nil {
		h.fail(w, "issue delivery otp", err)
		return
	}
	httpx.JSON(w, http.StatusAccepted, map[string]any{"order_id": id, "status": "sent"})
}

func (h *Handler) handleReturned(w http.ResponseWriter, r *http.Request) {
	var in ReturnInput
	if err := httpx.Bind(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.run(w, r, "mark returned", func(id int64, cmd Command) (Outcome, error) {
		return h.service.MarkReturned(r.Context(), id, in, cmd)
	})
}

// simple adapts a body-less transition to a handler.
func (h *Handler) simple(fn func(ctx context.Context, id int64, cmd Command) (Outcome, error), op string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.run(w, r, op, func(id int64, cmd Command) (Outcome, error) {
			return fn(r.Context(), id, cmd)
		})
	}
}

func (h *Handler) run(w http.ResponseWriter, r *http.Request, op string, fn func(id int64, cmd Command) (Outcome, error)) {
	id, err := orderID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	actor, _ := shared.IdentityFromContext(r.Context())
	out, err := fn(id, Command{Actor: actor, IdempotencyKey: r.Header.Get(IdempotencyHeader)})
	if err != nil {
		h.fail(w, op, err)
		return
	}
	httpx.JSON(w, http.StatusOK, out)
}

func orderID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, shared.Validationf("invalid order id")
	}
	return id, nil
}

// bindOptional binds a JSON body when one is present.
func bindOptional(r *http.Request, target any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return httpx.Validate(target)
	}
	return httpx.Bind(r, target)
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if !shared.IsClientError(err) {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
