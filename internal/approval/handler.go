package approval

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/dynaclean/dynaflow/internal/orders"
	"github.com/dynaclean/dynaflow/internal/platform/httpx"
	"github.com/dynaclean/dynaflow/internal/rbac"
	"github.com/dynaclean/dynaflow/internal/shared"
)

// Handler exposes approval endpoints under the orders router.
type Handler struct {
	logger *slog.Logger
	gate   *Gate
	rbac   rbac.Middleware
}

// NewHandler creates a new handler.
func NewHandler(logger *slog.Logger, gate *Gate, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, gate: gate, rbac: rbac}
}

// MountRoutes registers routes on the orders router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		// Approver roles are enforced by the gate itself.
		r.Use(h.rbac.RequireAny(shared.PermOrderView))
		r.Post("/{id}/approve", h.handleDecide)
		r.Get("/{id}/approvals", h.handleHistory)
	})
}

func (h *Handler) handleDecide(w http.ResponseWriter, r *http.Request) {
	id, err := orderID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	actor, _ := shared.IdentityFromContext(r.Context())
	if actor.IsZero() {
		httpx.RespondError(w, shared.ErrUnauthorized)
		return
	}
	if !actor.HasRole(h.gate.roles...) {
		httpx.RespondError(w, ErrNotApprover)
		return
	}
	var d Decision
	if err := httpx.Bind(r, &d); err != nil {
		httpx.RespondError(w, err)
		return
	}
	res, err := h.gate.Decide(r.Context(), actor, id, d, r.Header.Get(orders.IdempotencyHeader))
	if err != nil {
		h.fail(w, "decide approval", err)
		return
	}
	httpx.JSON(w, http.StatusOK, res)
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	id, err := orderID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	logs, err := h.gate.History(r.Context(), id)
	if err != nil {
		h.fail(w, "approval history", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"order_id": id, "approvals": logs})
}

func orderID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, shared.Validationf("invalid order id")
	}
	return id, nil
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if !shared.IsClientError(err) {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
