package rbac

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dynaclean/dynaflow/internal/platform/httpx"
	"github.com/dynaclean/dynaflow/internal/shared"
)

// PermissionsHandler exposes the caller's effective permissions.
type PermissionsHandler struct {
	logger  *slog.Logger
	service *Service
}

// NewPermissionsHandler builds PermissionsHandler instance.
func NewPermissionsHandler(logger *slog.Logger, service *Service) *PermissionsHandler {
	return &PermissionsHandler{logger: logger, service: service}
}

// MountRoutes registers permission routes.
func (h *PermissionsHandler) MountRoutes(r chi.Router) {
	r.Get("/me", h.me)
}

type permissionsResponse struct {
	Username    string   `json:"username"`
	Role        string   `json:"role"`
	Admin       bool     `json:"admin"`
	Permissions []string `json:"permissions"`
}

func (h *PermissionsHandler) me(w http.ResponseWriter, r *http.Request) {
	id, ok := shared.IdentityFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrUnauthorized)
		return
	}
	perms, err := h.service.EffectivePermissions(r.Context(), id)
	if err != nil {
		h.logger.Error("effective permissions", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, permissionsResponse{
		Username:    id.Username,
		Role:        id.Role,
		Admin:       h.service.IsAdmin(id),
		Permissions: perms,
	})
}
