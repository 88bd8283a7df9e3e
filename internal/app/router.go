package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/dynaclean/dynaflow/internal/approval"
	"github.com/dynaclean/dynaflow/internal/dispatch"
	"github.com/dynaclean/dynaflow/internal/observability"
	"github.com/dynaclean/dynaflow/internal/orders"
	"github.com/dynaclean/dynaflow/internal/rbac"
	"github.com/dynaclean/dynaflow/internal/shared"
	"github.com/dynaclean/dynaflow/internal/stock"
	"github.com/dynaclean/dynaflow/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger *slog.Logger
	Config *Config
	Tokens *shared.TokenVerifier

	OrdersHandler      *orders.Handler
	ApprovalHandler    *approval.Handler
	DispatchHandler    *dispatch.Handler
	StockHandler       *stock.Handler
	JobHandler         *jobs.Handler
	PermissionsHandler *rbac.PermissionsHandler
	Metrics            *observability.Metrics
}

// NewRouter constructs the chi.Router with Dynaflow defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Tokens:  params.Tokens,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/orders", func(r chi.Router) {
		if params.OrdersHandler != nil {
			params.OrdersHandler.MountRoutes(r)
		}
		if params.ApprovalHandler != nil {
			params.ApprovalHandler.MountRoutes(r)
		}
	})
	if params.DispatchHandler != nil {
		r.Route("/dispatch", params.DispatchHandler.MountRoutes)
	}
	if params.StockHandler != nil {
		r.Route("/stock", params.StockHandler.MountRoutes)
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.PermissionsHandler != nil {
		r.Route("/permissions", params.PermissionsHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
