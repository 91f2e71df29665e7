package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/tana-fms/tana-fms/internal/costs"
	"github.com/tana-fms/tana-fms/internal/fiscalyear"
	"github.com/tana-fms/tana-fms/internal/observability"
	"github.com/tana-fms/tana-fms/internal/rbac"
	"github.com/tana-fms/tana-fms/internal/requisitions"
	"github.com/tana-fms/tana-fms/internal/workorders"
	"github.com/tana-fms/tana-fms/internal/workshops"
	"github.com/tana-fms/tana-fms/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger             *slog.Logger
	Config             *Config
	RBACMiddleware     rbac.Middleware
	WorkOrderHandler   *workorders.Handler
	RequisitionHandler *requisitions.Handler
	CostHandler        *costs.Handler
	WorkshopHandler    *workshops.Handler
	FiscalYearHandler  *fiscalyear.Handler
	JobHandler         *jobs.Handler
	Metrics            *observability.Metrics
}

// NewRouter constructs the chi.Router.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		RBAC:    params.RBACMiddleware,
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
	r.Handle("/metrics", params.Metrics.Handler())

	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(params.RBACMiddleware.ResolveActor)
		if params.WorkOrderHandler != nil {
			r.Route("/work-orders", params.WorkOrderHandler.MountRoutes)
		}
		if params.RequisitionHandler != nil {
			r.Route("/requisitions", params.RequisitionHandler.MountRoutes)
		}
		if params.CostHandler != nil {
			r.Route("/costs", params.CostHandler.MountRoutes)
		}
		if params.WorkshopHandler != nil {
			r.Route("/workshops", params.WorkshopHandler.MountRoutes)
		}
		if params.FiscalYearHandler != nil {
			r.Route("/fiscal-year", params.FiscalYearHandler.MountRoutes)
		}
	})

	return r
}
