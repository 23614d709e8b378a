package app

import (
	"context"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-stock/internal/inventory"
	"github.com/odyssey-erp/odyssey-stock/internal/observability"
	"github.com/odyssey-erp/odyssey-stock/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-stock/internal/shared"
)

// HealthCheck pings one dependency.
type HealthCheck func(ctx context.Context) error

// JobsHandler mounts queue observability routes.
type JobsHandler interface {
	MountRoutes(r chi.Router)
}

// Valuations serves aggregate valuations.
type Valuations interface {
	WarehouseValue(ctx context.Context, tenantID, warehouseID int64, method inventory.ValuationMethod) (inventory.AggregateValuation, error)
	ProductValue(ctx context.Context, tenantID, productID int64, method inventory.ValuationMethod) (inventory.AggregateValuation, error)
}

// RouterParams groups dependencies for building the ops router.
type RouterParams struct {
	Logger  *slog.Logger
	Config  *Config
	Metrics *observability.Metrics
	// Checks run on /readyz; a failing check turns the response into 503.
	Checks     map[string]HealthCheck
	Jobs       JobsHandler
	Valuations Valuations
}

// NewOpsRouter serves liveness, readiness, metrics, queue health and
// read-only valuations.
func NewOpsRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()
	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/readyz", readiness(params.Checks, params.Logger))
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}
	if params.Jobs != nil {
		r.Route("/jobs", params.Jobs.MountRoutes)
	}
	if params.Valuations != nil {
		r.Route("/tenants/{tenantID}/valuations", func(r chi.Router) {
			r.Get("/warehouses/{id}", valuationHandler(params.Valuations.WarehouseValue))
			r.Get("/products/{id}", valuationHandler(params.Valuations.ProductValue))
		})
	}
	return r
}

type valueFunc func(ctx context.Context, tenantID, id int64, method inventory.ValuationMethod) (inventory.AggregateValuation, error)

func valuationHandler(value valueFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, err := strconv.ParseInt(chi.URLParam(r, "tenantID"), 10, 64)
		if err != nil || tenantID <= 0 {
			httpx.RespondError(w, shared.InvalidOperation("invalid tenant id"))
			return
		}
		id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err != nil || id <= 0 {
			httpx.RespondError(w, shared.InvalidOperation("invalid id"))
			return
		}
		var method inventory.ValuationMethod
		if raw := r.URL.Query().Get("method"); raw != "" {
			method, err = inventory.ParseValuationMethod(raw)
			if err != nil {
				httpx.RespondError(w, err)
				return
			}
		}
		agg, err := value(r.Context(), tenantID, id, method)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, agg)
	}
}

func readiness(checks map[string]HealthCheck, logger *slog.Logger) http.HandlerFunc {
	if logger == nil {
		logger = slog.Default()
	}
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()
		status := http.StatusOK
		report := make(map[string]string, len(names))
		for _, name := range names {
			if err := checks[name](ctx); err != nil {
				logger.Warn("readiness check failed", slog.String("check", name), slog.Any("error", err))
				report[name] = err.Error()
				status = http.StatusServiceUnavailable
				continue
			}
			report[name] = "ok"
		}
		httpx.JSON(w, status, report)
	}
}
