// Package api exposes the allocation workflow over HTTP.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/jbweber/homelab/ipdesk/internal/domain"
	"github.com/jbweber/homelab/ipdesk/internal/metrics"
	"github.com/jbweber/homelab/ipdesk/internal/repository"
	"github.com/jbweber/homelab/ipdesk/internal/workflow"
)

// Workflow is the subset of workflow.Engine used by the handlers
type Workflow interface {
	SubmitRequest(ctx context.Context, p workflow.SubmitParams) (domain.IPRequest, error)
	Approve(ctx context.Context, p workflow.ApproveParams) (workflow.ApprovalResult, error)
	Reject(ctx context.Context, requestID int64, approver, reason string) (domain.IPRequest, error)
	CancelByRequester(ctx context.Context, requestID int64, requester domain.Identity) (domain.IPRequest, error)

	GetRequest(ctx context.Context, id int64) (domain.IPRequest, error)
	ListCompanyRequests(ctx context.Context, companyID int64) ([]domain.IPRequest, error)
	ListPendingRequests(ctx context.Context) ([]domain.IPRequest, error)
	GetIP(ctx context.Context, id int64) (domain.IP, error)
	ListIPs(ctx context.Context, filter repository.IPFilter) ([]domain.IP, error)
	GetCompany(ctx context.Context, id int64) (domain.Company, error)
	History(ctx context.Context, filter repository.HistoryFilter) *repository.HistoryCursor
}

// Pinger reports database health
type Pinger interface {
	PingContext(ctx context.Context) error
}

// API holds the engine the handlers drive
type API struct {
	engine Workflow
	db     Pinger
}

// NewAPI creates a new API instance
func NewAPI(engine Workflow, db Pinger) *API {
	return &API{engine: engine, db: db}
}

// NewRouter returns a chi router with the standard middleware stack and all
// routes registered.
func (a *API) NewRouter() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(AccessLog)
	r.Use(middleware.Recoverer)

	a.RegisterRoutes(r)
	return r
}

// RegisterRoutes registers all API endpoints to the given chi router.
func (a *API) RegisterRoutes(r chi.Router) {
	r.Get("/healthz", a.healthHandler)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/api/v0", func(r chi.Router) {
		r.Use(RequireIdentity)

		r.Route("/requests", func(r chi.Router) {
			r.Post("/", a.submitRequestHandler)
			r.Get("/", a.listCompanyRequestsHandler)
			r.With(RequireAdmin).Get("/pending", a.listPendingRequestsHandler)
			r.Get("/{id}", a.getRequestHandler)
			r.With(RequireAdmin).Post("/{id}/approve", a.approveRequestHandler)
			r.With(RequireAdmin).Post("/{id}/reject", a.rejectRequestHandler)
			r.Post("/{id}/cancel", a.cancelRequestHandler)
		})

		r.Route("/ips", func(r chi.Router) {
			r.Get("/", a.listIPsHandler)
			r.Get("/{id}", a.getIPHandler)
		})

		r.Get("/history", a.historyHandler)
	})
}

// healthHandler handles GET /healthz
func (a *API) healthHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := a.db.PingContext(ctx); err != nil {
		writeError(w, http.StatusServiceUnavailable, "database unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// authorizeCompany checks that a company caller owns companyID. Administrators
// may act on any company.
func (a *API) authorizeCompany(ctx context.Context, caller domain.Identity, companyID int64) error {
	company, err := a.engine.GetCompany(ctx, companyID)
	if err != nil {
		return err
	}
	if caller.IsAdmin() || company.Owner == caller.Username {
		return nil
	}
	return fmt.Errorf("%w: %s does not own company %s", workflow.ErrForbidden, caller.Username, company.Name)
}
