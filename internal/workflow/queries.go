package workflow

import (
	"context"

	"github.com/jbweber/homelab/ipdesk/internal/domain"
	"github.com/jbweber/homelab/ipdesk/internal/repository"
)

// Read-only views for the transport layer. They run outside any transaction.

// GetRequest returns one request
func (e *Engine) GetRequest(ctx context.Context, id int64) (domain.IPRequest, error) {
	return e.store.Queries().Requests.FindByID(ctx, id)
}

// ListCompanyRequests returns a company's requests, newest first
func (e *Engine) ListCompanyRequests(ctx context.Context, companyID int64) ([]domain.IPRequest, error) {
	return e.store.Queries().Requests.ListByCompany(ctx, companyID)
}

// ListPendingRequests returns the decision queue, oldest first
func (e *Engine) ListPendingRequests(ctx context.Context) ([]domain.IPRequest, error) {
	return e.store.Queries().Requests.ListPending(ctx)
}

// GetIP returns one address
func (e *Engine) GetIP(ctx context.Context, id int64) (domain.IP, error) {
	return e.store.Queries().IPs.FindByID(ctx, id)
}

// ListIPs returns addresses matching filter in address order
func (e *Engine) ListIPs(ctx context.Context, filter repository.IPFilter) ([]domain.IP, error) {
	return e.store.Queries().IPs.List(ctx, filter)
}

// GetCompany returns one company
func (e *Engine) GetCompany(ctx context.Context, id int64) (domain.Company, error) {
	return e.store.Queries().Companies.FindByID(ctx, id)
}

// History returns a single-use cursor over matching ledger records
func (e *Engine) History(ctx context.Context, filter repository.HistoryFilter) *repository.HistoryCursor {
	return e.store.Queries().Ledger.Query(ctx, filter)
}

// CountIPsByStatus returns the inventory size per status
func (e *Engine) CountIPsByStatus(ctx context.Context) (map[domain.IPStatus]int, error) {
	return e.store.Queries().IPs.CountByStatus(ctx)
}
