// Package workflow implements the allocation workflow: request submission,
// administrator decisions and lease expiration. Every mutating operation runs
// as one transaction spanning the request store, the ip inventory and the
// audit ledger.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jbweber/homelab/ipdesk/internal/clock"
	"github.com/jbweber/homelab/ipdesk/internal/domain"
	"github.com/jbweber/homelab/ipdesk/internal/log"
	"github.com/jbweber/homelab/ipdesk/internal/metrics"
	"github.com/jbweber/homelab/ipdesk/internal/repository"
)

// Engine is the only writer of ip and request status.
type Engine struct {
	store          *repository.Store
	clock          clock.Clock
	logger         zerolog.Logger
	newOperationID func() string
}

// NewEngine creates a workflow engine on top of store
func NewEngine(store *repository.Store, clk clock.Clock) *Engine {
	return &Engine{
		store:          store,
		clock:          clk,
		logger:         log.WithComponent("workflow"),
		newOperationID: uuid.NewString,
	}
}

// SubmitParams describes a request as filed by a company.
type SubmitParams struct {
	CompanyID     int64
	Type          domain.RequestType
	Justification string
	TargetIPID    *int64 // required for renewal and cancellation
	MACAddress    string
	Temporary     bool
	ExpiresAt     *time.Time
	RequestedBy   string
}

// ApproveParams describes an administrator's approval.
type ApproveParams struct {
	RequestID  int64
	Approver   string
	ChosenIPID *int64 // required for new requests, forbidden otherwise
	Notes      string
}

// ApprovalResult is the state committed by Approve.
type ApprovalResult struct {
	Request     domain.IPRequest
	IP          domain.IP
	OperationID string
}

// SweepResult summarizes one ExpireSweep pass.
type SweepResult struct {
	Scanned int
	Expired int
	Skipped int
}

// unit is the state of one engine operation inside its transaction.
type unit struct {
	q       repository.Queries
	now     time.Time
	opID    string
	records []domain.IPHistory
}

func (u *unit) record(ctx context.Context, rec domain.IPHistory) error {
	rec.Timestamp = u.now
	rec.OperationID = u.opID

	saved, err := u.q.Ledger.Append(ctx, rec)
	if err != nil {
		return err
	}
	u.records = append(u.records, saved)
	return nil
}

// run executes fn in a transaction. The timestamp is read after the
// transaction holds the write lock, so ledger order matches commit order.
// A clock that steps backwards is held at the newest ledger timestamp.
func (e *Engine) run(ctx context.Context, operation string, fn func(u *unit) error) (*unit, error) {
	u := &unit{opID: e.newOperationID()}
	logger := log.WithOperationID(e.logger, operation, u.opID)

	err := e.store.InTx(ctx, func(q repository.Queries) error {
		u.q = q
		u.now = e.clock.Now().UTC()
		u.records = nil

		latest, err := q.Ledger.Latest(ctx)
		if err != nil {
			return err
		}
		if u.now.Before(latest) {
			logger.Warn().Time("clock", u.now).Time("ledger", latest).Msg("clock behind ledger")
			u.now = latest
		}
		return fn(u)
	})
	if err != nil {
		if errors.Is(err, repository.ErrConflict) || errors.Is(err, ErrIPNoLongerAvailable) || errors.Is(err, ErrNotPending) {
			metrics.ConflictsTotal.WithLabelValues(operation).Inc()
			logger.Warn().Err(err).Msg("lost concurrent update")
		}
		return nil, err
	}

	inventoryChanged := false
	for _, rec := range u.records {
		entity := "ip"
		switch rec.Action {
		case domain.ActionRequested, domain.ActionApproved, domain.ActionRejected, domain.ActionCancelled:
			entity = "request"
		default:
			inventoryChanged = true
		}
		metrics.TransitionsTotal.WithLabelValues(entity, string(rec.Action)).Inc()

		event := logger.Info().
			Str("action", string(rec.Action)).
			Str("performed_by", rec.PerformedBy)
		if rec.RequestID != nil {
			event = event.Int64("request_id", *rec.RequestID)
		}
		if rec.IPID != nil {
			event = event.Int64("ip_id", *rec.IPID)
		}
		event.Msg("transition committed")
	}

	if inventoryChanged {
		if err := e.RefreshInventoryGauge(ctx); err != nil {
			logger.Warn().Err(err).Msg("failed to refresh inventory gauge")
		}
	}

	return u, nil
}

// RefreshInventoryGauge sets the ipdesk_ips gauge from the current inventory.
func (e *Engine) RefreshInventoryGauge(ctx context.Context) error {
	counts, err := e.CountIPsByStatus(ctx)
	if err != nil {
		return err
	}
	for _, status := range []domain.IPStatus{domain.IPAvailable, domain.IPInUse, domain.IPExpired} {
		metrics.IPsTotal.WithLabelValues(string(status)).Set(float64(counts[status]))
	}
	return nil
}

// checkLease rejects an expiration that is not after both now and the lease
// being replaced.
func checkLease(u *unit, req domain.IPRequest, current *time.Time) error {
	if req.ExpiresAt == nil {
		return nil
	}
	if !req.ExpiresAt.After(u.now) {
		return fmt.Errorf("%w: request %d expiration %s has passed", ErrInvalidTarget, req.ID, req.ExpiresAt.UTC().Format(time.RFC3339))
	}
	if current != nil && !req.ExpiresAt.After(*current) {
		return fmt.Errorf("%w: request %d expiration %s does not extend the lease ending %s",
			ErrInvalidTarget, req.ID, req.ExpiresAt.UTC().Format(time.RFC3339), current.UTC().Format(time.RFC3339))
	}
	return nil
}

func normalizeMAC(mac string) (string, error) {
	if mac == "" {
		return "", nil
	}
	hw, err := net.ParseMAC(mac)
	if err != nil {
		return "", fmt.Errorf("%w: mac address %q: %v", repository.ErrInvalidEntity, mac, err)
	}
	return hw.String(), nil
}

func validateSubmit(p SubmitParams, now time.Time) error {
	if _, err := domain.ParseRequestType(string(p.Type)); err != nil {
		return fmt.Errorf("%w: %v", repository.ErrInvalidEntity, err)
	}
	if p.RequestedBy == "" {
		return fmt.Errorf("%w: requester is required", repository.ErrInvalidEntity)
	}
	if p.Justification == "" {
		return fmt.Errorf("%w: justification is required", repository.ErrInvalidEntity)
	}
	if p.Type == domain.RequestRenewal && p.ExpiresAt == nil {
		return fmt.Errorf("%w: renewal requires an expiration date", repository.ErrInvalidEntity)
	}
	if p.Temporary && p.ExpiresAt == nil {
		return fmt.Errorf("%w: temporary allocation requires an expiration date", repository.ErrInvalidEntity)
	}
	if p.ExpiresAt != nil && !p.ExpiresAt.After(now) {
		return fmt.Errorf("%w: expiration %s is not in the future", repository.ErrInvalidEntity, p.ExpiresAt.UTC().Format(time.RFC3339))
	}
	if p.Type == domain.RequestNew && p.TargetIPID != nil {
		return fmt.Errorf("%w: new request must not name an ip", ErrInvalidTarget)
	}
	if p.Type.TargetsExistingIP() && p.TargetIPID == nil {
		return fmt.Errorf("%w: %s request requires a target ip", ErrInvalidTarget, p.Type)
	}
	return nil
}

// SubmitRequest files a pending request and records it in the ledger.
func (e *Engine) SubmitRequest(ctx context.Context, p SubmitParams) (domain.IPRequest, error) {
	mac, err := normalizeMAC(p.MACAddress)
	if err != nil {
		return domain.IPRequest{}, err
	}

	var created domain.IPRequest
	_, err = e.run(ctx, "submit", func(u *unit) error {
		if err := validateSubmit(p, u.now); err != nil {
			return err
		}

		company, err := u.q.Companies.FindByID(ctx, p.CompanyID)
		if err != nil {
			return err
		}

		if p.Type == domain.RequestNew {
			free, err := u.q.IPs.CountFree(ctx, company.RoomID)
			if err != nil {
				return err
			}
			if free == 0 {
				return fmt.Errorf("%w: company %d", ErrNoCapacity, company.ID)
			}
		} else {
			ip, err := u.q.IPs.FindByID(ctx, *p.TargetIPID)
			if err != nil {
				return err
			}
			if !ip.HeldBy(company.ID) {
				return fmt.Errorf("%w: ip %d is %s and not held by company %d", ErrInvalidTarget, ip.ID, ip.Status, company.ID)
			}
		}

		created, err = u.q.Requests.Create(ctx, domain.IPRequest{
			Type:          p.Type,
			Status:        domain.RequestPending,
			Justification: p.Justification,
			CompanyID:     company.ID,
			RequestedBy:   p.RequestedBy,
			IPID:          p.TargetIPID,
			MACAddress:    mac,
			Temporary:     p.Temporary,
			ExpiresAt:     p.ExpiresAt,
			RequestedAt:   u.now,
		})
		if err != nil {
			return err
		}

		return u.record(ctx, domain.IPHistory{
			Action:      domain.ActionRequested,
			IPID:        created.IPID,
			RequestID:   &created.ID,
			CompanyID:   &created.CompanyID,
			PerformedBy: p.RequestedBy,
			Notes:       p.Justification,
			ExpiresAt:   created.ExpiresAt,
			MACAddress:  created.MACAddress,
		})
	})
	if err != nil {
		return domain.IPRequest{}, err
	}

	return created, nil
}

// loadPending reads a request and fails with ErrNotPending if it is terminal.
func loadPending(ctx context.Context, q repository.Queries, requestID int64) (domain.IPRequest, error) {
	req, err := q.Requests.FindByID(ctx, requestID)
	if err != nil {
		return domain.IPRequest{}, err
	}
	if req.Status != domain.RequestPending {
		return domain.IPRequest{}, fmt.Errorf("%w: request %d is %s", ErrNotPending, req.ID, req.Status)
	}
	return req, nil
}

// setTerminal maps a lost status race to ErrNotPending.
func setTerminal(ctx context.Context, q repository.Queries, d repository.RequestDecision) (domain.IPRequest, error) {
	req, err := q.Requests.SetTerminal(ctx, d)
	if err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return domain.IPRequest{}, fmt.Errorf("%w: %w", ErrNotPending, err)
		}
		return domain.IPRequest{}, err
	}
	return req, nil
}

// Approve grants a pending request: the ip transition, the request decision and
// both ledger records commit together or not at all.
func (e *Engine) Approve(ctx context.Context, p ApproveParams) (ApprovalResult, error) {
	if p.Approver == "" {
		return ApprovalResult{}, fmt.Errorf("%w: approver is required", repository.ErrInvalidEntity)
	}

	var result ApprovalResult
	u, err := e.run(ctx, "approve", func(u *unit) error {
		req, err := loadPending(ctx, u.q, p.RequestID)
		if err != nil {
			return err
		}

		var (
			ip     domain.IP
			action domain.HistoryAction
		)
		switch req.Type {
		case domain.RequestNew:
			ip, err = e.assign(ctx, u, req, p.ChosenIPID)
			action = domain.ActionAssigned
		case domain.RequestRenewal:
			ip, err = e.renew(ctx, u, req, p.ChosenIPID)
			action = domain.ActionRenewed
		case domain.RequestCancellation:
			ip, err = e.release(ctx, u, req, p.ChosenIPID)
			action = domain.ActionReleased
		default:
			err = fmt.Errorf("%w: unknown request type %q", repository.ErrInvalidEntity, req.Type)
		}
		if err != nil {
			return err
		}

		if err := u.record(ctx, domain.IPHistory{
			Action:      action,
			IPID:        &ip.ID,
			RequestID:   &req.ID,
			CompanyID:   &req.CompanyID,
			PerformedBy: p.Approver,
			Notes:       p.Notes,
			ExpiresAt:   ip.ExpiresAt,
			MACAddress:  ip.MACAddress,
		}); err != nil {
			return err
		}

		approved, err := setTerminal(ctx, u.q, repository.RequestDecision{
			ID:        req.ID,
			Status:    domain.RequestApproved,
			IPID:      &ip.ID,
			DecidedBy: p.Approver,
			Notes:     p.Notes,
			At:        u.now,
		})
		if err != nil {
			return err
		}

		if err := u.record(ctx, domain.IPHistory{
			Action:      domain.ActionApproved,
			IPID:        &ip.ID,
			RequestID:   &req.ID,
			CompanyID:   &req.CompanyID,
			PerformedBy: p.Approver,
			Notes:       p.Notes,
			ExpiresAt:   ip.ExpiresAt,
			MACAddress:  ip.MACAddress,
		}); err != nil {
			return err
		}

		result = ApprovalResult{Request: approved, IP: ip}
		return nil
	})
	if err != nil {
		return ApprovalResult{}, err
	}

	result.OperationID = u.opID
	return result, nil
}

func (e *Engine) assign(ctx context.Context, u *unit, req domain.IPRequest, chosen *int64) (domain.IP, error) {
	if chosen == nil {
		return domain.IP{}, fmt.Errorf("%w: approving a new request requires choosing an ip", ErrInvalidTarget)
	}
	if err := checkLease(u, req, nil); err != nil {
		return domain.IP{}, err
	}

	company, err := u.q.Companies.FindByID(ctx, req.CompanyID)
	if err != nil {
		return domain.IP{}, err
	}
	ip, err := u.q.IPs.FindByID(ctx, *chosen)
	if err != nil {
		return domain.IP{}, err
	}
	if ip.RoomID != company.RoomID {
		return domain.IP{}, fmt.Errorf("%w: ip %d is not in room %d of company %d", ErrInvalidTarget, ip.ID, company.RoomID, company.ID)
	}
	if !ip.IsFree() {
		return domain.IP{}, fmt.Errorf("%w: ip %d is %s", ErrIPNoLongerAvailable, ip.ID, ip.Status)
	}

	assigned, err := u.q.IPs.TransitionTo(ctx, repository.IPTransition{
		IPID:            ip.ID,
		To:              domain.IPInUse,
		CompanyID:       &company.ID,
		MACAddress:      req.MACAddress,
		ExpiresAt:       req.ExpiresAt,
		ExpectedVersion: ip.Version,
		At:              u.now,
	})
	if err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return domain.IP{}, fmt.Errorf("%w: ip %d: %w", ErrIPNoLongerAvailable, ip.ID, err)
		}
		return domain.IP{}, err
	}
	return assigned, nil
}

// heldTarget loads the address a renewal or cancellation refers to and checks
// the company still holds it.
func heldTarget(ctx context.Context, u *unit, req domain.IPRequest, chosen *int64) (domain.IP, error) {
	if chosen != nil {
		return domain.IP{}, fmt.Errorf("%w: an ip can only be chosen when approving a new request", ErrInvalidTarget)
	}
	if req.IPID == nil {
		return domain.IP{}, fmt.Errorf("%w: request %d has no target ip", ErrInvalidTarget, req.ID)
	}

	ip, err := u.q.IPs.FindByID(ctx, *req.IPID)
	if err != nil {
		return domain.IP{}, err
	}
	if !ip.HeldBy(req.CompanyID) {
		return domain.IP{}, fmt.Errorf("%w: ip %d is %s and no longer held by company %d", ErrInvalidTarget, ip.ID, ip.Status, req.CompanyID)
	}
	return ip, nil
}

func (e *Engine) renew(ctx context.Context, u *unit, req domain.IPRequest, chosen *int64) (domain.IP, error) {
	ip, err := heldTarget(ctx, u, req, chosen)
	if err != nil {
		return domain.IP{}, err
	}
	if req.ExpiresAt == nil {
		return domain.IP{}, fmt.Errorf("%w: renewal request %d has no expiration date", repository.ErrInvalidEntity, req.ID)
	}
	if err := checkLease(u, req, ip.ExpiresAt); err != nil {
		return domain.IP{}, err
	}

	mac := ip.MACAddress
	if req.MACAddress != "" {
		mac = req.MACAddress
	}

	return u.q.IPs.TransitionTo(ctx, repository.IPTransition{
		IPID:            ip.ID,
		To:              domain.IPInUse,
		CompanyID:       ip.CompanyID,
		MACAddress:      mac,
		ExpiresAt:       req.ExpiresAt,
		ExpectedVersion: ip.Version,
		At:              u.now,
	})
}

func (e *Engine) release(ctx context.Context, u *unit, req domain.IPRequest, chosen *int64) (domain.IP, error) {
	ip, err := heldTarget(ctx, u, req, chosen)
	if err != nil {
		return domain.IP{}, err
	}

	return u.q.IPs.TransitionTo(ctx, repository.IPTransition{
		IPID:            ip.ID,
		To:              domain.IPAvailable,
		ExpectedVersion: ip.Version,
		At:              u.now,
	})
}

// Reject declines a pending request. No ip changes.
func (e *Engine) Reject(ctx context.Context, requestID int64, approver, reason string) (domain.IPRequest, error) {
	if approver == "" {
		return domain.IPRequest{}, fmt.Errorf("%w: approver is required", repository.ErrInvalidEntity)
	}
	if reason == "" {
		return domain.IPRequest{}, fmt.Errorf("%w: rejection reason is required", repository.ErrInvalidEntity)
	}

	var rejected domain.IPRequest
	_, err := e.run(ctx, "reject", func(u *unit) error {
		req, err := loadPending(ctx, u.q, requestID)
		if err != nil {
			return err
		}

		rejected, err = setTerminal(ctx, u.q, repository.RequestDecision{
			ID:              req.ID,
			Status:          domain.RequestRejected,
			DecidedBy:       approver,
			RejectionReason: reason,
			At:              u.now,
		})
		if err != nil {
			return err
		}

		return u.record(ctx, domain.IPHistory{
			Action:      domain.ActionRejected,
			IPID:        req.IPID,
			RequestID:   &req.ID,
			CompanyID:   &req.CompanyID,
			PerformedBy: approver,
			Notes:       reason,
		})
	})
	if err != nil {
		return domain.IPRequest{}, err
	}

	return rejected, nil
}

// CancelByRequester withdraws a pending request. Only the original requester or
// an administrator may do so. No ip changes.
func (e *Engine) CancelByRequester(ctx context.Context, requestID int64, requester domain.Identity) (domain.IPRequest, error) {
	if requester.Username == "" {
		return domain.IPRequest{}, fmt.Errorf("%w: requester is required", repository.ErrInvalidEntity)
	}

	var cancelled domain.IPRequest
	_, err := e.run(ctx, "cancel", func(u *unit) error {
		req, err := u.q.Requests.FindByID(ctx, requestID)
		if err != nil {
			return err
		}
		if !requester.IsAdmin() && req.RequestedBy != requester.Username {
			return fmt.Errorf("%w: request %d was filed by %s", ErrForbidden, req.ID, req.RequestedBy)
		}
		if req.Status != domain.RequestPending {
			return fmt.Errorf("%w: request %d is %s", ErrNotPending, req.ID, req.Status)
		}

		cancelled, err = setTerminal(ctx, u.q, repository.RequestDecision{
			ID:        req.ID,
			Status:    domain.RequestCancelled,
			DecidedBy: requester.Username,
			At:        u.now,
		})
		if err != nil {
			return err
		}

		return u.record(ctx, domain.IPHistory{
			Action:      domain.ActionCancelled,
			IPID:        req.IPID,
			RequestID:   &req.ID,
			CompanyID:   &req.CompanyID,
			PerformedBy: requester.Username,
		})
	})
	if err != nil {
		return domain.IPRequest{}, err
	}

	return cancelled, nil
}

// errSkipped ends a sweep transaction for an ip that no longer needs expiring.
var errSkipped = errors.New("ip no longer expiring")

// ExpireSweep moves every in-use ip whose expiration is at or before now to
// expired. Each ip commits in its own transaction; an ip changed concurrently
// is skipped and picked up by a later sweep if still due.
func (e *Engine) ExpireSweep(ctx context.Context, now time.Time) (SweepResult, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.SweepDuration)

	due, err := e.store.Queries().IPs.ListExpiring(ctx, now)
	if err != nil {
		return SweepResult{}, err
	}

	result := SweepResult{Scanned: len(due)}
	for _, candidate := range due {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		_, err := e.run(ctx, "sweep", func(u *unit) error {
			ip, err := u.q.IPs.FindByID(ctx, candidate.ID)
			if err != nil {
				return err
			}
			if ip.Status != domain.IPInUse || ip.ExpiresAt == nil || ip.ExpiresAt.After(now) {
				return errSkipped
			}

			expired, err := u.q.IPs.TransitionTo(ctx, repository.IPTransition{
				IPID:            ip.ID,
				To:              domain.IPExpired,
				ExpiresAt:       ip.ExpiresAt,
				ExpectedVersion: ip.Version,
				At:              u.now,
			})
			if err != nil {
				return err
			}

			return u.record(ctx, domain.IPHistory{
				Action:      domain.ActionExpired,
				IPID:        &expired.ID,
				CompanyID:   ip.CompanyID,
				PerformedBy: domain.SystemActor,
				Notes:       "lease expired",
				ExpiresAt:   ip.ExpiresAt,
				MACAddress:  ip.MACAddress,
			})
		})
		switch {
		case err == nil:
			result.Expired++
		case errors.Is(err, errSkipped), errors.Is(err, repository.ErrConflict):
			result.Skipped++
		default:
			return result, fmt.Errorf("failed to expire ip %d: %w", candidate.ID, err)
		}
	}

	metrics.SweepExpiredTotal.Add(float64(result.Expired))
	e.logger.Info().
		Int("scanned", result.Scanned).
		Int("expired", result.Expired).
		Int("skipped", result.Skipped).
		Msg("expiration sweep finished")

	return result, nil
}
