package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jbweber/homelab/ipdesk/internal/domain"
)

// RequestDecision moves a pending request to a terminal status.
type RequestDecision struct {
	ID              int64
	Status          domain.RequestStatus
	IPID            *int64 // set for new requests on approval; nil keeps the stored value
	DecidedBy       string
	Notes           string
	RejectionReason string
	At              time.Time
}

// RequestRepository defines domain-specific operations for IP requests.
// SetTerminal is the only path that changes a request's status.
type RequestRepository interface {
	Create(ctx context.Context, req domain.IPRequest) (domain.IPRequest, error)
	FindByID(ctx context.Context, id int64) (domain.IPRequest, error)
	ListByCompany(ctx context.Context, companyID int64) ([]domain.IPRequest, error)
	ListPending(ctx context.Context) ([]domain.IPRequest, error)
	FindPendingFor(ctx context.Context, companyID, ipID int64) (domain.IPRequest, error)
	SetTerminal(ctx context.Context, d RequestDecision) (domain.IPRequest, error)
}

// requestRepositoryImpl implements RequestRepository
type requestRepositoryImpl struct {
	db DBTX
}

// NewRequestRepository creates a new request repository
func NewRequestRepository(db DBTX) RequestRepository {
	return &requestRepositoryImpl{db: db}
}

const requestColumns = `id, type, status, justification, company_id, requested_by, ip_id,
	mac_address, temporary, expires_at, rejection_reason, notes, decided_by, decided_at,
	requested_at`

func scanRequest(row scanner) (domain.IPRequest, error) {
	var (
		req         domain.IPRequest
		reqType     string
		status      string
		ipID        sql.NullInt64
		expiresAt   sql.NullString
		decidedAt   sql.NullString
		requestedAt string
	)
	err := row.Scan(&req.ID, &reqType, &status, &req.Justification, &req.CompanyID,
		&req.RequestedBy, &ipID, &req.MACAddress, &req.Temporary, &expiresAt,
		&req.RejectionReason, &req.Notes, &req.DecidedBy, &decidedAt, &requestedAt)
	if err != nil {
		return domain.IPRequest{}, err
	}

	if req.Type, err = domain.ParseRequestType(reqType); err != nil {
		return domain.IPRequest{}, err
	}
	if req.Status, err = domain.ParseRequestStatus(status); err != nil {
		return domain.IPRequest{}, err
	}
	req.IPID = int64Ptr(ipID)
	if req.ExpiresAt, err = parseNullTime(expiresAt); err != nil {
		return domain.IPRequest{}, err
	}
	if req.DecidedAt, err = parseNullTime(decidedAt); err != nil {
		return domain.IPRequest{}, err
	}
	if req.RequestedAt, err = parseTime(requestedAt); err != nil {
		return domain.IPRequest{}, err
	}
	return req, nil
}

func (r *requestRepositoryImpl) queryRequests(ctx context.Context, query string, args ...any) ([]domain.IPRequest, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query requests: %w", err)
	}
	defer rows.Close()

	requests := []domain.IPRequest{}
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan request: %w", err)
		}
		requests = append(requests, req)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate requests: %w", err)
	}

	return requests, nil
}

func validateNewRequest(req domain.IPRequest) error {
	if _, err := domain.ParseRequestType(string(req.Type)); err != nil {
		return invalidf("%v", err)
	}
	if req.Status != domain.RequestPending {
		return invalidf("requests are created pending, got %q", req.Status)
	}
	if req.CompanyID == 0 {
		return invalidf("company is required")
	}
	if req.RequestedBy == "" {
		return invalidf("requester is required")
	}
	if req.Justification == "" {
		return invalidf("justification is required")
	}
	if req.RequestedAt.IsZero() {
		return invalidf("request time is required")
	}
	if req.Type.TargetsExistingIP() && req.IPID == nil {
		return invalidf("%s request requires a target ip", req.Type)
	}
	if !req.Type.TargetsExistingIP() && req.IPID != nil {
		return invalidf("new request must not name an ip")
	}
	return nil
}

// Create inserts a pending request. A second pending renewal or cancellation
// for the same company and address fails with ErrDuplicatePendingRequest.
func (r *requestRepositoryImpl) Create(ctx context.Context, req domain.IPRequest) (domain.IPRequest, error) {
	if err := validateNewRequest(req); err != nil {
		return domain.IPRequest{}, err
	}

	if req.Type.TargetsExistingIP() {
		existing, err := r.FindPendingFor(ctx, req.CompanyID, *req.IPID)
		switch {
		case err == nil:
			return domain.IPRequest{}, fmt.Errorf("%w: request %d", ErrDuplicatePendingRequest, existing.ID)
		case !errors.Is(err, ErrNotFound):
			return domain.IPRequest{}, err
		}
	}

	query := `
		INSERT INTO ip_requests (type, status, justification, company_id, requested_by, ip_id,
			mac_address, temporary, expires_at, requested_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	result, err := r.db.ExecContext(ctx, query,
		string(req.Type), string(req.Status), req.Justification, req.CompanyID, req.RequestedBy,
		nullInt64(req.IPID), req.MACAddress, req.Temporary, formatNullTime(req.ExpiresAt),
		formatTime(req.RequestedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return domain.IPRequest{}, ErrDuplicatePendingRequest
		}
		if isForeignKeyViolation(err) {
			return domain.IPRequest{}, invalidf("unknown company or ip")
		}
		return domain.IPRequest{}, fmt.Errorf("failed to create request: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return domain.IPRequest{}, fmt.Errorf("failed to get request ID: %w", err)
	}

	req.ID = id
	req.RequestedAt = req.RequestedAt.UTC()
	req.ExpiresAt = utcPtr(req.ExpiresAt)
	return req, nil
}

// FindByID finds a request by ID
func (r *requestRepositoryImpl) FindByID(ctx context.Context, id int64) (domain.IPRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM ip_requests WHERE id = ?`

	req, err := scanRequest(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.IPRequest{}, fmt.Errorf("request %d: %w", id, ErrNotFound)
		}
		return domain.IPRequest{}, fmt.Errorf("failed to find request: %w", err)
	}

	return req, nil
}

// ListByCompany returns a company's requests, newest first
func (r *requestRepositoryImpl) ListByCompany(ctx context.Context, companyID int64) ([]domain.IPRequest, error) {
	query := `SELECT ` + requestColumns + `
		FROM ip_requests
		WHERE company_id = ?
		ORDER BY requested_at DESC, id DESC`

	return r.queryRequests(ctx, query, companyID)
}

// ListPending returns every pending request, oldest first
func (r *requestRepositoryImpl) ListPending(ctx context.Context) ([]domain.IPRequest, error) {
	query := `SELECT ` + requestColumns + `
		FROM ip_requests
		WHERE status = 'pending'
		ORDER BY requested_at, id`

	return r.queryRequests(ctx, query)
}

// FindPendingFor finds the pending renewal or cancellation a company holds on an address
func (r *requestRepositoryImpl) FindPendingFor(ctx context.Context, companyID, ipID int64) (domain.IPRequest, error) {
	query := `SELECT ` + requestColumns + `
		FROM ip_requests
		WHERE company_id = ? AND ip_id = ? AND status = 'pending'
			AND type IN ('renewal', 'cancellation')`

	req, err := scanRequest(r.db.QueryRowContext(ctx, query, companyID, ipID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.IPRequest{}, ErrNotFound
		}
		return domain.IPRequest{}, fmt.Errorf("failed to find pending request: %w", err)
	}

	return req, nil
}

// SetTerminal moves a pending request to d.Status. The write only applies
// while the stored status is still pending.
func (r *requestRepositoryImpl) SetTerminal(ctx context.Context, d RequestDecision) (domain.IPRequest, error) {
	if !domain.RequestPending.CanTransitionTo(d.Status) {
		return domain.IPRequest{}, fmt.Errorf("%w: request %d to %q", ErrInvalidTransition, d.ID, d.Status)
	}
	if d.DecidedBy == "" {
		return domain.IPRequest{}, invalidf("decider is required")
	}
	if d.At.IsZero() {
		return domain.IPRequest{}, invalidf("decision time is required")
	}

	query := `
		UPDATE ip_requests
		SET status = ?, ip_id = COALESCE(?, ip_id), decided_by = ?, decided_at = ?,
			notes = ?, rejection_reason = ?
		WHERE id = ? AND status = 'pending'`

	result, err := r.db.ExecContext(ctx, query,
		string(d.Status), nullInt64(d.IPID), d.DecidedBy, formatTime(d.At),
		d.Notes, d.RejectionReason, d.ID)
	if err != nil {
		return domain.IPRequest{}, fmt.Errorf("failed to update request: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return domain.IPRequest{}, fmt.Errorf("failed to get rows affected: %w", err)
	}

	updated, err := r.FindByID(ctx, d.ID)
	if err != nil {
		return domain.IPRequest{}, err
	}
	if rowsAffected == 0 {
		return domain.IPRequest{}, &ConflictError{
			Entity:   "request",
			ID:       d.ID,
			Expected: string(domain.RequestPending),
			Actual:   string(updated.Status),
		}
	}

	return updated, nil
}
