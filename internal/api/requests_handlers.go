package api

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/jbweber/homelab/ipdesk/internal/domain"
	"github.com/jbweber/homelab/ipdesk/internal/workflow"
)

type SubmitRequestBody struct {
	CompanyID     int64      `json:"company_id"`
	Type          string     `json:"type"`
	Justification string     `json:"justification"`
	IPID          *int64     `json:"ip_id,omitempty"` // Required for renewal and cancellation
	MACAddress    string     `json:"mac_address,omitempty"`
	Temporary     bool       `json:"temporary"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
}

type ApproveRequestBody struct {
	IPID  *int64 `json:"ip_id,omitempty"` // Required for new requests
	Notes string `json:"notes,omitempty"`
}

type RejectRequestBody struct {
	Reason string `json:"reason"`
}

type RequestResponse struct {
	ID              int64      `json:"id"`
	Type            string     `json:"type"`
	Status          string     `json:"status"`
	Justification   string     `json:"justification"`
	CompanyID       int64      `json:"company_id"`
	RequestedBy     string     `json:"requested_by"`
	IPID            *int64     `json:"ip_id,omitempty"`
	MACAddress      string     `json:"mac_address,omitempty"`
	Temporary       bool       `json:"temporary"`
	ExpiresAt       *time.Time `json:"expires_at,omitempty"`
	RejectionReason string     `json:"rejection_reason,omitempty"`
	Notes           string     `json:"notes,omitempty"`
	DecidedBy       string     `json:"decided_by,omitempty"`
	DecidedAt       *time.Time `json:"decided_at,omitempty"`
	RequestedAt     time.Time  `json:"requested_at"`
}

type ApprovalResponse struct {
	Request     RequestResponse `json:"request"`
	IP          IPResponse      `json:"ip"`
	OperationID string          `json:"operation_id"`
}

func toRequestResponse(req domain.IPRequest) RequestResponse {
	return RequestResponse{
		ID:              req.ID,
		Type:            string(req.Type),
		Status:          string(req.Status),
		Justification:   req.Justification,
		CompanyID:       req.CompanyID,
		RequestedBy:     req.RequestedBy,
		IPID:            req.IPID,
		MACAddress:      req.MACAddress,
		Temporary:       req.Temporary,
		ExpiresAt:       req.ExpiresAt,
		RejectionReason: req.RejectionReason,
		Notes:           req.Notes,
		DecidedBy:       req.DecidedBy,
		DecidedAt:       req.DecidedAt,
		RequestedAt:     req.RequestedAt,
	}
}

func toRequestResponses(reqs []domain.IPRequest) []RequestResponse {
	response := make([]RequestResponse, len(reqs))
	for i, req := range reqs {
		response[i] = toRequestResponse(req)
	}
	return response
}

// submitRequestHandler handles POST /api/v0/requests.
//
// Company callers may only file for a company they own. The caller becomes
// the requester. Response: 201 Created with the pending request.
func (a *API) submitRequestHandler(w http.ResponseWriter, r *http.Request) {
	caller, _ := IdentityFromContext(r.Context())

	var body SubmitRequestBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if body.CompanyID <= 0 {
		writeError(w, http.StatusBadRequest, "company_id is required")
		return
	}
	reqType, err := domain.ParseRequestType(body.Type)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := a.authorizeCompany(r.Context(), caller, body.CompanyID); err != nil {
		writeEngineError(w, r, err)
		return
	}

	created, err := a.engine.SubmitRequest(r.Context(), workflow.SubmitParams{
		CompanyID:     body.CompanyID,
		Type:          reqType,
		Justification: body.Justification,
		TargetIPID:    body.IPID,
		MACAddress:    body.MACAddress,
		Temporary:     body.Temporary,
		ExpiresAt:     body.ExpiresAt,
		RequestedBy:   caller.Username,
	})
	if err != nil {
		writeEngineError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, toRequestResponse(created))
}

// listCompanyRequestsHandler handles GET /api/v0/requests?company_id=
func (a *API) listCompanyRequestsHandler(w http.ResponseWriter, r *http.Request) {
	caller, _ := IdentityFromContext(r.Context())

	companyID, err := optionalInt64(r, "company_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if companyID == nil {
		writeError(w, http.StatusBadRequest, "company_id is required")
		return
	}

	if err := a.authorizeCompany(r.Context(), caller, *companyID); err != nil {
		writeEngineError(w, r, err)
		return
	}

	reqs, err := a.engine.ListCompanyRequests(r.Context(), *companyID)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toRequestResponses(reqs))
}

// listPendingRequestsHandler handles GET /api/v0/requests/pending
func (a *API) listPendingRequestsHandler(w http.ResponseWriter, r *http.Request) {
	reqs, err := a.engine.ListPendingRequests(r.Context())
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toRequestResponses(reqs))
}

// getRequestHandler handles GET /api/v0/requests/{id}
func (a *API) getRequestHandler(w http.ResponseWriter, r *http.Request) {
	caller, _ := IdentityFromContext(r.Context())

	id, err := idParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	req, err := a.engine.GetRequest(r.Context(), id)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	if err := a.authorizeCompany(r.Context(), caller, req.CompanyID); err != nil {
		writeEngineError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toRequestResponse(req))
}

// approveRequestHandler handles POST /api/v0/requests/{id}/approve.
//
// A new request needs "ip_id" naming the address to assign. Renewals and
// cancellations take an empty body or notes only.
func (a *API) approveRequestHandler(w http.ResponseWriter, r *http.Request) {
	caller, _ := IdentityFromContext(r.Context())

	id, err := idParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var body ApproveRequestBody
	if err := decodeJSON(r, &body); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := a.engine.Approve(r.Context(), workflow.ApproveParams{
		RequestID:  id,
		Approver:   caller.Username,
		ChosenIPID: body.IPID,
		Notes:      body.Notes,
	})
	if err != nil {
		writeEngineError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, ApprovalResponse{
		Request:     toRequestResponse(result.Request),
		IP:          toIPResponse(result.IP),
		OperationID: result.OperationID,
	})
}

// rejectRequestHandler handles POST /api/v0/requests/{id}/reject
func (a *API) rejectRequestHandler(w http.ResponseWriter, r *http.Request) {
	caller, _ := IdentityFromContext(r.Context())

	id, err := idParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var body RejectRequestBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	rejected, err := a.engine.Reject(r.Context(), id, caller.Username, body.Reason)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toRequestResponse(rejected))
}

// cancelRequestHandler handles POST /api/v0/requests/{id}/cancel. The engine
// allows the original requester or an administrator.
func (a *API) cancelRequestHandler(w http.ResponseWriter, r *http.Request) {
	caller, _ := IdentityFromContext(r.Context())

	id, err := idParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	cancelled, err := a.engine.CancelByRequester(r.Context(), id, caller)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toRequestResponse(cancelled))
}
