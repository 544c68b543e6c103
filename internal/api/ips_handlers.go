package api

import (
	"net/http"
	"time"

	"github.com/jbweber/homelab/ipdesk/internal/domain"
	"github.com/jbweber/homelab/ipdesk/internal/repository"
)

type IPResponse struct {
	ID         int64      `json:"id"`
	Address    string     `json:"address"`
	Status     string     `json:"status"`
	MACAddress string     `json:"mac_address,omitempty"`
	CompanyID  *int64     `json:"company_id,omitempty"`
	RoomID     int64      `json:"room_id"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	Version    int64      `json:"version"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

func toIPResponse(ip domain.IP) IPResponse {
	return IPResponse{
		ID:         ip.ID,
		Address:    ip.Address,
		Status:     string(ip.Status),
		MACAddress: ip.MACAddress,
		CompanyID:  ip.CompanyID,
		RoomID:     ip.RoomID,
		ExpiresAt:  ip.ExpiresAt,
		Version:    ip.Version,
		UpdatedAt:  ip.UpdatedAt,
	}
}

// listIPsHandler handles GET /api/v0/ips?status=&company=&room=.
// company and room match by name and room number.
func (a *API) listIPsHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := repository.IPFilter{
		CompanyName: q.Get("company"),
		RoomNumber:  q.Get("room"),
	}
	if raw := q.Get("status"); raw != "" {
		status, err := domain.ParseIPStatus(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		filter.Status = &status
	}

	ips, err := a.engine.ListIPs(r.Context(), filter)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}

	response := make([]IPResponse, len(ips))
	for i, ip := range ips {
		response[i] = toIPResponse(ip)
	}
	writeJSON(w, http.StatusOK, response)
}

// getIPHandler handles GET /api/v0/ips/{id}
func (a *API) getIPHandler(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ip, err := a.engine.GetIP(r.Context(), id)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toIPResponse(ip))
}
