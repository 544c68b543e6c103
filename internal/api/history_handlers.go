package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/jbweber/homelab/ipdesk/internal/domain"
	"github.com/jbweber/homelab/ipdesk/internal/log"
	"github.com/jbweber/homelab/ipdesk/internal/repository"
)

type HistoryResponse struct {
	ID          int64      `json:"id"`
	Action      string     `json:"action"`
	IPID        *int64     `json:"ip_id,omitempty"`
	RequestID   *int64     `json:"request_id,omitempty"`
	CompanyID   *int64     `json:"company_id,omitempty"`
	PerformedBy string     `json:"performed_by"`
	Timestamp   time.Time  `json:"timestamp"`
	Notes       string     `json:"notes,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	MACAddress  string     `json:"mac_address,omitempty"`
	OperationID string     `json:"operation_id"`
}

func toHistoryResponse(rec domain.IPHistory) HistoryResponse {
	return HistoryResponse{
		ID:          rec.ID,
		Action:      string(rec.Action),
		IPID:        rec.IPID,
		RequestID:   rec.RequestID,
		CompanyID:   rec.CompanyID,
		PerformedBy: rec.PerformedBy,
		Timestamp:   rec.Timestamp,
		Notes:       rec.Notes,
		ExpiresAt:   rec.ExpiresAt,
		MACAddress:  rec.MACAddress,
		OperationID: rec.OperationID,
	}
}

func parseHistoryFilter(r *http.Request) (repository.HistoryFilter, error) {
	var (
		filter repository.HistoryFilter
		err    error
	)
	if filter.IPID, err = optionalInt64(r, "ip_id"); err != nil {
		return filter, err
	}
	if filter.CompanyID, err = optionalInt64(r, "company_id"); err != nil {
		return filter, err
	}
	if filter.RequestID, err = optionalInt64(r, "request_id"); err != nil {
		return filter, err
	}
	if raw := r.URL.Query().Get("action"); raw != "" {
		action, err := domain.ParseHistoryAction(raw)
		if err != nil {
			return filter, err
		}
		filter.Action = &action
	}
	if filter.From, err = optionalTime(r, "from"); err != nil {
		return filter, err
	}
	if filter.To, err = optionalTime(r, "to"); err != nil {
		return filter, err
	}
	return filter, nil
}

// historyHandler handles GET /api/v0/history.
//
// Records are streamed as one JSON array in (timestamp, id) order without
// loading the result set into memory. An error before the first record
// returns a normal error response; later errors truncate the array and are
// only logged.
func (a *API) historyHandler(w http.ResponseWriter, r *http.Request) {
	filter, err := parseHistoryFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	logger := log.WithComponent("api")
	enc := json.NewEncoder(w)
	started := false

	for rec, err := range a.engine.History(r.Context(), filter).All() {
		if err != nil {
			if !started {
				writeEngineError(w, r, err)
				return
			}
			logger.Error().Err(err).Msg("history stream aborted")
			return
		}

		if !started {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			if _, err := w.Write([]byte("[")); err != nil {
				return
			}
			started = true
		} else if _, err := w.Write([]byte(",")); err != nil {
			return
		}

		if err := enc.Encode(toHistoryResponse(rec)); err != nil {
			logger.Error().Err(err).Msg("failed to encode history record")
			return
		}
	}

	if !started {
		writeJSON(w, http.StatusOK, []HistoryResponse{})
		return
	}
	if _, err := w.Write([]byte("]\n")); err != nil {
		logger.Error().Err(err).Msg("failed to finish history stream")
	}
}
