package api

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListIPs(t *testing.T) {
	a := setupTestAPI(t)
	created := a.submitNew(t, acmeOwner, a.acme.ID)
	chosen := a.ips[3].ID
	w := a.do(t, admin, http.MethodPost, fmt.Sprintf("/api/v0/requests/%d/approve", created.ID), ApproveRequestBody{IPID: &chosen})
	require.Equal(t, http.StatusOK, w.Code)

	tests := []struct {
		name  string
		query string
		want  []string
	}{
		{"all", "", []string{"10.0.0.1", "10.0.0.2", "10.0.0.3", "10.0.0.4", "10.0.1.1", "10.0.1.2"}},
		{"by room", "?room=A-101", []string{"10.0.0.1", "10.0.0.2", "10.0.0.3", "10.0.0.4"}},
		{"in use", "?status=in_use", []string{"10.0.0.4"}},
		{"by company", "?company=acme", []string{"10.0.0.4"}},
		{"available in room", "?status=available&room=B-202", []string{"10.0.1.1", "10.0.1.2"}},
		{"no match", "?company=globex", []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := a.do(t, acmeOwner, http.MethodGet, "/api/v0/ips"+tt.query, nil)
			require.Equal(t, http.StatusOK, w.Code, w.Body.String())

			got := []string{}
			for _, ip := range decodeBody[[]IPResponse](t, w) {
				got = append(got, ip.Address)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestListIPs_InvalidStatus(t *testing.T) {
	a := setupTestAPI(t)

	w := a.do(t, admin, http.MethodGet, "/api/v0/ips?status=reserved", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetIP(t *testing.T) {
	a := setupTestAPI(t)

	w := a.do(t, acmeOwner, http.MethodGet, fmt.Sprintf("/api/v0/ips/%d", a.ips[0].ID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	ip := decodeBody[IPResponse](t, w)
	assert.Equal(t, "10.0.0.1", ip.Address)
	assert.Equal(t, "available", ip.Status)
	assert.Nil(t, ip.CompanyID)

	w = a.do(t, acmeOwner, http.MethodGet, "/api/v0/ips/9999", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = a.do(t, acmeOwner, http.MethodGet, "/api/v0/ips/0", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
