package repository

import (
	"context"
	"testing"
	"time"

	"github.com/jbweber/homelab/ipdesk/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func appendRecords(t *testing.T, l Ledger, recs ...domain.IPHistory) []domain.IPHistory {
	t.Helper()
	out := make([]domain.IPHistory, 0, len(recs))
	for _, rec := range recs {
		saved, err := l.Append(context.Background(), rec)
		require.NoError(t, err)
		out = append(out, saved)
	}
	return out
}

func TestLedger_AppendAndQueryOrder(t *testing.T) {
	store := setupStore(t)
	q := store.Queries()
	_, company, ips := seedTenant(t, q, "A-101", "acme", "10.0.0.1", "10.0.0.2")
	ip1, ip2 := ips[0].ID, ips[1].ID

	// Appended out of timestamp order; ties broken by id
	saved := appendRecords(t, q.Ledger,
		domain.IPHistory{Action: domain.ActionAssigned, IPID: &ip1, CompanyID: &company.ID,
			PerformedBy: "admin", Timestamp: baseTime.Add(time.Minute), OperationID: "op-2"},
		domain.IPHistory{Action: domain.ActionRequested, CompanyID: &company.ID,
			PerformedBy: "alice", Timestamp: baseTime, OperationID: "op-1"},
		domain.IPHistory{Action: domain.ActionApproved, IPID: &ip1, CompanyID: &company.ID,
			PerformedBy: "admin", Timestamp: baseTime.Add(time.Minute), OperationID: "op-2"},
		domain.IPHistory{Action: domain.ActionAssigned, IPID: &ip2, CompanyID: &company.ID,
			PerformedBy: "admin", Timestamp: baseTime.Add(2 * time.Minute), OperationID: "op-3"},
	)

	records, err := q.Ledger.Query(context.Background(), HistoryFilter{}).Collect()
	require.NoError(t, err)
	require.Len(t, records, 4)

	wantOrder := []int64{saved[1].ID, saved[0].ID, saved[2].ID, saved[3].ID}
	for i, rec := range records {
		if rec.ID != wantOrder[i] {
			t.Errorf("Expected record %d at position %d, got %d", wantOrder[i], i, rec.ID)
		}
	}
	assert.Equal(t, saved[1], records[0])
}

func TestLedger_QueryFilters(t *testing.T) {
	store := setupStore(t)
	q := store.Queries()
	ctx := context.Background()
	_, company, ips := seedTenant(t, q, "A-101", "acme", "10.0.0.1", "10.0.0.2")
	ip1, ip2 := ips[0].ID, ips[1].ID

	req, err := q.Requests.Create(ctx, newRequest(company.ID, domain.RequestNew, nil))
	require.NoError(t, err)

	appendRecords(t, q.Ledger,
		domain.IPHistory{Action: domain.ActionRequested, RequestID: &req.ID, CompanyID: &company.ID,
			PerformedBy: "alice", Timestamp: baseTime, OperationID: "op-1"},
		domain.IPHistory{Action: domain.ActionAssigned, IPID: &ip1, RequestID: &req.ID, CompanyID: &company.ID,
			PerformedBy: "admin", Timestamp: baseTime.Add(time.Hour), OperationID: "op-2"},
		domain.IPHistory{Action: domain.ActionExpired, IPID: &ip2,
			PerformedBy: domain.SystemActor, Timestamp: baseTime.Add(2 * time.Hour), OperationID: "op-3"},
	)

	count := func(f HistoryFilter) int {
		records, err := q.Ledger.Query(ctx, f).Collect()
		require.NoError(t, err)
		return len(records)
	}

	expired := domain.ActionExpired
	from := baseTime.Add(time.Hour)
	to := baseTime.Add(2 * time.Hour)

	assert.Equal(t, 1, count(HistoryFilter{IPID: &ip1}))
	assert.Equal(t, 2, count(HistoryFilter{CompanyID: &company.ID}))
	assert.Equal(t, 2, count(HistoryFilter{RequestID: &req.ID}))
	assert.Equal(t, 1, count(HistoryFilter{Action: &expired}))
	assert.Equal(t, 2, count(HistoryFilter{From: &from}))
	assert.Equal(t, 1, count(HistoryFilter{From: &from, To: &to}), "To is exclusive")
	assert.Equal(t, 0, count(HistoryFilter{IPID: &ip2, CompanyID: &company.ID}))
}

func TestLedger_CursorIsSingleUse(t *testing.T) {
	store := setupStore(t)
	q := store.Queries()
	_, _, ips := seedTenant(t, q, "A-101", "acme", "10.0.0.1", "10.0.0.1")

	appendRecords(t, q.Ledger,
		domain.IPHistory{Action: domain.ActionExpired, IPID: &ips[0].ID,
			PerformedBy: domain.SystemActor, Timestamp: baseTime, OperationID: "op-1"},
	)

	cursor := q.Ledger.Query(context.Background(), HistoryFilter{})

	first, err := cursor.Collect()
	require.NoError(t, err)
	assert.Len(t, first, 1)

	var errs []error
	for _, err := range cursor.All() {
		errs = append(errs, err)
	}
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], ErrCursorConsumed)
}

func TestLedger_CursorStopsEarly(t *testing.T) {
	store := setupStore(t)
	q := store.Queries()
	_, _, ips := seedTenant(t, q, "A-101", "acme", "10.0.0.1", "10.0.0.1")

	for i := 0; i < 5; i++ {
		appendRecords(t, q.Ledger, domain.IPHistory{Action: domain.ActionExpired, IPID: &ips[0].ID,
			PerformedBy: domain.SystemActor, Timestamp: baseTime.Add(time.Duration(i) * time.Second), OperationID: "op"})
	}

	seen := 0
	for rec, err := range q.Ledger.Query(context.Background(), HistoryFilter{}).All() {
		require.NoError(t, err)
		require.NotZero(t, rec.ID)
		seen++
		if seen == 2 {
			break
		}
	}
	assert.Equal(t, 2, seen)

	// Breaking out released the rows; the database is still writable
	appendRecords(t, q.Ledger, domain.IPHistory{Action: domain.ActionExpired, IPID: &ips[0].ID,
		PerformedBy: domain.SystemActor, Timestamp: baseTime.Add(time.Hour), OperationID: "op"})
}

func TestLedger_Append_Invalid(t *testing.T) {
	store := setupStore(t)
	q := store.Queries()
	_, _, ips := seedTenant(t, q, "A-101", "acme", "10.0.0.1", "10.0.0.1")
	ipID := ips[0].ID

	valid := domain.IPHistory{Action: domain.ActionRenewed, IPID: &ipID, PerformedBy: "admin",
		Timestamp: baseTime, OperationID: "op-1"}

	tests := []struct {
		name   string
		mutate func(r *domain.IPHistory)
	}{
		{"unknown action", func(r *domain.IPHistory) { r.Action = "edited" }},
		{"lifecycle without ip", func(r *domain.IPHistory) { r.IPID = nil }},
		{"no performer", func(r *domain.IPHistory) { r.PerformedBy = "" }},
		{"no operation", func(r *domain.IPHistory) { r.OperationID = "" }},
		{"no timestamp", func(r *domain.IPHistory) { r.Timestamp = time.Time{} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := valid
			tt.mutate(&rec)
			_, err := q.Ledger.Append(context.Background(), rec)
			assert.ErrorIs(t, err, ErrInvalidEntity)
		})
	}
}

func TestLedger_StorageRejectsRewrites(t *testing.T) {
	store := setupStore(t)
	q := store.Queries()
	_, _, ips := seedTenant(t, q, "A-101", "acme", "10.0.0.1", "10.0.0.1")

	appendRecords(t, q.Ledger, domain.IPHistory{Action: domain.ActionExpired, IPID: &ips[0].ID,
		PerformedBy: domain.SystemActor, Timestamp: baseTime, OperationID: "op-1"})

	_, err := store.DB().Exec("UPDATE ip_history SET performed_by = 'mallory'")
	assert.ErrorContains(t, err, "append-only")

	_, err = store.DB().Exec("DELETE FROM ip_history")
	assert.ErrorContains(t, err, "append-only")
}

func TestLedger_Latest(t *testing.T) {
	store := setupStore(t)
	q := store.Queries()
	ctx := context.Background()
	_, _, ips := seedTenant(t, q, "A-101", "acme", "10.0.0.1", "10.0.0.1")

	latest, err := q.Ledger.Latest(ctx)
	require.NoError(t, err)
	assert.True(t, latest.IsZero(), "empty ledger")

	appendRecords(t, q.Ledger,
		domain.IPHistory{Action: domain.ActionExpired, IPID: &ips[0].ID,
			PerformedBy: domain.SystemActor, Timestamp: baseTime.Add(time.Hour), OperationID: "op-1"},
		domain.IPHistory{Action: domain.ActionExpired, IPID: &ips[0].ID,
			PerformedBy: domain.SystemActor, Timestamp: baseTime, OperationID: "op-2"},
	)

	latest, err = q.Ledger.Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, baseTime.Add(time.Hour).UTC(), latest)
}
