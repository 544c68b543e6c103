package workflow

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jbweber/homelab/ipdesk/internal/clock"
	"github.com/jbweber/homelab/ipdesk/internal/domain"
	"github.com/jbweber/homelab/ipdesk/internal/repository"
	"github.com/jbweber/homelab/ipdesk/internal/testutil"
)

var startTime = time.Date(2026, 2, 2, 8, 0, 0, 0, time.UTC)

type fixture struct {
	engine *Engine
	store  *repository.Store
	clock  *clock.Fake
	room   domain.Room
	acme   domain.Company
	ips    []domain.IP
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db, cleanup := testutil.SetupTestDBWithMigrations(t, t.Name())
	t.Cleanup(cleanup)

	store := repository.NewStore(db)
	clk := clock.NewFake(startTime)
	f := &fixture{
		engine: NewEngine(store, clk),
		store:  store,
		clock:  clk,
	}
	f.room, f.acme, f.ips = f.addTenant(t, "A-101", "acme", "10.0.0.1", "10.0.0.4")
	return f
}

func (f *fixture) addTenant(t *testing.T, roomNumber, name, start, end string) (domain.Room, domain.Company, []domain.IP) {
	t.Helper()
	ctx := context.Background()
	q := f.store.Queries()

	room, err := q.Rooms.Create(ctx, domain.Room{Number: roomNumber})
	require.NoError(t, err)
	company, err := q.Companies.Create(ctx, domain.Company{Name: name, Owner: name + "-owner", RoomID: room.ID})
	require.NoError(t, err)
	ips, err := q.IPs.CreateRange(ctx, room.ID, start, end, startTime)
	require.NoError(t, err)
	return room, company, ips
}

func (f *fixture) addCompany(t *testing.T, name string, roomID int64) domain.Company {
	t.Helper()
	company, err := f.store.Queries().Companies.Create(context.Background(),
		domain.Company{Name: name, Owner: name + "-owner", RoomID: roomID})
	require.NoError(t, err)
	return company
}

func (f *fixture) submitNew(t *testing.T, company domain.Company, expiresAt *time.Time) domain.IPRequest {
	t.Helper()
	req, err := f.engine.SubmitRequest(context.Background(), SubmitParams{
		CompanyID:     company.ID,
		Type:          domain.RequestNew,
		Justification: "lab switch",
		MACAddress:    "00:11:22:33:44:55",
		ExpiresAt:     expiresAt,
		RequestedBy:   company.Owner,
	})
	require.NoError(t, err)
	return req
}

// allocate runs submit then approve for a new request and returns the assigned ip.
func (f *fixture) allocate(t *testing.T, company domain.Company, ipID int64, expiresAt *time.Time) domain.IP {
	t.Helper()
	req := f.submitNew(t, company, expiresAt)
	result, err := f.engine.Approve(context.Background(), ApproveParams{
		RequestID: req.ID, Approver: "admin", ChosenIPID: &ipID,
	})
	require.NoError(t, err)
	return result.IP
}

func (f *fixture) history(t *testing.T, filter repository.HistoryFilter) []domain.IPHistory {
	t.Helper()
	records, err := f.engine.History(context.Background(), filter).Collect()
	require.NoError(t, err)
	return records
}

func actions(records []domain.IPHistory) []domain.HistoryAction {
	out := make([]domain.HistoryAction, len(records))
	for i, rec := range records {
		out[i] = rec.Action
	}
	return out
}

func ptr[T any](v T) *T {
	return &v
}
