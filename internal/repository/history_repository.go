package repository

import (
	"context"
	"database/sql"
	"fmt"
	"iter"
	"strings"
	"sync/atomic"
	"time"

	"github.com/jbweber/homelab/ipdesk/internal/domain"
)

// HistoryFilter narrows Query. Nil fields do not filter. From is inclusive,
// To is exclusive.
type HistoryFilter struct {
	IPID      *int64
	CompanyID *int64
	RequestID *int64
	Action    *domain.HistoryAction
	From      *time.Time
	To        *time.Time
}

// Ledger is the append-only audit trail. It has no update or delete.
type Ledger interface {
	Append(ctx context.Context, rec domain.IPHistory) (domain.IPHistory, error)
	Query(ctx context.Context, filter HistoryFilter) *HistoryCursor
	Latest(ctx context.Context) (time.Time, error)
}

// ledgerImpl implements Ledger
type ledgerImpl struct {
	db DBTX
}

// NewLedger creates a new audit ledger
func NewLedger(db DBTX) Ledger {
	return &ledgerImpl{db: db}
}

// Only request events of a new request that never received an address may omit the ip.
var actionsWithoutIP = map[domain.HistoryAction]bool{
	domain.ActionRequested: true,
	domain.ActionRejected:  true,
	domain.ActionCancelled: true,
}

func validateHistory(rec domain.IPHistory) error {
	if _, err := domain.ParseHistoryAction(string(rec.Action)); err != nil {
		return invalidf("%v", err)
	}
	if rec.IPID == nil && !actionsWithoutIP[rec.Action] {
		return invalidf("%s record requires an ip", rec.Action)
	}
	if rec.PerformedBy == "" {
		return invalidf("performer is required")
	}
	if rec.OperationID == "" {
		return invalidf("operation id is required")
	}
	if rec.Timestamp.IsZero() {
		return invalidf("timestamp is required")
	}
	return nil
}

// Append writes one audit record and returns it with its ID
func (l *ledgerImpl) Append(ctx context.Context, rec domain.IPHistory) (domain.IPHistory, error) {
	if err := validateHistory(rec); err != nil {
		return domain.IPHistory{}, err
	}

	query := `
		INSERT INTO ip_history (action, ip_id, request_id, company_id, performed_by, timestamp,
			notes, expires_at, mac_address, operation_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	result, err := l.db.ExecContext(ctx, query,
		string(rec.Action), nullInt64(rec.IPID), nullInt64(rec.RequestID), nullInt64(rec.CompanyID),
		rec.PerformedBy, formatTime(rec.Timestamp), rec.Notes, formatNullTime(rec.ExpiresAt),
		rec.MACAddress, rec.OperationID)
	if err != nil {
		return domain.IPHistory{}, fmt.Errorf("failed to append history: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return domain.IPHistory{}, fmt.Errorf("failed to get history ID: %w", err)
	}

	rec.ID = id
	rec.Timestamp = rec.Timestamp.UTC()
	rec.ExpiresAt = utcPtr(rec.ExpiresAt)
	return rec, nil
}

// Latest returns the newest record timestamp, or the zero time when the
// ledger is empty.
func (l *ledgerImpl) Latest(ctx context.Context) (time.Time, error) {
	var ts sql.NullString
	if err := l.db.QueryRowContext(ctx, "SELECT MAX(timestamp) FROM ip_history").Scan(&ts); err != nil {
		return time.Time{}, fmt.Errorf("failed to read latest history timestamp: %w", err)
	}
	if !ts.Valid {
		return time.Time{}, nil
	}
	return parseTime(ts.String)
}

// Query returns a cursor over the matching records in (timestamp, id) order.
// No rows are read until the cursor is ranged over.
func (l *ledgerImpl) Query(ctx context.Context, filter HistoryFilter) *HistoryCursor {
	var (
		where []string
		args  []any
	)
	if filter.IPID != nil {
		where = append(where, "ip_id = ?")
		args = append(args, *filter.IPID)
	}
	if filter.CompanyID != nil {
		where = append(where, "company_id = ?")
		args = append(args, *filter.CompanyID)
	}
	if filter.RequestID != nil {
		where = append(where, "request_id = ?")
		args = append(args, *filter.RequestID)
	}
	if filter.Action != nil {
		where = append(where, "action = ?")
		args = append(args, string(*filter.Action))
	}
	if filter.From != nil {
		where = append(where, "timestamp >= ?")
		args = append(args, formatTime(*filter.From))
	}
	if filter.To != nil {
		where = append(where, "timestamp < ?")
		args = append(args, formatTime(*filter.To))
	}

	query := `
		SELECT id, action, ip_id, request_id, company_id, performed_by, timestamp,
			notes, expires_at, mac_address, operation_id
		FROM ip_history`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY timestamp, id"

	return &HistoryCursor{ctx: ctx, db: l.db, query: query, args: args}
}

// HistoryCursor streams ledger records. It can be ranged over once.
type HistoryCursor struct {
	ctx   context.Context
	db    DBTX
	query string
	args  []any
	used  atomic.Bool
}

// All yields the records in order. A storage error is yielded once and ends
// the sequence. Ranging a second time yields ErrCursorConsumed.
func (c *HistoryCursor) All() iter.Seq2[domain.IPHistory, error] {
	return func(yield func(domain.IPHistory, error) bool) {
		if !c.used.CompareAndSwap(false, true) {
			yield(domain.IPHistory{}, ErrCursorConsumed)
			return
		}

		rows, err := c.db.QueryContext(c.ctx, c.query, c.args...)
		if err != nil {
			yield(domain.IPHistory{}, fmt.Errorf("failed to query history: %w", err))
			return
		}
		defer rows.Close()

		for rows.Next() {
			rec, err := scanHistory(rows)
			if err != nil {
				yield(domain.IPHistory{}, fmt.Errorf("failed to scan history: %w", err))
				return
			}
			if !yield(rec, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(domain.IPHistory{}, fmt.Errorf("failed to iterate history: %w", err))
		}
	}
}

// Collect drains the cursor into a slice
func (c *HistoryCursor) Collect() ([]domain.IPHistory, error) {
	records := []domain.IPHistory{}
	for rec, err := range c.All() {
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

func scanHistory(row scanner) (domain.IPHistory, error) {
	var (
		rec       domain.IPHistory
		action    string
		ipID      sql.NullInt64
		requestID sql.NullInt64
		companyID sql.NullInt64
		timestamp string
		expiresAt sql.NullString
	)
	err := row.Scan(&rec.ID, &action, &ipID, &requestID, &companyID, &rec.PerformedBy,
		&timestamp, &rec.Notes, &expiresAt, &rec.MACAddress, &rec.OperationID)
	if err != nil {
		return domain.IPHistory{}, err
	}

	if rec.Action, err = domain.ParseHistoryAction(action); err != nil {
		return domain.IPHistory{}, err
	}
	rec.IPID = int64Ptr(ipID)
	rec.RequestID = int64Ptr(requestID)
	rec.CompanyID = int64Ptr(companyID)
	if rec.Timestamp, err = parseTime(timestamp); err != nil {
		return domain.IPHistory{}, err
	}
	if rec.ExpiresAt, err = parseNullTime(expiresAt); err != nil {
		return domain.IPHistory{}, err
	}
	return rec, nil
}
