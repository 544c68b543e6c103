package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/jbweber/homelab/ipdesk/internal/domain"
)

// maxRangeSize bounds a single CreateRange call (one /16).
const maxRangeSize = 1 << 16

// IPFilter narrows List. Zero fields do not filter.
type IPFilter struct {
	Status      *domain.IPStatus
	CompanyName string
	RoomNumber  string
}

// IPTransition is a compare-and-swap write of an address's allocation state.
type IPTransition struct {
	IPID            int64
	To              domain.IPStatus
	CompanyID       *int64
	MACAddress      string
	ExpiresAt       *time.Time
	ExpectedVersion int64
	At              time.Time
}

// IPRepository defines domain-specific operations for tracked addresses.
// TransitionTo is the only path that changes an address's status.
type IPRepository interface {
	FindByID(ctx context.Context, id int64) (domain.IP, error)
	List(ctx context.Context, filter IPFilter) ([]domain.IP, error)
	ListExpiring(ctx context.Context, now time.Time) ([]domain.IP, error)
	CountFree(ctx context.Context, roomID int64) (int, error)
	CountByStatus(ctx context.Context) (map[domain.IPStatus]int, error)
	TransitionTo(ctx context.Context, t IPTransition) (domain.IP, error)
	CreateRange(ctx context.Context, roomID int64, start, end string, at time.Time) ([]domain.IP, error)
}

// ipRepositoryImpl implements IPRepository
type ipRepositoryImpl struct {
	db DBTX
}

// NewIPRepository creates a new IP repository
func NewIPRepository(db DBTX) IPRepository {
	return &ipRepositoryImpl{db: db}
}

const ipColumns = `i.id, i.address, i.status, i.mac_address, i.company_id, i.room_id,
	i.expires_at, i.version, i.updated_at`

func scanIP(row scanner) (domain.IP, error) {
	var (
		ip        domain.IP
		status    string
		companyID sql.NullInt64
		expiresAt sql.NullString
		updatedAt string
	)
	err := row.Scan(&ip.ID, &ip.Address, &status, &ip.MACAddress, &companyID, &ip.RoomID,
		&expiresAt, &ip.Version, &updatedAt)
	if err != nil {
		return domain.IP{}, err
	}

	if ip.Status, err = domain.ParseIPStatus(status); err != nil {
		return domain.IP{}, err
	}
	ip.CompanyID = int64Ptr(companyID)
	if ip.ExpiresAt, err = parseNullTime(expiresAt); err != nil {
		return domain.IP{}, err
	}
	if ip.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return domain.IP{}, err
	}
	return ip, nil
}

func (r *ipRepositoryImpl) queryIPs(ctx context.Context, query string, args ...any) ([]domain.IP, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query ips: %w", err)
	}
	defer rows.Close()

	ips := []domain.IP{}
	for rows.Next() {
		ip, err := scanIP(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ip: %w", err)
		}
		ips = append(ips, ip)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate ips: %w", err)
	}

	return ips, nil
}

// FindByID finds an address by ID
func (r *ipRepositoryImpl) FindByID(ctx context.Context, id int64) (domain.IP, error) {
	query := `SELECT ` + ipColumns + ` FROM ips i WHERE i.id = ?`

	ip, err := scanIP(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.IP{}, fmt.Errorf("ip %d: %w", id, ErrNotFound)
		}
		return domain.IP{}, fmt.Errorf("failed to find ip: %w", err)
	}

	return ip, nil
}

// List returns the addresses matching filter in numeric address order
func (r *ipRepositoryImpl) List(ctx context.Context, filter IPFilter) ([]domain.IP, error) {
	var (
		where []string
		args  []any
	)
	if filter.Status != nil {
		where = append(where, "i.status = ?")
		args = append(args, string(*filter.Status))
	}
	if filter.CompanyName != "" {
		where = append(where, "c.name = ?")
		args = append(args, filter.CompanyName)
	}
	if filter.RoomNumber != "" {
		where = append(where, "r.number = ?")
		args = append(args, filter.RoomNumber)
	}

	query := `SELECT ` + ipColumns + `
		FROM ips i
		JOIN rooms r ON r.id = i.room_id
		LEFT JOIN companies c ON c.id = i.company_id`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY i.address_num"

	return r.queryIPs(ctx, query, args...)
}

// ListExpiring returns in-use addresses whose expiration is at or before now
func (r *ipRepositoryImpl) ListExpiring(ctx context.Context, now time.Time) ([]domain.IP, error) {
	query := `SELECT ` + ipColumns + `
		FROM ips i
		WHERE i.status = 'in_use' AND i.expires_at IS NOT NULL AND i.expires_at <= ?
		ORDER BY i.expires_at, i.id`

	return r.queryIPs(ctx, query, formatTime(now))
}

// CountFree counts addresses in a room that a new request could be granted
func (r *ipRepositoryImpl) CountFree(ctx context.Context, roomID int64) (int, error) {
	query := `SELECT COUNT(*) FROM ips WHERE room_id = ? AND status IN ('available', 'expired')`

	var count int
	if err := r.db.QueryRowContext(ctx, query, roomID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count free ips: %w", err)
	}

	return count, nil
}

// CountByStatus returns the number of addresses in every status
func (r *ipRepositoryImpl) CountByStatus(ctx context.Context) (map[domain.IPStatus]int, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM ips GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count ips: %w", err)
	}
	defer rows.Close()

	counts := map[domain.IPStatus]int{
		domain.IPAvailable: 0,
		domain.IPInUse:     0,
		domain.IPExpired:   0,
	}
	for rows.Next() {
		var (
			status string
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan ip count: %w", err)
		}
		counts[domain.IPStatus(status)] = count
	}

	return counts, rows.Err()
}

func validateTransition(t IPTransition) error {
	if t.At.IsZero() {
		return invalidf("transition time is required")
	}
	switch t.To {
	case domain.IPInUse:
		if t.CompanyID == nil {
			return invalidf("in_use requires a company")
		}
	case domain.IPAvailable:
		if t.CompanyID != nil || t.MACAddress != "" || t.ExpiresAt != nil {
			return invalidf("available must clear company, mac and expiration")
		}
	case domain.IPExpired:
		if t.CompanyID != nil || t.MACAddress != "" {
			return invalidf("expired must clear company and mac")
		}
	default:
		return invalidf("unknown ip status %q", t.To)
	}
	return nil
}

// TransitionTo moves an address to a new status if its version still matches
// ExpectedVersion. The version is incremented on success.
func (r *ipRepositoryImpl) TransitionTo(ctx context.Context, t IPTransition) (domain.IP, error) {
	if err := validateTransition(t); err != nil {
		return domain.IP{}, err
	}

	current, err := r.FindByID(ctx, t.IPID)
	if err != nil {
		return domain.IP{}, err
	}
	if current.Version != t.ExpectedVersion {
		return domain.IP{}, versionConflict(t.IPID, t.ExpectedVersion, current.Version)
	}
	if !current.Status.CanTransitionTo(t.To) {
		return domain.IP{}, fmt.Errorf("%w: ip %d from %s to %s",
			ErrInvalidTransition, t.IPID, current.Status, t.To)
	}

	query := `
		UPDATE ips
		SET status = ?, company_id = ?, mac_address = ?, expires_at = ?,
			version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?`

	result, err := r.db.ExecContext(ctx, query,
		string(t.To), nullInt64(t.CompanyID), t.MACAddress, formatNullTime(t.ExpiresAt),
		formatTime(t.At), t.IPID, t.ExpectedVersion)
	if err != nil {
		return domain.IP{}, fmt.Errorf("failed to update ip: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return domain.IP{}, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		latest, err := r.FindByID(ctx, t.IPID)
		if err != nil {
			return domain.IP{}, err
		}
		return domain.IP{}, versionConflict(t.IPID, t.ExpectedVersion, latest.Version)
	}

	current.Status = t.To
	current.CompanyID = t.CompanyID
	current.MACAddress = t.MACAddress
	current.ExpiresAt = utcPtr(t.ExpiresAt)
	current.Version = t.ExpectedVersion + 1
	current.UpdatedAt = t.At.UTC()

	return current, nil
}

func versionConflict(id, expected, actual int64) error {
	return &ConflictError{
		Entity:   "ip",
		ID:       id,
		Expected: "version " + strconv.FormatInt(expected, 10),
		Actual:   "version " + strconv.FormatInt(actual, 10),
	}
}

// CreateRange provisions every IPv4 address from start to end inclusive in a
// room as available. Provisioning is not a lifecycle transition and writes no
// history.
func (r *ipRepositoryImpl) CreateRange(ctx context.Context, roomID int64, start, end string, at time.Time) ([]domain.IP, error) {
	startIP := net.ParseIP(start).To4()
	endIP := net.ParseIP(end).To4()
	if startIP == nil || endIP == nil {
		return nil, invalidf("invalid IPv4 range: %s - %s", start, end)
	}

	startInt := ipToInt(startIP)
	endInt := ipToInt(endIP)
	if startInt > endInt {
		return nil, invalidf("range start %s is after end %s", start, end)
	}
	if uint64(endInt)-uint64(startInt)+1 > maxRangeSize {
		return nil, invalidf("range %s - %s exceeds %d addresses", start, end, maxRangeSize)
	}

	query := `
		INSERT INTO ips (address, address_num, room_id, status, updated_at)
		VALUES (?, ?, ?, 'available', ?)`

	updatedAt := formatTime(at)
	created := make([]domain.IP, 0, endInt-startInt+1)
	for n := uint64(startInt); n <= uint64(endInt); n++ {
		address := intToIP(uint32(n)).String()

		result, err := r.db.ExecContext(ctx, query, address, n, roomID, updatedAt)
		if err != nil {
			if isUniqueViolation(err) {
				return nil, fmt.Errorf("ip %s: %w", address, ErrDuplicate)
			}
			if isForeignKeyViolation(err) {
				return nil, invalidf("room %d does not exist", roomID)
			}
			return nil, fmt.Errorf("failed to create ip %s: %w", address, err)
		}

		id, err := result.LastInsertId()
		if err != nil {
			return nil, fmt.Errorf("failed to get ip ID: %w", err)
		}

		created = append(created, domain.IP{
			ID:        id,
			Address:   address,
			Status:    domain.IPAvailable,
			RoomID:    roomID,
			Version:   1,
			UpdatedAt: at.UTC(),
		})
	}

	return created, nil
}

// IP conversion utilities
func ipToInt(ip net.IP) uint32 {
	ip = ip.To4()
	return uint32(ip[0])<<24 + uint32(ip[1])<<16 + uint32(ip[2])<<8 + uint32(ip[3])
}

func intToIP(ipInt uint32) net.IP {
	return net.IPv4(byte(ipInt>>24), byte(ipInt>>16), byte(ipInt>>8), byte(ipInt))
}
