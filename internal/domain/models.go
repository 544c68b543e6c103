package domain

import "time"

// Room represents a physical room that hosts companies and addresses
type Room struct {
	ID     int64  // Unique identifier
	Number string // Room number (e.g., "B-204")
}

// Company represents a tenant company housed in a room
type Company struct {
	ID     int64  // Unique identifier
	Name   string // Company name
	Owner  string // Username of the owning user
	RoomID int64  // Foreign key to Room
}

// IP represents a single tracked address and its allocation state
type IP struct {
	ID         int64      // Unique identifier
	Address    string     // Dotted-quad IPv4 address
	Status     IPStatus   // Current lifecycle status
	MACAddress string     // Bound MAC address, empty when none
	CompanyID  *int64     // Assigned company, set iff Status is in_use
	RoomID     int64      // Foreign key to Room
	ExpiresAt  *time.Time // Lease expiration (optional)
	Version    int64      // Optimistic concurrency token
	UpdatedAt  time.Time  // When the row was last written
}

// IsFree reports whether the address can be handed out by a new-request approval.
// Expired addresses are reusable; their history keeps the expired record.
func (ip IP) IsFree() bool {
	return ip.Status == IPAvailable || ip.Status == IPExpired
}

// HeldBy reports whether the address is in use by the given company.
func (ip IP) HeldBy(companyID int64) bool {
	return ip.Status == IPInUse && ip.CompanyID != nil && *ip.CompanyID == companyID
}

// IPRequest represents a company's request to obtain, renew or give back an address
type IPRequest struct {
	ID              int64         // Unique identifier
	Type            RequestType   // new, renewal or cancellation
	Status          RequestStatus // Lifecycle status
	Justification   string        // Free-text reason supplied by the requester
	CompanyID       int64         // Requesting company
	RequestedBy     string        // Username of the requester
	IPID            *int64        // Target address; nil for new requests until approval
	MACAddress      string        // Requested MAC binding (optional)
	Temporary       bool          // Whether the allocation is temporary
	ExpiresAt       *time.Time    // Requested expiration (optional)
	RejectionReason string        // Set when rejected
	Notes           string        // Approver notes
	DecidedBy       string        // Username that moved the request to a terminal state
	DecidedAt       *time.Time    // When the request reached a terminal state
	RequestedAt     time.Time     // When the request was submitted
}

// IPHistory is one immutable audit record of a lifecycle transition
type IPHistory struct {
	ID          int64         // Unique identifier
	Action      HistoryAction // What happened
	IPID        *int64        // Affected address, nil only for request events without one
	RequestID   *int64        // Request that drove the transition (optional)
	CompanyID   *int64        // Company involved (optional)
	PerformedBy string        // Username, or "system" for the expiration sweep
	Timestamp   time.Time     // Commit time of the transition
	Notes       string        // Free-text notes
	ExpiresAt   *time.Time    // Expiration snapshot
	MACAddress  string        // MAC snapshot
	OperationID string        // Shared by every record written by one engine operation
}

// SystemActor is recorded as the performer of transitions nobody asked for.
const SystemActor = "system"
