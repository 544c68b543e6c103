package domain

import "fmt"

// IPStatus is the lifecycle status of an address.
type IPStatus string

const (
	IPAvailable IPStatus = "available"
	IPInUse     IPStatus = "in_use"
	IPExpired   IPStatus = "expired"
)

// in_use -> in_use is a renewal; expired -> in_use is a reallocation.
var ipTransitions = map[IPStatus][]IPStatus{
	IPAvailable: {IPInUse},
	IPInUse:     {IPInUse, IPAvailable, IPExpired},
	IPExpired:   {IPInUse},
}

// ParseIPStatus converts a stored or user-supplied string to an IPStatus.
func ParseIPStatus(s string) (IPStatus, error) {
	switch st := IPStatus(s); st {
	case IPAvailable, IPInUse, IPExpired:
		return st, nil
	}
	return "", fmt.Errorf("unknown ip status %q", s)
}

// CanTransitionTo reports whether the address may move from s to next.
func (s IPStatus) CanTransitionTo(next IPStatus) bool {
	for _, allowed := range ipTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// RequestStatus is the lifecycle status of an IPRequest.
type RequestStatus string

const (
	RequestPending   RequestStatus = "pending"
	RequestApproved  RequestStatus = "approved"
	RequestRejected  RequestStatus = "rejected"
	RequestCancelled RequestStatus = "cancelled"
)

// ParseRequestStatus converts a stored or user-supplied string to a RequestStatus.
func ParseRequestStatus(s string) (RequestStatus, error) {
	switch st := RequestStatus(s); st {
	case RequestPending, RequestApproved, RequestRejected, RequestCancelled:
		return st, nil
	}
	return "", fmt.Errorf("unknown request status %q", s)
}

// IsTerminal reports whether no further transition is permitted.
func (s RequestStatus) IsTerminal() bool {
	return s == RequestApproved || s == RequestRejected || s == RequestCancelled
}

// CanTransitionTo reports whether the request may move from s to next.
// Only pending requests move, and only to a terminal status.
func (s RequestStatus) CanTransitionTo(next RequestStatus) bool {
	return s == RequestPending && next.IsTerminal()
}

// RequestType says what a request asks for.
type RequestType string

const (
	RequestNew          RequestType = "new"
	RequestRenewal      RequestType = "renewal"
	RequestCancellation RequestType = "cancellation"
)

// ParseRequestType converts a user-supplied string to a RequestType.
func ParseRequestType(s string) (RequestType, error) {
	switch t := RequestType(s); t {
	case RequestNew, RequestRenewal, RequestCancellation:
		return t, nil
	}
	return "", fmt.Errorf("unknown request type %q", s)
}

// TargetsExistingIP reports whether the request must name an address it already holds.
func (t RequestType) TargetsExistingIP() bool {
	return t == RequestRenewal || t == RequestCancellation
}

// HistoryAction is the kind of transition an audit record documents.
type HistoryAction string

const (
	ActionAssigned  HistoryAction = "assigned"
	ActionReleased  HistoryAction = "released"
	ActionRenewed   HistoryAction = "renewed"
	ActionCancelled HistoryAction = "cancelled"
	ActionExpired   HistoryAction = "expired"
	ActionRequested HistoryAction = "requested"
	ActionApproved  HistoryAction = "approved"
	ActionRejected  HistoryAction = "rejected"
)

// ParseHistoryAction converts a stored or user-supplied string to a HistoryAction.
func ParseHistoryAction(s string) (HistoryAction, error) {
	switch a := HistoryAction(s); a {
	case ActionAssigned, ActionReleased, ActionRenewed, ActionCancelled,
		ActionExpired, ActionRequested, ActionApproved, ActionRejected:
		return a, nil
	}
	return "", fmt.Errorf("unknown history action %q", s)
}

// Role is the caller's role as supplied by the access gateway.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleCompany Role = "company"
)

// ParseRole converts a header value to a Role.
func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case RoleAdmin, RoleCompany:
		return r, nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}

// Identity is an authenticated caller.
type Identity struct {
	Username string
	Role     Role
}

// IsAdmin reports whether the caller is an administrator.
func (i Identity) IsAdmin() bool {
	return i.Role == RoleAdmin
}
