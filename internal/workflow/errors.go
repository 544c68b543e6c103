package workflow

import "errors"

// Workflow errors. Storage-level errors from the repository package
// (ErrNotFound, ErrInvalidEntity, ErrDuplicatePendingRequest, ErrConflict)
// are returned as they are.
var (
	// ErrInvalidTarget is returned when a request names an address that is not in a
	// compatible state for the request type
	ErrInvalidTarget = errors.New("invalid target ip")

	// ErrNotPending is returned when deciding a request that is already terminal
	ErrNotPending = errors.New("request is not pending")

	// ErrIPNoLongerAvailable is returned when the address chosen for a new request
	// was taken first. Callers should retry with a different address.
	ErrIPNoLongerAvailable = errors.New("ip no longer available")

	// ErrForbidden is returned when someone other than the requester or an
	// administrator tries to cancel a request
	ErrForbidden = errors.New("forbidden")

	// ErrNoCapacity is returned when a company's room has no address left to grant
	ErrNoCapacity = errors.New("no free ip in the company's room")
)
