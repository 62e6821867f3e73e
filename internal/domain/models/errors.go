package models

import "errors"

// Engine error taxonomy. Callers match with errors.Is.
var (
	// ErrInvalidRequest indicates malformed input: non-positive amount,
	// unknown enum value, empty id.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrNotFound indicates an unknown allocation or alert id.
	ErrNotFound = errors.New("not found")

	// ErrInsufficientCapacity indicates the pool cannot cover the requested amount.
	ErrInsufficientCapacity = errors.New("insufficient capacity")

	// ErrOverDeployment indicates a deploy beyond the allocation's undeployed remainder.
	ErrOverDeployment = errors.New("over deployment")

	// ErrAlreadyRecovered indicates an operation on a terminated allocation.
	ErrAlreadyRecovered = errors.New("already recovered")

	// ErrDomainDisabled indicates the domain manager is disabled by configuration.
	ErrDomainDisabled = errors.New("domain disabled")
)
