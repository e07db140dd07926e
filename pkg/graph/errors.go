package graph

import "errors"

var (
	// ErrNotFound reports a lookup of an id absent from the Store.
	ErrNotFound = errors.New("node not found")

	// ErrContractViolation reports a caller bug, such as inserting a node
	// under a key that differs from its id.
	ErrContractViolation = errors.New("contract violation")
)
