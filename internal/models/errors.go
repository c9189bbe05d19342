package models

import "errors"

// Sentinel errors surfaced across controllers and handlers. Wrap with %w so
// callers can errors.Is against them.
var (
	// ErrNotFound covers missing accounts, connections, requests and invites.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyConnected means the client already has an active connection.
	// Connect never silently replaces an existing link.
	ErrAlreadyConnected = errors.New("client already has an active connection")

	// ErrInvalidInvite is deliberately generic: wrong code, expired token and
	// already-consumed token all fail closed with the same error.
	ErrInvalidInvite = errors.New("invalid invite")

	// ErrUnconfirmed marks a write that reached the local cache queue but has
	// not been confirmed against the record store. Not durable.
	ErrUnconfirmed = errors.New("write not confirmed against record store")

	// ErrStoreUnavailable is a transient record store failure.
	ErrStoreUnavailable = errors.New("record store unavailable")
)
