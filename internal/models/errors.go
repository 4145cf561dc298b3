package models

import "errors"

// Sentinel errors shared across services and mapped to HTTP statuses
// by the transport layer. Contention outcomes (ErrAlreadyTaken,
// redemption races surfacing ErrCodeNotFound) are expected results,
// not system faults.
var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrNotFound     = errors.New("not found")
	ErrAlreadyTaken = errors.New("ride already taken")
	ErrConflict     = errors.New("conflicting ride state")
	ErrCodeNotFound = errors.New("activation code not found or already used")
	ErrCodeExpired  = errors.New("activation code expired")
	ErrPhoneTaken   = errors.New("phone number already registered")
	ErrCodeExists   = errors.New("activation code already exists")
)
