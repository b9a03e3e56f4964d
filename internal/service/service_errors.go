package service

import "errors"

var (
	// ErrValidation covers malformed input rejected before any storage access.
	ErrValidation = errors.New("validation failed")

	// ErrDataIntegrity means the ledger and a reservation have drifted apart.
	// It is fatal: the admission-time guarantee already failed elsewhere.
	ErrDataIntegrity = errors.New("inventory data integrity violation")
)
