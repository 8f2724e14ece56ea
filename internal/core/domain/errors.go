package domain

import "errors"

// ============================================================================
// Artifact Errors
// ============================================================================

var (
	ErrArtifactInvalid = errors.New("model artifact invalid")
	ErrArtifactLoad    = errors.New("model artifact could not be loaded")
	ErrNetwork         = errors.New("model artifact download failed")
)

// ============================================================================
// Inference Errors
// ============================================================================

var (
	ErrInference        = errors.New("inference failed")
	ErrModelUnavailable = errors.New("model unavailable")
	ErrInvalidImage     = errors.New("invalid image")
	ErrImageTooLarge    = errors.New("image exceeds upload limit")
)

// ============================================================================
// Catalog Errors
// ============================================================================

var (
	ErrUnknownLabel     = errors.New("unknown disease label")
	ErrLabelSetMismatch = errors.New("label set does not match disease catalog")
)

var ErrLedgerDisabled = errors.New("artifact ledger disabled")
