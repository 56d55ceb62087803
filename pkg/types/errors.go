package types

import (
	"errors"
	"fmt"
)

// Domain errors shared by every layer. Callers classify with errors.Is.
//
// ErrStoreBusy is transient and retried by the store; ErrStoreUnavailable is
// what callers see once those retries are exhausted. ErrPartialFailure marks
// an ingestion run that finished with failed files.
var (
	ErrStoreBusy         = errors.New("store busy")
	ErrStoreUnavailable  = errors.New("store unavailable")
	ErrSchemaMismatch    = errors.New("collection schema mismatch")
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	ErrParseFailure      = errors.New("parse failure")
	ErrProviderFailure   = errors.New("embedding provider failure")
	ErrNotFound          = errors.New("not found")
	ErrIntegrity         = errors.New("integrity violation")
	ErrDuplicateKey      = fmt.Errorf("%w: duplicate chunk key", ErrIntegrity)
	ErrInvalidRequest    = errors.New("invalid request")
	ErrPartialFailure    = errors.New("ingestion finished with failures")
)
