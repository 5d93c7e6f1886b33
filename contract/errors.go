package contract

import "errors"

// Failure taxonomy of the registry. Mutating operations wrap these with
// fmt.Errorf("...: %w") so callers can branch with errors.Is while the
// message keeps the operation-specific detail. A returned error aborts the
// transaction, so ledger state is untouched by any failed operation.
var (
	ErrUnauthorized          = errors.New("unauthorized")
	ErrInvalidHolder         = errors.New("invalid holder identity")
	ErrDuplicateContent      = errors.New("credential already exists for this content")
	ErrNotFound              = errors.New("credential does not exist")
	ErrAlreadyTerminal       = errors.New("credential already revoked or burned")
	ErrNonTransferable       = errors.New("credentials are non-transferable (soulbound)")
	ErrBatchValidationFailed = errors.New("batch validation failed")

	// ErrIdentityNotFound marks lookups of identities or aliases that were
	// never registered. Role and admin queries treat it as "holds nothing",
	// not as a failure.
	ErrIdentityNotFound = errors.New("identity not found")
)
