package core

import "errors"

var (
	// Caller input errors.

	// ErrInvalidIdentity is returned when the presented wallet address is
	// not a well-formed hex address.
	ErrInvalidIdentity = errors.New("invalid identity address")

	// ErrInvalidRequest is returned when a dynamic issuance request carries
	// a malformed contract address or token id.
	ErrInvalidRequest = errors.New("invalid issuance request")

	// ErrMissingCredential is returned when no bearer credential is present.
	ErrMissingCredential = errors.New("missing credential")

	// ErrTokenMalformed is returned when a token fails structure or
	// signature verification.
	ErrTokenMalformed = errors.New("malformed token")

	// Authorization-state errors.

	// ErrOwnershipNotSatisfied is returned when the identity holds a zero
	// balance of the required token. This is an expected outcome, not a
	// defect, and is distinct from oracle failure.
	ErrOwnershipNotSatisfied = errors.New("ownership requirement not satisfied")

	// ErrTokenExpired is returned when a token is past its expiry instant.
	ErrTokenExpired = errors.New("token has expired")

	// ErrWrongTokenKind is returned when a refresh token is presented where
	// an access token is required, or vice versa.
	ErrWrongTokenKind = errors.New("wrong token kind")

	// ErrTokenRevoked is returned when a token's jti is in the revocation set.
	ErrTokenRevoked = errors.New("token has been revoked")

	// ErrSessionNotFound is returned when no session record matches a
	// refresh token: never issued, already rotated, or the store restarted.
	ErrSessionNotFound = errors.New("session not found")

	// ErrRequirementMismatch is returned when a static grant's token id
	// does not match the configured requirement.
	ErrRequirementMismatch = errors.New("requirement mismatch")

	// Infrastructure errors.

	// ErrInvalidAddress is returned by the oracle for malformed inputs.
	ErrInvalidAddress = errors.New("invalid ethereum address")

	// ErrOracleUnavailable is returned when the ownership check could not
	// be performed. Never conflated with a zero balance.
	ErrOracleUnavailable = errors.New("ownership oracle unavailable")

	// ErrStoreOperationFailed is returned when a store operation fails.
	ErrStoreOperationFailed = errors.New("store operation failed")
)
