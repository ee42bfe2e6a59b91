package market

import (
	"errors"
)

// Error kinds for market operations. Every failure an operation can
// return wraps exactly one of these, so callers can map them to a
// transport status without parsing messages.
var (
	// ErrNotAuthorized means the caller lacks the required privilege.
	ErrNotAuthorized = errors.New("not authorized")

	// ErrWrongPayment means the attached payment does not equal the
	// required exact amount, or the payer cannot cover it.
	ErrWrongPayment = errors.New("wrong payment")

	// ErrInvalidArgument means a malformed input: unknown token id or
	// non-positive price.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrStateIntegrity means an ownership assumption no longer holds,
	// e.g. buying a token the market no longer escrows. The triggering
	// operation is rolled back in full.
	ErrStateIntegrity = errors.New("state integrity")
)
