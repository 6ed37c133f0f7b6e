package jwt

import "errors"

var (
	// ErrNoClaims is reported when creating a token with an empty
	// claims set.
	ErrNoClaims = errors.New("jwt: no claims set")

	// ErrExpired is reported when the "exp" claim is in the past.
	ErrExpired = errors.New("jwt: token is expired")

	// ErrNotYetValid is reported when the "nbf" claim is in the
	// future.
	ErrNotYetValid = errors.New("jwt: token is not yet valid")
)
