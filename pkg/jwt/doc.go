// Package jwt provides a simple and easy-to-use interface
// for working with JSON Web Tokens (JWTs).
//
// It supports creating, parsing, and verifying JWTs, as
// well as setting custom claims and expiration times.
// Tokens are signed envelopes from the jws package with a
// claims set payload; keys come from the jwk package.
package jwt
