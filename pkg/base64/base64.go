package base64

import (
	"encoding/base64"
	"fmt"
)

// Encode returns the base64url encoded string for the given input,
// without padding characters, as required by the JWS and JWE
// specifications (RFC 7515 Appendix C).
//
// An empty input encodes to an empty string, which is a legal segment
// value in several JOSE wire forms (e.g. the encrypted key segment of
// a "dir" JWE, or the signature segment of an unsecured JWS).
func Encode(input []byte) string {
	return base64.RawURLEncoding.EncodeToString(input)
}

// Decode returns the base64url decoded bytes from the given input.
//
// Padded input is accepted for interoperability with producers that
// do not strip padding, although RFC 7515 requires its omission.
func Decode(input string) ([]byte, error) {
	if len(input) == 0 {
		return []byte{}, nil
	}

	result, err := base64.RawURLEncoding.DecodeString(input)
	if err == nil {
		return result, nil
	}

	// Retry with padding, in case the producer included it.
	result, padErr := base64.URLEncoding.DecodeString(input)
	if padErr != nil {
		return nil, fmt.Errorf("base64: invalid base64url input: %w", err)
	}

	return result, nil
}
