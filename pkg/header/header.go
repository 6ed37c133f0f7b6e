package header

import (
	"encoding/json"
	"fmt"

	"github.com/josekit/jose/pkg/base64"
	"github.com/josekit/jose/pkg/jwa"
)

// There are three classes of Header Parameter names: Registered Header
// Parameter names, Public Header Parameter names, and Private Header
// Parameter names.
//
// https://datatracker.ietf.org/doc/html/rfc7515#section-4
type (
	ParameterName = string

	Registered = ParameterName
	Public     = ParameterName
	Private    = ParameterName
)

// Registered Header Parameter Names
//
// https://datatracker.ietf.org/doc/html/rfc7515#section-4.1
const (
	Type                            Registered = "typ"
	Algorithm                       Registered = "alg"
	JWKSetURL                       Registered = "jku"
	JSONWebKey                      Registered = "jwk"
	KeyID                           Registered = "kid"
	X509URL                         Registered = "x5u"
	X509CertificateChain            Registered = "x5c"
	X509CertificateSHA1Thumbprint   Registered = "x5t"
	X509CertificateSHA256Thumbprint Registered = "x5t#S256"
	ContentType                     Registered = "cty"
	Critical                        Registered = "crit"

	// https://datatracker.ietf.org/doc/html/rfc7516#section-4.1
	Encryption  Registered = "enc"
	Compression Registered = "zip"

	// https://datatracker.ietf.org/doc/html/rfc7797#section-3
	Base64Payload Registered = "b64"

	// ECDH-ES ephemeral key and party info.
	// https://datatracker.ietf.org/doc/html/rfc7518#section-4.6.1
	EphemeralPublicKey Registered = "epk"
	AgreementPartyU    Registered = "apu"
	AgreementPartyV    Registered = "apv"

	// AES GCM key wrapping parameters.
	// https://datatracker.ietf.org/doc/html/rfc7518#section-4.7.1
	InitializationVector Registered = "iv"
	AuthenticationTag    Registered = "tag"

	// PBES2 parameters.
	// https://datatracker.ietf.org/doc/html/rfc7518#section-4.8.1
	PBES2Salt  Registered = "p2s"
	PBES2Count Registered = "p2c"

	// HPKE encapsulated key and pre-shared key identifier.
	// https://datatracker.ietf.org/doc/html/draft-ietf-jose-hpke-encrypt
	EncapsulatedKey Registered = "ek"
	PreSharedKeyID  Registered = "psk_id"

	// https://datatracker.ietf.org/doc/html/rfc8555#section-6.2
	Nonce Registered = "nonce"
	URL   Registered = "url"
)

const TypeJWT = "JWT"

// Parameters is a JSON object containing the parameters describing
// the cryptographic operations and parameters employed.
//
// The JOSE (JSON Object Signing and Encryption) header is comprised
// of a set of header parameters, keyed by their wire names. Values
// keep the JSON kind they were decoded with, so re-encoding does not
// change a number into a string.
type Parameters map[ParameterName]any

// Base64URLString returns the base64url encoded JSON form of the
// parameters.
//
// Only use this for headers that have never been serialized before;
// protected headers parsed from the wire must keep their original
// bytes (see the protected package).
func (h Parameters) Base64URLString() (string, error) {
	raw, err := json.Marshal(h)
	if err != nil {
		return "", fmt.Errorf("failed to encode JOSE header base64 URL string: %w", err)
	}
	return base64.Encode(raw), nil
}

// Type returns the "typ" parameter value.
func (h Parameters) Type() (string, error) {
	return h.stringParameter(Type)
}

// Algorithm returns the "alg" parameter value, or an error if it is
// absent or not a string.
func (h Parameters) Algorithm() (jwa.Algorithm, error) {
	return h.stringParameter(Algorithm)
}

// AlgorithmOrNone resolves the "alg" parameter to a concrete
// algorithm value, falling back to the jwa.Unrecognized sentinel when
// the parameter is absent or malformed rather than reporting an
// error. Verification paths treat both "none" and the sentinel as
// never-satisfiable.
func (h Parameters) AlgorithmOrNone() jwa.Algorithm {
	alg, err := h.Algorithm()
	if err != nil {
		return jwa.Unrecognized
	}
	return alg
}

// EncryptionAlgorithm returns the "enc" parameter value.
func (h Parameters) EncryptionAlgorithm() (jwa.Encryption, error) {
	return h.stringParameter(Encryption)
}

// CompressionAlgorithm returns the "zip" parameter value, or an empty
// string (with no error) when the header does not declare one.
func (h Parameters) CompressionAlgorithm() (jwa.CompressionAlgorithm, error) {
	if _, ok := h[Compression]; !ok {
		return "", nil
	}
	return h.stringParameter(Compression)
}

// KeyID returns the "kid" parameter value, or an empty string when it
// is absent.
func (h Parameters) KeyID() string {
	kid, err := h.stringParameter(KeyID)
	if err != nil {
		return ""
	}
	return kid
}

// CriticalParameters returns the "crit" parameter as a list of
// parameter names.
//
// https://datatracker.ietf.org/doc/html/rfc7515#section-4.1.11
func (h Parameters) CriticalParameters() ([]ParameterName, error) {
	value, ok := h[Critical]
	if !ok {
		return nil, nil
	}

	list, ok := value.([]any)
	if !ok {
		// A pre-built header may carry a string slice directly.
		if names, ok := value.([]string); ok {
			return names, nil
		}
		return nil, fmt.Errorf("header parameter %q is not an array, is %T", Critical, value)
	}

	names := make([]ParameterName, 0, len(list))
	for _, item := range list {
		name, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("header parameter %q contains non-string entry %T", Critical, item)
		}
		names = append(names, name)
	}

	return names, nil
}

// RawPayload reports whether the payload is carried un-re-encoded
// for signing input purposes: the "b64" parameter is false and it is
// marked integrity-critical via "crit", per RFC 7797.
func (h Parameters) RawPayload() bool {
	value, ok := h[Base64Payload]
	if !ok {
		return false
	}

	b64, ok := value.(bool)
	if !ok || b64 {
		return false
	}

	crit, err := h.CriticalParameters()
	if err != nil {
		return false
	}

	for _, name := range crit {
		if name == Base64Payload {
			return true
		}
	}

	return false
}

// Get returns the value of the given parameter, or an error if it is
// not present.
func (h Parameters) Get(param ParameterName) (any, error) {
	value, ok := h[param]
	if !ok {
		return nil, fmt.Errorf("header does not contain a %q parameter", param)
	}
	return value, nil
}

func (h Parameters) stringParameter(param ParameterName) (string, error) {
	value, ok := h[param]
	if !ok {
		return "", fmt.Errorf("header does not contain a %q parameter", param)
	}
	strValue, ok := value.(string)
	if !ok {
		return "", fmt.Errorf("header parameter %q is not a string, is %T", param, value)
	}
	return strValue, nil
}

// Merge combines header parameter views in ascending precedence: a
// name present in an earlier view wins over the same name in a later
// one. JWS and JWE use this to resolve the effective header from the
// protected, shared unprotected and per-recipient views.
func Merge(views ...Parameters) Parameters {
	merged := Parameters{}

	for i := len(views) - 1; i >= 0; i-- {
		for name, value := range views[i] {
			merged[name] = value
		}
	}

	return merged
}
