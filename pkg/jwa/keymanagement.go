package jwa

import (
	"errors"
	"fmt"
)

// Key management algorithms determine how the content encryption key
// of a JWE is produced or transported to a recipient.
//
// https://datatracker.ietf.org/doc/html/rfc7518#section-4.1
const (
	// RSAES-PKCS1-v1_5 key encryption. Known-broken padding, kept for
	// decrypting legacy messages.
	RSA1_5 Algorithm = "RSA1_5"

	// RSAES OAEP key encryption, with the default (SHA-1) and SHA-256
	// parameter sets.
	RSAOAEP    Algorithm = "RSA-OAEP"
	RSAOAEP256 Algorithm = "RSA-OAEP-256"

	// AES Key Wrap [RFC3394] with 128/192/256-bit keys.
	A128KW Algorithm = "A128KW"
	A192KW Algorithm = "A192KW"
	A256KW Algorithm = "A256KW"

	// Direct use of a shared symmetric key as the CEK.
	Direct Algorithm = "dir"

	// Elliptic Curve Diffie-Hellman Ephemeral Static key agreement,
	// either using the derived key directly as the CEK or combined
	// with AES Key Wrap.
	ECDHES       Algorithm = "ECDH-ES"
	ECDHESA128KW Algorithm = "ECDH-ES+A128KW"
	ECDHESA192KW Algorithm = "ECDH-ES+A192KW"
	ECDHESA256KW Algorithm = "ECDH-ES+A256KW"

	// Key wrapping with AES GCM, carrying the wrap IV and tag in the
	// "iv" and "tag" header parameters.
	A128GCMKW Algorithm = "A128GCMKW"
	A192GCMKW Algorithm = "A192GCMKW"
	A256GCMKW Algorithm = "A256GCMKW"

	// PBES2 password-based key derivation combined with AES Key Wrap,
	// carrying the salt and iteration count in "p2s" and "p2c".
	PBES2HS256A128KW Algorithm = "PBES2-HS256+A128KW"
	PBES2HS384A192KW Algorithm = "PBES2-HS384+A192KW"
	PBES2HS512A256KW Algorithm = "PBES2-HS512+A256KW"
)

// Integrated Hybrid Public Key Encryption [RFC9180]. Unlike every
// other key management algorithm these do not transport a CEK; the
// HPKE primitive seals the content directly and the encrypted key
// slot carries the KEM encapsulation.
//
// https://datatracker.ietf.org/doc/html/draft-ietf-jose-hpke-encrypt
const (
	HPKEP256SHA256A128GCM   Algorithm = "HPKE-Base-P256-SHA256-A128GCM"
	HPKEX25519SHA256A128GCM Algorithm = "HPKE-Base-X25519-SHA256-A128GCM"
)

// KeyManagementShape classifies the structurally different contracts
// a key management algorithm can follow, per RFC 7516 Section 5.1.
type KeyManagementShape int

const (
	// ShapeDirect uses a caller-supplied CEK and produces no
	// encrypted key.
	ShapeDirect KeyManagementShape = iota

	// ShapeKeyWrap wraps a (generated or supplied) CEK under the
	// recipient key, producing one encrypted key blob.
	ShapeKeyWrap

	// ShapeAgreement derives the CEK from an ephemeral-static key
	// agreement; there is nothing to transport.
	ShapeAgreement

	// ShapeAgreementWrap derives an intermediate wrapping key from a
	// key agreement and wraps the CEK under it.
	ShapeAgreementWrap

	// ShapeIntegrated bypasses the CEK model entirely; the hybrid
	// primitive seals the content itself.
	ShapeIntegrated
)

var keyManagementShapes = map[Algorithm]KeyManagementShape{
	RSA1_5:     ShapeKeyWrap,
	RSAOAEP:    ShapeKeyWrap,
	RSAOAEP256: ShapeKeyWrap,

	A128KW: ShapeKeyWrap,
	A192KW: ShapeKeyWrap,
	A256KW: ShapeKeyWrap,

	A128GCMKW: ShapeKeyWrap,
	A192GCMKW: ShapeKeyWrap,
	A256GCMKW: ShapeKeyWrap,

	PBES2HS256A128KW: ShapeKeyWrap,
	PBES2HS384A192KW: ShapeKeyWrap,
	PBES2HS512A256KW: ShapeKeyWrap,

	Direct: ShapeDirect,

	ECDHES:       ShapeAgreement,
	ECDHESA128KW: ShapeAgreementWrap,
	ECDHESA192KW: ShapeAgreementWrap,
	ECDHESA256KW: ShapeAgreementWrap,

	HPKEP256SHA256A128GCM:   ShapeIntegrated,
	HPKEX25519SHA256A128GCM: ShapeIntegrated,
}

// ShapeOf returns the key management shape of the given algorithm, or
// ErrUnknownAlgorithm if the algorithm is not a registered key
// management algorithm.
func ShapeOf(alg Algorithm) (KeyManagementShape, error) {
	shape, ok := keyManagementShapes[alg]
	if !ok {
		return 0, unknownAlgorithm(alg)
	}
	return shape, nil
}

// KeyManagementAlgorithms returns all registered key management
// algorithms.
func KeyManagementAlgorithms() []Algorithm {
	algs := make([]Algorithm, 0, len(keyManagementShapes))
	for alg := range keyManagementShapes {
		algs = append(algs, alg)
	}
	return algs
}

// ErrUnknownAlgorithm is returned for algorithm identifiers that this
// library has no registration for. Use errors.Is to detect it.
var ErrUnknownAlgorithm = errors.New("jwa: unknown algorithm")

func unknownAlgorithm(alg Algorithm) error {
	return fmt.Errorf("%w: %q", ErrUnknownAlgorithm, alg)
}
