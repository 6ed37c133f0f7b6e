package jwa

import "crypto"

// https://datatracker.ietf.org/doc/html/rfc7518#section-3.1
type Algorithm = string

// HMAC with SHA-2 Functions
//
// These algorithms are used to construct a MAC using a shared secret
// and the Hash-based Message Authentication Code (HMAC) construction
// [RFC2104] employing SHA-2 [SHS] hash functions.
//
// https://datatracker.ietf.org/doc/html/rfc7518#section-3.2
const (
	HS256 Algorithm = "HS256"
	HS384 Algorithm = "HS384"
	HS512 Algorithm = "HS512"
)

// RSASSA-PKCS1-v1_5
//
// These algorithms are used to digitally sign a JWS and produce a
// JWS Signature using PKCS #1 v1.5 methods.
//
// # RSA Key Size
//
// A key of size 2048 bits or larger MUST be used with these algorithms.
//
// https://datatracker.ietf.org/doc/html/rfc7518#section-3.3
const (
	RS256 Algorithm = "RS256"
	RS384 Algorithm = "RS384"
	RS512 Algorithm = "RS512"
)

// ECDSA
//
// These algorithms are used to digitally sign a JWS and produce a
// JWS Signature using ECDSA algorithms.
//
// https://datatracker.ietf.org/doc/html/rfc7518#section-3.4
const (
	ES256 Algorithm = "ES256"
	ES384 Algorithm = "ES384"
	ES512 Algorithm = "ES512"
)

// RSASSA-PSS
//
// These algorithms are used to digitally sign a JWS and produce a
// JWS Signature using the RSASSA-PSS algorithms.
//
// # RSA Key Size
//
// A key of size 2048 bits or larger MUST be used with these algorithms.
//
// https://datatracker.ietf.org/doc/html/rfc7518#section-3.5
const (
	PS256 Algorithm = "PS256"
	PS384 Algorithm = "PS384"
	PS512 Algorithm = "PS512"
)

// EdDSA is the Edwards-curve Digital Signature Algorithm using Ed25519.
//
// https://datatracker.ietf.org/doc/html/rfc8037#section-3.1
const EdDSA Algorithm = "EdDSA"

// Module-Lattice-Based Digital Signature Algorithm (ML-DSA), the
// post-quantum signature scheme standardized in FIPS 204.
//
// https://datatracker.ietf.org/doc/html/draft-ietf-cose-dilithium
const (
	MLDSA65 Algorithm = "ML-DSA-65"
	MLDSA87 Algorithm = "ML-DSA-87"
)

// No signature or MAC performed (unsecured JWS). This algorithm is
// intended to be used to create a JWS that is not integrity protected.
//
// # Warning
//
// The use of this algorithm is considered dangerous. Verification
// always rejects it, it's only implemented for producing legacy
// interoperability payloads.
//
// https://datatracker.ietf.org/doc/html/rfc7518#section-3.6
const None Algorithm = "none"

// Unrecognized is the sentinel returned by header accessors when the
// "alg" parameter is absent or carries a value this library has no
// registration for. It never appears on the wire.
const Unrecognized Algorithm = ""

// signatureHashes maps each signature algorithm to its hash function.
//
// EdDSA and ML-DSA sign the message directly without pre-hashing.
var signatureHashes = map[Algorithm]crypto.Hash{
	HS256: crypto.SHA256,
	HS384: crypto.SHA384,
	HS512: crypto.SHA512,
	RS256: crypto.SHA256,
	RS384: crypto.SHA384,
	RS512: crypto.SHA512,
	ES256: crypto.SHA256,
	ES384: crypto.SHA384,
	ES512: crypto.SHA512,
	PS256: crypto.SHA256,
	PS384: crypto.SHA384,
	PS512: crypto.SHA512,
	EdDSA: crypto.Hash(0),
}

// SignatureHash returns the hash function used by the given signature
// algorithm, or ErrUnknownAlgorithm if the algorithm is not a
// registered signature algorithm.
func SignatureHash(alg Algorithm) (crypto.Hash, error) {
	hash, ok := signatureHashes[alg]
	if !ok {
		return 0, unknownAlgorithm(alg)
	}
	return hash, nil
}

// SignatureAlgorithms returns all registered signature algorithms,
// excluding "none".
func SignatureAlgorithms() []Algorithm {
	return []Algorithm{
		HS256, HS384, HS512,
		RS256, RS384, RS512,
		ES256, ES384, ES512,
		PS256, PS384, PS512,
		EdDSA,
		MLDSA65, MLDSA87,
	}
}

// KeyType is a JWK "kty" value as registered in RFC 7518 Section 6.1
// and its post-quantum extensions.
type KeyType = string

const (
	KeyTypeEC        KeyType = "EC"
	KeyTypeRSA       KeyType = "RSA"
	KeyTypeOctet     KeyType = "oct"
	KeyTypeOKP       KeyType = "OKP" // https://datatracker.ietf.org/doc/html/rfc8037
	KeyTypeAlgorithm KeyType = "AKP" // algorithm key pair, used by ML-DSA
)

// Curve is a JWK "crv" value.
type Curve = string

const (
	P256    Curve = "P-256"
	P384    Curve = "P-384"
	P521    Curve = "P-521"
	Ed25519 Curve = "Ed25519"
	X25519  Curve = "X25519"
)

// KeyRequirement describes the key shape an algorithm operates with.
type KeyRequirement struct {
	KeyType KeyType

	// Curve is empty when the algorithm does not constrain the curve.
	Curve Curve

	// MinimumKeySize is the smallest permitted key size in bytes for
	// symmetric keys, or in bits for RSA moduli. Zero means the
	// algorithm fixes the key size through KeyType/Curve alone.
	MinimumKeySize int

	// Alternate is a second key shape the algorithm also accepts,
	// for algorithms that operate over more than one key type.
	Alternate *KeyRequirement
}

// x25519Agreement is the alternate key shape for the ECDH-ES family.
var x25519Agreement = KeyRequirement{KeyType: KeyTypeOKP, Curve: X25519}

// keyRequirements maps algorithms to the key shape they require,
// covering both signature and key management algorithms.
var keyRequirements = map[Algorithm]KeyRequirement{
	HS256: {KeyType: KeyTypeOctet, MinimumKeySize: 32},
	HS384: {KeyType: KeyTypeOctet, MinimumKeySize: 48},
	HS512: {KeyType: KeyTypeOctet, MinimumKeySize: 64},

	RS256: {KeyType: KeyTypeRSA, MinimumKeySize: 2048},
	RS384: {KeyType: KeyTypeRSA, MinimumKeySize: 2048},
	RS512: {KeyType: KeyTypeRSA, MinimumKeySize: 2048},
	PS256: {KeyType: KeyTypeRSA, MinimumKeySize: 2048},
	PS384: {KeyType: KeyTypeRSA, MinimumKeySize: 2048},
	PS512: {KeyType: KeyTypeRSA, MinimumKeySize: 2048},

	ES256: {KeyType: KeyTypeEC, Curve: P256},
	ES384: {KeyType: KeyTypeEC, Curve: P384},
	ES512: {KeyType: KeyTypeEC, Curve: P521},

	EdDSA: {KeyType: KeyTypeOKP, Curve: Ed25519},

	MLDSA65: {KeyType: KeyTypeAlgorithm},
	MLDSA87: {KeyType: KeyTypeAlgorithm},

	RSA1_5:     {KeyType: KeyTypeRSA, MinimumKeySize: 2048},
	RSAOAEP:    {KeyType: KeyTypeRSA, MinimumKeySize: 2048},
	RSAOAEP256: {KeyType: KeyTypeRSA, MinimumKeySize: 2048},

	A128KW: {KeyType: KeyTypeOctet, MinimumKeySize: 16},
	A192KW: {KeyType: KeyTypeOctet, MinimumKeySize: 24},
	A256KW: {KeyType: KeyTypeOctet, MinimumKeySize: 32},

	A128GCMKW: {KeyType: KeyTypeOctet, MinimumKeySize: 16},
	A192GCMKW: {KeyType: KeyTypeOctet, MinimumKeySize: 24},
	A256GCMKW: {KeyType: KeyTypeOctet, MinimumKeySize: 32},

	Direct: {KeyType: KeyTypeOctet},

	// Agreement runs over NIST curves or X25519 keys alike.
	ECDHES:       {KeyType: KeyTypeEC, Alternate: &x25519Agreement},
	ECDHESA128KW: {KeyType: KeyTypeEC, Alternate: &x25519Agreement},
	ECDHESA192KW: {KeyType: KeyTypeEC, Alternate: &x25519Agreement},
	ECDHESA256KW: {KeyType: KeyTypeEC, Alternate: &x25519Agreement},

	PBES2HS256A128KW: {KeyType: KeyTypeOctet},
	PBES2HS384A192KW: {KeyType: KeyTypeOctet},
	PBES2HS512A256KW: {KeyType: KeyTypeOctet},

	HPKEP256SHA256A128GCM:   {KeyType: KeyTypeEC, Curve: P256},
	HPKEX25519SHA256A128GCM: {KeyType: KeyTypeOKP, Curve: X25519},
}

// KeyRequirementFor returns the key shape required by the given
// algorithm, or ErrUnknownAlgorithm if the algorithm is unknown.
func KeyRequirementFor(alg Algorithm) (KeyRequirement, error) {
	req, ok := keyRequirements[alg]
	if !ok {
		return KeyRequirement{}, unknownAlgorithm(alg)
	}
	return req, nil
}

// Family groups algorithms whose keys are interchangeable at the
// family level, used by best-match key selection.
type Family = string

const (
	FamilyHMAC      Family = "HMAC"
	FamilyRSA       Family = "RSA"
	FamilyECDSA     Family = "ECDSA"
	FamilyEdDSA     Family = "EdDSA"
	FamilyMLDSA     Family = "ML-DSA"
	FamilyAESKW     Family = "AES-KW"
	FamilyDirect    Family = "dir"
	FamilyECDH      Family = "ECDH"
	FamilyPBES2     Family = "PBES2"
	FamilyHPKE      Family = "HPKE"
	FamilyNone      Family = "none"
	FamilyUnknown   Family = ""
	FamilySymmetric Family = "oct" // HMAC, AES-KW, dir and PBES2 key material
)

// FamilyOf returns the algorithm family for the given algorithm.
func FamilyOf(alg Algorithm) Family {
	switch alg {
	case HS256, HS384, HS512:
		return FamilyHMAC
	case RS256, RS384, RS512, PS256, PS384, PS512, RSA1_5, RSAOAEP, RSAOAEP256:
		return FamilyRSA
	case ES256, ES384, ES512:
		return FamilyECDSA
	case EdDSA:
		return FamilyEdDSA
	case MLDSA65, MLDSA87:
		return FamilyMLDSA
	case A128KW, A192KW, A256KW, A128GCMKW, A192GCMKW, A256GCMKW:
		return FamilyAESKW
	case Direct:
		return FamilyDirect
	case ECDHES, ECDHESA128KW, ECDHESA192KW, ECDHESA256KW:
		return FamilyECDH
	case PBES2HS256A128KW, PBES2HS384A192KW, PBES2HS512A256KW:
		return FamilyPBES2
	case HPKEP256SHA256A128GCM, HPKEX25519SHA256A128GCM:
		return FamilyHPKE
	case None:
		return FamilyNone
	default:
		return FamilyUnknown
	}
}
