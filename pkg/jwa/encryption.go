package jwa

import "crypto"

// Encryption is a content encryption algorithm identifier used in the
// "enc" header parameter of a JWE.
//
// https://datatracker.ietf.org/doc/html/rfc7518#section-5.1
type Encryption = string

// AES_CBC_HMAC_SHA2 composite algorithms, combining AES in CBC mode
// with an HMAC truncated to half the MAC key length.
//
// https://datatracker.ietf.org/doc/html/rfc7518#section-5.2
const (
	A128CBCHS256 Encryption = "A128CBC-HS256"
	A192CBCHS384 Encryption = "A192CBC-HS384"
	A256CBCHS512 Encryption = "A256CBC-HS512"
)

// AES in Galois/Counter Mode.
//
// https://datatracker.ietf.org/doc/html/rfc7518#section-5.3
const (
	A128GCM Encryption = "A128GCM"
	A192GCM Encryption = "A192GCM"
	A256GCM Encryption = "A256GCM"
)

// EncryptionSizes describes the key material geometry of a content
// encryption algorithm.
type EncryptionSizes struct {
	// CEKSize is the content encryption key size in bytes. For the
	// CBC-HMAC composites this covers both the MAC and the AES key.
	CEKSize int

	// IVSize is the required initialization vector size in bytes.
	IVSize int

	// TagSize is the authentication tag size in bytes.
	TagSize int

	// Hash is the HMAC hash for the CBC-HMAC composites, zero for GCM.
	Hash crypto.Hash
}

var encryptionSizes = map[Encryption]EncryptionSizes{
	A128CBCHS256: {CEKSize: 32, IVSize: 16, TagSize: 16, Hash: crypto.SHA256},
	A192CBCHS384: {CEKSize: 48, IVSize: 16, TagSize: 24, Hash: crypto.SHA384},
	A256CBCHS512: {CEKSize: 64, IVSize: 16, TagSize: 32, Hash: crypto.SHA512},
	A128GCM:      {CEKSize: 16, IVSize: 12, TagSize: 16},
	A192GCM:      {CEKSize: 24, IVSize: 12, TagSize: 16},
	A256GCM:      {CEKSize: 32, IVSize: 12, TagSize: 16},
}

// SizesFor returns the key material geometry for the given content
// encryption algorithm, or ErrUnknownAlgorithm.
func SizesFor(enc Encryption) (EncryptionSizes, error) {
	sizes, ok := encryptionSizes[enc]
	if !ok {
		return EncryptionSizes{}, unknownAlgorithm(enc)
	}
	return sizes, nil
}

// ContentEncryptionAlgorithms returns all registered content
// encryption algorithms.
func ContentEncryptionAlgorithms() []Encryption {
	return []Encryption{
		A128CBCHS256, A192CBCHS384, A256CBCHS512,
		A128GCM, A192GCM, A256GCM,
	}
}

// CompressionAlgorithm is a "zip" header parameter value.
//
// https://datatracker.ietf.org/doc/html/rfc7516#section-4.1.3
type CompressionAlgorithm = string

// Deflate is the DEFLATE [RFC1951] compression algorithm, the only
// registered "zip" value.
const Deflate CompressionAlgorithm = "DEF"
