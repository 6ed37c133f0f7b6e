package jwk

import (
	"crypto/ecdh"
	"errors"

	"github.com/josekit/jose/pkg/jwa"
)

// Key is the minimal interface shared by every concrete key variant
// produced by the resolution registry. A concrete key implements the
// capability interfaces below in any combination; e.g. a symmetric
// key can validate, sign and seal.
type Key interface {
	// Value returns the underlying JWK parameters.
	Value() Value

	// KeyID returns the "kid" parameter, or an empty string.
	KeyID() string

	// KeyType returns the "kty" parameter.
	KeyType() jwa.KeyType

	// Curve returns the "crv" parameter, or an empty string for key
	// types without one.
	Curve() jwa.Curve

	// Private reports whether private key material is present.
	Private() bool
}

// ValidationKey checks signatures.
type ValidationKey interface {
	Key

	// Verify checks the signature over data with the given
	// algorithm, returning ErrAuthenticationFailed on mismatch.
	Verify(alg jwa.Algorithm, data, signature []byte) error
}

// SigningKey produces signatures.
type SigningKey interface {
	Key

	Sign(alg jwa.Algorithm, data []byte) ([]byte, error)
}

// EncryptionKey wraps content encryption keys for transport.
type EncryptionKey interface {
	Key

	EncryptKey(alg jwa.Algorithm, cek []byte) ([]byte, error)
}

// DecryptionKey unwraps transported content encryption keys.
type DecryptionKey interface {
	Key

	DecryptKey(alg jwa.Algorithm, encryptedKey []byte) ([]byte, error)
}

// SealingKey performs direct AEAD operations, used both for JWE
// content encryption under a CEK and for AES GCM key wrapping.
type SealingKey interface {
	Key

	// Seal encrypts plaintext under the given nonce and additional
	// authenticated data, returning ciphertext and tag separately.
	Seal(enc jwa.Encryption, nonce, plaintext, aad []byte) (ciphertext, tag []byte, err error)

	// Open decrypts and authenticates, returning
	// ErrAuthenticationFailed on tag mismatch.
	Open(enc jwa.Encryption, nonce, ciphertext, tag, aad []byte) ([]byte, error)
}

// AgreementKey derives shared secrets for the ECDH-ES family.
type AgreementKey interface {
	Key

	// ECDHPublicKey returns the public half in crypto/ecdh form.
	ECDHPublicKey() (*ecdh.PublicKey, error)

	// SharedSecret runs the Diffie-Hellman agreement between this
	// key's private half and the remote public key.
	SharedSecret(remote *ecdh.PublicKey) ([]byte, error)
}

var (
	// ErrKeyNotFound is reported when no candidate key matched
	// during verification or decryption.
	ErrKeyNotFound = errors.New("jwk: no matching key found")

	// ErrInvalidKeyFormat is reported for import/export format
	// mismatches with the key shape.
	ErrInvalidKeyFormat = errors.New("jwk: invalid key format")

	// ErrOperationNotAllowed is reported for operations a key or
	// algorithm must never perform, such as verifying with "none".
	ErrOperationNotAllowed = errors.New("jwk: operation not allowed")

	// ErrAuthenticationFailed is reported on signature or AEAD tag
	// mismatch.
	ErrAuthenticationFailed = errors.New("jwk: authentication failed")
)

// Generic is the unspecialized form of a key description, returned by
// the registry when no classification rule matches. It carries the
// parameters but no cryptographic capabilities.
type Generic struct {
	Params Value
}

func (g *Generic) Value() Value { return g.Params }

func (g *Generic) KeyID() string {
	kid, _ := stringParameter(g.Params, KeyID)
	return kid
}

func (g *Generic) KeyType() jwa.KeyType {
	kty, _ := stringParameter(g.Params, KeyType)
	return kty
}

func (g *Generic) Curve() jwa.Curve {
	crv, _ := stringParameter(g.Params, Curve)
	return crv
}

func (g *Generic) Private() bool {
	_, hasD := g.Params[D]
	_, hasK := g.Params[K]
	_, hasPriv := g.Params[Priv]
	return hasD || hasK || hasPriv
}
