package jwk

import (
	"crypto/ecdh"
	"crypto/ed25519"
	"fmt"

	"github.com/josekit/jose/pkg/base64"
	"github.com/josekit/jose/pkg/jwa"
)

// OKPKey is a concrete Octet Key Pair (RFC 8037) over Curve25519:
// Ed25519 keys sign and validate (EdDSA), X25519 keys perform key
// agreement for the ECDH-ES family.
type OKPKey struct {
	baseKey

	crv     jwa.Curve
	public  []byte
	private []byte
}

// FromEd25519PublicKey wraps an Ed25519 public key as a concrete JWK.
func FromEd25519PublicKey(public ed25519.PublicKey) *OKPKey {
	return &OKPKey{
		baseKey: baseKey{params: Value{
			KeyType: jwa.KeyTypeOKP,
			Curve:   jwa.Ed25519,
			X:       base64.Encode(public),
		}},
		crv:    jwa.Ed25519,
		public: public,
	}
}

// FromEd25519PrivateKey wraps an Ed25519 private key as a concrete JWK.
func FromEd25519PrivateKey(private ed25519.PrivateKey) *OKPKey {
	seed := private.Seed()
	key := FromEd25519PublicKey(private.Public().(ed25519.PublicKey))
	key.private = private
	key.params[D] = base64.Encode(seed)
	return key
}

// FromX25519PrivateKey wraps an X25519 private key as a concrete JWK.
func FromX25519PrivateKey(private *ecdh.PrivateKey) *OKPKey {
	return &OKPKey{
		baseKey: baseKey{params: Value{
			KeyType: jwa.KeyTypeOKP,
			Curve:   jwa.X25519,
			X:       base64.Encode(private.PublicKey().Bytes()),
			D:       base64.Encode(private.Bytes()),
		}},
		crv:     jwa.X25519,
		public:  private.PublicKey().Bytes(),
		private: private.Bytes(),
	}
}

func okpFromValue(v Value) (*OKPKey, error) {
	crv, err := stringParameter(v, Curve)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidKeyFormat, err)
	}

	xBytes, err := base64Parameter(v, X)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidKeyFormat, err)
	}

	key := &OKPKey{baseKey: baseKey{params: v}, crv: crv}

	switch crv {
	case jwa.Ed25519:
		if len(xBytes) != ed25519.PublicKeySize {
			return nil, fmt.Errorf("%w: invalid Ed25519 public key length %d", ErrInvalidKeyFormat, len(xBytes))
		}
		key.public = xBytes

		if _, ok := v[D]; ok {
			seed, err := base64Parameter(v, D)
			if err != nil {
				return nil, fmt.Errorf("%w: %w", ErrInvalidKeyFormat, err)
			}
			if len(seed) != ed25519.SeedSize {
				return nil, fmt.Errorf("%w: invalid Ed25519 seed length %d", ErrInvalidKeyFormat, len(seed))
			}
			key.private = ed25519.NewKeyFromSeed(seed)
		}
	case jwa.X25519:
		if _, err := ecdh.X25519().NewPublicKey(xBytes); err != nil {
			return nil, fmt.Errorf("%w: invalid X25519 public key: %w", ErrInvalidKeyFormat, err)
		}
		key.public = xBytes

		if _, ok := v[D]; ok {
			dBytes, err := base64Parameter(v, D)
			if err != nil {
				return nil, fmt.Errorf("%w: %w", ErrInvalidKeyFormat, err)
			}
			if _, err := ecdh.X25519().NewPrivateKey(dBytes); err != nil {
				return nil, fmt.Errorf("%w: invalid X25519 private key: %w", ErrInvalidKeyFormat, err)
			}
			key.private = dBytes
		}
	default:
		return nil, fmt.Errorf("%w: invalid OKP curve %q", ErrInvalidKeyFormat, crv)
	}

	return key, nil
}

func (k *OKPKey) Private() bool { return k.private != nil }

func (k *OKPKey) Curve() jwa.Curve { return k.crv }

// Sign produces an EdDSA signature; only valid for Ed25519 keys.
func (k *OKPKey) Sign(alg jwa.Algorithm, data []byte) ([]byte, error) {
	if alg != jwa.EdDSA {
		return nil, fmt.Errorf("%w: %q is not an OKP signature algorithm", jwa.ErrUnknownAlgorithm, alg)
	}
	if k.crv != jwa.Ed25519 {
		return nil, fmt.Errorf("%w: EdDSA requires an Ed25519 key, not %q", ErrOperationNotAllowed, k.crv)
	}
	if k.private == nil {
		return nil, fmt.Errorf("%w: EdDSA signing requires a private key", ErrOperationNotAllowed)
	}

	return ed25519.Sign(ed25519.PrivateKey(k.private), data), nil
}

// Verify checks an EdDSA signature; only valid for Ed25519 keys.
func (k *OKPKey) Verify(alg jwa.Algorithm, data, signature []byte) error {
	if alg != jwa.EdDSA {
		return fmt.Errorf("%w: %q is not an OKP signature algorithm", jwa.ErrUnknownAlgorithm, alg)
	}
	if k.crv != jwa.Ed25519 {
		return fmt.Errorf("%w: EdDSA requires an Ed25519 key, not %q", ErrOperationNotAllowed, k.crv)
	}

	if !ed25519.Verify(ed25519.PublicKey(k.public), data, signature) {
		return fmt.Errorf("%w: EdDSA signature mismatch", ErrAuthenticationFailed)
	}

	return nil
}

// ECDHPublicKey returns the public half in crypto/ecdh form; only
// valid for X25519 keys.
func (k *OKPKey) ECDHPublicKey() (*ecdh.PublicKey, error) {
	if k.crv != jwa.X25519 {
		return nil, fmt.Errorf("%w: key agreement requires an X25519 key, not %q", ErrOperationNotAllowed, k.crv)
	}

	public, err := ecdh.X25519().NewPublicKey(k.public)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidKeyFormat, err)
	}

	return public, nil
}

// SharedSecret runs the X25519 agreement between this key's private
// half and the remote public key.
func (k *OKPKey) SharedSecret(remote *ecdh.PublicKey) ([]byte, error) {
	if k.crv != jwa.X25519 {
		return nil, fmt.Errorf("%w: key agreement requires an X25519 key, not %q", ErrOperationNotAllowed, k.crv)
	}
	if k.private == nil {
		return nil, fmt.Errorf("%w: key agreement requires a private key", ErrOperationNotAllowed)
	}

	private, err := ecdh.X25519().NewPrivateKey(k.private)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidKeyFormat, err)
	}

	secret, err := private.ECDH(remote)
	if err != nil {
		return nil, fmt.Errorf("failed to compute X25519 shared secret: %w", err)
	}

	return secret, nil
}
