package jwk

import (
	"fmt"

	"github.com/cloudflare/circl/sign"
	"github.com/cloudflare/circl/sign/mldsa/mldsa65"
	"github.com/cloudflare/circl/sign/mldsa/mldsa87"

	"github.com/josekit/jose/pkg/base64"
	"github.com/josekit/jose/pkg/jwa"
)

// MLDSAKey is a concrete ML-DSA (FIPS 204) algorithm key pair,
// represented on the wire as kty "AKP" with "pub" holding the encoded
// public key and "priv" the private seed.
//
// https://datatracker.ietf.org/doc/html/draft-ietf-cose-dilithium
type MLDSAKey struct {
	baseKey

	alg     jwa.Algorithm
	scheme  sign.Scheme
	public  sign.PublicKey
	private sign.PrivateKey
}

func mldsaScheme(alg jwa.Algorithm) (sign.Scheme, error) {
	switch alg {
	case jwa.MLDSA65:
		return mldsa65.Scheme(), nil
	case jwa.MLDSA87:
		return mldsa87.Scheme(), nil
	default:
		return nil, fmt.Errorf("%w: %q is not an ML-DSA algorithm", jwa.ErrUnknownAlgorithm, alg)
	}
}

// GenerateMLDSAKey generates a fresh ML-DSA key pair for the given
// algorithm.
func GenerateMLDSAKey(alg jwa.Algorithm) (*MLDSAKey, error) {
	scheme, err := mldsaScheme(alg)
	if err != nil {
		return nil, err
	}

	public, private, err := scheme.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate %s key: %w", alg, err)
	}

	pubBytes, err := public.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s public key: %w", alg, err)
	}
	privBytes, err := private.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s private key: %w", alg, err)
	}

	return &MLDSAKey{
		baseKey: baseKey{params: Value{
			KeyType:   jwa.KeyTypeAlgorithm,
			Algorithm: alg,
			Pub:       base64.Encode(pubBytes),
			Priv:      base64.Encode(privBytes),
		}},
		alg:     alg,
		scheme:  scheme,
		public:  public,
		private: private,
	}, nil
}

func mldsaFromValue(v Value) (*MLDSAKey, error) {
	alg, err := stringParameter(v, Algorithm)
	if err != nil {
		return nil, fmt.Errorf("%w: algorithm key pair requires %q: %w", ErrInvalidKeyFormat, Algorithm, err)
	}

	scheme, err := mldsaScheme(alg)
	if err != nil {
		return nil, err
	}

	pubBytes, err := base64Parameter(v, Pub)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidKeyFormat, err)
	}

	public, err := scheme.UnmarshalBinaryPublicKey(pubBytes)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid %s public key: %w", ErrInvalidKeyFormat, alg, err)
	}

	key := &MLDSAKey{
		baseKey: baseKey{params: v},
		alg:     alg,
		scheme:  scheme,
		public:  public,
	}

	if _, ok := v[Priv]; ok {
		privBytes, err := base64Parameter(v, Priv)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidKeyFormat, err)
		}
		private, err := scheme.UnmarshalBinaryPrivateKey(privBytes)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid %s private key: %w", ErrInvalidKeyFormat, alg, err)
		}
		key.private = private
	}

	return key, nil
}

func (k *MLDSAKey) Private() bool { return k.private != nil }

// Sign produces an ML-DSA signature over data.
func (k *MLDSAKey) Sign(alg jwa.Algorithm, data []byte) ([]byte, error) {
	if alg != k.alg {
		return nil, fmt.Errorf("%w: key is bound to %q, not %q", ErrOperationNotAllowed, k.alg, alg)
	}
	if k.private == nil {
		return nil, fmt.Errorf("%w: ML-DSA signing requires a private key", ErrOperationNotAllowed)
	}

	return k.scheme.Sign(k.private, data, nil), nil
}

// Verify checks an ML-DSA signature over data.
func (k *MLDSAKey) Verify(alg jwa.Algorithm, data, signature []byte) error {
	if alg != k.alg {
		return fmt.Errorf("%w: key is bound to %q, not %q", ErrOperationNotAllowed, k.alg, alg)
	}

	if !k.scheme.Verify(k.public, data, signature, nil) {
		return fmt.Errorf("%w: ML-DSA signature mismatch", ErrAuthenticationFailed)
	}

	return nil
}
