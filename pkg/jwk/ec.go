package jwk

import (
	"crypto/ecdh"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/josekit/jose/pkg/base64"
	"github.com/josekit/jose/pkg/jwa"
)

// ECDSAKey is a concrete elliptic curve key over the NIST P curves,
// supporting ECDSA signatures (ES*) and ECDH-ES key agreement.
type ECDSAKey struct {
	baseKey

	public  *ecdsa.PublicKey
	private *ecdsa.PrivateKey
}

func curveByName(crv jwa.Curve) (elliptic.Curve, error) {
	switch crv {
	case jwa.P256:
		return elliptic.P256(), nil
	case jwa.P384:
		return elliptic.P384(), nil
	case jwa.P521:
		return elliptic.P521(), nil
	default:
		return nil, fmt.Errorf("%w: invalid curve %q", ErrInvalidKeyFormat, crv)
	}
}

func curveName(curve elliptic.Curve) (jwa.Curve, error) {
	switch curve {
	case elliptic.P256():
		return jwa.P256, nil
	case elliptic.P384():
		return jwa.P384, nil
	case elliptic.P521():
		return jwa.P521, nil
	default:
		return "", fmt.Errorf("%w: unsupported curve %q", ErrInvalidKeyFormat, curve.Params().Name)
	}
}

// coordinateSize is the byte length of a field element on the curve.
func coordinateSize(curve elliptic.Curve) int {
	return (curve.Params().BitSize + 7) / 8
}

func padCoordinate(value *big.Int, size int) []byte {
	out := make([]byte, size)
	value.FillBytes(out)
	return out
}

// FromECDSAPublicKey wraps an ECDSA public key as a concrete JWK.
func FromECDSAPublicKey(public *ecdsa.PublicKey) (*ECDSAKey, error) {
	crv, err := curveName(public.Curve)
	if err != nil {
		return nil, err
	}

	size := coordinateSize(public.Curve)

	return &ECDSAKey{
		baseKey: baseKey{params: Value{
			KeyType: jwa.KeyTypeEC,
			Curve:   crv,
			X:       base64.Encode(padCoordinate(public.X, size)),
			Y:       base64.Encode(padCoordinate(public.Y, size)),
		}},
		public: public,
	}, nil
}

// FromECDSAPrivateKey wraps an ECDSA private key as a concrete JWK.
func FromECDSAPrivateKey(private *ecdsa.PrivateKey) (*ECDSAKey, error) {
	key, err := FromECDSAPublicKey(&private.PublicKey)
	if err != nil {
		return nil, err
	}
	key.private = private
	key.params[D] = base64.Encode(padCoordinate(private.D, coordinateSize(private.Curve)))
	return key, nil
}

func ecdsaFromValue(v Value) (*ECDSAKey, error) {
	crv, err := stringParameter(v, Curve)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidKeyFormat, err)
	}

	curve, err := curveByName(crv)
	if err != nil {
		return nil, err
	}

	xBytes, err := base64Parameter(v, X)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidKeyFormat, err)
	}
	yBytes, err := base64Parameter(v, Y)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidKeyFormat, err)
	}

	public := &ecdsa.PublicKey{
		Curve: curve,
		X:     new(big.Int).SetBytes(xBytes),
		Y:     new(big.Int).SetBytes(yBytes),
	}

	key := &ECDSAKey{baseKey: baseKey{params: v}, public: public}

	if _, ok := v[D]; ok {
		dBytes, err := base64Parameter(v, D)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidKeyFormat, err)
		}
		key.private = &ecdsa.PrivateKey{
			PublicKey: *public,
			D:         new(big.Int).SetBytes(dBytes),
		}
	}

	return key, nil
}

func (k *ECDSAKey) Private() bool { return k.private != nil }

// PublicKey returns the underlying ECDSA public key.
func (k *ECDSAKey) PublicKey() *ecdsa.PublicKey { return k.public }

func (k *ECDSAKey) signatureCurve(alg jwa.Algorithm) error {
	req, err := jwa.KeyRequirementFor(alg)
	if err != nil {
		return err
	}
	if req.KeyType != jwa.KeyTypeEC {
		return fmt.Errorf("%w: %q is not an ECDSA signature algorithm", jwa.ErrUnknownAlgorithm, alg)
	}
	if req.Curve != k.Curve() {
		return fmt.Errorf("%w: algorithm %q requires curve %q, key uses %q",
			ErrOperationNotAllowed, alg, req.Curve, k.Curve())
	}
	return nil
}

// Sign produces an ECDSA signature in the fixed-width r || s form
// required by RFC 7518 Section 3.4.
func (k *ECDSAKey) Sign(alg jwa.Algorithm, data []byte) ([]byte, error) {
	if k.private == nil {
		return nil, fmt.Errorf("%w: ECDSA signing requires a private key", ErrOperationNotAllowed)
	}

	if err := k.signatureCurve(alg); err != nil {
		return nil, err
	}

	hash, err := jwa.SignatureHash(alg)
	if err != nil {
		return nil, err
	}

	h := hash.New()
	h.Write(data)

	r, s, err := ecdsa.Sign(rand.Reader, k.private, h.Sum(nil))
	if err != nil {
		return nil, fmt.Errorf("failed to sign with ECDSA private key: %w", err)
	}

	size := coordinateSize(k.private.Curve)

	out := make([]byte, 2*size)
	r.FillBytes(out[:size])
	s.FillBytes(out[size:])

	return out, nil
}

// Verify checks an ECDSA signature in the fixed-width r || s form.
func (k *ECDSAKey) Verify(alg jwa.Algorithm, data, signature []byte) error {
	if err := k.signatureCurve(alg); err != nil {
		return err
	}

	hash, err := jwa.SignatureHash(alg)
	if err != nil {
		return err
	}

	size := coordinateSize(k.public.Curve)
	if len(signature) != 2*size {
		return fmt.Errorf("%w: invalid signature length %d for curve %q",
			ErrAuthenticationFailed, len(signature), k.Curve())
	}

	h := hash.New()
	h.Write(data)

	r := new(big.Int).SetBytes(signature[:size])
	s := new(big.Int).SetBytes(signature[size:])

	if !ecdsa.Verify(k.public, h.Sum(nil), r, s) {
		return fmt.Errorf("%w: ECDSA signature mismatch", ErrAuthenticationFailed)
	}

	return nil
}

// ECDHPublicKey returns the public half in crypto/ecdh form.
func (k *ECDSAKey) ECDHPublicKey() (*ecdh.PublicKey, error) {
	public, err := k.public.ECDH()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidKeyFormat, err)
	}
	return public, nil
}

// SharedSecret runs the ECDH agreement between this key's private
// half and the remote public key.
func (k *ECDSAKey) SharedSecret(remote *ecdh.PublicKey) ([]byte, error) {
	if k.private == nil {
		return nil, fmt.Errorf("%w: ECDH agreement requires a private key", ErrOperationNotAllowed)
	}

	private, err := k.private.ECDH()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidKeyFormat, err)
	}

	secret, err := private.ECDH(remote)
	if err != nil {
		return nil, fmt.Errorf("failed to compute ECDH shared secret: %w", err)
	}

	return secret, nil
}
