package jwk

import "github.com/josekit/jose/pkg/jwa"

// baseKey carries the shared JWK parameter plumbing embedded by every
// concrete key variant.
type baseKey struct {
	params Value
}

func (b *baseKey) Value() Value { return b.params }

func (b *baseKey) KeyID() string {
	kid, _ := stringParameter(b.params, KeyID)
	return kid
}

func (b *baseKey) KeyType() jwa.KeyType {
	kty, _ := stringParameter(b.params, KeyType)
	return kty
}

func (b *baseKey) Curve() jwa.Curve {
	crv, _ := stringParameter(b.params, Curve)
	return crv
}

// Algorithm returns the declared "alg" parameter, or the
// jwa.Unrecognized sentinel.
func (b *baseKey) Algorithm() jwa.Algorithm {
	alg, err := stringParameter(b.params, Algorithm)
	if err != nil {
		return jwa.Unrecognized
	}
	return alg
}
