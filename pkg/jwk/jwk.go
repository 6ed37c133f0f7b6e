// Package jwk implements the JSON Web Key (JWK) model: generic key
// descriptions, concrete capability-typed keys, and the resolution
// registry that upgrades one into the other.
//
// https://datatracker.ietf.org/doc/html/rfc7517
package jwk

import (
	"fmt"

	"github.com/josekit/jose/pkg/base64"
	"github.com/josekit/jose/pkg/jwa"
)

// https://datatracker.ietf.org/doc/html/rfc7517#section-4
type (
	ParameterName = string

	RSA       = ParameterName
	ECDSA     = ParameterName
	OKP       = ParameterName
	Symmetric = ParameterName
	AKP       = ParameterName
)

const (
	KeyType              ParameterName = "kty"      // https://datatracker.ietf.org/doc/html/rfc7517#section-4.1
	PublicKeyUse         ParameterName = "use"      // https://datatracker.ietf.org/doc/html/rfc7517#section-4.2
	KeyOperations        ParameterName = "key_ops"  // https://datatracker.ietf.org/doc/html/rfc7517#section-4.3
	Algorithm            ParameterName = "alg"      // https://datatracker.ietf.org/doc/html/rfc7517#section-4.4
	KeyID                ParameterName = "kid"      // https://datatracker.ietf.org/doc/html/rfc7517#section-4.5
	X509URL              ParameterName = "x5u"      // https://datatracker.ietf.org/doc/html/rfc7517#section-4.6
	X509CertificateChain ParameterName = "x5c"      // https://datatracker.ietf.org/doc/html/rfc7517#section-4.7
	X509SHA1Thumbprint   ParameterName = "x5t"      // https://datatracker.ietf.org/doc/html/rfc7517#section-4.8
	X509SHA256Thumbprint ParameterName = "x5t#S256" // https://datatracker.ietf.org/doc/html/rfc7517#section-4.9

	// K is the symmetric key value within a JWK.
	// https://datatracker.ietf.org/doc/html/rfc7518#section-6.4.1
	K Symmetric = "k"

	// Curve is the curve value within an EC or OKP JWK, such as "P-256".
	// https://datatracker.ietf.org/doc/html/rfc7518#section-6.2.1.1
	Curve ECDSA = "crv"
	X     ECDSA = "x" // X is the x-coordinate for the elliptic curve point.
	Y     ECDSA = "y" // Y is the y-coordinate for the elliptic curve point.

	N RSA = "n" // N is the RSA public modulus value.
	E RSA = "e" // E is the RSA public exponent value.

	// D doubles as the RSA private exponent and the EC/OKP private key.
	D ParameterName = "d"

	// Pub and Priv carry the public key and private seed of an
	// algorithm key pair (ML-DSA).
	// https://datatracker.ietf.org/doc/html/draft-ietf-cose-dilithium
	Pub  AKP = "pub"
	Priv AKP = "priv"
)

// Value is a JSON object containing the parameters describing a key,
// keyed by wire name, with the original JSON value kinds preserved.
//
// https://datatracker.ietf.org/doc/html/rfc7517#section-4
type Value = map[ParameterName]any

// Validate checks that the required parameters are present for the
// given key type, and that the values are well formed.
func Validate(v Value) error {
	kty, ok := v[KeyType]
	if !ok {
		return fmt.Errorf("missing required parameter %q", KeyType)
	}

	switch kty {
	case jwa.KeyTypeEC:
		crv, err := stringParameter(v, Curve)
		if err != nil {
			return err
		}
		switch crv {
		case jwa.P256, jwa.P384, jwa.P521:
		default:
			return fmt.Errorf("invalid curve %q", crv)
		}
		return requireBase64Parameters(v, X, Y)
	case jwa.KeyTypeOKP:
		crv, err := stringParameter(v, Curve)
		if err != nil {
			return err
		}
		switch crv {
		case jwa.Ed25519, jwa.X25519:
		default:
			return fmt.Errorf("invalid curve %q", crv)
		}
		return requireBase64Parameters(v, X)
	case jwa.KeyTypeRSA:
		if err := requireBase64Parameters(v, N, E); err != nil {
			return err
		}
		if _, ok := v[D]; ok { // optional
			return requireBase64Parameters(v, D)
		}
		return nil
	case jwa.KeyTypeOctet:
		return requireBase64Parameters(v, K)
	case jwa.KeyTypeAlgorithm:
		if err := requireBase64Parameters(v, Pub); err != nil {
			return err
		}
		if _, ok := v[Priv]; ok { // optional
			return requireBase64Parameters(v, Priv)
		}
		return nil
	default:
		return fmt.Errorf("unknown key type %q", kty)
	}
}

func stringParameter(v Value, param ParameterName) (string, error) {
	value, ok := v[param]
	if !ok {
		return "", fmt.Errorf("missing required parameter %q", param)
	}
	str, ok := value.(string)
	if !ok {
		return "", fmt.Errorf("invalid type %T for %q", value, param)
	}
	return str, nil
}

func requireBase64Parameters(v Value, params ...ParameterName) error {
	for _, param := range params {
		str, err := stringParameter(v, param)
		if err != nil {
			return err
		}
		if _, err := base64.Decode(str); err != nil {
			return fmt.Errorf("invalid base64 encoding for %q: %w", param, err)
		}
	}
	return nil
}

// base64Parameter decodes the named base64url parameter, returning an
// error for missing or malformed values.
func base64Parameter(v Value, param ParameterName) ([]byte, error) {
	str, err := stringParameter(v, param)
	if err != nil {
		return nil, err
	}
	b, err := base64.Decode(str)
	if err != nil {
		return nil, fmt.Errorf("invalid base64 encoding for %q: %w", param, err)
	}
	return b, nil
}
