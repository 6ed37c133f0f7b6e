// Package keyutil bridges PEM and DER encoded key material into the
// jwk key model, and generates fresh keys for each algorithm family.
package keyutil

import (
	"crypto/ecdh"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/subtle"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"io"

	"github.com/google/uuid"

	"github.com/josekit/jose/pkg/jwa"
	"github.com/josekit/jose/pkg/jwk"
)

// SymmetricKeysEqual checks if the given keys are the same.
func SymmetricKeysEqual(key1 []byte, key2 []byte) bool {
	return subtle.ConstantTimeCompare(key1, key2) == 1
}

// NewSymmetricKey generates a new symmetric key of the given size.
func NewSymmetricKey(size int) ([]byte, error) {
	key := make([]byte, size)

	_, err := rand.Read(key)
	if err != nil {
		return nil, fmt.Errorf("failed to generate new symmetic key: %w", err)
	}

	return key, nil
}

// NewKeyID generates a random key identifier for the "kid" parameter.
func NewKeyID() string {
	return uuid.NewString()
}

// readPEMBlock reads all of r and decodes the first PEM block.
func readPEMBlock(r io.Reader) (*pem.Block, error) {
	keyBytes, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read key from reader: %w", err)
	}

	block, _ := pem.Decode(keyBytes)
	if block == nil {
		return nil, fmt.Errorf("failed to decode key PEM block")
	}

	return block, nil
}

// ParsePrivateKey parses the PEM encoded private key from the given
// reader, trying the PKCS #1, PKCS #8 and SEC 1 DER forms.
func ParsePrivateKey(r io.Reader) (any, error) {
	block, err := readPEMBlock(r)
	if err != nil {
		return nil, err
	}

	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	if key, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	if key, err := x509.ParseECPrivateKey(block.Bytes); err == nil {
		return key, nil
	}

	return nil, fmt.Errorf("failed to parse private key, unknown type")
}

// ParsePublicKey parses the PEM encoded public key from the given
// reader, accepting the PKIX form or a certificate.
func ParsePublicKey(r io.Reader) (any, error) {
	block, err := readPEMBlock(r)
	if err != nil {
		return nil, err
	}

	if key, err := x509.ParsePKIXPublicKey(block.Bytes); err == nil {
		return key, nil
	}
	if cert, err := x509.ParseCertificate(block.Bytes); err == nil {
		return cert.PublicKey, nil
	}

	return nil, fmt.Errorf("failed to parse public key, unknown type")
}

// ParseRSAPublicKey parses the PEM encoded RSA public key from the given reader.
func ParseRSAPublicKey(r io.Reader) (*rsa.PublicKey, error) {
	parsedKey, err := ParsePublicKey(r)
	if err != nil {
		return nil, fmt.Errorf("failed to decode RSA public key: %w", err)
	}

	publicKey, ok := parsedKey.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("invalid type %T for parse RSA public key", parsedKey)
	}

	return publicKey, nil
}

// ParseRSAPrivateKey parses the PEM encoded RSA private key from the given reader.
func ParseRSAPrivateKey(r io.Reader) (*rsa.PrivateKey, error) {
	parsedKey, err := ParsePrivateKey(r)
	if err != nil {
		return nil, fmt.Errorf("failed to decode RSA private key: %w", err)
	}

	privateKey, ok := parsedKey.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("invalid type %T for parse RSA private key", parsedKey)
	}

	return privateKey, nil
}

// ParseECDSAPublicKey parses the PEM encoded ECDSA public key from the given reader.
func ParseECDSAPublicKey(r io.Reader) (*ecdsa.PublicKey, error) {
	parsedKey, err := ParsePublicKey(r)
	if err != nil {
		return nil, fmt.Errorf("failed to decode ECDSA public key: %w", err)
	}

	publicKey, ok := parsedKey.(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("invalid type %T for parse ECDSA public key", parsedKey)
	}

	return publicKey, nil
}

// ParseECDSAPrivateKey parses the PEM encoded ECDSA private key from the given reader.
func ParseECDSAPrivateKey(r io.Reader) (*ecdsa.PrivateKey, error) {
	parsedKey, err := ParsePrivateKey(r)
	if err != nil {
		return nil, fmt.Errorf("failed to decode ECDSA private key: %w", err)
	}

	privateKey, ok := parsedKey.(*ecdsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("invalid type %T for parse ECDSA private key", parsedKey)
	}

	return privateKey, nil
}

// ParseEdDSAPublicKey parses the PEM encoded Ed25519 public key from the given reader.
func ParseEdDSAPublicKey(r io.Reader) (ed25519.PublicKey, error) {
	parsedKey, err := ParsePublicKey(r)
	if err != nil {
		return nil, fmt.Errorf("failed to decode EdDSA public key: %w", err)
	}

	publicKey, ok := parsedKey.(ed25519.PublicKey)
	if !ok {
		return nil, fmt.Errorf("invalid type %T for parse EdDSA public key", parsedKey)
	}

	return publicKey, nil
}

// ParseEdDSAPrivateKey parses the PEM encoded Ed25519 private key from the given reader.
func ParseEdDSAPrivateKey(r io.Reader) (ed25519.PrivateKey, error) {
	parsedKey, err := ParsePrivateKey(r)
	if err != nil {
		return nil, fmt.Errorf("failed to decode EdDSA private key: %w", err)
	}

	privateKey, ok := parsedKey.(ed25519.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("invalid type %T for parse EdDSA private key", parsedKey)
	}

	return privateKey, nil
}

// NewRSAKeyPair returns a new RSA key pair, or an error if one occurs.
func NewRSAKeyPair() (*rsa.PublicKey, *rsa.PrivateKey, error) {
	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate new RSA key pair: %w", err)
	}

	return &privateKey.PublicKey, privateKey, nil
}

// NewECDSAKeyPair returns a new ECDSA key pair, or an error if one occurs.
func NewECDSAKeyPair() (*ecdsa.PublicKey, *ecdsa.PrivateKey, error) {
	privateKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate new ECDSA key pair: %w", err)
	}

	return &privateKey.PublicKey, privateKey, nil
}

// NewEdDSAKeyPair returns a new EdDSA key pair, or an error if one occurs.
func NewEdDSAKeyPair() (ed25519.PublicKey, ed25519.PrivateKey, error) {
	publicKey, privateKey, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate new EdDSA key pair: %w", err)
	}

	return publicKey, privateKey, nil
}

// GenerateKey generates a fresh private key suitable for the given
// algorithm, returned in its concrete jwk form with a random "kid"
// parameter.
func GenerateKey(alg jwa.Algorithm) (jwk.Key, error) {
	key, err := generateKey(alg)
	if err != nil {
		return nil, err
	}

	key.Value()[jwk.KeyID] = NewKeyID()
	key.Value()[jwk.Algorithm] = alg

	return key, nil
}

func generateKey(alg jwa.Algorithm) (jwk.Key, error) {
	switch alg {
	case jwa.HS256, jwa.HS384, jwa.HS512,
		jwa.A128KW, jwa.A192KW, jwa.A256KW,
		jwa.A128GCMKW, jwa.A192GCMKW, jwa.A256GCMKW,
		jwa.Direct:
		requirement, err := jwa.KeyRequirementFor(alg)
		if err != nil {
			return nil, err
		}
		size := requirement.MinimumKeySize
		if size == 0 {
			size = 32
		}
		secret, err := NewSymmetricKey(size)
		if err != nil {
			return nil, err
		}
		return jwk.FromSymmetricKey(secret), nil
	case jwa.RS256, jwa.RS384, jwa.RS512,
		jwa.PS256, jwa.PS384, jwa.PS512,
		jwa.RSA1_5, jwa.RSAOAEP, jwa.RSAOAEP256:
		_, privateKey, err := NewRSAKeyPair()
		if err != nil {
			return nil, err
		}
		return jwk.FromRSAPrivateKey(privateKey), nil
	case jwa.ES256, jwa.ECDHES, jwa.ECDHESA128KW, jwa.ECDHESA192KW, jwa.ECDHESA256KW:
		privateKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
		if err != nil {
			return nil, fmt.Errorf("failed to generate new ECDSA key pair: %w", err)
		}
		return jwk.FromECDSAPrivateKey(privateKey)
	case jwa.ES384:
		privateKey, err := ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
		if err != nil {
			return nil, fmt.Errorf("failed to generate new ECDSA key pair: %w", err)
		}
		return jwk.FromECDSAPrivateKey(privateKey)
	case jwa.ES512:
		privateKey, err := ecdsa.GenerateKey(elliptic.P521(), rand.Reader)
		if err != nil {
			return nil, fmt.Errorf("failed to generate new ECDSA key pair: %w", err)
		}
		return jwk.FromECDSAPrivateKey(privateKey)
	case jwa.EdDSA:
		_, privateKey, err := NewEdDSAKeyPair()
		if err != nil {
			return nil, err
		}
		return jwk.FromEd25519PrivateKey(privateKey), nil
	case jwa.MLDSA65, jwa.MLDSA87:
		return jwk.GenerateMLDSAKey(alg)
	default:
		return nil, fmt.Errorf("%w: cannot generate key for %q", jwa.ErrUnknownAlgorithm, alg)
	}
}

// GenerateAgreementKey generates a fresh X25519 private key for the
// ECDH-ES and hybrid algorithm families, with a random "kid".
func GenerateAgreementKey() (jwk.Key, error) {
	privateKey, err := ecdh.X25519().GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate new X25519 key: %w", err)
	}

	key := jwk.FromX25519PrivateKey(privateKey)
	key.Value()[jwk.KeyID] = NewKeyID()

	return key, nil
}
