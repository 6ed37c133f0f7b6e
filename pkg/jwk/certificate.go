package jwk

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/josekit/jose/pkg/jwa"
)

// CertificateKey wraps the public key of the leaf certificate of an
// "x5c" chain. Only public key extraction and a validity window check
// are performed here; chain building, trust path validation and
// revocation are deliberately out of scope.
type CertificateKey struct {
	baseKey

	leaf  *x509.Certificate
	inner ValidationKey

	// now is the clock used for the validity window check,
	// overridable in tests.
	now func() time.Time
}

// FromCertificate wraps an already-decoded certificate.
func FromCertificate(leaf *x509.Certificate) (*CertificateKey, error) {
	inner, err := validationKeyFor(leaf.PublicKey)
	if err != nil {
		return nil, err
	}

	return &CertificateKey{
		baseKey: baseKey{params: Value{
			X509CertificateChain: []any{base64.StdEncoding.EncodeToString(leaf.Raw)},
		}},
		leaf:  leaf,
		inner: inner,
		now:   time.Now,
	}, nil
}

func validationKeyFor(public any) (ValidationKey, error) {
	switch public := public.(type) {
	case *rsa.PublicKey:
		return FromRSAPublicKey(public), nil
	case *ecdsa.PublicKey:
		return FromECDSAPublicKey(public)
	case ed25519.PublicKey:
		return FromEd25519PublicKey(public), nil
	default:
		return nil, fmt.Errorf("%w: unsupported certificate public key type %T", ErrInvalidKeyFormat, public)
	}
}

// certificateFromValue builds a CertificateKey from a value carrying
// an "x5c" chain. The chain entries are standard (not url) base64 DER
// per RFC 7517 Section 4.7; DER decoding is delegated to crypto/x509.
func certificateFromValue(v Value) (*CertificateKey, error) {
	chainValue, ok := v[X509CertificateChain]
	if !ok {
		return nil, fmt.Errorf("%w: missing %q", ErrInvalidKeyFormat, X509CertificateChain)
	}

	var first string
	switch chain := chainValue.(type) {
	case []any:
		if len(chain) == 0 {
			return nil, fmt.Errorf("%w: empty %q", ErrInvalidKeyFormat, X509CertificateChain)
		}
		str, ok := chain[0].(string)
		if !ok {
			return nil, fmt.Errorf("%w: invalid %q entry type %T", ErrInvalidKeyFormat, X509CertificateChain, chain[0])
		}
		first = str
	case []string:
		if len(chain) == 0 {
			return nil, fmt.Errorf("%w: empty %q", ErrInvalidKeyFormat, X509CertificateChain)
		}
		first = chain[0]
	default:
		return nil, fmt.Errorf("%w: invalid %q type %T", ErrInvalidKeyFormat, X509CertificateChain, chainValue)
	}

	der, err := base64.StdEncoding.DecodeString(first)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid certificate base64: %w", ErrInvalidKeyFormat, err)
	}

	leaf, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid certificate: %w", ErrInvalidKeyFormat, err)
	}

	inner, err := validationKeyFor(leaf.PublicKey)
	if err != nil {
		return nil, err
	}

	return &CertificateKey{
		baseKey: baseKey{params: v},
		leaf:    leaf,
		inner:   inner,
		now:     time.Now,
	}, nil
}

func (k *CertificateKey) Private() bool { return false }

// Certificate returns the decoded leaf certificate.
func (k *CertificateKey) Certificate() *x509.Certificate { return k.leaf }

func (k *CertificateKey) Curve() jwa.Curve { return k.inner.Curve() }

// Verify checks the signature using the leaf certificate's public
// key, after checking the certificate validity window.
func (k *CertificateKey) Verify(alg jwa.Algorithm, data, signature []byte) error {
	now := k.now()
	if now.Before(k.leaf.NotBefore) || now.After(k.leaf.NotAfter) {
		return fmt.Errorf("%w: certificate is outside its validity window", ErrOperationNotAllowed)
	}

	return k.inner.Verify(alg, data, signature)
}
