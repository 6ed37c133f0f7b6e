package jwk

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"reflect"
	"sync"

	"github.com/josekit/jose/pkg/jwa"
)

// ImportFormat names the byte formats ImportKey understands.
type ImportFormat string

const (
	// FormatRaw is raw key material (symmetric keys).
	FormatRaw ImportFormat = "raw"

	// FormatPKCS8 is a DER-encoded PKCS#8 private key container.
	FormatPKCS8 ImportFormat = "pkcs8"

	// FormatPKIX is a DER-encoded PKIX (SubjectPublicKeyInfo) public
	// key container.
	FormatPKIX ImportFormat = "pkix"

	// FormatCertificate is a DER-encoded X.509 certificate.
	FormatCertificate ImportFormat = "certificate"

	// FormatJWK is a JSON-encoded JWK object.
	FormatJWK ImportFormat = "jwk"
)

// Specializer is a classification rule that upgrades an untyped key
// description, or raw imported bytes, into a concrete capability-typed
// key. Rules are consulted in priority order; the first match wins.
type Specializer interface {
	// Specialize attempts to upgrade the generic value. The second
	// return value reports whether the rule matched at all.
	Specialize(value Value) (Key, bool, error)

	// Import attempts to build a key from bytes in the given format.
	Import(data []byte, format ImportFormat) (Key, bool, error)
}

// Registry is an ordered list of classification rules. It is safe for
// concurrent use: lookups vastly outnumber writes, so reads take a
// shared lock and Register replaces the rule slice copy-on-write.
type Registry struct {
	mu    sync.RWMutex
	rules []Specializer
}

// NewRegistry returns a registry populated with the built-in rules:
// RSA, elliptic curve, OKP, symmetric, certificate chain, and ML-DSA
// algorithm key pair.
func NewRegistry() *Registry {
	return &Registry{
		rules: []Specializer{
			&RSASpecializer{},
			&ECDSASpecializer{},
			&OKPSpecializer{},
			&SymmetricSpecializer{},
			&CertificateSpecializer{},
			&MLDSASpecializer{},
		},
	}
}

// Register inserts a rule at the front of the registry, giving it
// priority over the built-ins. Registering a rule whose concrete type
// is already present is a no-op.
func (r *Registry) Register(rule Specializer) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ruleType := reflect.TypeOf(rule)
	for _, existing := range r.rules {
		if reflect.TypeOf(existing) == ruleType {
			return
		}
	}

	next := make([]Specializer, 0, len(r.rules)+1)
	next = append(next, rule)
	next = append(next, r.rules...)
	r.rules = next
}

func (r *Registry) snapshot() []Specializer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.rules
}

// Specialize upgrades an untyped key description into a concrete
// capability-typed key using the first matching rule. When no rule
// matches, the generic form is returned unchanged.
func (r *Registry) Specialize(value Value) (Key, error) {
	for _, rule := range r.snapshot() {
		key, ok, err := rule.Specialize(value)
		if err != nil {
			return nil, err
		}
		if ok {
			return key, nil
		}
	}

	return &Generic{Params: value}, nil
}

// Import builds a concrete key from bytes in the given format.
func (r *Registry) Import(data []byte, format ImportFormat) (Key, error) {
	if format == FormatJWK {
		var value Value
		if err := json.Unmarshal(data, &value); err != nil {
			return nil, fmt.Errorf("%w: invalid JWK JSON: %w", ErrInvalidKeyFormat, err)
		}
		return r.Specialize(value)
	}

	for _, rule := range r.snapshot() {
		key, ok, err := rule.Import(data, format)
		if err != nil {
			return nil, err
		}
		if ok {
			return key, nil
		}
	}

	return nil, fmt.Errorf("%w: no rule matched import format %q", ErrInvalidKeyFormat, format)
}

// defaultRegistry is the shared convenience instance. Applications
// that need isolation own their own Registry.
var defaultRegistry = NewRegistry()

// Register inserts a rule into the default registry.
func Register(rule Specializer) { defaultRegistry.Register(rule) }

// Specialize upgrades a key description using the default registry.
func Specialize(value Value) (Key, error) { return defaultRegistry.Specialize(value) }

// Import builds a key from bytes using the default registry.
func Import(data []byte, format ImportFormat) (Key, error) { return defaultRegistry.Import(data, format) }

// RSASpecializer classifies RSA key descriptions and DER imports.
type RSASpecializer struct{}

func (s *RSASpecializer) Specialize(v Value) (Key, bool, error) {
	if kty, _ := stringParameter(v, KeyType); kty != jwa.KeyTypeRSA {
		return nil, false, nil
	}
	key, err := rsaFromValue(v)
	if err != nil {
		return nil, false, err
	}
	return key, true, nil
}

func (s *RSASpecializer) Import(data []byte, format ImportFormat) (Key, bool, error) {
	switch format {
	case FormatPKCS8:
		parsed, err := x509.ParsePKCS8PrivateKey(data)
		if err != nil {
			return nil, false, nil
		}
		private, ok := parsed.(*rsa.PrivateKey)
		if !ok {
			return nil, false, nil
		}
		return FromRSAPrivateKey(private), true, nil
	case FormatPKIX:
		parsed, err := x509.ParsePKIXPublicKey(data)
		if err != nil {
			return nil, false, nil
		}
		public, ok := parsed.(*rsa.PublicKey)
		if !ok {
			return nil, false, nil
		}
		return FromRSAPublicKey(public), true, nil
	default:
		return nil, false, nil
	}
}

// ECDSASpecializer classifies elliptic curve key descriptions and DER
// imports.
type ECDSASpecializer struct{}

func (s *ECDSASpecializer) Specialize(v Value) (Key, bool, error) {
	if kty, _ := stringParameter(v, KeyType); kty != jwa.KeyTypeEC {
		return nil, false, nil
	}
	key, err := ecdsaFromValue(v)
	if err != nil {
		return nil, false, err
	}
	return key, true, nil
}

func (s *ECDSASpecializer) Import(data []byte, format ImportFormat) (Key, bool, error) {
	switch format {
	case FormatPKCS8:
		parsed, err := x509.ParsePKCS8PrivateKey(data)
		if err != nil {
			return nil, false, nil
		}
		private, ok := parsed.(*ecdsa.PrivateKey)
		if !ok {
			return nil, false, nil
		}
		key, err := FromECDSAPrivateKey(private)
		if err != nil {
			return nil, false, err
		}
		return key, true, nil
	case FormatPKIX:
		parsed, err := x509.ParsePKIXPublicKey(data)
		if err != nil {
			return nil, false, nil
		}
		public, ok := parsed.(*ecdsa.PublicKey)
		if !ok {
			return nil, false, nil
		}
		key, err := FromECDSAPublicKey(public)
		if err != nil {
			return nil, false, err
		}
		return key, true, nil
	default:
		return nil, false, nil
	}
}

// OKPSpecializer classifies Curve25519 key descriptions and Ed25519
// DER imports.
type OKPSpecializer struct{}

func (s *OKPSpecializer) Specialize(v Value) (Key, bool, error) {
	if kty, _ := stringParameter(v, KeyType); kty != jwa.KeyTypeOKP {
		return nil, false, nil
	}
	key, err := okpFromValue(v)
	if err != nil {
		return nil, false, err
	}
	return key, true, nil
}

func (s *OKPSpecializer) Import(data []byte, format ImportFormat) (Key, bool, error) {
	switch format {
	case FormatPKCS8:
		parsed, err := x509.ParsePKCS8PrivateKey(data)
		if err != nil {
			return nil, false, nil
		}
		private, ok := parsed.(ed25519.PrivateKey)
		if !ok {
			return nil, false, nil
		}
		return FromEd25519PrivateKey(private), true, nil
	case FormatPKIX:
		parsed, err := x509.ParsePKIXPublicKey(data)
		if err != nil {
			return nil, false, nil
		}
		public, ok := parsed.(ed25519.PublicKey)
		if !ok {
			return nil, false, nil
		}
		return FromEd25519PublicKey(public), true, nil
	default:
		return nil, false, nil
	}
}

// SymmetricSpecializer classifies octet sequence key descriptions and
// raw byte imports.
type SymmetricSpecializer struct{}

func (s *SymmetricSpecializer) Specialize(v Value) (Key, bool, error) {
	if kty, _ := stringParameter(v, KeyType); kty != jwa.KeyTypeOctet {
		return nil, false, nil
	}
	key, err := symmetricFromValue(v)
	if err != nil {
		return nil, false, err
	}
	return key, true, nil
}

func (s *SymmetricSpecializer) Import(data []byte, format ImportFormat) (Key, bool, error) {
	if format != FormatRaw {
		return nil, false, nil
	}
	if len(data) == 0 {
		return nil, false, fmt.Errorf("%w: empty raw key", ErrInvalidKeyFormat)
	}

	key := make([]byte, len(data))
	copy(key, data)

	return FromSymmetricKey(key), true, nil
}

// CertificateSpecializer classifies descriptions carrying an "x5c"
// certificate chain without a key type, and DER certificate imports.
type CertificateSpecializer struct{}

func (s *CertificateSpecializer) Specialize(v Value) (Key, bool, error) {
	if _, ok := v[KeyType]; ok {
		return nil, false, nil
	}
	if _, ok := v[X509CertificateChain]; !ok {
		return nil, false, nil
	}
	key, err := certificateFromValue(v)
	if err != nil {
		return nil, false, err
	}
	return key, true, nil
}

func (s *CertificateSpecializer) Import(data []byte, format ImportFormat) (Key, bool, error) {
	if format != FormatCertificate {
		return nil, false, nil
	}

	leaf, err := x509.ParseCertificate(data)
	if err != nil {
		return nil, false, fmt.Errorf("%w: invalid certificate: %w", ErrInvalidKeyFormat, err)
	}

	key, err := FromCertificate(leaf)
	if err != nil {
		return nil, false, err
	}

	return key, true, nil
}

// MLDSASpecializer classifies post-quantum algorithm key pair
// descriptions.
type MLDSASpecializer struct{}

func (s *MLDSASpecializer) Specialize(v Value) (Key, bool, error) {
	if kty, _ := stringParameter(v, KeyType); kty != jwa.KeyTypeAlgorithm {
		return nil, false, nil
	}
	key, err := mldsaFromValue(v)
	if err != nil {
		return nil, false, err
	}
	return key, true, nil
}

func (s *MLDSASpecializer) Import(data []byte, format ImportFormat) (Key, bool, error) {
	return nil, false, nil
}
