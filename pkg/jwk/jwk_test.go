package jwk

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	stdbase64 "encoding/base64"
	"encoding/json"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/josekit/jose/pkg/header"
	"github.com/josekit/jose/pkg/jwa"
)

func decodeValue(t *testing.T, input string) Value {
	t.Helper()

	value := Value{}
	err := json.NewDecoder(strings.NewReader(input)).Decode(&value)
	require.NoError(t, err)
	require.NotEmpty(t, value)

	return value
}

// Public key used in JWS spec Appendix A.3 example, with the matching
// private key from the same appendix.
const ecdsaP256JSON = `
	{
		"kty":"EC",
		"crv":"P-256",
		"x":"f83OJ3D2xF1Bg8vub9tLe1gHMzV76e8Tus9uPHvRVEU",
		"y":"x_FEzRu9m36HLN_tue659LNpXW6pCyStikYjKIWI5a0",
		"d":"jpsQnnGQmL-YBIffH1136cspYG6-0iY7X1fCE9-E9LI"
	}`

// Ed25519 key from RFC 8037 Appendix A.1.
const ed25519JSON = `
	{
		"kty":"OKP",
		"crv":"Ed25519",
		"d":"nWGxne_9WmC6hEr0kuwsxERJxWl7MmkZcDusAxyuf2A",
		"x":"11qYAYKxCrfVS_7TyWQHOg7hcvPapiMlrwIaaPcHURo"
	}`

// X25519 key from RFC 8037 Appendix A.6.
const x25519JSON = `
	{
		"kty":"OKP",
		"crv":"X25519",
		"x":"3p7bfXt9wbTTW2HC7OQ1Nz-DQ8hbeGdNrfx-FG-IK08"
	}`

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{
			name:  "EC P-256",
			input: ecdsaP256JSON,
		},
		{
			name:  "OKP Ed25519",
			input: ed25519JSON,
		},
		{
			name:  "octet sequence",
			input: `{"kty":"oct","k":"GawgguFyGrWKav7AX4VKUg"}`,
		},
		{
			name:  "RSA public",
			input: `{"kty":"RSA","n":"0vx7agoebGcQSuuPiLJXZptN9nndrQmbXEps2aiAFbWhM78LhWx4cbbfAAtVT86zwu1RK7aPFFxuhDR1L6tSoc_BJECPebWKRXjBZCiFV4n3oknjhMstn64tZ_2W-5JsGY4Hc5n9yBXArwl93lqt7_RN5w6Cf0h4QyQ5v-65YGjQR0_FDW2QvzqY368QQMicAtaSqzs8KJZgnYb9c7d0zgdAZHzu6qMQvRL5hajrn1n91CbOpbISD08qNLyrdkt-bFTWhAI4vMQFh6WeZu0fM4lFd2NcRwr3XPksINHaQ-G_xBniIqbw0Ls1jF44-csFCur-kEgU8awapJzKnqDKgw","e":"AQAB"}`,
		},
		{
			name:    "missing key type",
			input:   `{"crv":"P-256"}`,
			wantErr: true,
		},
		{
			name:    "unknown key type",
			input:   `{"kty":"XYZ"}`,
			wantErr: true,
		},
		{
			name:    "EC with invalid curve",
			input:   `{"kty":"EC","crv":"P-128","x":"AA","y":"AA"}`,
			wantErr: true,
		},
		{
			name:    "EC missing coordinate",
			input:   `{"kty":"EC","crv":"P-256","x":"AA"}`,
			wantErr: true,
		},
		{
			name:    "octet sequence with invalid base64",
			input:   `{"kty":"oct","k":"not base64!!"}`,
			wantErr: true,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			err := Validate(decodeValue(t, test.input))
			if test.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestSpecializeECDSA(t *testing.T) {
	key, err := Specialize(decodeValue(t, ecdsaP256JSON))
	require.NoError(t, err)

	ecKey, ok := key.(*ECDSAKey)
	require.True(t, ok)
	require.Equal(t, jwa.KeyTypeEC, ecKey.KeyType())
	require.Equal(t, jwa.P256, ecKey.Curve())
	require.True(t, ecKey.Private())

	data := []byte("test data")

	signature, err := ecKey.Sign(jwa.ES256, data)
	require.NoError(t, err)
	require.Len(t, signature, 64)

	require.NoError(t, ecKey.Verify(jwa.ES256, data, signature))
	require.Error(t, ecKey.Verify(jwa.ES256, []byte("other data"), signature))

	// The curve binds the algorithm.
	_, err = ecKey.Sign(jwa.ES384, data)
	require.Error(t, err)
}

func TestSpecializeRSA(t *testing.T) {
	input := `
		{
			"kty":"RSA",
			"n":"0vx7agoebGcQSuuPiLJXZptN9nndrQmbXEps2aiAFbWhM78LhWx4cbbfAAtVT86zwu1RK7aPFFxuhDR1L6tSoc_BJECPebWKRXjBZCiFV4n3oknjhMstn64tZ_2W-5JsGY4Hc5n9yBXArwl93lqt7_RN5w6Cf0h4QyQ5v-65YGjQR0_FDW2QvzqY368QQMicAtaSqzs8KJZgnYb9c7d0zgdAZHzu6qMQvRL5hajrn1n91CbOpbISD08qNLyrdkt-bFTWhAI4vMQFh6WeZu0fM4lFd2NcRwr3XPksINHaQ-G_xBniIqbw0Ls1jF44-csFCur-kEgU8awapJzKnqDKgw",
			"e":"AQAB",
			"alg":"RS256",
			"kid":"2011-04-29"
		}`

	key, err := Specialize(decodeValue(t, input))
	require.NoError(t, err)

	rsaKey, ok := key.(*RSAKey)
	require.True(t, ok)
	require.Equal(t, jwa.KeyTypeRSA, rsaKey.KeyType())
	require.Equal(t, "2011-04-29", rsaKey.KeyID())
	require.False(t, rsaKey.Private())
	require.Equal(t, 65537, rsaKey.PublicKey().E)

	// A public key cannot sign.
	_, err = rsaKey.Sign(jwa.RS256, []byte("test data"))
	require.Error(t, err)
}

func TestSpecializeSymmetric(t *testing.T) {
	key, err := Specialize(decodeValue(t, `{"kty":"oct","k":"GawgguFyGrWKav7AX4VKUg"}`))
	require.NoError(t, err)

	symmetric, ok := key.(*SymmetricKey)
	require.True(t, ok)
	require.Equal(t, jwa.KeyTypeOctet, symmetric.KeyType())
	require.True(t, symmetric.Private())
	require.Len(t, symmetric.Bytes(), 16)
}

func TestSpecializeEd25519(t *testing.T) {
	key, err := Specialize(decodeValue(t, ed25519JSON))
	require.NoError(t, err)

	okp, ok := key.(*OKPKey)
	require.True(t, ok)
	require.Equal(t, jwa.KeyTypeOKP, okp.KeyType())
	require.Equal(t, jwa.Ed25519, okp.Curve())
	require.True(t, okp.Private())

	// RFC 8037 Appendix A.4 signing input and signature.
	data := []byte("eyJhbGciOiJFZERTQSJ9.RXhhbXBsZSBvZiBFZDI1NTE5IHNpZ25pbmc")

	signature, err := okp.Sign(jwa.EdDSA, data)
	require.NoError(t, err)
	require.Equal(t,
		"hgyY0il_MGCjP0JzlnLWG1PPOt7-09PGcvMg3AIbQR6dWbhijcNR4ki4iylGjg5BhVsPt9g7sVvpAr_MuM0KAg",
		stdbase64.RawURLEncoding.EncodeToString(signature),
	)

	require.NoError(t, okp.Verify(jwa.EdDSA, data, signature))
}

func TestSpecializeMLDSA(t *testing.T) {
	generated, err := GenerateMLDSAKey(jwa.MLDSA65)
	require.NoError(t, err)

	key, err := Specialize(generated.Value())
	require.NoError(t, err)

	mldsa, ok := key.(*MLDSAKey)
	require.True(t, ok)
	require.Equal(t, jwa.KeyTypeAlgorithm, mldsa.KeyType())
	require.True(t, mldsa.Private())

	data := []byte("test data")

	signature, err := mldsa.Sign(jwa.MLDSA65, data)
	require.NoError(t, err)

	require.NoError(t, mldsa.Verify(jwa.MLDSA65, data, signature))
	require.Error(t, mldsa.Verify(jwa.MLDSA65, []byte("other data"), signature))
}

func TestSpecializeUnknownKeyType(t *testing.T) {
	value := Value{KeyType: "XYZ", KeyID: "mystery"}

	key, err := Specialize(value)
	require.NoError(t, err)

	generic, ok := key.(*Generic)
	require.True(t, ok)
	require.Equal(t, "mystery", generic.KeyID())
}

// markedSpecializer claims every value carrying a "test-marker"
// parameter, recording which instance matched.
type markedSpecializer struct {
	marker string
}

func (s *markedSpecializer) Specialize(v Value) (Key, bool, error) {
	if _, ok := v["test-marker"]; !ok {
		return nil, false, nil
	}
	return &Generic{Params: Value{KeyID: s.marker}}, true, nil
}

func (s *markedSpecializer) Import(data []byte, format ImportFormat) (Key, bool, error) {
	return nil, false, nil
}

func TestRegistryRegister(t *testing.T) {
	registry := NewRegistry()

	registry.Register(&markedSpecializer{marker: "first"})

	key, err := registry.Specialize(Value{"test-marker": true})
	require.NoError(t, err)
	require.Equal(t, "first", key.KeyID())

	// A second rule of the same concrete type is ignored.
	registry.Register(&markedSpecializer{marker: "second"})

	key, err = registry.Specialize(Value{"test-marker": true})
	require.NoError(t, err)
	require.Equal(t, "first", key.KeyID())

	// Registered rules take priority over the built-ins.
	key, err = registry.Specialize(Value{KeyType: jwa.KeyTypeOctet, K: "GawgguFyGrWKav7AX4VKUg", "test-marker": true})
	require.NoError(t, err)
	require.IsType(t, &Generic{}, key)
}

func TestImport(t *testing.T) {
	t.Run("JWK", func(t *testing.T) {
		key, err := Import([]byte(`{"kty":"oct","k":"GawgguFyGrWKav7AX4VKUg"}`), FormatJWK)
		require.NoError(t, err)
		require.IsType(t, &SymmetricKey{}, key)
	})

	t.Run("invalid JWK JSON", func(t *testing.T) {
		_, err := Import([]byte(`{`), FormatJWK)
		require.ErrorIs(t, err, ErrInvalidKeyFormat)
	})

	t.Run("raw symmetric", func(t *testing.T) {
		key, err := Import([]byte("super-secret-key"), FormatRaw)
		require.NoError(t, err)

		symmetric, ok := key.(*SymmetricKey)
		require.True(t, ok)
		require.Equal(t, []byte("super-secret-key"), symmetric.Bytes())
	})

	t.Run("PKCS8 ECDSA", func(t *testing.T) {
		private, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
		require.NoError(t, err)

		der, err := x509.MarshalPKCS8PrivateKey(private)
		require.NoError(t, err)

		key, err := Import(der, FormatPKCS8)
		require.NoError(t, err)

		ecKey, ok := key.(*ECDSAKey)
		require.True(t, ok)
		require.True(t, ecKey.Private())
		require.Equal(t, jwa.P256, ecKey.Curve())
	})

	t.Run("PKIX ECDSA", func(t *testing.T) {
		private, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
		require.NoError(t, err)

		der, err := x509.MarshalPKIXPublicKey(&private.PublicKey)
		require.NoError(t, err)

		key, err := Import(der, FormatPKIX)
		require.NoError(t, err)

		ecKey, ok := key.(*ECDSAKey)
		require.True(t, ok)
		require.False(t, ecKey.Private())
	})

	t.Run("unknown format", func(t *testing.T) {
		_, err := Import([]byte("anything"), ImportFormat("carrier-pigeon"))
		require.ErrorIs(t, err, ErrInvalidKeyFormat)
	})
}

func selfSignedCertificate(t *testing.T, notBefore, notAfter time.Time) []byte {
	t.Helper()

	private, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	template := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "test"},
		NotBefore:    notBefore,
		NotAfter:     notAfter,
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, &private.PublicKey, private)
	require.NoError(t, err)

	return der
}

func TestCertificateKey(t *testing.T) {
	now := time.Now()
	der := selfSignedCertificate(t, now.Add(-time.Hour), now.Add(time.Hour))

	t.Run("import DER", func(t *testing.T) {
		key, err := Import(der, FormatCertificate)
		require.NoError(t, err)

		cert, ok := key.(*CertificateKey)
		require.True(t, ok)
		require.False(t, cert.Private())
		require.Equal(t, "test", cert.Certificate().Subject.CommonName)
	})

	t.Run("specialize x5c chain", func(t *testing.T) {
		value := Value{
			X509CertificateChain: []any{stdbase64.StdEncoding.EncodeToString(der)},
		}

		key, err := Specialize(value)
		require.NoError(t, err)
		require.IsType(t, &CertificateKey{}, key)
	})

	t.Run("validity window", func(t *testing.T) {
		key, err := Import(der, FormatCertificate)
		require.NoError(t, err)

		cert := key.(*CertificateKey)
		cert.now = func() time.Time { return now.Add(48 * time.Hour) }

		err = cert.Verify(jwa.ES256, []byte("data"), make([]byte, 64))
		require.ErrorIs(t, err, ErrOperationNotAllowed)
	})
}

func TestBestMatch(t *testing.T) {
	symmetric := FromSymmetricKey([]byte("k1"))
	symmetric.Value()[KeyID] = "kid-1"

	ecKey, err := Specialize(decodeValue(t, ecdsaP256JSON))
	require.NoError(t, err)

	keys := []Key{symmetric, ecKey}

	t.Run("kid match wins", func(t *testing.T) {
		key, err := BestMatch(keys, header.Parameters{
			header.Algorithm: jwa.ES256,
			header.KeyID:     "kid-1",
		})
		require.NoError(t, err)
		require.Equal(t, symmetric, key)
	})

	t.Run("family match", func(t *testing.T) {
		key, err := BestMatch(keys, header.Parameters{
			header.Algorithm: jwa.ES256,
		})
		require.NoError(t, err)
		require.Equal(t, ecKey, key)
	})

	t.Run("agreement matches X25519", func(t *testing.T) {
		x25519Key, err := Specialize(decodeValue(t, x25519JSON))
		require.NoError(t, err)

		key, err := BestMatch([]Key{symmetric, x25519Key}, header.Parameters{
			header.Algorithm: jwa.ECDHES,
		})
		require.NoError(t, err)
		require.Equal(t, x25519Key, key)
	})

	t.Run("first candidate fallback", func(t *testing.T) {
		key, err := BestMatch(keys, header.Parameters{
			header.Algorithm: jwa.RS256,
		})
		require.NoError(t, err)
		require.Equal(t, symmetric, key)
	})

	t.Run("no candidates", func(t *testing.T) {
		_, err := BestMatch(nil, header.Parameters{
			header.Algorithm: jwa.HS256,
		})
		require.ErrorIs(t, err, ErrKeyNotFound)
	})

	t.Run("none never matches", func(t *testing.T) {
		_, err := BestMatch(keys, header.Parameters{
			header.Algorithm: jwa.None,
		})
		require.ErrorIs(t, err, ErrOperationNotAllowed)
	})
}

func TestCompatible(t *testing.T) {
	ecKey, err := Specialize(decodeValue(t, ecdsaP256JSON))
	require.NoError(t, err)

	require.True(t, Compatible(ecKey, jwa.ES256))
	require.False(t, Compatible(ecKey, jwa.ES384)) // curve mismatch
	require.False(t, Compatible(ecKey, jwa.HS256)) // key type mismatch

	x25519Key, err := Specialize(decodeValue(t, x25519JSON))
	require.NoError(t, err)

	// Agreement accepts EC and X25519 keys alike.
	require.True(t, Compatible(ecKey, jwa.ECDHES))
	require.True(t, Compatible(x25519Key, jwa.ECDHES))
	require.True(t, Compatible(x25519Key, jwa.ECDHESA128KW))
	require.False(t, Compatible(x25519Key, jwa.EdDSA)) // curve mismatch

	bound := FromSymmetricKey([]byte("secret"))
	bound.Value()[Algorithm] = jwa.HS256

	require.True(t, Compatible(bound, jwa.HS512)) // same family
	require.False(t, Compatible(bound, jwa.A128KW))
}
