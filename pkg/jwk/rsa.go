package jwk

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/sha256"
	"fmt"
	"math/big"

	"github.com/josekit/jose/pkg/base64"
	"github.com/josekit/jose/pkg/jwa"
)

// RSAKey is a concrete RSA key supporting RSASSA signatures (RS*/PS*)
// and RSAES key transport (RSA1_5, RSA-OAEP, RSA-OAEP-256).
type RSAKey struct {
	baseKey

	public  *rsa.PublicKey
	private *rsa.PrivateKey
}

// FromRSAPublicKey wraps an RSA public key as a concrete JWK.
func FromRSAPublicKey(public *rsa.PublicKey) *RSAKey {
	return &RSAKey{
		baseKey: baseKey{params: Value{
			KeyType: jwa.KeyTypeRSA,
			N:       base64.Encode(public.N.Bytes()),
			E:       base64.Encode(big.NewInt(int64(public.E)).Bytes()),
		}},
		public: public,
	}
}

// FromRSAPrivateKey wraps an RSA private key as a concrete JWK.
func FromRSAPrivateKey(private *rsa.PrivateKey) *RSAKey {
	key := FromRSAPublicKey(&private.PublicKey)
	key.private = private
	key.params[D] = base64.Encode(private.D.Bytes())
	return key
}

func rsaFromValue(v Value) (*RSAKey, error) {
	nBytes, err := base64Parameter(v, N)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidKeyFormat, err)
	}
	eBytes, err := base64Parameter(v, E)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidKeyFormat, err)
	}

	public := &rsa.PublicKey{
		N: new(big.Int).SetBytes(nBytes),
		E: int(new(big.Int).SetBytes(eBytes).Int64()),
	}

	key := &RSAKey{baseKey: baseKey{params: v}, public: public}

	if _, ok := v[D]; ok {
		dBytes, err := base64Parameter(v, D)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidKeyFormat, err)
		}

		private := &rsa.PrivateKey{
			PublicKey: *public,
			D:         new(big.Int).SetBytes(dBytes),
		}

		// First and second prime factors, when carried.
		pBytes, pErr := base64Parameter(v, "p")
		qBytes, qErr := base64Parameter(v, "q")
		if pErr == nil && qErr == nil {
			private.Primes = []*big.Int{
				new(big.Int).SetBytes(pBytes),
				new(big.Int).SetBytes(qBytes),
			}
			private.Precompute()
		}

		key.private = private
	}

	return key, nil
}

func (k *RSAKey) Private() bool { return k.private != nil }

// PublicKey returns the underlying RSA public key.
func (k *RSAKey) PublicKey() *rsa.PublicKey { return k.public }

// Sign produces an RSASSA signature over data.
func (k *RSAKey) Sign(alg jwa.Algorithm, data []byte) ([]byte, error) {
	if k.private == nil {
		return nil, fmt.Errorf("%w: RSA signing requires a private key", ErrOperationNotAllowed)
	}

	hash, err := jwa.SignatureHash(alg)
	if err != nil {
		return nil, err
	}

	h := hash.New()
	h.Write(data)
	digest := h.Sum(nil)

	switch alg {
	case jwa.RS256, jwa.RS384, jwa.RS512:
		return rsa.SignPKCS1v15(rand.Reader, k.private, hash, digest)
	case jwa.PS256, jwa.PS384, jwa.PS512:
		return rsa.SignPSS(rand.Reader, k.private, hash, digest, &rsa.PSSOptions{
			SaltLength: rsa.PSSSaltLengthEqualsHash,
		})
	default:
		return nil, fmt.Errorf("%w: %q is not an RSA signature algorithm", jwa.ErrUnknownAlgorithm, alg)
	}
}

// Verify checks an RSASSA signature over data.
func (k *RSAKey) Verify(alg jwa.Algorithm, data, signature []byte) error {
	hash, err := jwa.SignatureHash(alg)
	if err != nil {
		return err
	}

	h := hash.New()
	h.Write(data)
	digest := h.Sum(nil)

	switch alg {
	case jwa.RS256, jwa.RS384, jwa.RS512:
		if err := rsa.VerifyPKCS1v15(k.public, hash, digest, signature); err != nil {
			return fmt.Errorf("%w: %w", ErrAuthenticationFailed, err)
		}
		return nil
	case jwa.PS256, jwa.PS384, jwa.PS512:
		err := rsa.VerifyPSS(k.public, hash, digest, signature, &rsa.PSSOptions{
			SaltLength: rsa.PSSSaltLengthAuto,
		})
		if err != nil {
			return fmt.Errorf("%w: %w", ErrAuthenticationFailed, err)
		}
		return nil
	default:
		return fmt.Errorf("%w: %q is not an RSA signature algorithm", jwa.ErrUnknownAlgorithm, alg)
	}
}

// EncryptKey wraps a content encryption key for transport.
func (k *RSAKey) EncryptKey(alg jwa.Algorithm, cek []byte) ([]byte, error) {
	switch alg {
	case jwa.RSA1_5:
		return rsa.EncryptPKCS1v15(rand.Reader, k.public, cek)
	case jwa.RSAOAEP:
		return rsa.EncryptOAEP(sha1.New(), rand.Reader, k.public, cek, nil)
	case jwa.RSAOAEP256:
		return rsa.EncryptOAEP(sha256.New(), rand.Reader, k.public, cek, nil)
	default:
		return nil, fmt.Errorf("%w: %q is not an RSA key management algorithm", jwa.ErrUnknownAlgorithm, alg)
	}
}

// DecryptKey unwraps a transported content encryption key.
func (k *RSAKey) DecryptKey(alg jwa.Algorithm, encryptedKey []byte) ([]byte, error) {
	if k.private == nil {
		return nil, fmt.Errorf("%w: RSA key decryption requires a private key", ErrOperationNotAllowed)
	}

	switch alg {
	case jwa.RSA1_5:
		cek, err := rsa.DecryptPKCS1v15(rand.Reader, k.private, encryptedKey)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrAuthenticationFailed, err)
		}
		return cek, nil
	case jwa.RSAOAEP:
		cek, err := rsa.DecryptOAEP(sha1.New(), rand.Reader, k.private, encryptedKey, nil)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrAuthenticationFailed, err)
		}
		return cek, nil
	case jwa.RSAOAEP256:
		cek, err := rsa.DecryptOAEP(sha256.New(), rand.Reader, k.private, encryptedKey, nil)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrAuthenticationFailed, err)
		}
		return cek, nil
	default:
		return nil, fmt.Errorf("%w: %q is not an RSA key management algorithm", jwa.ErrUnknownAlgorithm, alg)
	}
}
