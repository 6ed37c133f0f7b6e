package jwe

import (
	"crypto/rand"
	"fmt"

	"github.com/cloudflare/circl/hpke"

	"github.com/josekit/jose/pkg/base64"
	"github.com/josekit/jose/pkg/jwa"
	"github.com/josekit/jose/pkg/jwk"
)

// hpkeTagSize is the AEAD tag length of the registered HPKE suites,
// all of which use AES-128-GCM.
const hpkeTagSize = 16

// hpkeSuite maps an integrated encryption algorithm onto its HPKE
// suite parameters.
func hpkeSuite(alg jwa.Algorithm) (hpke.Suite, hpke.KEM, error) {
	switch alg {
	case jwa.HPKEP256SHA256A128GCM:
		kem := hpke.KEM_P256_HKDF_SHA256
		return hpke.NewSuite(kem, hpke.KDF_HKDF_SHA256, hpke.AEAD_AES128GCM), kem, nil
	case jwa.HPKEX25519SHA256A128GCM:
		kem := hpke.KEM_X25519_HKDF_SHA256
		return hpke.NewSuite(kem, hpke.KDF_HKDF_SHA256, hpke.AEAD_AES128GCM), kem, nil
	}
	return hpke.Suite{}, 0, fmt.Errorf("%w: %q", jwa.ErrUnknownAlgorithm, alg)
}

// sealIntegrated encrypts the plaintext directly under an HPKE suite,
// bypassing the content encryption key model. It returns the KEM
// encapsulation, the ciphertext and the authentication tag; the
// envelope carries no initialization vector in this mode.
func sealIntegrated(alg jwa.Algorithm, key jwk.Key, plaintext, aad []byte) ([]byte, []byte, []byte, error) {
	suite, kem, err := hpkeSuite(alg)
	if err != nil {
		return nil, nil, nil, err
	}

	agreement, ok := key.(jwk.AgreementKey)
	if !ok {
		return nil, nil, nil, fmt.Errorf("%w: key type %q cannot perform hybrid encryption", jwk.ErrOperationNotAllowed, key.KeyType())
	}
	remote, err := agreement.ECDHPublicKey()
	if err != nil {
		return nil, nil, nil, err
	}

	public, err := kem.Scheme().UnmarshalBinaryPublicKey(remote.Bytes())
	if err != nil {
		return nil, nil, nil, fmt.Errorf("%w: %w", jwk.ErrInvalidKeyFormat, err)
	}

	sender, err := suite.NewSender(public, nil)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to initialize hybrid encryption: %w", err)
	}
	encapsulation, sealer, err := sender.Setup(rand.Reader)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to encapsulate hybrid key: %w", err)
	}

	sealed, err := sealer.Seal(plaintext, aad)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to seal plaintext: %w", err)
	}

	split := len(sealed) - hpkeTagSize
	return encapsulation, sealed[:split], sealed[split:], nil
}

// openIntegrated reverses sealIntegrated with the recipient's private
// key and the transported KEM encapsulation.
func openIntegrated(alg jwa.Algorithm, key jwk.Key, encapsulation, ciphertext, tag, aad []byte) ([]byte, error) {
	suite, kem, err := hpkeSuite(alg)
	if err != nil {
		return nil, err
	}

	if !key.Private() {
		return nil, fmt.Errorf("%w: hybrid decryption requires a private key", jwk.ErrOperationNotAllowed)
	}
	scalar, err := privateScalar(key)
	if err != nil {
		return nil, err
	}

	private, err := kem.Scheme().UnmarshalBinaryPrivateKey(scalar)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", jwk.ErrInvalidKeyFormat, err)
	}

	receiver, err := suite.NewReceiver(private, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize hybrid decryption: %w", err)
	}
	opener, err := receiver.Setup(encapsulation)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to decapsulate hybrid key: %w", jwk.ErrAuthenticationFailed, err)
	}

	sealed := make([]byte, 0, len(ciphertext)+len(tag))
	sealed = append(append(sealed, ciphertext...), tag...)

	plaintext, err := opener.Open(sealed, aad)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", jwk.ErrAuthenticationFailed, err)
	}

	return plaintext, nil
}

// privateScalar extracts the raw private key bytes from an EC or OKP
// key description for KEM use.
func privateScalar(key jwk.Key) ([]byte, error) {
	raw, ok := key.Value()[jwk.D].(string)
	if !ok {
		return nil, fmt.Errorf("%w: missing private key parameter", jwk.ErrInvalidKeyFormat)
	}
	scalar, err := base64.Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", jwk.ErrInvalidKeyFormat, err)
	}
	return scalar, nil
}
