package jwk

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/subtle"
	"encoding/binary"
	"fmt"

	"github.com/josekit/jose/pkg/base64"
	"github.com/josekit/jose/pkg/jwa"
)

// SymmetricKey is a concrete octet sequence key. It validates and
// signs (HS*), wraps and unwraps content encryption keys (AES Key
// Wrap), and seals and opens content directly (AES GCM and the AES
// CBC HMAC composites).
type SymmetricKey struct {
	baseKey

	key []byte
}

// FromSymmetricKey wraps raw key bytes as a concrete JWK.
func FromSymmetricKey(key []byte) *SymmetricKey {
	return &SymmetricKey{
		baseKey: baseKey{params: Value{
			KeyType: jwa.KeyTypeOctet,
			K:       base64.Encode(key),
		}},
		key: key,
	}
}

func symmetricFromValue(v Value) (*SymmetricKey, error) {
	key, err := base64Parameter(v, K)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidKeyFormat, err)
	}
	return &SymmetricKey{baseKey: baseKey{params: v}, key: key}, nil
}

// Bytes returns the raw key material.
func (k *SymmetricKey) Bytes() []byte { return k.key }

// Private always reports true: symmetric key material is secret.
func (k *SymmetricKey) Private() bool { return true }

// Equal compares the key material in constant time.
func (k *SymmetricKey) Equal(other *SymmetricKey) bool {
	return subtle.ConstantTimeCompare(k.key, other.key) == 1
}

// Sign produces an HMAC over data.
func (k *SymmetricKey) Sign(alg jwa.Algorithm, data []byte) ([]byte, error) {
	if jwa.FamilyOf(alg) != jwa.FamilyHMAC {
		return nil, fmt.Errorf("%w: %q is not an HMAC algorithm", jwa.ErrUnknownAlgorithm, alg)
	}

	hash, err := jwa.SignatureHash(alg)
	if err != nil {
		return nil, err
	}

	if len(k.key) == 0 {
		return nil, fmt.Errorf("%w: empty symmetric key", ErrOperationNotAllowed)
	}

	h := hmac.New(hash.New, k.key)
	h.Write(data)

	return h.Sum(nil), nil
}

// Verify checks an HMAC over data in constant time.
func (k *SymmetricKey) Verify(alg jwa.Algorithm, data, signature []byte) error {
	expected, err := k.Sign(alg, data)
	if err != nil {
		return err
	}

	if !hmac.Equal(expected, signature) {
		return fmt.Errorf("%w: HMAC mismatch", ErrAuthenticationFailed)
	}

	return nil
}

// EncryptKey wraps a content encryption key using AES Key Wrap
// (RFC 3394).
func (k *SymmetricKey) EncryptKey(alg jwa.Algorithm, cek []byte) ([]byte, error) {
	if err := k.checkWrapAlgorithm(alg); err != nil {
		return nil, err
	}
	return keyWrap(k.key, cek)
}

// DecryptKey unwraps a content encryption key using AES Key Wrap.
func (k *SymmetricKey) DecryptKey(alg jwa.Algorithm, encryptedKey []byte) ([]byte, error) {
	if err := k.checkWrapAlgorithm(alg); err != nil {
		return nil, err
	}
	return keyUnwrap(k.key, encryptedKey)
}

func (k *SymmetricKey) checkWrapAlgorithm(alg jwa.Algorithm) error {
	req, err := jwa.KeyRequirementFor(alg)
	if err != nil {
		return err
	}
	if req.KeyType != jwa.KeyTypeOctet {
		return fmt.Errorf("%w: %q is not a symmetric key management algorithm", jwa.ErrUnknownAlgorithm, alg)
	}
	if len(k.key) != req.MinimumKeySize {
		return fmt.Errorf("%w: algorithm %q requires a %d-byte key, have %d",
			ErrOperationNotAllowed, alg, req.MinimumKeySize, len(k.key))
	}
	return nil
}

// Seal encrypts plaintext under the given nonce and additional
// authenticated data, returning ciphertext and tag separately.
func (k *SymmetricKey) Seal(enc jwa.Encryption, nonce, plaintext, aad []byte) ([]byte, []byte, error) {
	sizes, err := jwa.SizesFor(enc)
	if err != nil {
		return nil, nil, err
	}

	if len(k.key) != sizes.CEKSize {
		return nil, nil, fmt.Errorf("%w: %q requires a %d-byte key, have %d",
			ErrOperationNotAllowed, enc, sizes.CEKSize, len(k.key))
	}
	if len(nonce) != sizes.IVSize {
		return nil, nil, fmt.Errorf("%w: %q requires a %d-byte nonce, have %d",
			ErrOperationNotAllowed, enc, sizes.IVSize, len(nonce))
	}

	switch enc {
	case jwa.A128GCM, jwa.A192GCM, jwa.A256GCM:
		aead, err := newGCM(k.key)
		if err != nil {
			return nil, nil, err
		}
		sealed := aead.Seal(nil, nonce, plaintext, aad)
		split := len(sealed) - sizes.TagSize
		return sealed[:split], sealed[split:], nil
	case jwa.A128CBCHS256, jwa.A192CBCHS384, jwa.A256CBCHS512:
		return k.sealCBCHMAC(sizes, nonce, plaintext, aad)
	default:
		return nil, nil, fmt.Errorf("%w: %q", jwa.ErrUnknownAlgorithm, enc)
	}
}

// Open decrypts and authenticates sealed content.
func (k *SymmetricKey) Open(enc jwa.Encryption, nonce, ciphertext, tag, aad []byte) ([]byte, error) {
	sizes, err := jwa.SizesFor(enc)
	if err != nil {
		return nil, err
	}

	if len(k.key) != sizes.CEKSize {
		return nil, fmt.Errorf("%w: %q requires a %d-byte key, have %d",
			ErrOperationNotAllowed, enc, sizes.CEKSize, len(k.key))
	}

	switch enc {
	case jwa.A128GCM, jwa.A192GCM, jwa.A256GCM:
		aead, err := newGCM(k.key)
		if err != nil {
			return nil, err
		}
		sealed := append(append([]byte{}, ciphertext...), tag...)
		plaintext, err := aead.Open(nil, nonce, sealed, aad)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrAuthenticationFailed, err)
		}
		return plaintext, nil
	case jwa.A128CBCHS256, jwa.A192CBCHS384, jwa.A256CBCHS512:
		return k.openCBCHMAC(sizes, nonce, ciphertext, tag, aad)
	default:
		return nil, fmt.Errorf("%w: %q", jwa.ErrUnknownAlgorithm, enc)
	}
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize AES: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize GCM: %w", err)
	}
	return aead, nil
}

// sealCBCHMAC implements the AES_CBC_HMAC_SHA2 composite from
// RFC 7518 Section 5.2: the first half of the CEK is the MAC key, the
// second half the AES key, and the tag is the HMAC over
// AAD || IV || ciphertext || bitlen(AAD) truncated to half the hash.
func (k *SymmetricKey) sealCBCHMAC(sizes jwa.EncryptionSizes, iv, plaintext, aad []byte) ([]byte, []byte, error) {
	macKey := k.key[:sizes.CEKSize/2]
	encKey := k.key[sizes.CEKSize/2:]

	block, err := aes.NewCipher(encKey)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize AES: %w", err)
	}

	padded := padPKCS7(plaintext, block.BlockSize())
	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)

	tag := cbcHMACTag(sizes, macKey, iv, ciphertext, aad)

	return ciphertext, tag, nil
}

func (k *SymmetricKey) openCBCHMAC(sizes jwa.EncryptionSizes, iv, ciphertext, tag, aad []byte) ([]byte, error) {
	macKey := k.key[:sizes.CEKSize/2]
	encKey := k.key[sizes.CEKSize/2:]

	expected := cbcHMACTag(sizes, macKey, iv, ciphertext, aad)
	if !hmac.Equal(expected, tag) {
		return nil, fmt.Errorf("%w: authentication tag mismatch", ErrAuthenticationFailed)
	}

	block, err := aes.NewCipher(encKey)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize AES: %w", err)
	}

	if len(iv) != block.BlockSize() {
		return nil, fmt.Errorf("%w: invalid IV length %d", ErrAuthenticationFailed, len(iv))
	}
	if len(ciphertext) == 0 || len(ciphertext)%block.BlockSize() != 0 {
		return nil, fmt.Errorf("%w: invalid ciphertext length %d", ErrAuthenticationFailed, len(ciphertext))
	}

	padded := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(padded, ciphertext)

	plaintext, err := unpadPKCS7(padded, block.BlockSize())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAuthenticationFailed, err)
	}

	return plaintext, nil
}

func cbcHMACTag(sizes jwa.EncryptionSizes, macKey, iv, ciphertext, aad []byte) []byte {
	al := make([]byte, 8)
	binary.BigEndian.PutUint64(al, uint64(len(aad))*8)

	h := hmac.New(sizes.Hash.New, macKey)
	h.Write(aad)
	h.Write(iv)
	h.Write(ciphertext)
	h.Write(al)

	return h.Sum(nil)[:sizes.TagSize]
}

func padPKCS7(data []byte, blockSize int) []byte {
	padding := blockSize - len(data)%blockSize
	return append(data, bytes.Repeat([]byte{byte(padding)}, padding)...)
}

func unpadPKCS7(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, fmt.Errorf("invalid padded length %d", len(data))
	}

	padding := int(data[len(data)-1])
	if padding == 0 || padding > blockSize || padding > len(data) {
		return nil, fmt.Errorf("invalid padding length %d", padding)
	}

	for _, b := range data[len(data)-padding:] {
		if int(b) != padding {
			return nil, fmt.Errorf("inconsistent padding")
		}
	}

	return data[:len(data)-padding], nil
}

// defaultKeyWrapIV is the initial value from RFC 3394 Section 2.2.3.1.
var defaultKeyWrapIV = []byte{0xA6, 0xA6, 0xA6, 0xA6, 0xA6, 0xA6, 0xA6, 0xA6}

// keyWrap implements AES Key Wrap (RFC 3394). No library in our
// dependency set provides it, so it is built directly on the AES
// block cipher.
func keyWrap(kek, cek []byte) ([]byte, error) {
	if len(cek) < 16 || len(cek)%8 != 0 {
		return nil, fmt.Errorf("%w: key wrap input must be a multiple of 8 bytes, have %d",
			ErrOperationNotAllowed, len(cek))
	}

	block, err := aes.NewCipher(kek)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize AES: %w", err)
	}

	n := len(cek) / 8

	r := make([][]byte, n)
	for i := range r {
		r[i] = make([]byte, 8)
		copy(r[i], cek[i*8:])
	}

	a := make([]byte, 8)
	copy(a, defaultKeyWrapIV)

	buf := make([]byte, 16)
	for j := 0; j <= 5; j++ {
		for i := 1; i <= n; i++ {
			copy(buf[:8], a)
			copy(buf[8:], r[i-1])
			block.Encrypt(buf, buf)

			t := uint64(n*j + i)
			copy(a, buf[:8])
			for k := 0; k < 8; k++ {
				a[7-k] ^= byte(t >> (8 * k))
			}
			copy(r[i-1], buf[8:])
		}
	}

	out := make([]byte, 0, (n+1)*8)
	out = append(out, a...)
	for _, block := range r {
		out = append(out, block...)
	}

	return out, nil
}

// keyUnwrap implements AES Key Unwrap (RFC 3394), checking the
// integrity register against the fixed initial value.
func keyUnwrap(kek, wrapped []byte) ([]byte, error) {
	if len(wrapped) < 24 || len(wrapped)%8 != 0 {
		return nil, fmt.Errorf("%w: invalid wrapped key length %d", ErrAuthenticationFailed, len(wrapped))
	}

	block, err := aes.NewCipher(kek)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize AES: %w", err)
	}

	n := len(wrapped)/8 - 1

	a := make([]byte, 8)
	copy(a, wrapped[:8])

	r := make([][]byte, n)
	for i := range r {
		r[i] = make([]byte, 8)
		copy(r[i], wrapped[(i+1)*8:])
	}

	buf := make([]byte, 16)
	for j := 5; j >= 0; j-- {
		for i := n; i >= 1; i-- {
			t := uint64(n*j + i)
			for k := 0; k < 8; k++ {
				a[7-k] ^= byte(t >> (8 * k))
			}

			copy(buf[:8], a)
			copy(buf[8:], r[i-1])
			block.Decrypt(buf, buf)

			copy(a, buf[:8])
			copy(r[i-1], buf[8:])
		}
	}

	if subtle.ConstantTimeCompare(a, defaultKeyWrapIV) != 1 {
		return nil, fmt.Errorf("%w: key wrap integrity check failed", ErrAuthenticationFailed)
	}

	out := make([]byte, 0, n*8)
	for _, block := range r {
		out = append(out, block...)
	}

	return out, nil
}
