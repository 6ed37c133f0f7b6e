package jwe

import (
	"crypto/rand"
	"fmt"

	"github.com/josekit/jose/pkg/header"
	"github.com/josekit/jose/pkg/jwa"
	"github.com/josekit/jose/pkg/jwk"
	"github.com/josekit/jose/pkg/protected"
)

// EncryptOption adjusts the encryption pipeline.
type EncryptOption func(*encryptOptions)

type encryptOptions struct {
	cek              []byte
	nonce            []byte
	aad              []byte
	unprotected      Header
	recipientHeaders []Header
}

// WithContentEncryptionKey fixes the content encryption key instead
// of generating a random one. Rejected for direct encryption and key
// agreement, which fix the key themselves.
func WithContentEncryptionKey(cek []byte) EncryptOption {
	return func(o *encryptOptions) { o.cek = cek }
}

// WithNonce fixes the content encryption initialization vector
// instead of generating a random one. Reusing a nonce under the same
// key destroys the encryption; this is for reproducing known answers.
func WithNonce(nonce []byte) EncryptOption {
	return func(o *encryptOptions) { o.nonce = nonce }
}

// WithAdditionalAuthenticatedData authenticates extra caller data
// alongside the protected header. Messages carrying it cannot use the
// compact serialization.
func WithAdditionalAuthenticatedData(aad []byte) EncryptOption {
	return func(o *encryptOptions) { o.aad = aad }
}

// WithUnprotected attaches a shared unprotected header.
func WithUnprotected(unprotected Header) EncryptOption {
	return func(o *encryptOptions) { o.unprotected = unprotected }
}

// WithRecipientHeaders attaches per-recipient unprotected headers,
// matched to the recipient keys by position.
func WithRecipientHeaders(headers ...Header) EncryptOption {
	return func(o *encryptOptions) { o.recipientHeaders = headers }
}

// Encrypt seals plaintext for the given recipient keys, producing a
// complete envelope.
//
// params becomes the integrity protected header and must declare the
// key management algorithm ("alg") and, except for the hybrid
// integrated algorithms, the content encryption algorithm ("enc").
// Key management algorithms that fix the content encryption key
// (direct encryption, direct key agreement) or bypass it entirely
// (hybrid encryption) permit exactly one recipient; any number of
// recipients may share a message when every one of them uses a key
// wrapping algorithm.
func Encrypt(plaintext []byte, params Header, keys []jwk.Key, opts ...EncryptOption) (*Message, error) {
	options := &encryptOptions{}
	for _, opt := range opts {
		opt(options)
	}

	if len(keys) == 0 {
		return nil, fmt.Errorf("%w: no recipient keys", jwk.ErrKeyNotFound)
	}
	if len(options.recipientHeaders) != 0 && len(options.recipientHeaders) != len(keys) {
		return nil, fmt.Errorf("jwe: %d recipient headers for %d keys", len(options.recipientHeaders), len(keys))
	}

	msg := &Message{
		Protected:   protected.New(params),
		Unprotected: options.unprotected,
		AAD:         options.aad,
	}

	shared := header.Merge(params, options.unprotected)

	alg, err := shared.Algorithm()
	if err != nil {
		return nil, err
	}
	if alg == jwa.None {
		return nil, fmt.Errorf("%w: %q is not an encryption algorithm", jwk.ErrOperationNotAllowed, jwa.None)
	}

	shape, err := jwa.ShapeOf(alg)
	if err != nil {
		return nil, err
	}
	if shape != jwa.ShapeKeyWrap && len(keys) > 1 {
		return nil, fmt.Errorf("%w: %q permits a single recipient", jwk.ErrOperationNotAllowed, alg)
	}

	zip, err := shared.CompressionAlgorithm()
	if err != nil {
		return nil, err
	}
	content, err := compress(zip, plaintext)
	if err != nil {
		return nil, err
	}

	if shape == jwa.ShapeIntegrated {
		return encryptIntegrated(msg, alg, keys[0], content, options)
	}

	enc, err := shared.EncryptionAlgorithm()
	if err != nil {
		return nil, err
	}
	sizes, err := jwa.SizesFor(enc)
	if err != nil {
		return nil, err
	}

	cek := options.cek
	if cek == nil && (shape == jwa.ShapeKeyWrap || shape == jwa.ShapeAgreementWrap) {
		cek = make([]byte, sizes.CEKSize)
		if _, err := rand.Read(cek); err != nil {
			return nil, fmt.Errorf("failed to generate content encryption key: %w", err)
		}
	}

	for i, key := range keys {
		// With a single recipient the algorithm's header additions
		// (epk, iv, tag, p2s, p2c) land in the protected header, so
		// they are covered by the authenticated data. Multiple
		// recipients get them in their per-recipient headers.
		target := params
		if len(keys) > 1 {
			target = Header{}
			if len(options.recipientHeaders) != 0 && options.recipientHeaders[i] != nil {
				target = options.recipientHeaders[i]
			}
		}

		encryptedKey, derived, err := wrapKey(alg, enc, key, cek, target)
		if err != nil {
			return nil, err
		}
		cek = derived

		if len(keys) > 1 || len(encryptedKey) > 0 {
			recipient := &Recipient{EncryptedKey: encryptedKey}
			if len(keys) > 1 {
				recipient.Header = target
			} else if len(options.recipientHeaders) != 0 {
				recipient.Header = options.recipientHeaders[0]
			}
			msg.Recipients = append(msg.Recipients, recipient)
		}
	}

	if len(cek) != sizes.CEKSize {
		return nil, fmt.Errorf("%w: %q requires a %d byte content encryption key, got %d", jwk.ErrOperationNotAllowed, enc, sizes.CEKSize, len(cek))
	}

	aad, err := msg.authenticatedData()
	if err != nil {
		return nil, err
	}

	iv := options.nonce
	if iv == nil {
		iv = make([]byte, sizes.IVSize)
		if _, err := rand.Read(iv); err != nil {
			return nil, fmt.Errorf("failed to generate initialization vector: %w", err)
		}
	}
	if len(iv) != sizes.IVSize {
		return nil, fmt.Errorf("%w: %q requires a %d byte initialization vector, got %d", jwk.ErrOperationNotAllowed, enc, sizes.IVSize, len(iv))
	}

	ciphertext, tag, err := jwk.FromSymmetricKey(cek).Seal(enc, iv, content, aad)
	if err != nil {
		return nil, err
	}

	msg.IV = iv
	msg.Ciphertext = ciphertext
	msg.Tag = tag

	return msg, nil
}

// encryptIntegrated finishes the pipeline for the hybrid integrated
// algorithms, which seal the plaintext directly and transport the KEM
// encapsulation in the encrypted key slot.
func encryptIntegrated(msg *Message, alg jwa.Algorithm, key jwk.Key, content []byte, options *encryptOptions) (*Message, error) {
	if options.cek != nil {
		return nil, fmt.Errorf("%w: %q does not use a content encryption key", jwk.ErrOperationNotAllowed, alg)
	}
	if options.nonce != nil {
		return nil, fmt.Errorf("%w: %q does not use an initialization vector", jwk.ErrOperationNotAllowed, alg)
	}

	aad, err := msg.authenticatedData()
	if err != nil {
		return nil, err
	}

	encapsulation, ciphertext, tag, err := sealIntegrated(alg, key, content, aad)
	if err != nil {
		return nil, err
	}

	msg.Recipients = append(msg.Recipients, &Recipient{EncryptedKey: encapsulation})
	msg.Ciphertext = ciphertext
	msg.Tag = tag

	return msg, nil
}
