package jwe

import (
	"fmt"

	"github.com/josekit/jose/pkg/header"
	"github.com/josekit/jose/pkg/jwa"
	"github.com/josekit/jose/pkg/jwk"
)

// Decrypt recovers the plaintext with any of the candidate keys.
//
// Every recipient entry is tried against every candidate key, best
// match first; individual failures are swallowed so one recipient's
// bad key material cannot mask another's good one. When nothing
// succeeds the error wraps jwk.ErrKeyNotFound.
func (m *Message) Decrypt(keys ...jwk.Key) ([]byte, error) {
	if len(keys) == 0 {
		return nil, fmt.Errorf("%w: no candidate keys", jwk.ErrKeyNotFound)
	}

	// Key management algorithms that transport nothing produce no
	// recipient entries; decrypt against the shared header alone.
	recipients := m.Recipients
	if len(recipients) == 0 {
		recipients = []*Recipient{nil}
	}

	var lastErr error
	for _, recipient := range recipients {
		merged := m.mergedHeader(recipient)

		plaintext, err := m.decryptRecipient(recipient, merged, keys)
		if err == nil {
			return plaintext, nil
		}
		lastErr = err
	}

	return nil, fmt.Errorf("%w: decryption failed: %w", jwk.ErrKeyNotFound, lastErr)
}

// decryptRecipient tries every candidate key against one recipient.
func (m *Message) decryptRecipient(recipient *Recipient, merged Header, keys []jwk.Key) ([]byte, error) {
	alg, err := merged.Algorithm()
	if err != nil {
		return nil, err
	}
	if alg == jwa.None {
		return nil, fmt.Errorf("%w: %q is not an encryption algorithm", jwk.ErrOperationNotAllowed, jwa.None)
	}

	var encryptedKey []byte
	if recipient != nil {
		encryptedKey = recipient.EncryptedKey
	}

	var lastErr error
	for _, key := range candidateOrder(keys, merged) {
		plaintext, err := m.decryptWithKey(alg, key, encryptedKey, merged)
		if err == nil {
			return plaintext, nil
		}
		lastErr = err
	}

	return nil, lastErr
}

// decryptWithKey runs the full pipeline for one recipient and key.
func (m *Message) decryptWithKey(alg jwa.Algorithm, key jwk.Key, encryptedKey []byte, merged Header) ([]byte, error) {
	aad, err := m.authenticatedData()
	if err != nil {
		return nil, err
	}

	shape, err := jwa.ShapeOf(alg)
	if err != nil {
		return nil, err
	}

	var content []byte
	if shape == jwa.ShapeIntegrated {
		// The KEM encapsulation travels in the encrypted key slot,
		// with the "ek" header parameter as a fallback.
		encapsulation := encryptedKey
		if len(encapsulation) == 0 {
			encapsulation, err = base64HeaderParameter(merged, header.EncapsulatedKey)
			if err != nil {
				return nil, err
			}
		}
		content, err = openIntegrated(alg, key, encapsulation, m.Ciphertext, m.Tag, aad)
		if err != nil {
			return nil, err
		}
	} else {
		enc, err := merged.EncryptionAlgorithm()
		if err != nil {
			return nil, err
		}

		cek, err := unwrapKey(alg, enc, key, encryptedKey, merged)
		if err != nil {
			return nil, err
		}

		content, err = jwk.FromSymmetricKey(cek).Open(enc, m.IV, m.Ciphertext, m.Tag, aad)
		if err != nil {
			return nil, err
		}
	}

	zip, err := merged.CompressionAlgorithm()
	if err != nil {
		return nil, err
	}

	return decompress(zip, content)
}

// candidateOrder returns the keys with the best header match first,
// so a "kid" hint short-circuits the trial decryptions.
func candidateOrder(keys []jwk.Key, merged Header) []jwk.Key {
	best, err := jwk.BestMatch(keys, merged)
	if err != nil {
		return keys
	}

	ordered := make([]jwk.Key, 0, len(keys))
	ordered = append(ordered, best)
	for _, key := range keys {
		if key != best {
			ordered = append(ordered, key)
		}
	}
	return ordered
}
