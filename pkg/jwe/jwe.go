// Package jwe implements the JSON Web Encryption (JWE) envelope: one
// sealed message addressed to any number of recipients, combining key
// management, content encryption, optional compression and optional
// additional authenticated data.
//
// https://datatracker.ietf.org/doc/html/rfc7516
package jwe

import (
	"bytes"
	"compress/flate"
	"errors"
	"fmt"
	"io"

	"github.com/josekit/jose/pkg/base64"
	"github.com/josekit/jose/pkg/header"
	"github.com/josekit/jose/pkg/jwa"
	"github.com/josekit/jose/pkg/protected"
)

// Header is a JSON object containing the parameters describing the
// cryptographic operations and parameters employed.
type Header = header.Parameters

// ErrDecoding is reported for malformed wire bytes.
var ErrDecoding = errors.New("jwe: decoding error")

// maxDecompressedSize bounds DEFLATE output to keep a malicious
// message from exhausting memory.
const maxDecompressedSize = 128 << 20

// Recipient is one addressee of the message: an optional
// per-recipient unprotected header and the encrypted content
// encryption key (or KEM encapsulation) for that recipient.
type Recipient struct {
	Header       Header
	EncryptedKey []byte
}

// Message is a JWE envelope. The protected header keeps its
// byte-exact container because its bytes feed the additional
// authenticated data of the content encryption.
type Message struct {
	// Protected is the integrity-protected header.
	Protected *protected.Value[Header]

	// Unprotected is the shared unprotected header.
	Unprotected Header

	// Recipients is the ordered recipient list. Key management
	// algorithms that transport nothing (dir, ECDH-ES) produce zero
	// entries; the compact wire form permits at most one.
	Recipients []*Recipient

	// IV, Ciphertext and Tag form the sealed block.
	IV         []byte
	Ciphertext []byte
	Tag        []byte

	// AAD is the caller-supplied additional authenticated data,
	// representable only in the JSON wire forms.
	AAD []byte
}

// mergedHeader resolves the effective header view for a recipient,
// protected parameters taking precedence over shared unprotected ones
// and those over per-recipient ones.
func (m *Message) mergedHeader(recipient *Recipient) Header {
	views := []Header{}
	if m.Protected != nil {
		views = append(views, m.Protected.Value())
	}
	views = append(views, m.Unprotected)
	if recipient != nil {
		views = append(views, recipient.Header)
	}
	return header.Merge(views...)
}

// authenticatedData computes the additional authenticated data for
// the content encryption: the base64url form of the protected header
// bytes, optionally followed by "." and the base64url caller AAD.
// Calling this freezes the protected header bytes, so every header
// mutation by key management handlers must have happened already.
func (m *Message) authenticatedData() ([]byte, error) {
	segment, err := m.Protected.Base64URL()
	if err != nil {
		return nil, fmt.Errorf("failed to encode protected header: %w", err)
	}

	aad := bytes.NewBufferString(segment)
	if len(m.AAD) > 0 {
		aad.WriteByte('.')
		aad.WriteString(base64.Encode(m.AAD))
	}

	return aad.Bytes(), nil
}

// compress applies the declared "zip" algorithm to the plaintext.
// Compression always happens before encryption; compressing
// ciphertext would leak structure and is never performed.
func compress(zip jwa.CompressionAlgorithm, plaintext []byte) ([]byte, error) {
	switch zip {
	case "":
		return plaintext, nil
	case jwa.Deflate:
		var buf bytes.Buffer
		w, err := flate.NewWriter(&buf, flate.DefaultCompression)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize DEFLATE: %w", err)
		}
		if _, err := w.Write(plaintext); err != nil {
			return nil, fmt.Errorf("failed to compress plaintext: %w", err)
		}
		if err := w.Close(); err != nil {
			return nil, fmt.Errorf("failed to compress plaintext: %w", err)
		}
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("%w: compression algorithm %q", jwa.ErrUnknownAlgorithm, zip)
	}
}

// decompress reverses the declared "zip" algorithm.
func decompress(zip jwa.CompressionAlgorithm, data []byte) ([]byte, error) {
	switch zip {
	case "":
		return data, nil
	case jwa.Deflate:
		r := flate.NewReader(bytes.NewReader(data))
		defer r.Close()

		out, err := io.ReadAll(io.LimitReader(r, maxDecompressedSize+1))
		if err != nil {
			return nil, fmt.Errorf("%w: failed to decompress plaintext: %w", ErrDecoding, err)
		}
		if len(out) > maxDecompressedSize {
			return nil, fmt.Errorf("%w: decompressed plaintext exceeds %d bytes", ErrDecoding, maxDecompressedSize)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: compression algorithm %q", jwa.ErrUnknownAlgorithm, zip)
	}
}
