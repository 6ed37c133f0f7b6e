// Package jws implements the JSON Web Signature (JWS) envelope: one
// payload carrying any number of independent signatures.
//
// https://datatracker.ietf.org/doc/html/rfc7515
package jws

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/josekit/jose/pkg/base64"
	"github.com/josekit/jose/pkg/header"
	"github.com/josekit/jose/pkg/jwa"
	"github.com/josekit/jose/pkg/jwk"
	"github.com/josekit/jose/pkg/protected"
)

// Header is a JSON object containing the parameters describing the
// cryptographic operations and parameters employed.
type Header = header.Parameters

var (
	// ErrNoSignatures is reported when verification is attempted on
	// a message with no signature entries.
	ErrNoSignatures = errors.New("jws: message has no signatures")

	// ErrDecoding is reported for malformed wire bytes.
	ErrDecoding = errors.New("jws: decoding error")
)

// Signature is one independent signature over the shared payload: a
// protected header with its byte-exact container, an optional
// unprotected header, and the signature bytes.
type Signature struct {
	// Protected is the integrity-protected header. Its container
	// bytes, not a re-serialization, feed the signing input.
	Protected *protected.Value[Header]

	// Unprotected is the per-signature unprotected header, absent
	// from the signing input.
	Unprotected Header

	// Signature holds the raw signature bytes.
	Signature []byte
}

// Merged returns the effective header view for this signature entry,
// protected parameters taking precedence.
func (s *Signature) Merged() Header {
	if s.Protected == nil {
		return header.Merge(s.Unprotected)
	}
	return header.Merge(s.Protected.Value(), s.Unprotected)
}

// Message is a JWS: one payload plus an ordered list of signature
// entries. Zero entries is a valid intermediate state while building;
// verification of such a message always fails.
type Message struct {
	// Payload holds the raw payload bytes. Whether they are carried
	// base64url encoded or raw in the signing input is decided per
	// signature entry by the "b64" protected parameter (RFC 7797).
	Payload []byte

	// Signatures is the ordered list of signature entries.
	Signatures []*Signature
}

// NewMessage returns a message for the given payload with no
// signature entries yet.
func NewMessage(payload []byte) *Message {
	return &Message{Payload: payload}
}

// AddSignature appends a signature entry with the given protected
// parameters and optional unprotected header. The entry is unsigned
// until Sign runs.
func (m *Message) AddSignature(protectedParams Header, unprotected Header) *Signature {
	sig := &Signature{
		Protected:   protected.New(protectedParams),
		Unprotected: unprotected,
	}
	m.Signatures = append(m.Signatures, sig)
	return sig
}

// payloadRepresentation returns the payload bytes as they appear in
// the signing input for the given protected parameters: raw when the
// header declares an un-re-encoded payload with the "b64" parameter
// marked critical, base64url encoded otherwise.
func (m *Message) payloadRepresentation(params Header) []byte {
	if params.RawPayload() {
		return m.Payload
	}
	return []byte(base64.Encode(m.Payload))
}

// SigningInput computes the exact bytes signed for one entry:
// base64url(protected header bytes) || "." || payload representation.
func (m *Message) SigningInput(sig *Signature) ([]byte, error) {
	if sig.Protected == nil {
		return nil, fmt.Errorf("%w: signature entry has no protected header", ErrNoSignatures)
	}

	protectedSegment, err := sig.Protected.Base64URL()
	if err != nil {
		return nil, fmt.Errorf("failed to encode protected header: %w", err)
	}

	input := bytes.NewBufferString(protectedSegment)
	input.WriteByte('.')
	input.Write(m.payloadRepresentation(sig.Protected.Value()))

	return input.Bytes(), nil
}

// Sign recomputes every signature entry using that entry's declared
// algorithm, resolving the key for each entry from the given
// candidates by best match. An algorithm of "none" yields an empty
// signature, kept only for legacy interoperability and always
// rejected on verify.
func (m *Message) Sign(keys ...jwk.Key) error {
	for i, sig := range m.Signatures {
		input, err := m.SigningInput(sig)
		if err != nil {
			return fmt.Errorf("failed to compute signing input for entry %d: %w", i, err)
		}

		merged := sig.Merged()
		alg := merged.AlgorithmOrNone()

		if alg == jwa.None {
			sig.Signature = []byte{}
			continue
		}
		if alg == jwa.Unrecognized {
			return fmt.Errorf("entry %d: %w: missing or malformed %q", i, jwa.ErrUnknownAlgorithm, header.Algorithm)
		}

		key, err := jwk.BestMatch(keys, merged)
		if err != nil {
			return fmt.Errorf("entry %d: %w", i, err)
		}

		signer, ok := key.(jwk.SigningKey)
		if !ok {
			return fmt.Errorf("entry %d: %w: key %T cannot sign", i, jwk.ErrOperationNotAllowed, key)
		}

		signature, err := signer.Sign(alg, input)
		if err != nil {
			return fmt.Errorf("entry %d: failed to sign: %w", i, err)
		}

		sig.Signature = signature
	}

	return nil
}

// Verify checks every signature entry against the given candidate
// keys. The signatures array models independent simultaneous
// assertions, so all entries must verify; callers that consider any
// one signature sufficient must target a single entry explicitly
// with VerifySignature.
//
// An algorithm of "none" is rejected outright, regardless of whether
// signature bytes are present, to block downgrade attacks.
func (m *Message) Verify(keys ...jwk.Key) error {
	if len(m.Signatures) == 0 {
		return ErrNoSignatures
	}

	for i := range m.Signatures {
		if err := m.VerifySignature(i, keys...); err != nil {
			return fmt.Errorf("signature entry %d: %w", i, err)
		}
	}

	return nil
}

// VerifySignature checks the single signature entry at the given
// index against the candidate keys.
func (m *Message) VerifySignature(index int, keys ...jwk.Key) error {
	if index < 0 || index >= len(m.Signatures) {
		return fmt.Errorf("%w: no signature entry %d", ErrNoSignatures, index)
	}

	sig := m.Signatures[index]
	merged := sig.Merged()

	alg := merged.AlgorithmOrNone()
	if alg == jwa.None || alg == jwa.Unrecognized {
		return fmt.Errorf("%w: algorithm %q is never accepted during verification", jwk.ErrOperationNotAllowed, alg)
	}

	input, err := m.SigningInput(sig)
	if err != nil {
		return fmt.Errorf("failed to compute signing input: %w", err)
	}

	key, err := jwk.BestMatch(keys, merged)
	if err != nil {
		return err
	}

	validator, ok := key.(jwk.ValidationKey)
	if !ok {
		return fmt.Errorf("%w: key %T cannot validate signatures", jwk.ErrOperationNotAllowed, key)
	}

	return validator.Verify(alg, input, sig.Signature)
}
