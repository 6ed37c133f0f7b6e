package jws

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/josekit/jose/pkg/base64"
	"github.com/josekit/jose/pkg/protected"
)

// SerializationMode selects a JWS wire form.
//
// https://datatracker.ietf.org/doc/html/rfc7515#section-7
type SerializationMode int

const (
	// ModeAuto picks the most compact lossless representation for
	// the current message shape.
	ModeAuto SerializationMode = iota

	// ModeCompact is the three-segment dotted form, usable only with
	// exactly one signature entry and no unprotected header.
	ModeCompact

	// ModeFlattened is the single-signature JSON form with the
	// entry's fields hoisted to the top level.
	ModeFlattened

	// ModeGeneral is the JSON form carrying a "signatures" array.
	ModeGeneral
)

// jsonSignature is the wire form of one entry in the general JSON
// serialization.
type jsonSignature struct {
	Protected string `json:"protected,omitempty"`
	Header    Header `json:"header,omitempty"`
	Signature string `json:"signature"`
}

// jsonMessage covers both the flattened and general JSON wire forms.
type jsonMessage struct {
	Payload    *string         `json:"payload,omitempty"`
	Signatures []jsonSignature `json:"signatures,omitempty"`

	// Flattened form only.
	Protected string `json:"protected,omitempty"`
	Header    Header `json:"header,omitempty"`
	Signature string `json:"signature,omitempty"`
}

// Compact returns the compact serialization:
//
//	base64url(header) "." base64url-or-raw(payload) "." base64url(signature)
//
// It fails for messages with more than one signature entry or with an
// unprotected header, which the compact form cannot represent.
func (m *Message) Compact() (string, error) {
	return m.compact(false)
}

// CompactDetached returns the compact serialization with the payload
// segment left empty, per RFC 7515 Appendix F. The separators remain,
// so a detached message literally doubles the middle dot.
func (m *Message) CompactDetached() (string, error) {
	return m.compact(true)
}

func (m *Message) compact(detached bool) (string, error) {
	if len(m.Signatures) != 1 {
		return "", fmt.Errorf("compact serialization requires exactly one signature entry, have %d", len(m.Signatures))
	}

	sig := m.Signatures[0]
	if len(sig.Unprotected) != 0 {
		return "", fmt.Errorf("compact serialization cannot carry an unprotected header")
	}

	protectedSegment, err := sig.Protected.Base64URL()
	if err != nil {
		return "", fmt.Errorf("failed to encode protected header: %w", err)
	}

	var payloadSegment string
	if !detached {
		payloadSegment = string(m.payloadRepresentation(sig.Protected.Value()))
		if strings.Contains(payloadSegment, ".") {
			return "", fmt.Errorf("raw payload containing %q cannot use the compact serialization", ".")
		}
	}

	return protectedSegment + "." + payloadSegment + "." + base64.Encode(sig.Signature), nil
}

// JSON returns the flattened or general JSON serialization. Under
// RFC 7797 a flattened message whose entry declares a raw payload
// carries the payload member un-encoded; the general form cannot mix
// payload representations across entries and rejects raw-payload
// entries.
func (m *Message) JSON(mode SerializationMode) ([]byte, error) {
	payload := base64.Encode(m.Payload)

	switch mode {
	case ModeFlattened:
		if len(m.Signatures) != 1 {
			return nil, fmt.Errorf("flattened serialization requires exactly one signature entry, have %d", len(m.Signatures))
		}

		sig := m.Signatures[0]
		if sig.Protected.Value().RawPayload() {
			payload = string(m.Payload)
		}
		protectedSegment, err := sig.Protected.Base64URL()
		if err != nil {
			return nil, fmt.Errorf("failed to encode protected header: %w", err)
		}

		return json.Marshal(jsonMessage{
			Payload:   &payload,
			Protected: protectedSegment,
			Header:    sig.Unprotected,
			Signature: base64.Encode(sig.Signature),
		})
	case ModeGeneral:
		signatures := make([]jsonSignature, 0, len(m.Signatures))
		for _, sig := range m.Signatures {
			if sig.Protected.Value().RawPayload() {
				return nil, fmt.Errorf("general serialization cannot carry a raw payload entry")
			}
			protectedSegment, err := sig.Protected.Base64URL()
			if err != nil {
				return nil, fmt.Errorf("failed to encode protected header: %w", err)
			}
			signatures = append(signatures, jsonSignature{
				Protected: protectedSegment,
				Header:    sig.Unprotected,
				Signature: base64.Encode(sig.Signature),
			})
		}

		return json.Marshal(jsonMessage{
			Payload:    &payload,
			Signatures: signatures,
		})
	default:
		return nil, fmt.Errorf("invalid JSON serialization mode %d", mode)
	}
}

// Encode returns the message in the given wire form. ModeAuto picks
// compact when the shape allows it, flattened for a single entry with
// an unprotected header, and general otherwise.
func (m *Message) Encode(mode SerializationMode) (string, error) {
	switch mode {
	case ModeCompact:
		return m.Compact()
	case ModeFlattened, ModeGeneral:
		b, err := m.JSON(mode)
		if err != nil {
			return "", err
		}
		return string(b), nil
	case ModeAuto:
		if compact, err := m.Compact(); err == nil {
			return compact, nil
		}
		if len(m.Signatures) == 1 {
			b, err := m.JSON(ModeFlattened)
			if err != nil {
				return "", err
			}
			return string(b), nil
		}
		b, err := m.JSON(ModeGeneral)
		if err != nil {
			return "", err
		}
		return string(b), nil
	default:
		return "", fmt.Errorf("invalid serialization mode %d", mode)
	}
}

// String returns the most compact lossless representation, degrading
// to an empty string on failure. Integration code that needs the
// failure uses Encode directly.
func (m *Message) String() string {
	out, err := m.Encode(ModeAuto)
	if err != nil {
		return ""
	}
	return out
}

// Parseable is a type that can be parsed into a JWS message, either a
// string or byte slice.
type Parseable interface {
	~string | ~[]byte
}

// Parse decodes a JWS from either the compact or a JSON wire form,
// detected by the leading byte.
//
// # Warning
//
// Parsing does not verify anything. Use Verify with candidate keys
// before trusting the payload.
func Parse[T Parseable](input T) (*Message, error) {
	str := strings.TrimSpace(string(input))
	if strings.HasPrefix(str, "{") {
		return ParseJSON([]byte(str))
	}
	return ParseCompact(str)
}

// ParseCompact decodes the three-segment dotted wire form. An empty
// middle segment produces a message with a detached (nil) payload.
func ParseCompact(input string) (*Message, error) {
	parts := strings.Split(input, ".")
	if len(parts) != 3 {
		return nil, fmt.Errorf("%w: invalid number of compact segments: %d", ErrDecoding, len(parts))
	}

	protectedValue, err := protected.DecodeBase64URL[Header](parts[0])
	if err != nil {
		return nil, fmt.Errorf("%w: failed to decode protected header: %w", ErrDecoding, err)
	}

	signature, err := base64.Decode(parts[2])
	if err != nil {
		return nil, fmt.Errorf("%w: failed to decode signature: %w", ErrDecoding, err)
	}

	message := &Message{
		Signatures: []*Signature{{
			Protected: protectedValue,
			Signature: signature,
		}},
	}

	switch {
	case parts[1] == "":
		// Detached payload; the caller attaches it before verifying.
	case protectedValue.Value().RawPayload():
		message.Payload = []byte(parts[1])
	default:
		payload, err := base64.Decode(parts[1])
		if err != nil {
			return nil, fmt.Errorf("%w: failed to decode payload: %w", ErrDecoding, err)
		}
		message.Payload = payload
	}

	return message, nil
}

// ParseJSON decodes the flattened or general JSON wire form, detected
// by the presence of a "signatures" array.
func ParseJSON(input []byte) (*Message, error) {
	var wire jsonMessage
	if err := json.Unmarshal(input, &wire); err != nil {
		return nil, fmt.Errorf("%w: invalid JSON serialization: %w", ErrDecoding, err)
	}

	message := &Message{}

	entries := wire.Signatures
	if entries == nil {
		// Flattened form hoists the single entry to the top level.
		entries = []jsonSignature{{
			Protected: wire.Protected,
			Header:    wire.Header,
			Signature: wire.Signature,
		}}
	}

	for _, entry := range entries {
		protectedValue, err := protected.DecodeBase64URL[Header](entry.Protected)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to decode protected header: %w", ErrDecoding, err)
		}

		signature, err := base64.Decode(entry.Signature)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to decode signature: %w", ErrDecoding, err)
		}

		message.Signatures = append(message.Signatures, &Signature{
			Protected:   protectedValue,
			Unprotected: entry.Header,
			Signature:   signature,
		})
	}

	if len(message.Signatures) == 0 {
		return nil, fmt.Errorf("%w: JSON serialization carries no signatures", ErrDecoding)
	}

	// The payload is decoded only once the signature entries are known:
	// a single raw-payload entry carries its payload un-encoded.
	if wire.Payload != nil {
		raw := len(message.Signatures) == 1 && message.Signatures[0].Protected.Value().RawPayload()
		if raw {
			message.Payload = []byte(*wire.Payload)
		} else {
			payload, err := base64.Decode(*wire.Payload)
			if err != nil {
				return nil, fmt.Errorf("%w: failed to decode payload: %w", ErrDecoding, err)
			}
			message.Payload = payload
		}
	}

	return message, nil
}
