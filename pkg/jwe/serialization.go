package jwe

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/josekit/jose/pkg/base64"
	"github.com/josekit/jose/pkg/protected"
)

// SerializationMode selects a JWE wire form.
//
// https://datatracker.ietf.org/doc/html/rfc7516#section-7
type SerializationMode int

const (
	// ModeAuto picks the most compact lossless representation for
	// the current message shape.
	ModeAuto SerializationMode = iota

	// ModeCompact is the five-segment dotted form, usable only with
	// at most one recipient and no unprotected headers or additional
	// authenticated data.
	ModeCompact

	// ModeFlattened is the single-recipient JSON form with the
	// entry's fields hoisted to the top level.
	ModeFlattened

	// ModeGeneral is the JSON form carrying a "recipients" array.
	ModeGeneral
)

// jsonRecipient is the wire form of one entry in the general JSON
// serialization.
type jsonRecipient struct {
	Header       Header `json:"header,omitempty"`
	EncryptedKey string `json:"encrypted_key,omitempty"`
}

// jsonMessage covers both the flattened and general JSON wire forms.
type jsonMessage struct {
	Protected   string          `json:"protected,omitempty"`
	Unprotected Header          `json:"unprotected,omitempty"`
	Recipients  []jsonRecipient `json:"recipients,omitempty"`

	// Flattened form only.
	Header       Header `json:"header,omitempty"`
	EncryptedKey string `json:"encrypted_key,omitempty"`

	IV         string `json:"iv,omitempty"`
	AAD        string `json:"aad,omitempty"`
	Ciphertext string `json:"ciphertext"`
	Tag        string `json:"tag,omitempty"`
}

// Compact returns the compact serialization:
//
//	base64url(header) "." base64url(encrypted key) "." base64url(iv)
//	"." base64url(ciphertext) "." base64url(tag)
//
// It fails for messages the five-segment form cannot represent:
// multiple recipients, unprotected headers, or additional
// authenticated data.
func (m *Message) Compact() (string, error) {
	if len(m.Recipients) > 1 {
		return "", fmt.Errorf("compact serialization requires at most one recipient, have %d", len(m.Recipients))
	}
	if len(m.Unprotected) != 0 {
		return "", fmt.Errorf("compact serialization cannot carry an unprotected header")
	}
	if len(m.AAD) != 0 {
		return "", fmt.Errorf("compact serialization cannot carry additional authenticated data")
	}

	var encryptedKey []byte
	if len(m.Recipients) == 1 {
		if len(m.Recipients[0].Header) != 0 {
			return "", fmt.Errorf("compact serialization cannot carry a per-recipient header")
		}
		encryptedKey = m.Recipients[0].EncryptedKey
	}

	protectedSegment, err := m.Protected.Base64URL()
	if err != nil {
		return "", fmt.Errorf("failed to encode protected header: %w", err)
	}

	return strings.Join([]string{
		protectedSegment,
		base64.Encode(encryptedKey),
		base64.Encode(m.IV),
		base64.Encode(m.Ciphertext),
		base64.Encode(m.Tag),
	}, "."), nil
}

// JSON returns the flattened or general JSON serialization.
func (m *Message) JSON(mode SerializationMode) ([]byte, error) {
	protectedSegment, err := m.Protected.Base64URL()
	if err != nil {
		return nil, fmt.Errorf("failed to encode protected header: %w", err)
	}

	wire := jsonMessage{
		Protected:   protectedSegment,
		Unprotected: m.Unprotected,
		IV:          base64.Encode(m.IV),
		Ciphertext:  base64.Encode(m.Ciphertext),
		Tag:         base64.Encode(m.Tag),
	}
	if len(m.AAD) > 0 {
		wire.AAD = base64.Encode(m.AAD)
	}

	switch mode {
	case ModeFlattened:
		if len(m.Recipients) > 1 {
			return nil, fmt.Errorf("flattened serialization requires at most one recipient, have %d", len(m.Recipients))
		}
		if len(m.Recipients) == 1 {
			wire.Header = m.Recipients[0].Header
			wire.EncryptedKey = base64.Encode(m.Recipients[0].EncryptedKey)
		}
		return json.Marshal(wire)
	case ModeGeneral:
		wire.Recipients = make([]jsonRecipient, 0, len(m.Recipients))
		for _, recipient := range m.Recipients {
			wire.Recipients = append(wire.Recipients, jsonRecipient{
				Header:       recipient.Header,
				EncryptedKey: base64.Encode(recipient.EncryptedKey),
			})
		}
		return json.Marshal(wire)
	default:
		return nil, fmt.Errorf("invalid JSON serialization mode %d", mode)
	}
}

// Encode returns the message in the given wire form. ModeAuto picks
// compact when the shape allows it, flattened for at most one
// recipient, and general otherwise.
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
		if len(m.Recipients) <= 1 {
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

// Parseable is a type that can be parsed into a JWE message, either a
// string or byte slice.
type Parseable interface {
	~string | ~[]byte
}

// Parse decodes a JWE from either the compact or a JSON wire form,
// detected by the leading byte.
//
// # Warning
//
// Parsing does not authenticate anything. Only Decrypt establishes
// the integrity of the headers and ciphertext.
func Parse[T Parseable](input T) (*Message, error) {
	str := strings.TrimSpace(string(input))
	if strings.HasPrefix(str, "{") {
		return ParseJSON([]byte(str))
	}
	return ParseCompact(str)
}

// ParseCompact decodes the five-segment dotted wire form.
func ParseCompact(input string) (*Message, error) {
	parts := strings.Split(input, ".")
	if len(parts) != 5 {
		return nil, fmt.Errorf("%w: invalid number of compact segments: %d", ErrDecoding, len(parts))
	}

	protectedValue, err := protected.DecodeBase64URL[Header](parts[0])
	if err != nil {
		return nil, fmt.Errorf("%w: failed to decode protected header: %w", ErrDecoding, err)
	}

	segments := make([][]byte, 4)
	for i, name := range []string{"encrypted key", "initialization vector", "ciphertext", "authentication tag"} {
		segments[i], err = base64.Decode(parts[i+1])
		if err != nil {
			return nil, fmt.Errorf("%w: failed to decode %s: %w", ErrDecoding, name, err)
		}
	}

	message := &Message{
		Protected:  protectedValue,
		IV:         segments[1],
		Ciphertext: segments[2],
		Tag:        segments[3],
	}
	if len(segments[0]) > 0 {
		message.Recipients = []*Recipient{{EncryptedKey: segments[0]}}
	}

	return message, nil
}

// ParseJSON decodes the flattened or general JSON wire form, detected
// by the presence of a "recipients" array.
func ParseJSON(input []byte) (*Message, error) {
	var wire jsonMessage
	if err := json.Unmarshal(input, &wire); err != nil {
		return nil, fmt.Errorf("%w: invalid JSON serialization: %w", ErrDecoding, err)
	}

	protectedValue, err := protected.DecodeBase64URL[Header](wire.Protected)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to decode protected header: %w", ErrDecoding, err)
	}

	message := &Message{
		Protected:   protectedValue,
		Unprotected: wire.Unprotected,
	}

	for name, segment := range map[string]struct {
		encoded string
		target  *[]byte
	}{
		"initialization vector":         {wire.IV, &message.IV},
		"ciphertext":                    {wire.Ciphertext, &message.Ciphertext},
		"authentication tag":            {wire.Tag, &message.Tag},
		"additional authenticated data": {wire.AAD, &message.AAD},
	} {
		*segment.target, err = base64.Decode(segment.encoded)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to decode %s: %w", ErrDecoding, name, err)
		}
	}

	entries := wire.Recipients
	if entries == nil && (wire.EncryptedKey != "" || wire.Header != nil) {
		// Flattened form hoists the single entry to the top level.
		entries = []jsonRecipient{{
			Header:       wire.Header,
			EncryptedKey: wire.EncryptedKey,
		}}
	}

	for _, entry := range entries {
		encryptedKey, err := base64.Decode(entry.EncryptedKey)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to decode encrypted key: %w", ErrDecoding, err)
		}
		message.Recipients = append(message.Recipients, &Recipient{
			Header:       entry.Header,
			EncryptedKey: encryptedKey,
		})
	}

	return message, nil
}
