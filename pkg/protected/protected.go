// Package protected implements a container coupling a decoded value
// with the exact bytes it was parsed from.
//
// Re-serializing a parsed JOSE header can silently reorder members or
// reformat numbers; any such drift breaks signature verification even
// though the logical content is unchanged. The container therefore
// never regenerates bytes once they exist: bytes obtained from
// decoding, or produced by the first encoding, are frozen.
package protected

import (
	"encoding/json"
	"fmt"

	"github.com/josekit/jose/pkg/base64"
)

// Value couples a decoded value of type T with the byte sequence it
// round-trips to.
type Value[T any] struct {
	value T
	raw   []byte
}

// New returns a container for the given value. The encoded bytes are
// computed lazily on the first call to Encoded and cached from then on.
func New[T any](value T) *Value[T] {
	return &Value[T]{value: value}
}

// Decode parses the given raw JSON bytes into a value of type T and
// returns a container that retains those exact bytes.
func Decode[T any](raw []byte) (*Value[T], error) {
	var value T
	if err := json.Unmarshal(raw, &value); err != nil {
		return nil, fmt.Errorf("protected: failed to decode value: %w", err)
	}

	kept := make([]byte, len(raw))
	copy(kept, raw)

	return &Value[T]{value: value, raw: kept}, nil
}

// DecodeBase64URL parses a base64url encoded segment into a container,
// retaining the decoded bytes.
func DecodeBase64URL[T any](segment string) (*Value[T], error) {
	raw, err := base64.Decode(segment)
	if err != nil {
		return nil, fmt.Errorf("protected: failed to decode base64 segment: %w", err)
	}
	return Decode[T](raw)
}

// Value returns the decoded value.
//
// Mutating a reference-typed value (e.g. a header map) before the
// first call to Encoded is legal and affects the encoded bytes;
// mutations after the bytes are frozen do not.
func (v *Value[T]) Value() T {
	return v.value
}

// Encoded returns the bytes actually used for signing and
// authentication. On the first call without original bytes the value
// is serialized once and the result frozen.
func (v *Value[T]) Encoded() ([]byte, error) {
	if v.raw != nil {
		return v.raw, nil
	}

	raw, err := json.Marshal(v.value)
	if err != nil {
		return nil, fmt.Errorf("protected: failed to encode value: %w", err)
	}

	v.raw = raw

	return v.raw, nil
}

// Frozen reports whether the byte form already exists.
func (v *Value[T]) Frozen() bool {
	return v.raw != nil
}

// Base64URL returns the base64url form of the encoded bytes.
func (v *Value[T]) Base64URL() (string, error) {
	raw, err := v.Encoded()
	if err != nil {
		return "", err
	}
	return base64.Encode(raw), nil
}

// Validate applies the given structural check to the decoded value.
func (v *Value[T]) Validate(check func(T) error) error {
	if check == nil {
		return nil
	}
	if err := check(v.value); err != nil {
		return fmt.Errorf("protected: validation failed: %w", err)
	}
	return nil
}
