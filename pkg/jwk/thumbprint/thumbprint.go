// Package thumbprint computes JWK Thumbprints as defined in RFC 7638,
// extended with the OKP members from RFC 8037.
package thumbprint

import (
	"bytes"
	"crypto"
	"errors"

	"github.com/josekit/jose/pkg/base64"
	"github.com/josekit/jose/pkg/jwk"
)

var ErrInvalidKey = errors.New("thumbprint: invalid key")

// requiredLexicographically lists every member that may participate
// in a thumbprint, ordered lexicographically by Unicode code point as
// RFC 7638 Section 3 requires.
var requiredLexicographically = []string{"crv", "e", "k", "kty", "n", "x", "y"}

// requiredMembers names the members each key type contributes,
// per RFC 7638 Section 3.2 and RFC 8037 Section 2.
var requiredMembers = map[string][]string{
	"RSA": {"e", "kty", "n"},
	"EC":  {"crv", "kty", "x", "y"},
	"OKP": {"crv", "kty", "x"},
	"oct": {"k", "kty"},
}

// Generate returns the JWK Thumbprint for the given JWK following the
// steps defined in RFC 7638.
func Generate(value jwk.Value, h crypto.Hash) ([]byte, error) {
	kty, ok := value["kty"].(string)
	if !ok {
		return nil, ErrInvalidKey
	}

	members, ok := requiredMembers[kty]
	if !ok {
		return nil, ErrInvalidKey
	}

	// 1. Construct a JSON object containing only the required members
	// of a JWK representing the key, with no whitespace or line breaks
	// and members ordered lexicographically.
	//
	// (This JSON object is itself a legal JWK representation of the key.)
	subset := jwk.Value{}

	for _, member := range members {
		memberValue, ok := value[member].(string)
		if !ok {
			return nil, ErrInvalidKey
		}
		subset[member] = memberValue
	}

	// Get a lexical representation of the JSON object; the standard
	// library's json.Marshal happens to sort map keys, but spelling
	// the order out keeps the hash input under our control.
	b := bytes.NewBuffer(nil)

	b.WriteRune('{')

	first := true
	for _, member := range requiredLexicographically {
		memberValue, ok := subset[member]
		if !ok {
			continue
		}

		if !first {
			b.WriteRune(',')
		}
		first = false

		b.WriteRune('"')
		b.WriteString(member)
		b.WriteString(`":"`)
		b.WriteString(memberValue.(string))
		b.WriteRune('"')
	}

	b.WriteRune('}')

	// 2. Hash the octets of the UTF-8 representation of this JSON
	// object with a cryptographic hash function H. SHA-256 is used
	// when none is specified.
	if h == 0 {
		h = crypto.SHA256
	}

	hash := h.New()

	if _, err := hash.Write(b.Bytes()); err != nil {
		return nil, err
	}

	return hash.Sum(nil), nil
}

// GenerateString returns the JWK Thumbprint for the given JWK
// following the steps defined in RFC 7638 as a base64url encoded
// string.
func GenerateString(value jwk.Value, h crypto.Hash) (string, error) {
	thumbprint, err := Generate(value, h)
	if err != nil {
		return "", err
	}

	return base64.Encode(thumbprint), nil
}
