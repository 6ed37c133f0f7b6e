package jwe

import (
	"crypto"
	"crypto/ecdh"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/binary"
	"encoding/json"
	"fmt"

	"golang.org/x/crypto/pbkdf2"

	"github.com/josekit/jose/pkg/base64"
	"github.com/josekit/jose/pkg/header"
	"github.com/josekit/jose/pkg/jwa"
	"github.com/josekit/jose/pkg/jwk"
)

// wrapKey runs the key management algorithm for one recipient on the
// encrypt side. It returns the encrypted key (nil for algorithms that
// transport nothing) and the content encryption key the sealing step
// must use; for direct and agreement algorithms the latter differs
// from the caller-supplied cek, which must then be nil.
//
// hdr is the header the algorithm may mutate (epk, iv, tag, p2s,
// p2c). Mutations happen before the protected header freezes, so they
// are covered by the additional authenticated data.
func wrapKey(alg jwa.Algorithm, enc jwa.Encryption, key jwk.Key, cek []byte, hdr header.Parameters) ([]byte, []byte, error) {
	shape, err := jwa.ShapeOf(alg)
	if err != nil {
		return nil, nil, err
	}

	switch shape {
	case jwa.ShapeDirect:
		derived, err := directCEK(enc, key, cek)
		return nil, derived, err
	case jwa.ShapeKeyWrap:
		encryptedKey, err := wrapCEK(alg, key, cek, hdr)
		return encryptedKey, cek, err
	case jwa.ShapeAgreement:
		derived, err := agreeCEK(alg, enc, key, hdr)
		if err != nil {
			return nil, nil, err
		}
		if cek != nil {
			return nil, nil, fmt.Errorf("%w: %q derives its own content encryption key", jwk.ErrOperationNotAllowed, alg)
		}
		return nil, derived, nil
	case jwa.ShapeAgreementWrap:
		kek, err := agreeKEK(alg, key, hdr)
		if err != nil {
			return nil, nil, err
		}
		encryptedKey, err := jwk.FromSymmetricKey(kek).EncryptKey(wrappingAlgorithm(alg), cek)
		return encryptedKey, cek, err
	default:
		return nil, nil, fmt.Errorf("%w: %q cannot wrap a content encryption key", jwk.ErrOperationNotAllowed, alg)
	}
}

// unwrapKey recovers the content encryption key for one recipient on
// the decrypt side. hdr is the merged header view for that recipient.
func unwrapKey(alg jwa.Algorithm, enc jwa.Encryption, key jwk.Key, encryptedKey []byte, hdr header.Parameters) ([]byte, error) {
	shape, err := jwa.ShapeOf(alg)
	if err != nil {
		return nil, err
	}

	switch shape {
	case jwa.ShapeDirect:
		if len(encryptedKey) != 0 {
			return nil, fmt.Errorf("%w: %q must not transport an encrypted key", jwk.ErrOperationNotAllowed, alg)
		}
		return directCEK(enc, key, nil)
	case jwa.ShapeKeyWrap:
		return unwrapCEK(alg, key, encryptedKey, hdr)
	case jwa.ShapeAgreement:
		if len(encryptedKey) != 0 {
			return nil, fmt.Errorf("%w: %q must not transport an encrypted key", jwk.ErrOperationNotAllowed, alg)
		}
		sizes, err := jwa.SizesFor(enc)
		if err != nil {
			return nil, err
		}
		return derivedAgreementKey(alg, key, hdr, enc, sizes.CEKSize)
	case jwa.ShapeAgreementWrap:
		kek, err := derivedAgreementKey(alg, key, hdr, alg, wrappingKeySize(alg))
		if err != nil {
			return nil, err
		}
		return jwk.FromSymmetricKey(kek).DecryptKey(wrappingAlgorithm(alg), encryptedKey)
	default:
		return nil, fmt.Errorf("%w: %q cannot unwrap a content encryption key", jwk.ErrOperationNotAllowed, alg)
	}
}

// directCEK uses the recipient's symmetric key bytes as the content
// encryption key. A caller-supplied CEK must match or be absent.
func directCEK(enc jwa.Encryption, key jwk.Key, cek []byte) ([]byte, error) {
	sym, ok := key.(*jwk.SymmetricKey)
	if !ok {
		return nil, fmt.Errorf("%w: direct encryption requires a symmetric key, got %q", jwk.ErrOperationNotAllowed, key.KeyType())
	}

	sizes, err := jwa.SizesFor(enc)
	if err != nil {
		return nil, err
	}
	if len(sym.Bytes()) != sizes.CEKSize {
		return nil, fmt.Errorf("%w: %q requires a %d byte key, got %d", jwk.ErrOperationNotAllowed, enc, sizes.CEKSize, len(sym.Bytes()))
	}
	if cek != nil && subtle.ConstantTimeCompare(cek, sym.Bytes()) != 1 {
		return nil, fmt.Errorf("%w: direct encryption cannot use a separate content encryption key", jwk.ErrOperationNotAllowed)
	}

	return sym.Bytes(), nil
}

// wrapCEK dispatches the key wrapping subfamilies.
func wrapCEK(alg jwa.Algorithm, key jwk.Key, cek []byte, hdr header.Parameters) ([]byte, error) {
	switch alg {
	case jwa.A128GCMKW, jwa.A192GCMKW, jwa.A256GCMKW:
		return gcmWrapCEK(alg, key, cek, hdr)
	case jwa.PBES2HS256A128KW, jwa.PBES2HS384A192KW, jwa.PBES2HS512A256KW:
		kek, err := pbes2KEK(alg, key, hdr)
		if err != nil {
			return nil, err
		}
		return jwk.FromSymmetricKey(kek).EncryptKey(wrappingAlgorithm(alg), cek)
	default:
		encrypter, ok := key.(jwk.EncryptionKey)
		if !ok {
			return nil, fmt.Errorf("%w: key type %q cannot wrap keys with %q", jwk.ErrOperationNotAllowed, key.KeyType(), alg)
		}
		return encrypter.EncryptKey(alg, cek)
	}
}

// unwrapCEK dispatches the key unwrapping subfamilies.
func unwrapCEK(alg jwa.Algorithm, key jwk.Key, encryptedKey []byte, hdr header.Parameters) ([]byte, error) {
	switch alg {
	case jwa.A128GCMKW, jwa.A192GCMKW, jwa.A256GCMKW:
		return gcmUnwrapCEK(alg, key, encryptedKey, hdr)
	case jwa.PBES2HS256A128KW, jwa.PBES2HS384A192KW, jwa.PBES2HS512A256KW:
		kek, err := pbes2KEK(alg, key, hdr)
		if err != nil {
			return nil, err
		}
		return jwk.FromSymmetricKey(kek).DecryptKey(wrappingAlgorithm(alg), encryptedKey)
	default:
		decrypter, ok := key.(jwk.DecryptionKey)
		if !ok {
			return nil, fmt.Errorf("%w: key type %q cannot unwrap keys with %q", jwk.ErrOperationNotAllowed, key.KeyType(), alg)
		}
		return decrypter.DecryptKey(alg, encryptedKey)
	}
}

// gcmContentAlgorithm maps an AES GCM key wrapping algorithm to the
// content encryption algorithm with the same key geometry, so the
// symmetric key's sealing implementation can serve the wrap.
func gcmContentAlgorithm(alg jwa.Algorithm) (jwa.Encryption, error) {
	switch alg {
	case jwa.A128GCMKW:
		return jwa.A128GCM, nil
	case jwa.A192GCMKW:
		return jwa.A192GCM, nil
	case jwa.A256GCMKW:
		return jwa.A256GCM, nil
	}
	return "", fmt.Errorf("%w: %q", jwa.ErrUnknownAlgorithm, alg)
}

func gcmWrapCEK(alg jwa.Algorithm, key jwk.Key, cek []byte, hdr header.Parameters) ([]byte, error) {
	sym, ok := key.(*jwk.SymmetricKey)
	if !ok {
		return nil, fmt.Errorf("%w: %q requires a symmetric key, got %q", jwk.ErrOperationNotAllowed, alg, key.KeyType())
	}

	enc, err := gcmContentAlgorithm(alg)
	if err != nil {
		return nil, err
	}

	iv := make([]byte, 12)
	if _, err := rand.Read(iv); err != nil {
		return nil, fmt.Errorf("failed to generate key wrapping nonce: %w", err)
	}

	ciphertext, tag, err := sym.Seal(enc, iv, cek, nil)
	if err != nil {
		return nil, err
	}

	hdr[header.InitializationVector] = base64.Encode(iv)
	hdr[header.AuthenticationTag] = base64.Encode(tag)

	return ciphertext, nil
}

func gcmUnwrapCEK(alg jwa.Algorithm, key jwk.Key, encryptedKey []byte, hdr header.Parameters) ([]byte, error) {
	sym, ok := key.(*jwk.SymmetricKey)
	if !ok {
		return nil, fmt.Errorf("%w: %q requires a symmetric key, got %q", jwk.ErrOperationNotAllowed, alg, key.KeyType())
	}

	enc, err := gcmContentAlgorithm(alg)
	if err != nil {
		return nil, err
	}

	iv, err := base64HeaderParameter(hdr, header.InitializationVector)
	if err != nil {
		return nil, err
	}
	tag, err := base64HeaderParameter(hdr, header.AuthenticationTag)
	if err != nil {
		return nil, err
	}

	return sym.Open(enc, iv, encryptedKey, tag, nil)
}

// wrappingAlgorithm strips a composite key management algorithm down
// to its AES key wrap step.
func wrappingAlgorithm(alg jwa.Algorithm) jwa.Algorithm {
	switch alg {
	case jwa.ECDHESA128KW, jwa.PBES2HS256A128KW:
		return jwa.A128KW
	case jwa.ECDHESA192KW, jwa.PBES2HS384A192KW:
		return jwa.A192KW
	case jwa.ECDHESA256KW, jwa.PBES2HS512A256KW:
		return jwa.A256KW
	}
	return alg
}

// wrappingKeySize returns the derived key size in bytes for a
// composite algorithm's AES key wrap step.
func wrappingKeySize(alg jwa.Algorithm) int {
	switch wrappingAlgorithm(alg) {
	case jwa.A128KW:
		return 16
	case jwa.A192KW:
		return 24
	case jwa.A256KW:
		return 32
	}
	return 0
}

// pbes2Hash returns the PBKDF2 hash for a PBES2 algorithm.
func pbes2Hash(alg jwa.Algorithm) (crypto.Hash, error) {
	switch alg {
	case jwa.PBES2HS256A128KW:
		return crypto.SHA256, nil
	case jwa.PBES2HS384A192KW:
		return crypto.SHA384, nil
	case jwa.PBES2HS512A256KW:
		return crypto.SHA512, nil
	}
	return 0, fmt.Errorf("%w: %q", jwa.ErrUnknownAlgorithm, alg)
}

// pbes2KEK derives the key encryption key for a PBES2 algorithm from
// the recipient's password bytes and the "p2s"/"p2c" parameters. Both
// parameters are required on the encrypt and decrypt sides alike, so
// the caller chooses the salt and iteration count.
//
// https://datatracker.ietf.org/doc/html/rfc7518#section-4.8
func pbes2KEK(alg jwa.Algorithm, key jwk.Key, hdr header.Parameters) ([]byte, error) {
	sym, ok := key.(*jwk.SymmetricKey)
	if !ok {
		return nil, fmt.Errorf("%w: %q requires a password key, got %q", jwk.ErrOperationNotAllowed, alg, key.KeyType())
	}

	hash, err := pbes2Hash(alg)
	if err != nil {
		return nil, err
	}

	saltInput, err := base64HeaderParameter(hdr, header.PBES2Salt)
	if err != nil {
		return nil, err
	}
	count, err := intHeaderParameter(hdr, header.PBES2Count)
	if err != nil {
		return nil, err
	}
	if count < 1 {
		return nil, fmt.Errorf("%w: PBES2 iteration count %d", jwk.ErrOperationNotAllowed, count)
	}

	// The PBKDF2 salt is the algorithm name, a zero byte, then the
	// "p2s" value.
	salt := append([]byte(alg), 0)
	salt = append(salt, saltInput...)

	return pbkdf2.Key(sym.Bytes(), salt, count, wrappingKeySize(alg), hash.New), nil
}

// agreeCEK runs the ephemeral-static agreement for ECDH-ES in direct
// key agreement mode, producing the content encryption key.
func agreeCEK(alg jwa.Algorithm, enc jwa.Encryption, key jwk.Key, hdr header.Parameters) ([]byte, error) {
	sizes, err := jwa.SizesFor(enc)
	if err != nil {
		return nil, err
	}
	return ephemeralAgreementKey(key, hdr, enc, sizes.CEKSize)
}

// agreeKEK runs the ephemeral-static agreement for the ECDH-ES key
// wrapping composites, producing the key encryption key.
func agreeKEK(alg jwa.Algorithm, key jwk.Key, hdr header.Parameters) ([]byte, error) {
	return ephemeralAgreementKey(key, hdr, alg, wrappingKeySize(alg))
}

// ephemeralAgreementKey generates an ephemeral key pair on the
// recipient key's curve, records its public half in the "epk" header
// parameter and derives keyLen bytes with the Concat KDF.
func ephemeralAgreementKey(key jwk.Key, hdr header.Parameters, algorithmID string, keyLen int) ([]byte, error) {
	agreement, ok := key.(jwk.AgreementKey)
	if !ok {
		return nil, fmt.Errorf("%w: key type %q cannot perform key agreement", jwk.ErrOperationNotAllowed, key.KeyType())
	}

	remote, err := agreement.ECDHPublicKey()
	if err != nil {
		return nil, err
	}

	ephemeral, err := remote.Curve().GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate ephemeral key: %w", err)
	}

	secret, err := ephemeral.ECDH(remote)
	if err != nil {
		return nil, fmt.Errorf("failed to compute shared secret: %w", err)
	}

	epk, err := ephemeralPublicValue(ephemeral.PublicKey())
	if err != nil {
		return nil, err
	}
	hdr[header.EphemeralPublicKey] = epk

	apu, apv, err := partyInfo(hdr)
	if err != nil {
		return nil, err
	}

	return concatKDF(secret, algorithmID, apu, apv, keyLen), nil
}

// derivedAgreementKey recovers the Concat KDF output on the decrypt
// side, using the recipient's private key and the "epk" parameter.
func derivedAgreementKey(alg jwa.Algorithm, key jwk.Key, hdr header.Parameters, algorithmID string, keyLen int) ([]byte, error) {
	agreement, ok := key.(jwk.AgreementKey)
	if !ok {
		return nil, fmt.Errorf("%w: key type %q cannot perform key agreement", jwk.ErrOperationNotAllowed, key.KeyType())
	}

	ephemeral, err := ephemeralPublicKey(hdr)
	if err != nil {
		return nil, err
	}

	secret, err := agreement.SharedSecret(ephemeral)
	if err != nil {
		return nil, err
	}

	apu, apv, err := partyInfo(hdr)
	if err != nil {
		return nil, err
	}

	return concatKDF(secret, algorithmID, apu, apv, keyLen), nil
}

// ephemeralPublicValue renders an ephemeral public key as the JWK
// object carried in the "epk" header parameter.
func ephemeralPublicValue(public *ecdh.PublicKey) (jwk.Value, error) {
	if public.Curve() == ecdh.X25519() {
		return jwk.Value{
			jwk.KeyType: jwa.KeyTypeOKP,
			jwk.Curve:   jwa.X25519,
			jwk.X:       base64.Encode(public.Bytes()),
		}, nil
	}

	var crv jwa.Curve
	switch public.Curve() {
	case ecdh.P256():
		crv = jwa.P256
	case ecdh.P384():
		crv = jwa.P384
	case ecdh.P521():
		crv = jwa.P521
	default:
		return nil, fmt.Errorf("%w: unsupported agreement curve", jwk.ErrInvalidKeyFormat)
	}

	// NIST curve points serialize uncompressed: 0x04 then the X and
	// Y coordinates.
	point := public.Bytes()
	size := (len(point) - 1) / 2

	return jwk.Value{
		jwk.KeyType: jwa.KeyTypeEC,
		jwk.Curve:   crv,
		jwk.X:       base64.Encode(point[1 : 1+size]),
		jwk.Y:       base64.Encode(point[1+size:]),
	}, nil
}

// ephemeralPublicKey reads the "epk" header parameter back into
// crypto/ecdh form via the key resolution registry.
func ephemeralPublicKey(hdr header.Parameters) (*ecdh.PublicKey, error) {
	raw, err := hdr.Get(header.EphemeralPublicKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecoding, err)
	}

	value, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: ephemeral public key is not a JSON object", ErrDecoding)
	}

	key, err := jwk.Specialize(jwk.Value(value))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecoding, err)
	}

	agreement, ok := key.(jwk.AgreementKey)
	if !ok {
		return nil, fmt.Errorf("%w: ephemeral key type %q cannot perform key agreement", ErrDecoding, key.KeyType())
	}

	return agreement.ECDHPublicKey()
}

// partyInfo reads the optional "apu" and "apv" parameters.
func partyInfo(hdr header.Parameters) ([]byte, []byte, error) {
	apu, err := optionalBase64HeaderParameter(hdr, header.AgreementPartyU)
	if err != nil {
		return nil, nil, err
	}
	apv, err := optionalBase64HeaderParameter(hdr, header.AgreementPartyV)
	if err != nil {
		return nil, nil, err
	}
	return apu, apv, nil
}

// concatKDF derives keyLen bytes from the shared secret with the
// single-step KDF of NIST SP 800-56A using SHA-256, parameterized the
// way RFC 7518 section 4.6.2 prescribes.
func concatKDF(secret []byte, algorithmID string, apu, apv []byte, keyLen int) []byte {
	otherInfo := make([]byte, 0, 4+len(algorithmID)+4+len(apu)+4+len(apv)+4)
	otherInfo = appendLengthPrefixed(otherInfo, []byte(algorithmID))
	otherInfo = appendLengthPrefixed(otherInfo, apu)
	otherInfo = appendLengthPrefixed(otherInfo, apv)
	otherInfo = binary.BigEndian.AppendUint32(otherInfo, uint32(keyLen)*8)

	derived := make([]byte, 0, keyLen)
	for counter := uint32(1); len(derived) < keyLen; counter++ {
		digest := sha256.New()
		digest.Write(binary.BigEndian.AppendUint32(nil, counter))
		digest.Write(secret)
		digest.Write(otherInfo)
		derived = digest.Sum(derived)
	}

	return derived[:keyLen]
}

func appendLengthPrefixed(out, data []byte) []byte {
	out = binary.BigEndian.AppendUint32(out, uint32(len(data)))
	return append(out, data...)
}

// base64HeaderParameter reads a required base64url encoded header
// parameter.
func base64HeaderParameter(hdr header.Parameters, param header.ParameterName) ([]byte, error) {
	raw, err := hdr.Get(param)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecoding, err)
	}
	value, ok := raw.(string)
	if !ok {
		return nil, fmt.Errorf("%w: header parameter %q is not a string", ErrDecoding, param)
	}
	decoded, err := base64.Decode(value)
	if err != nil {
		return nil, fmt.Errorf("%w: header parameter %q: %w", ErrDecoding, param, err)
	}
	return decoded, nil
}

// optionalBase64HeaderParameter reads a base64url encoded header
// parameter, returning nil when absent.
func optionalBase64HeaderParameter(hdr header.Parameters, param header.ParameterName) ([]byte, error) {
	if _, ok := hdr[param]; !ok {
		return nil, nil
	}
	return base64HeaderParameter(hdr, param)
}

// intHeaderParameter reads an integer header parameter, tolerating
// the numeric forms JSON decoding produces.
func intHeaderParameter(hdr header.Parameters, param header.ParameterName) (int, error) {
	raw, err := hdr.Get(param)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrDecoding, err)
	}
	switch value := raw.(type) {
	case int:
		return value, nil
	case float64:
		return int(value), nil
	case json.Number:
		n, err := value.Int64()
		if err != nil {
			return 0, fmt.Errorf("%w: header parameter %q: %w", ErrDecoding, param, err)
		}
		return int(n), nil
	}
	return 0, fmt.Errorf("%w: header parameter %q is not a number", ErrDecoding, param)
}
