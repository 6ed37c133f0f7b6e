package jwe

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/josekit/jose/pkg/base64"
	"github.com/josekit/jose/pkg/header"
	"github.com/josekit/jose/pkg/jwa"
	"github.com/josekit/jose/pkg/jwk"
	"github.com/josekit/jose/pkg/keyutil"
)

// Key, content encryption key, initialization vector and expected
// wire form from RFC 7516 Appendix A.3.
var (
	appendixA3CEK = []byte{
		4, 211, 31, 197, 84, 157, 252, 254, 11, 100, 157, 250, 63, 170, 106, 206,
		107, 124, 212, 45, 111, 107, 9, 219, 200, 177, 0, 240, 143, 156, 44, 207,
	}

	appendixA3Plaintext = []byte("Live long and prosper.")

	appendixA3Token = "eyJhbGciOiJBMTI4S1ciLCJlbmMiOiJBMTI4Q0JDLUhTMjU2In0." +
		"6KB707dM9YTIgHtLvtgWQ8mKwboJW3of9locizkDTHzBC2IlrT1oOQ." +
		"AxY8DCtDaGlsbGljb3RoZQ." +
		"KDlTtXchhZTGufMYmOYGS4HffxPSUrfmqCHXaI9wOGY." +
		"U0m_YmjN04DJvceFICbCVQ"
)

func appendixA3Key(t *testing.T) jwk.Key {
	t.Helper()

	raw, err := base64.Decode("GawgguFyGrWKav7AX4VKUg")
	require.NoError(t, err)

	return jwk.FromSymmetricKey(raw)
}

func TestEncryptAppendixA3(t *testing.T) {
	iv, err := base64.Decode("AxY8DCtDaGlsbGljb3RoZQ")
	require.NoError(t, err)

	message, err := Encrypt(appendixA3Plaintext, Header{
		header.Algorithm:  jwa.A128KW,
		header.Encryption: jwa.A128CBCHS256,
	}, []jwk.Key{appendixA3Key(t)},
		WithContentEncryptionKey(appendixA3CEK),
		WithNonce(iv),
	)
	require.NoError(t, err)

	encoded, err := message.Compact()
	require.NoError(t, err)
	require.Equal(t, appendixA3Token, encoded)
}

func TestDecryptAppendixA3(t *testing.T) {
	message, err := Parse(appendixA3Token)
	require.NoError(t, err)
	require.Len(t, message.Recipients, 1)

	params := message.Protected.Value()
	require.Equal(t, jwa.A128KW, params.AlgorithmOrNone())

	plaintext, err := message.Decrypt(appendixA3Key(t))
	require.NoError(t, err)
	require.Equal(t, appendixA3Plaintext, plaintext)

	t.Run("wrong key", func(t *testing.T) {
		_, err := message.Decrypt(jwk.FromSymmetricKey(make([]byte, 16)))
		require.ErrorIs(t, err, jwk.ErrKeyNotFound)
	})

	t.Run("tampered tag", func(t *testing.T) {
		tampered, err := Parse(appendixA3Token)
		require.NoError(t, err)
		tampered.Tag[0] ^= 0xff

		_, err = tampered.Decrypt(appendixA3Key(t))
		require.ErrorIs(t, err, jwk.ErrKeyNotFound)
	})
}

func TestKeyManagementAlgorithms(t *testing.T) {
	password := jwk.FromSymmetricKey([]byte("entrap_o–peter_long–credit_tun"))

	tests := []struct {
		name   string
		params Header
		keyGen func(t *testing.T) jwk.Key
	}{
		{
			name: "direct encryption",
			params: Header{
				header.Algorithm:  jwa.Direct,
				header.Encryption: jwa.A256GCM,
			},
			keyGen: func(t *testing.T) jwk.Key {
				key, err := keyutil.GenerateKey(jwa.Direct)
				require.NoError(t, err)
				return key
			},
		},
		{
			name: "AES key wrap 128",
			params: Header{
				header.Algorithm:  jwa.A128KW,
				header.Encryption: jwa.A128GCM,
			},
			keyGen: func(t *testing.T) jwk.Key {
				key, err := keyutil.GenerateKey(jwa.A128KW)
				require.NoError(t, err)
				return key
			},
		},
		{
			name: "AES key wrap 256",
			params: Header{
				header.Algorithm:  jwa.A256KW,
				header.Encryption: jwa.A256CBCHS512,
			},
			keyGen: func(t *testing.T) jwk.Key {
				key, err := keyutil.GenerateKey(jwa.A256KW)
				require.NoError(t, err)
				return key
			},
		},
		{
			name: "AES GCM key wrap 128",
			params: Header{
				header.Algorithm:  jwa.A128GCMKW,
				header.Encryption: jwa.A128GCM,
			},
			keyGen: func(t *testing.T) jwk.Key {
				key, err := keyutil.GenerateKey(jwa.A128GCMKW)
				require.NoError(t, err)
				return key
			},
		},
		{
			name: "AES GCM key wrap 256",
			params: Header{
				header.Algorithm:  jwa.A256GCMKW,
				header.Encryption: jwa.A256GCM,
			},
			keyGen: func(t *testing.T) jwk.Key {
				key, err := keyutil.GenerateKey(jwa.A256GCMKW)
				require.NoError(t, err)
				return key
			},
		},
		{
			name: "PBES2 HMAC SHA-256",
			params: Header{
				header.Algorithm:  jwa.PBES2HS256A128KW,
				header.Encryption: jwa.A128CBCHS256,
				header.PBES2Salt:  base64.Encode([]byte("NaCl-for-tests!!")),
				header.PBES2Count: 4096,
			},
			keyGen: func(t *testing.T) jwk.Key { return password },
		},
		{
			name: "PBES2 HMAC SHA-512",
			params: Header{
				header.Algorithm:  jwa.PBES2HS512A256KW,
				header.Encryption: jwa.A256GCM,
				header.PBES2Salt:  base64.Encode([]byte("NaCl-for-tests!!")),
				header.PBES2Count: 4096,
			},
			keyGen: func(t *testing.T) jwk.Key { return password },
		},
		{
			name: "RSA-OAEP",
			params: Header{
				header.Algorithm:  jwa.RSAOAEP,
				header.Encryption: jwa.A128GCM,
			},
			keyGen: func(t *testing.T) jwk.Key {
				key, err := keyutil.GenerateKey(jwa.RSAOAEP)
				require.NoError(t, err)
				return key
			},
		},
		{
			name: "RSA-OAEP-256",
			params: Header{
				header.Algorithm:  jwa.RSAOAEP256,
				header.Encryption: jwa.A256GCM,
			},
			keyGen: func(t *testing.T) jwk.Key {
				key, err := keyutil.GenerateKey(jwa.RSAOAEP256)
				require.NoError(t, err)
				return key
			},
		},
		{
			name: "RSAES-PKCS1-v1_5",
			params: Header{
				header.Algorithm:  jwa.RSA1_5,
				header.Encryption: jwa.A128CBCHS256,
			},
			keyGen: func(t *testing.T) jwk.Key {
				key, err := keyutil.GenerateKey(jwa.RSA1_5)
				require.NoError(t, err)
				return key
			},
		},
		{
			name: "ECDH-ES P-256",
			params: Header{
				header.Algorithm:  jwa.ECDHES,
				header.Encryption: jwa.A128GCM,
			},
			keyGen: func(t *testing.T) jwk.Key {
				key, err := keyutil.GenerateKey(jwa.ECDHES)
				require.NoError(t, err)
				return key
			},
		},
		{
			name: "ECDH-ES X25519",
			params: Header{
				header.Algorithm:  jwa.ECDHES,
				header.Encryption: jwa.A256GCM,
			},
			keyGen: func(t *testing.T) jwk.Key {
				key, err := keyutil.GenerateAgreementKey()
				require.NoError(t, err)
				return key
			},
		},
		{
			name: "ECDH-ES with AES key wrap 128",
			params: Header{
				header.Algorithm:  jwa.ECDHESA128KW,
				header.Encryption: jwa.A128GCM,
			},
			keyGen: func(t *testing.T) jwk.Key {
				key, err := keyutil.GenerateKey(jwa.ECDHESA128KW)
				require.NoError(t, err)
				return key
			},
		},
		{
			name: "ECDH-ES with AES key wrap 256",
			params: Header{
				header.Algorithm:  jwa.ECDHESA256KW,
				header.Encryption: jwa.A256CBCHS512,
			},
			keyGen: func(t *testing.T) jwk.Key {
				key, err := keyutil.GenerateKey(jwa.ECDHESA256KW)
				require.NoError(t, err)
				return key
			},
		},
		{
			name: "ECDH-ES with AES key wrap over X25519",
			params: Header{
				header.Algorithm:  jwa.ECDHESA128KW,
				header.Encryption: jwa.A128GCM,
			},
			keyGen: func(t *testing.T) jwk.Key {
				key, err := keyutil.GenerateAgreementKey()
				require.NoError(t, err)
				return key
			},
		},
	}

	plaintext := []byte("The true sign of intelligence is not knowledge but imagination.")

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			key := test.keyGen(t)

			message, err := Encrypt(plaintext, test.params, []jwk.Key{key})
			require.NoError(t, err)

			decrypted, err := message.Decrypt(key)
			require.NoError(t, err)
			require.Equal(t, plaintext, decrypted)

			t.Run("wire round trip", func(t *testing.T) {
				encoded, err := message.Encode(ModeAuto)
				require.NoError(t, err)

				parsed, err := Parse(encoded)
				require.NoError(t, err)

				decrypted, err := parsed.Decrypt(key)
				require.NoError(t, err)
				require.Equal(t, plaintext, decrypted)
			})
		})
	}
}

func TestHeaderAdditionsAreProtected(t *testing.T) {
	t.Run("AES GCM key wrap", func(t *testing.T) {
		key, err := keyutil.GenerateKey(jwa.A128GCMKW)
		require.NoError(t, err)

		message, err := Encrypt([]byte("secret"), Header{
			header.Algorithm:  jwa.A128GCMKW,
			header.Encryption: jwa.A128GCM,
		}, []jwk.Key{key})
		require.NoError(t, err)

		params := message.Protected.Value()
		require.Contains(t, params, header.InitializationVector)
		require.Contains(t, params, header.AuthenticationTag)
	})

	t.Run("PBES2", func(t *testing.T) {
		password := jwk.FromSymmetricKey([]byte("hunter2hunter2"))

		// The salt and iteration count come from the caller, never
		// from the library.
		_, err := Encrypt([]byte("secret"), Header{
			header.Algorithm:  jwa.PBES2HS256A128KW,
			header.Encryption: jwa.A128GCM,
		}, []jwk.Key{password})
		require.Error(t, err)
		require.ErrorContains(t, err, string(header.PBES2Salt))

		message, err := Encrypt([]byte("secret"), Header{
			header.Algorithm:  jwa.PBES2HS256A128KW,
			header.Encryption: jwa.A128GCM,
			header.PBES2Salt:  base64.Encode([]byte("NaCl-for-tests!!")),
			header.PBES2Count: 4096,
		}, []jwk.Key{password})
		require.NoError(t, err)

		params := message.Protected.Value()
		require.Contains(t, params, header.PBES2Salt)
		require.Contains(t, params, header.PBES2Count)

		plaintext, err := message.Decrypt(password)
		require.NoError(t, err)
		require.Equal(t, []byte("secret"), plaintext)
	})

	t.Run("ECDH-ES", func(t *testing.T) {
		key, err := keyutil.GenerateKey(jwa.ECDHES)
		require.NoError(t, err)

		message, err := Encrypt([]byte("secret"), Header{
			header.Algorithm:  jwa.ECDHES,
			header.Encryption: jwa.A128GCM,
		}, []jwk.Key{key})
		require.NoError(t, err)

		epk, ok := message.Protected.Value()[header.EphemeralPublicKey].(jwk.Value)
		require.True(t, ok)
		require.Equal(t, jwa.KeyTypeEC, epk[jwk.KeyType])

		// The authenticated protected bytes already carry the
		// ephemeral key, not just the in-memory view of it.
		segment, err := message.Protected.Base64URL()
		require.NoError(t, err)

		raw, err := base64.Decode(segment)
		require.NoError(t, err)
		require.Contains(t, string(raw), `"epk"`)
	})
}

func TestDirectEncryptionIsDeterministic(t *testing.T) {
	key, err := keyutil.GenerateKey(jwa.Direct)
	require.NoError(t, err)

	nonce := bytes.Repeat([]byte{0x42}, 12)

	params := func() Header {
		return Header{
			header.Algorithm:  jwa.Direct,
			header.Encryption: jwa.A256GCM,
		}
	}

	first, err := Encrypt([]byte("secret"), params(), []jwk.Key{key}, WithNonce(nonce))
	require.NoError(t, err)

	second, err := Encrypt([]byte("secret"), params(), []jwk.Key{key}, WithNonce(nonce))
	require.NoError(t, err)

	// Same key and nonce reproduce the same ciphertext and tag.
	require.Equal(t, first.Ciphertext, second.Ciphertext)
	require.Equal(t, first.Tag, second.Tag)
	require.Empty(t, first.Recipients)

	decrypted, err := first.Decrypt(key)
	require.NoError(t, err)
	require.Equal(t, []byte("secret"), decrypted)
}

func TestHybridIntegratedEncryption(t *testing.T) {
	tests := []struct {
		name   string
		alg    jwa.Algorithm
		keyGen func(t *testing.T) jwk.Key
	}{
		{
			name: "HPKE P-256",
			alg:  jwa.HPKEP256SHA256A128GCM,
			keyGen: func(t *testing.T) jwk.Key {
				key, err := keyutil.GenerateKey(jwa.ECDHES)
				require.NoError(t, err)
				return key
			},
		},
		{
			name: "HPKE X25519",
			alg:  jwa.HPKEX25519SHA256A128GCM,
			keyGen: func(t *testing.T) jwk.Key {
				key, err := keyutil.GenerateAgreementKey()
				require.NoError(t, err)
				return key
			},
		},
	}

	plaintext := []byte("post-quantum ready transport")

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			key := test.keyGen(t)

			message, err := Encrypt(plaintext, Header{
				header.Algorithm: test.alg,
			}, []jwk.Key{key})
			require.NoError(t, err)

			// The KEM encapsulation travels in the encrypted key slot
			// and the envelope has no initialization vector.
			require.Len(t, message.Recipients, 1)
			require.NotEmpty(t, message.Recipients[0].EncryptedKey)
			require.Empty(t, message.IV)

			decrypted, err := message.Decrypt(key)
			require.NoError(t, err)
			require.Equal(t, plaintext, decrypted)

			t.Run("wire round trip", func(t *testing.T) {
				encoded, err := message.Encode(ModeAuto)
				require.NoError(t, err)

				parsed, err := Parse(encoded)
				require.NoError(t, err)

				decrypted, err := parsed.Decrypt(key)
				require.NoError(t, err)
				require.Equal(t, plaintext, decrypted)
			})

			t.Run("wrong key", func(t *testing.T) {
				other := test.keyGen(t)

				_, err := message.Decrypt(other)
				require.ErrorIs(t, err, jwk.ErrKeyNotFound)
			})

			t.Run("fixed material rejected", func(t *testing.T) {
				_, err := Encrypt(plaintext, Header{
					header.Algorithm: test.alg,
				}, []jwk.Key{key}, WithContentEncryptionKey(make([]byte, 16)))
				require.ErrorIs(t, err, jwk.ErrOperationNotAllowed)
			})
		})
	}
}

func TestSingleRecipientAlgorithmsRejectMultipleKeys(t *testing.T) {
	key1, err := keyutil.GenerateKey(jwa.Direct)
	require.NoError(t, err)
	key2, err := keyutil.GenerateKey(jwa.Direct)
	require.NoError(t, err)

	_, err = Encrypt([]byte("secret"), Header{
		header.Algorithm:  jwa.Direct,
		header.Encryption: jwa.A256GCM,
	}, []jwk.Key{key1, key2})
	require.ErrorIs(t, err, jwk.ErrOperationNotAllowed)
}

func TestEncryptRejectsNone(t *testing.T) {
	_, err := Encrypt([]byte("secret"), Header{
		header.Algorithm:  jwa.None,
		header.Encryption: jwa.A128GCM,
	}, []jwk.Key{appendixA3Key(t)})
	require.ErrorIs(t, err, jwk.ErrOperationNotAllowed)
}

func TestEncryptWithoutKeys(t *testing.T) {
	_, err := Encrypt([]byte("secret"), Header{
		header.Algorithm:  jwa.A128KW,
		header.Encryption: jwa.A128GCM,
	}, nil)
	require.ErrorIs(t, err, jwk.ErrKeyNotFound)
}

func TestDecryptRejectsNone(t *testing.T) {
	message, err := Parse(appendixA3Token)
	require.NoError(t, err)
	message.Protected.Value()[header.Algorithm] = jwa.None

	_, err = message.Decrypt(appendixA3Key(t))
	require.ErrorIs(t, err, jwk.ErrKeyNotFound)
}

func TestCompression(t *testing.T) {
	key, err := keyutil.GenerateKey(jwa.A128KW)
	require.NoError(t, err)

	plaintext := bytes.Repeat([]byte("a very compressible payload. "), 200)

	message, err := Encrypt(plaintext, Header{
		header.Algorithm:   jwa.A128KW,
		header.Encryption:  jwa.A128GCM,
		header.Compression: jwa.Deflate,
	}, []jwk.Key{key})
	require.NoError(t, err)
	require.Less(t, len(message.Ciphertext), len(plaintext))

	encoded, err := message.Encode(ModeCompact)
	require.NoError(t, err)

	parsed, err := Parse(encoded)
	require.NoError(t, err)

	decrypted, err := parsed.Decrypt(key)
	require.NoError(t, err)
	require.Equal(t, plaintext, decrypted)
}

func TestUnknownCompressionAlgorithm(t *testing.T) {
	key, err := keyutil.GenerateKey(jwa.A128KW)
	require.NoError(t, err)

	_, err = Encrypt([]byte("secret"), Header{
		header.Algorithm:   jwa.A128KW,
		header.Encryption:  jwa.A128GCM,
		header.Compression: jwa.CompressionAlgorithm("LZW"),
	}, []jwk.Key{key})
	require.Error(t, err)
}

func TestAdditionalAuthenticatedData(t *testing.T) {
	key, err := keyutil.GenerateKey(jwa.A128KW)
	require.NoError(t, err)

	aad := []byte(`{"transaction":42}`)

	message, err := Encrypt([]byte("secret"), Header{
		header.Algorithm:  jwa.A128KW,
		header.Encryption: jwa.A128GCM,
	}, []jwk.Key{key}, WithAdditionalAuthenticatedData(aad))
	require.NoError(t, err)

	// AAD has no five-segment representation.
	_, err = message.Compact()
	require.Error(t, err)

	encoded, err := message.Encode(ModeAuto)
	require.NoError(t, err)

	parsed, err := Parse(encoded)
	require.NoError(t, err)
	require.Equal(t, aad, parsed.AAD)

	decrypted, err := parsed.Decrypt(key)
	require.NoError(t, err)
	require.Equal(t, []byte("secret"), decrypted)

	t.Run("tampered AAD", func(t *testing.T) {
		parsed.AAD = []byte(`{"transaction":43}`)

		_, err := parsed.Decrypt(key)
		require.ErrorIs(t, err, jwk.ErrKeyNotFound)
	})
}

func TestMultipleRecipients(t *testing.T) {
	key1, err := keyutil.GenerateKey(jwa.A128KW)
	require.NoError(t, err)
	key2, err := keyutil.GenerateKey(jwa.A128KW)
	require.NoError(t, err)

	plaintext := []byte("shared with two recipients")

	message, err := Encrypt(plaintext, Header{
		header.Algorithm:  jwa.A128KW,
		header.Encryption: jwa.A128GCM,
	}, []jwk.Key{key1, key2}, WithRecipientHeaders(
		Header{header.KeyID: key1.KeyID()},
		Header{header.KeyID: key2.KeyID()},
	))
	require.NoError(t, err)
	require.Len(t, message.Recipients, 2)

	encoded, err := message.Encode(ModeAuto)
	require.NoError(t, err)
	require.Contains(t, encoded, `"recipients"`)

	parsed, err := Parse(encoded)
	require.NoError(t, err)
	require.Len(t, parsed.Recipients, 2)

	// Either key alone opens the envelope.
	for _, key := range []jwk.Key{key1, key2} {
		decrypted, err := parsed.Decrypt(key)
		require.NoError(t, err)
		require.Equal(t, plaintext, decrypted)
	}

	_, err = parsed.Decrypt(jwk.FromSymmetricKey(make([]byte, 16)))
	require.ErrorIs(t, err, jwk.ErrKeyNotFound)
}

func TestSerializationModes(t *testing.T) {
	key := appendixA3Key(t)

	newMessage := func(t *testing.T, opts ...EncryptOption) *Message {
		t.Helper()

		message, err := Encrypt([]byte("secret"), Header{
			header.Algorithm:  jwa.A128KW,
			header.Encryption: jwa.A128GCM,
		}, []jwk.Key{key}, opts...)
		require.NoError(t, err)

		return message
	}

	t.Run("compact", func(t *testing.T) {
		encoded, err := newMessage(t).Encode(ModeCompact)
		require.NoError(t, err)
		require.Len(t, strings.Split(encoded, "."), 5)
	})

	t.Run("flattened", func(t *testing.T) {
		encoded, err := newMessage(t).Encode(ModeFlattened)
		require.NoError(t, err)
		require.Contains(t, encoded, `"encrypted_key"`)
		require.NotContains(t, encoded, `"recipients"`)

		parsed, err := Parse(encoded)
		require.NoError(t, err)

		decrypted, err := parsed.Decrypt(key)
		require.NoError(t, err)
		require.Equal(t, []byte("secret"), decrypted)
	})

	t.Run("general", func(t *testing.T) {
		encoded, err := newMessage(t).Encode(ModeGeneral)
		require.NoError(t, err)
		require.Contains(t, encoded, `"recipients"`)

		parsed, err := Parse(encoded)
		require.NoError(t, err)

		decrypted, err := parsed.Decrypt(key)
		require.NoError(t, err)
		require.Equal(t, []byte("secret"), decrypted)
	})

	t.Run("auto prefers compact", func(t *testing.T) {
		encoded, err := newMessage(t).Encode(ModeAuto)
		require.NoError(t, err)
		require.False(t, strings.HasPrefix(encoded, "{"))
	})

	t.Run("auto falls back to JSON for unprotected headers", func(t *testing.T) {
		message := newMessage(t, WithUnprotected(Header{header.KeyID: "shared"}))

		encoded, err := message.Encode(ModeAuto)
		require.NoError(t, err)
		require.True(t, strings.HasPrefix(encoded, "{"))

		parsed, err := Parse(encoded)
		require.NoError(t, err)
		require.Equal(t, "shared", parsed.Unprotected[header.KeyID])
	})

	t.Run("string never fails", func(t *testing.T) {
		require.NotEmpty(t, newMessage(t).String())
	})
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{name: "wrong segment count", input: "a.b.c"},
		{name: "invalid protected header base64", input: "!!!.a.b.c.d"},
		{name: "invalid ciphertext base64", input: "eyJhbGciOiJBMTI4S1cifQ.a.b.!!!.d"},
		{name: "invalid JSON", input: "{"},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := Parse(test.input)
			require.ErrorIs(t, err, ErrDecoding)
		})
	}
}
