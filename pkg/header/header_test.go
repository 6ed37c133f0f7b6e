package header

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/josekit/jose/pkg/jwa"
)

func TestBase64URLString(t *testing.T) {
	params := Parameters{
		Algorithm: jwa.HS256,
	}

	encoded, err := params.Base64URLString()
	require.NoError(t, err)
	require.Equal(t, "eyJhbGciOiJIUzI1NiJ9", encoded)
}

func TestAlgorithm(t *testing.T) {
	t.Run("present", func(t *testing.T) {
		alg, err := Parameters{Algorithm: jwa.ES256}.Algorithm()
		require.NoError(t, err)
		require.Equal(t, jwa.ES256, alg)
	})

	t.Run("absent", func(t *testing.T) {
		_, err := Parameters{}.Algorithm()
		require.Error(t, err)
	})

	t.Run("wrong type", func(t *testing.T) {
		_, err := Parameters{Algorithm: 42}.Algorithm()
		require.Error(t, err)
	})
}

func TestAlgorithmOrNone(t *testing.T) {
	require.Equal(t, jwa.HS512, Parameters{Algorithm: jwa.HS512}.AlgorithmOrNone())
	require.Equal(t, jwa.Unrecognized, Parameters{}.AlgorithmOrNone())
	require.Equal(t, jwa.Unrecognized, Parameters{Algorithm: 1}.AlgorithmOrNone())
}

func TestCompressionAlgorithm(t *testing.T) {
	t.Run("absent is not an error", func(t *testing.T) {
		zip, err := Parameters{}.CompressionAlgorithm()
		require.NoError(t, err)
		require.Empty(t, zip)
	})

	t.Run("present", func(t *testing.T) {
		zip, err := Parameters{Compression: jwa.Deflate}.CompressionAlgorithm()
		require.NoError(t, err)
		require.Equal(t, jwa.Deflate, zip)
	})
}

func TestKeyID(t *testing.T) {
	require.Equal(t, "kid-1", Parameters{KeyID: "kid-1"}.KeyID())
	require.Empty(t, Parameters{}.KeyID())
	require.Empty(t, Parameters{KeyID: 7}.KeyID())
}

func TestCriticalParameters(t *testing.T) {
	t.Run("absent", func(t *testing.T) {
		names, err := Parameters{}.CriticalParameters()
		require.NoError(t, err)
		require.Empty(t, names)
	})

	t.Run("decoded JSON array", func(t *testing.T) {
		names, err := Parameters{Critical: []any{Base64Payload}}.CriticalParameters()
		require.NoError(t, err)
		require.Equal(t, []ParameterName{Base64Payload}, names)
	})

	t.Run("string slice", func(t *testing.T) {
		names, err := Parameters{Critical: []string{Base64Payload}}.CriticalParameters()
		require.NoError(t, err)
		require.Equal(t, []ParameterName{Base64Payload}, names)
	})

	t.Run("non-string entry", func(t *testing.T) {
		_, err := Parameters{Critical: []any{1}}.CriticalParameters()
		require.Error(t, err)
	})

	t.Run("not an array", func(t *testing.T) {
		_, err := Parameters{Critical: "b64"}.CriticalParameters()
		require.Error(t, err)
	})
}

func TestRawPayload(t *testing.T) {
	tests := []struct {
		name   string
		params Parameters
		want   bool
	}{
		{
			name:   "absent",
			params: Parameters{},
			want:   false,
		},
		{
			name: "false and critical",
			params: Parameters{
				Base64Payload: false,
				Critical:      []string{Base64Payload},
			},
			want: true,
		},
		{
			name: "false but not critical",
			params: Parameters{
				Base64Payload: false,
			},
			want: false,
		},
		{
			name: "true",
			params: Parameters{
				Base64Payload: true,
				Critical:      []string{Base64Payload},
			},
			want: false,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			require.Equal(t, test.want, test.params.RawPayload())
		})
	}
}

func TestMerge(t *testing.T) {
	protected := Parameters{
		Algorithm: jwa.ES256,
		Type:      TypeJWT,
	}
	unprotected := Parameters{
		Algorithm: jwa.HS256,
		KeyID:     "shared",
	}
	recipient := Parameters{
		KeyID: "per-recipient",
	}

	merged := Merge(protected, unprotected, recipient)

	// Earlier views win over later ones.
	require.Equal(t, jwa.ES256, merged[Algorithm])
	require.Equal(t, "shared", merged[KeyID])
	require.Equal(t, TypeJWT, merged[Type])

	// The inputs are untouched.
	require.Equal(t, "per-recipient", recipient[KeyID])
	require.Len(t, protected, 2)
}
