package jwk

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const testSetJSON = `
	{
		"keys":[
			{
				"kty":"oct",
				"alg":"A128KW",
				"k":"GawgguFyGrWKav7AX4VKUg"
			},
			{
				"kty":"oct",
				"k":"AyM1SysPpbyDfgZld3umj1qzKObwVMkoqQ-EstJQLr_T-1qS0gZH75aKtMN3Yj0iPS4hcgUuTwjAzZr1Z9CAow",
				"kid":"HMAC key used in JWS spec Appendix A.1 example"
			},
			{
				"kty":"EC",
				"crv":"P-256",
				"x":"MKBCTNIcKUSDii11ySs3526iDZ8AiTo7Tu6KPAqv7D4",
				"y":"4Etl6SRW2YiLUrN5vfvVHuhp7x8PxltmWWlbbM4IFyM",
				"use":"enc",
				"kid":"1"
			}
		]
	}`

func decodeSet(t *testing.T) *Set {
	t.Helper()

	set := &Set{}
	err := json.NewDecoder(strings.NewReader(testSetJSON)).Decode(set)
	require.NoError(t, err)
	require.NotEmpty(t, set.Keys)

	return set
}

func TestSetValidate(t *testing.T) {
	set := decodeSet(t)
	require.NoError(t, set.Validate())

	empty := &Set{}
	require.Error(t, empty.Validate())

	invalid := &Set{Keys: []Value{{KeyType: "XYZ"}}}
	require.Error(t, invalid.Validate())
}

func TestSetGet(t *testing.T) {
	set := decodeSet(t)

	key, err := set.Get("1")
	require.NoError(t, err)
	require.Equal(t, "EC", key[KeyType])

	_, err = set.Get("nope")
	require.ErrorIs(t, err, ErrKeyNotFound)
}

func TestSetSpecialized(t *testing.T) {
	set := decodeSet(t)

	keys, err := set.Specialized(nil)
	require.NoError(t, err)
	require.Len(t, keys, 3)

	require.IsType(t, &SymmetricKey{}, keys[0])
	require.IsType(t, &SymmetricKey{}, keys[1])
	require.IsType(t, &ECDSAKey{}, keys[2])
}

func newSetServer(t *testing.T) *httptest.Server {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(testSetJSON))
	}))
	t.Cleanup(server.Close)

	return server
}

func TestFetchSet(t *testing.T) {
	server := newSetServer(t)

	set, err := FetchSet(context.Background(), server.URL, server.Client())
	require.NoError(t, err)
	require.Len(t, set.Keys, 3)
}

func TestFetchSetErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	t.Cleanup(server.Close)

	_, err := FetchSet(context.Background(), server.URL, server.Client())
	require.Error(t, err)
}

func TestURLSetCache(t *testing.T) {
	server := newSetServer(t)

	cache := NewURLSetCache(server.Client(), time.Minute, time.Hour)

	set, err := cache.Get(context.Background(), server.URL)
	require.NoError(t, err)
	require.Len(t, set.Keys, 3)

	// Served from the cache on the second lookup.
	again, err := cache.Get(context.Background(), server.URL)
	require.NoError(t, err)
	require.Equal(t, set, again)

	key, err := cache.GetKey(context.Background(), server.URL, "1")
	require.NoError(t, err)
	require.Equal(t, "EC", key[KeyType])

	_, err = cache.GetKey(context.Background(), server.URL, "nope")
	require.ErrorIs(t, err, ErrKeyNotFound)

	var seen int
	cache.Range(func(url string, key Value) bool {
		seen++
		return true
	})
	require.Equal(t, 3, seen)
}
