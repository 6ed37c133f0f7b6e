package jwk

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// Set is a JWK set as defined in RFC 7517.
//
// https://datatracker.ietf.org/doc/html/rfc7517#section-5
type Set struct {
	// Keys is a list of JWK values.
	//
	// https://datatracker.ietf.org/doc/html/rfc7517#section-5.1
	Keys []Value `json:"keys"`
}

// Validate validates the JWK set, returning an error if any of the
// keys are invalid.
func (s *Set) Validate() error {
	if len(s.Keys) == 0 {
		return fmt.Errorf("no key values in JWK set")
	}

	for _, key := range s.Keys {
		if err := Validate(key); err != nil {
			return fmt.Errorf("key set validation error: %w", err)
		}
	}

	return nil
}

// Get returns the key that matches the given key id.
func (s *Set) Get(keyID string) (Value, error) {
	for _, key := range s.Keys {
		if key[KeyID] == keyID {
			return key, nil
		}
	}

	return nil, fmt.Errorf("%w: key %q not in set", ErrKeyNotFound, keyID)
}

// Specialized upgrades every key in the set through the given
// registry, ready to be offered to verify or decrypt operations. A
// nil registry uses the default registry.
func (s *Set) Specialized(registry *Registry) ([]Key, error) {
	if registry == nil {
		registry = defaultRegistry
	}

	keys := make([]Key, 0, len(s.Keys))
	for _, value := range s.Keys {
		key, err := registry.Specialize(value)
		if err != nil {
			return nil, fmt.Errorf("failed to specialize key set entry: %w", err)
		}
		keys = append(keys, key)
	}

	return keys, nil
}

// FetchSet fetches a JWK set from the given URL and HTTP client. This
// is the only network touchpoint in the package; the envelope engines
// themselves issue no I/O.
func FetchSet(ctx context.Context, url string, client *http.Client) (*Set, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create JWK set request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch JWK set: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch JWK set: %s", resp.Status)
	}

	var set Set
	if err := json.NewDecoder(resp.Body).Decode(&set); err != nil {
		return nil, fmt.Errorf("failed to decode JWK set: %w", err)
	}

	if err := set.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate JWK set: %w", err)
	}

	return &set, nil
}

// URLSetCache is a cache of JWK sets keyed by URL that can be used to
// verify envelopes from multiple issuers. It refreshes the JWK sets
// when they expire and caches them for a configurable amount of time.
type URLSetCache struct {
	mutex sync.RWMutex

	// sets is a map of JWK sets keyed by URL.
	sets map[string]*Set

	// cacheTimes is a map of JWK set cache times keyed by URL.
	cacheTimes map[string]time.Time

	// client is the HTTP client used to fetch JWK sets.
	client *http.Client

	// refreshInterval is the amount of time between refreshing JWK sets.
	refreshInterval time.Duration

	// cacheDuration is the amount of time to cache JWK sets.
	cacheDuration time.Duration
}

// NewURLSetCache returns a new JWK set cache.
func NewURLSetCache(client *http.Client, refreshInterval, cacheDuration time.Duration) *URLSetCache {
	return &URLSetCache{
		sets:            make(map[string]*Set),
		cacheTimes:      make(map[string]time.Time),
		client:          client,
		refreshInterval: refreshInterval,
		cacheDuration:   cacheDuration,
	}
}

// Get returns the JWK set for the given URL, fetching it if it is not
// already cached or the cached copy has expired.
func (c *URLSetCache) Get(ctx context.Context, url string) (*Set, error) {
	c.mutex.RLock()
	set, cached := c.sets[url]
	expiry := c.cacheTimes[url]
	c.mutex.RUnlock()

	if !cached || time.Now().After(expiry) {
		return c.Fetch(ctx, url)
	}
	return set, nil
}

// GetKey returns the first key from the JWK set for the given URL
// that matches the given key id, fetching the JWK set if needed.
func (c *URLSetCache) GetKey(ctx context.Context, url string, keyID string) (Value, error) {
	set, err := c.Get(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch JWK set: %w", err)
	}

	key, err := set.Get(keyID)
	if err != nil {
		return nil, fmt.Errorf("failed to get key %q from JWK set: %w", keyID, err)
	}

	return key, nil
}

// Range iterates over the JWK sets in the cache, calling the given
// function for each URL and key. If the function returns false, the
// iteration stops.
func (c *URLSetCache) Range(fn func(url string, key Value) bool) {
	if fn == nil || c == nil {
		return
	}

	c.mutex.RLock()
	defer c.mutex.RUnlock()

	for url, set := range c.sets {
		for _, key := range set.Keys {
			if !fn(url, key) {
				return
			}
		}
	}
}

// Fetch fetches the JWK set for the given URL and caches it.
func (c *URLSetCache) Fetch(ctx context.Context, url string) (*Set, error) {
	set, err := FetchSet(ctx, url, c.client)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch JWK set: %w", err)
	}

	c.mutex.Lock()
	c.sets[url] = set
	c.cacheTimes[url] = time.Now().Add(c.cacheDuration)
	c.mutex.Unlock()

	return set, nil
}

// RefreshAll refreshes all JWK sets in the cache.
func (c *URLSetCache) RefreshAll(ctx context.Context) error {
	c.mutex.RLock()
	urls := make([]string, 0, len(c.sets))
	for url := range c.sets {
		urls = append(urls, url)
	}
	c.mutex.RUnlock()

	for _, url := range urls {
		if _, err := c.Fetch(ctx, url); err != nil {
			return fmt.Errorf("failed to refresh JWK set for %q: %w", url, err)
		}
	}
	return nil
}

// Start runs the JWK set cache refresh loop, blocking until the
// context is canceled. Most callers will want to call this in a
// goroutine after creating the cache.
func (c *URLSetCache) Start(ctx context.Context) error {
	ticker := time.NewTicker(c.refreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := c.RefreshAll(ctx); err != nil {
				return fmt.Errorf("failed to refresh JWK sets: %w", err)
			}
		}
	}
}
