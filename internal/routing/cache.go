package routing

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/mmcloughlin/geohash"
)

const (
	// defaultCacheTTL is how long a cached document remains valid unless
	// overridden with WithTTL.
	defaultCacheTTL = 5 * time.Minute

	// cacheWriteTimeout bounds each asynchronous cache write.
	cacheWriteTimeout = 5 * time.Second

	// geohashPrecision controls the spatial resolution used when an origin or
	// destination is given as coordinates. Precision 9 is a cell of about
	// 5m x 5m, so the same doorstep maps to the same key.
	geohashPrecision = 9

	// cacheKeyPrefix namespaces keys in shared stores such as Redis.
	cacheKeyPrefix = "route:"
)

// latLngPattern matches a "lat,lng" pair such as "35.681236,139.767125".
var latLngPattern = regexp.MustCompile(`^\s*(-?\d{1,2}(?:\.\d+)?)\s*,\s*(-?\d{1,3}(?:\.\d+)?)\s*$`)

// CacheStore abstracts the persistence layer for route caching.
// This interface makes it easy to swap the real implementations with a
// test double in unit tests.
type CacheStore interface {
	// Get returns the cached Document for key, or (nil, nil) when there is no
	// valid (non-expired) entry.
	Get(ctx context.Context, key string) (*Document, error)

	// Set stores doc under key for ttl.
	Set(ctx context.Context, key string, doc *Document, ttl time.Duration) error
}

// Logger is a printf-style logging function injected into CachedClient.
type Logger func(format string, args ...any)

// CachedClient wraps another Client and transparently caches successful
// Directions documents.
type CachedClient struct {
	inner      Client
	store      CacheStore
	ttl        time.Duration
	namespace  string
	logger     Logger // called when cache reads or async writes fail; nil = silent
	afterStore func() // optional hook called after every async store attempt; used in tests for synchronization
}

// CachedClientOption configures a CachedClient.
type CachedClientOption func(*CachedClient)

// WithLogger sets a logger that is called when a cache operation fails.
func WithLogger(l Logger) CachedClientOption {
	return func(c *CachedClient) { c.logger = l }
}

// WithTTL sets how long cached documents stay valid.
func WithTTL(ttl time.Duration) CachedClientOption {
	return func(c *CachedClient) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithKeyNamespace mixes ns into every cache key, so clients whose documents
// differ for the same request (another language or region) can share a store.
func WithKeyNamespace(ns string) CachedClientOption {
	return func(c *CachedClient) { c.namespace = ns }
}

// withAfterStore sets a hook called after every async store attempt (success or
// failure). Intended exclusively for test synchronization.
func withAfterStore(fn func()) CachedClientOption {
	return func(c *CachedClient) { c.afterStore = fn }
}

// NewCachedClient wraps inner with a cache-aside layer backed by store.
func NewCachedClient(inner Client, store CacheStore, opts ...CachedClientOption) *CachedClient {
	c := &CachedClient{inner: inner, store: store, ttl: defaultCacheTTL}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Directions satisfies the Client interface.
// It checks the cache first; on a miss it delegates to the inner Client and
// persists the result when it is a successful lookup.
func (c *CachedClient) Directions(ctx context.Context, req Request) (*Document, error) {
	key := CacheKey(c.namespace, req)

	cached, err := c.store.Get(ctx, key)
	if err != nil {
		// Cache read failures are non-fatal: fall through to the real client.
		c.logf("routing: cache: read failed (key=%s): %v", key, err)
	}
	if cached != nil {
		return cached, nil
	}

	doc, err := c.inner.Directions(ctx, req)
	if err != nil {
		return nil, err
	}

	if !cacheable(doc) {
		return doc, nil
	}

	// Persist asynchronously with a background context so that the write
	// survives the caller's context being cancelled right after we return.
	go func() {
		storeCtx, cancel := context.WithTimeout(context.Background(), cacheWriteTimeout)
		defer cancel()

		if err := c.store.Set(storeCtx, key, doc, c.ttl); err != nil {
			c.logf("routing: cache: async write failed (key=%s): %v", key, err)
		}

		if c.afterStore != nil {
			c.afterStore()
		}
	}()

	return doc, nil
}

func (c *CachedClient) logf(format string, args ...any) {
	if c.logger != nil {
		c.logger(format, args...)
	}
}

// cacheable reports whether doc is a successful lookup. Error statuses,
// ZERO_RESULTS and quota errors are never cached.
func cacheable(doc *Document) bool {
	return doc != nil && doc.StatusCode == http.StatusOK && doc.APIStatus() == "OK"
}

// CacheKey returns the store key for req within namespace. Free-text places
// are compared after whitespace normalization and case folding; "lat,lng"
// places are reduced to a geohash cell.
func CacheKey(namespace string, req Request) string {
	var b strings.Builder
	b.WriteString("ns:")
	b.WriteString(namespace)
	b.WriteByte('\n')
	b.WriteString(canonicalPlace(req.Origin))
	b.WriteByte('\n')
	b.WriteString(canonicalPlace(req.Destination))
	for _, w := range req.Waypoints {
		b.WriteByte('\n')
		b.WriteString("via:")
		b.WriteString(canonicalPlace(w))
	}
	b.WriteByte('\n')
	b.WriteString("avoid_tolls:")
	b.WriteString(strconv.FormatBool(req.AvoidTolls))

	sum := sha256.Sum256([]byte(b.String()))
	return cacheKeyPrefix + hex.EncodeToString(sum[:])
}

func canonicalPlace(s string) string {
	if m := latLngPattern.FindStringSubmatch(s); m != nil {
		lat, errLat := strconv.ParseFloat(m[1], 64)
		lng, errLng := strconv.ParseFloat(m[2], 64)
		if errLat == nil && errLng == nil && lat >= -90 && lat <= 90 && lng >= -180 && lng <= 180 {
			return "gh:" + geohash.EncodeWithPrecision(lat, lng, geohashPrecision)
		}
	}
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
