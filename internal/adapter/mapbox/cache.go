package mapbox

import (
	"container/list"
	"context"
	"math"
	"strings"
	"sync"

	"github.com/couchcryptid/weather-snapshot-cache/internal/domain"
	"github.com/couchcryptid/weather-snapshot-cache/internal/observability"
)

const (
	methodForward = "forward"
	methodReverse = "reverse"
)

// lookupKey identifies one geocoding request. Forward lookups set name and
// country; reverse lookups set the coordinates in units of 1e-4 degrees
// (about 11 m).
type lookupKey struct {
	method   string
	name     string
	country  string
	lat, lon int64
}

func forwardKey(name, country string) lookupKey {
	return lookupKey{
		method:  methodForward,
		name:    strings.ToLower(strings.TrimSpace(name)),
		country: strings.ToUpper(strings.TrimSpace(country)),
	}
}

func reverseKey(lat, lon float64) lookupKey {
	return lookupKey{
		method: methodReverse,
		lat:    int64(math.Round(lat * 1e4)),
		lon:    int64(math.Round(lon * 1e4)),
	}
}

// CachedGeocoder wraps a Geocoder with a bounded LRU of successful results.
// Hits, misses and evictions are counted per method.
type CachedGeocoder struct {
	inner   domain.Geocoder
	cache   *lru[lookupKey, domain.GeocodingResult]
	metrics *observability.Metrics
}

// NewCachedGeocoder creates a cache decorator around a geocoder holding at
// most maxEntries results.
func NewCachedGeocoder(inner domain.Geocoder, maxEntries int, metrics *observability.Metrics) *CachedGeocoder {
	c := &CachedGeocoder{inner: inner, metrics: metrics}
	c.cache = newLRU(maxEntries, func(k lookupKey, _ domain.GeocodingResult) {
		metrics.GeocodeCache.WithLabelValues(k.method, "evict").Inc()
	})
	return c
}

func (c *CachedGeocoder) ForwardGeocode(ctx context.Context, name, country string) (domain.GeocodingResult, error) {
	return c.lookup(forwardKey(name, country), func() (domain.GeocodingResult, error) {
		return c.inner.ForwardGeocode(ctx, name, country)
	})
}

func (c *CachedGeocoder) ReverseGeocode(ctx context.Context, lat, lon float64) (domain.GeocodingResult, error) {
	return c.lookup(reverseKey(lat, lon), func() (domain.GeocodingResult, error) {
		return c.inner.ReverseGeocode(ctx, lat, lon)
	})
}

func (c *CachedGeocoder) lookup(key lookupKey, fetch func() (domain.GeocodingResult, error)) (domain.GeocodingResult, error) {
	if result, ok := c.cache.get(key); ok {
		c.metrics.GeocodeCache.WithLabelValues(key.method, "hit").Inc()
		return result, nil
	}
	c.metrics.GeocodeCache.WithLabelValues(key.method, "miss").Inc()

	result, err := fetch()
	if err != nil {
		return result, err
	}
	// Empty results are retried on the next lookup.
	if !result.Empty() {
		c.cache.add(key, result)
	}
	return result, nil
}

// lru is a mutex-guarded least-recently-used map. The list front is the most
// recently used element.
type lru[K comparable, V any] struct {
	mu      sync.Mutex
	limit   int
	order   *list.List
	items   map[K]*list.Element
	onEvict func(K, V)
}

type lruItem[K comparable, V any] struct {
	key   K
	value V
}

func newLRU[K comparable, V any](limit int, onEvict func(K, V)) *lru[K, V] {
	return &lru[K, V]{
		limit:   max(limit, 1),
		order:   list.New(),
		items:   make(map[K]*list.Element),
		onEvict: onEvict,
	}
}

func (l *lru[K, V]) get(key K) (V, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	el, ok := l.items[key]
	if !ok {
		var zero V
		return zero, false
	}
	l.order.MoveToFront(el)
	return el.Value.(*lruItem[K, V]).value, true
}

func (l *lru[K, V]) add(key K, value V) {
	l.mu.Lock()
	var evicted *lruItem[K, V]
	if el, ok := l.items[key]; ok {
		el.Value.(*lruItem[K, V]).value = value
		l.order.MoveToFront(el)
	} else {
		l.items[key] = l.order.PushFront(&lruItem[K, V]{key: key, value: value})
		if l.order.Len() > l.limit {
			oldest := l.order.Back()
			evicted = l.order.Remove(oldest).(*lruItem[K, V])
			delete(l.items, evicted.key)
		}
	}
	l.mu.Unlock()

	if evicted != nil && l.onEvict != nil {
		l.onEvict(evicted.key, evicted.value)
	}
}

func (l *lru[K, V]) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.order.Len()
}
