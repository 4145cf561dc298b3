package eta

import (
	"fmt"
	"sync"
	"time"

	"github.com/example/taxi-dispatch/internal/geo"
	"github.com/example/taxi-dispatch/internal/models"
)

// Client is the interface used to estimate driver-to-pickup travel
// time.
type Client interface {
	EstimateSeconds(from, to models.Coord) (float64, error)
}

// EstimateSeconds is the naive fallback: straight-line distance over
// an assumed city speed.
func EstimateSeconds(from, to models.Coord, speedMps float64) float64 {
	if speedMps <= 0 {
		speedMps = 8.0 // ~28.8 km/h
	}
	d := geo.Haversine(from.Lat, from.Lon, to.Lat, to.Lon)
	return d / speedMps
}

// Cache is a small TTL cache for ETA lookups keyed by coordinate pair.
type Cache struct {
	mu    sync.RWMutex
	store map[string]cacheEntry
	ttl   time.Duration
}

type cacheEntry struct {
	v  float64
	ts time.Time
}

func NewCache(ttl time.Duration) *Cache {
	return &Cache{store: make(map[string]cacheEntry), ttl: ttl}
}

func keyFor(a, b models.Coord) string {
	return fmt.Sprintf("%.6f,%.6f->%.6f,%.6f", a.Lat, a.Lon, b.Lat, b.Lon)
}

func (c *Cache) Get(a, b models.Coord) (float64, bool) {
	k := keyFor(a, b)
	c.mu.RLock()
	e, ok := c.store[k]
	c.mu.RUnlock()
	if !ok {
		return 0, false
	}
	if time.Since(e.ts) > c.ttl {
		c.mu.Lock()
		delete(c.store, k)
		c.mu.Unlock()
		return 0, false
	}
	return e.v, true
}

func (c *Cache) Set(a, b models.Coord, v float64) {
	c.mu.Lock()
	c.store[keyFor(a, b)] = cacheEntry{v: v, ts: time.Now()}
	c.mu.Unlock()
}

// Estimator combines an optional routing client with the cache and
// naive fallback.
type Estimator struct {
	Client          Client
	Cache           *Cache
	DefaultSpeedMps float64
}

func (e *Estimator) Estimate(from, to models.Coord) float64 {
	if e.Cache != nil {
		if v, ok := e.Cache.Get(from, to); ok {
			return v
		}
	}
	if e.Client != nil {
		if v, err := e.Client.EstimateSeconds(from, to); err == nil {
			if e.Cache != nil {
				e.Cache.Set(from, to, v)
			}
			return v
		}
	}
	return EstimateSeconds(from, to, e.DefaultSpeedMps)
}
