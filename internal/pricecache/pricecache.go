// Package pricecache holds the latest mark price per instrument, fed by
// the Exchange Adapter's subscription callback (§4.2). It is a
// single-writer, multi-reader structure: exactly one goroutine (the
// subscription reader) calls Update; any number of readers may call Get
// concurrently.
package pricecache

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// Quote is the latest observed price for a symbol and when it was seen.
type Quote struct {
	Price decimal.Decimal
	At    time.Time
}

// Cache is the in-memory latest-price map.
type Cache struct {
	mu     sync.RWMutex
	quotes map[string]Quote
}

// New builds an empty Cache.
func New() *Cache {
	return &Cache{quotes: make(map[string]Quote)}
}

// Update records a fresh price for symbol. Called only by the adapter's
// subscription callback.
func (c *Cache) Update(symbol string, price decimal.Decimal, at time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.quotes[symbol] = Quote{Price: price, At: at}
}

// Get returns the latest known quote for symbol and whether one exists.
// Readers are responsible for applying a max-age check themselves (the
// Risk Evaluator does this explicitly per §4.4 point 1); Get itself never
// rejects a stale value.
func (c *Cache) Get(symbol string) (Quote, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	q, ok := c.quotes[symbol]
	return q, ok
}

// Fresh returns the latest quote for symbol only if it is no older than
// maxAge as of now; otherwise it reports unknown, matching §4.2's "report
// unknown for that instrument" behavior for stale reads.
func (c *Cache) Fresh(symbol string, now time.Time, maxAge time.Duration) (Quote, bool) {
	q, ok := c.Get(symbol)
	if !ok {
		return Quote{}, false
	}
	if now.Sub(q.At) > maxAge {
		return Quote{}, false
	}
	return q, true
}

// Symbols returns the set of instruments currently tracked.
func (c *Cache) Symbols() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.quotes))
	for s := range c.quotes {
		out = append(out, s)
	}
	return out
}
