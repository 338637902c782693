package message

import (
	"sync"
	"time"
)

// Dedup prevents duplicate message processing using a TTL cache.
// Platforms redeliver on reconnect; batching the same message twice would
// produce a duplicated turn downstream.
type Dedup struct {
	mu    sync.Mutex
	cache map[string]time.Time
	ttl   time.Duration
	stop  chan struct{}
}

func NewDedup(ttl time.Duration) *Dedup {
	d := &Dedup{
		cache: make(map[string]time.Time),
		ttl:   ttl,
		stop:  make(chan struct{}),
	}
	go d.cleanupLoop()
	return d
}

// Seen returns true if this message ID was seen within the TTL.
// If not, records it and returns false.
func (d *Dedup) Seen(key string) bool {
	if key == "" {
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	if at, exists := d.cache[key]; exists && time.Since(at) < d.ttl {
		return true
	}
	d.cache[key] = time.Now()
	return false
}

// Close stops the background cleanup loop.
func (d *Dedup) Close() {
	close(d.stop)
}

func (d *Dedup) cleanupLoop() {
	ticker := time.NewTicker(d.ttl)
	defer ticker.Stop()
	for {
		select {
		case <-d.stop:
			return
		case <-ticker.C:
			d.mu.Lock()
			cutoff := time.Now().Add(-d.ttl)
			for k, t := range d.cache {
				if t.Before(cutoff) {
					delete(d.cache, k)
				}
			}
			d.mu.Unlock()
		}
	}
}
