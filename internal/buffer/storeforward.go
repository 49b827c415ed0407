// Package buffer holds encoded Sparkplug payloads that could not be published
// so they can be forwarded once the broker is reachable again.
package buffer

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	storeForwardSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sparkplug_edge_store_forward_size",
		Help: "Current number of payloads held for store and forward",
	})

	storeForwardBytes = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sparkplug_edge_store_forward_bytes",
		Help: "Current total payload bytes held for store and forward",
	})

	storeForwardEvictionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sparkplug_edge_store_forward_evictions_total",
		Help: "Total payloads evicted from the store and forward queue when full",
	})

	storeForwardDrainTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sparkplug_edge_store_forward_drain_total",
		Help: "Total payloads forwarded from the store and forward queue",
	})

	storeForwardDrainErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sparkplug_edge_store_forward_drain_errors_total",
		Help: "Total store and forward drain attempts that failed to publish",
	})
)

func init() {
	prometheus.MustRegister(storeForwardSize)
	prometheus.MustRegister(storeForwardBytes)
	prometheus.MustRegister(storeForwardEvictionsTotal)
	prometheus.MustRegister(storeForwardDrainTotal)
	prometheus.MustRegister(storeForwardDrainErrorsTotal)

	storeForwardSize.Set(0)
	storeForwardBytes.Set(0)
	storeForwardEvictionsTotal.Add(0)
	storeForwardDrainTotal.Add(0)
	storeForwardDrainErrorsTotal.Add(0)
}

// Entry is one encoded payload and the topic it was meant for.
type Entry struct {
	Topic string
	Data  []byte

	id uint64
}

func (e Entry) size() int64 {
	return int64(len(e.Topic) + len(e.Data))
}

// Config bounds a Queue.
type Config struct {
	MaxEntries int
	MaxBytes   int64
}

// DefaultConfig returns the default queue bounds.
func DefaultConfig() Config {
	return Config{MaxEntries: 1000, MaxBytes: 4 * 1024 * 1024}
}

// Queue is a FIFO bounded by both entry count and total bytes. When full,
// the oldest entries are evicted to make room.
type Queue struct {
	mu       sync.Mutex
	entries  []Entry
	bytes    int64
	nextID   uint64
	maxSize  int
	maxBytes int64
}

// NewQueue creates a store-and-forward queue. Non-positive bounds take the
// defaults.
func NewQueue(cfg Config) *Queue {
	def := DefaultConfig()
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = def.MaxEntries
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = def.MaxBytes
	}
	return &Queue{
		maxSize:  cfg.MaxEntries,
		maxBytes: cfg.MaxBytes,
	}
}

// Push copies data and appends it, evicting the oldest entries as needed.
// It fails only if the single entry exceeds the byte bound.
func (q *Queue) Push(topic string, data []byte) error {
	e := Entry{Topic: topic, Data: append([]byte(nil), data...)}
	entrySize := e.size()
	if entrySize > q.maxBytes {
		return fmt.Errorf("entry size %d exceeds max queue bytes %d", entrySize, q.maxBytes)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.entries) >= q.maxSize {
		q.evictOldest()
	}
	for q.bytes+entrySize > q.maxBytes && len(q.entries) > 0 {
		q.evictOldest()
	}

	q.nextID++
	e.id = q.nextID
	q.entries = append(q.entries, e)
	q.bytes += entrySize
	q.updateGauges()
	return nil
}

// Peek returns the oldest entry without removing it.
func (q *Queue) Peek() (Entry, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.entries) == 0 {
		return Entry{}, false
	}
	return q.entries[0], true
}

// Pop removes and returns the oldest entry.
func (q *Queue) Pop() (Entry, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.entries) == 0 {
		return Entry{}, false
	}
	e := q.removeOldest()
	q.updateGauges()
	return e, true
}

// Drain publishes queued entries oldest first and stops at the first error,
// leaving that entry at the head. It returns the number forwarded.
func (q *Queue) Drain(ctx context.Context, publish func(context.Context, Entry) error) (int, error) {
	n := 0
	for {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		e, ok := q.Peek()
		if !ok {
			return n, nil
		}
		if err := publish(ctx, e); err != nil {
			storeForwardDrainErrorsTotal.Inc()
			return n, err
		}
		q.mu.Lock()
		// a concurrent Push may have evicted e already
		if len(q.entries) > 0 && q.entries[0].id == e.id {
			q.removeOldest()
			q.updateGauges()
		}
		q.mu.Unlock()
		storeForwardDrainTotal.Inc()
		n++
	}
}

// Len returns the current number of entries.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Size returns the current total bytes.
func (q *Queue) Size() int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.bytes
}

// removeOldest must be called with q.mu held and a non-empty queue.
func (q *Queue) removeOldest() Entry {
	e := q.entries[0]
	q.entries[0] = Entry{}
	q.entries = q.entries[1:]
	q.bytes -= e.size()
	if q.bytes < 0 {
		q.bytes = 0
	}
	q.maybeCompact()
	return e
}

func (q *Queue) evictOldest() {
	if len(q.entries) == 0 {
		return
	}
	q.removeOldest()
	storeForwardEvictionsTotal.Inc()
}

// maybeCompact must be called with q.mu held.
func (q *Queue) maybeCompact() {
	if cap(q.entries) > 256 && cap(q.entries) > len(q.entries)+64 {
		compacted := make([]Entry, len(q.entries))
		copy(compacted, q.entries)
		q.entries = compacted
	}
}

func (q *Queue) updateGauges() {
	storeForwardSize.Set(float64(len(q.entries)))
	storeForwardBytes.Set(float64(q.bytes))
}
