package services

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const dedupTTL = 24 * time.Hour

// DedupIndex is the fast-path duplicate absorber: a bounded in-process
// recently-seen set backed by a redis SET NX marker shared across replicas.
// Both layers are liveness optimizations only. Durable correctness comes
// from the processed_events unique constraint and the transaction status
// guard, never from this cache.
type DedupIndex struct {
	mu       sync.Mutex
	seen     map[string]int64
	capacity int
	seq      int64

	rdb *redis.Client
	log *zap.SugaredLogger
}

func NewDedupIndex(rdb *redis.Client, capacity int, log *zap.SugaredLogger) *DedupIndex {
	if capacity <= 0 {
		capacity = 2000
	}
	return &DedupIndex{
		seen:     make(map[string]int64, capacity),
		capacity: capacity,
		rdb:      rdb,
		log:      log,
	}
}

// Seen reports whether the key was already marked, without marking it.
// Redis failures degrade to the local set; the caller still holds the
// durable guard downstream.
func (d *DedupIndex) Seen(ctx context.Context, key string) bool {
	d.mu.Lock()
	_, ok := d.seen[key]
	d.mu.Unlock()
	if ok {
		return true
	}
	if d.rdb != nil {
		n, err := d.rdb.Exists(ctx, "dedup:"+key).Result()
		if err != nil {
			d.log.Warnw("dedup redis unavailable, using local set only", "error", err)
			return false
		}
		return n > 0
	}
	return false
}

// Mark records a key once its event has been carried to a terminal
// outcome. Marking is deliberately separate from Seen: a key must never
// enter the cache before the outcome is committed, or a crash would turn
// the next genuine delivery into a false duplicate.
func (d *DedupIndex) Mark(ctx context.Context, key string) {
	d.markLocal(key)
	if d.rdb != nil {
		if err := d.rdb.Set(ctx, "dedup:"+key, 1, dedupTTL).Err(); err != nil {
			d.log.Warnw("dedup redis unavailable, using local set only", "error", err)
		}
	}
}

func (d *DedupIndex) markLocal(key string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.seen[key]; ok {
		return
	}

	// Cap growth: once over capacity, drop the older half by insertion
	// order.
	if len(d.seen) >= d.capacity {
		cutoff := d.seq - int64(d.capacity/2)
		for k, s := range d.seen {
			if s < cutoff {
				delete(d.seen, k)
			}
		}
	}

	d.seq++
	d.seen[key] = d.seq
}

// Len returns the current size of the local set.
func (d *DedupIndex) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}
