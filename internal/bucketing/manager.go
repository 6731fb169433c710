package bucketing

import (
	"fmt"
	"hash"
	"sync"
	"time"

	"github.com/spaolacci/murmur3"

	"netwatch/internal/config"
)

// Manager assigns stable bucket numbers to keys. Rate-limit counters and
// audit events are spread across buckets so no single Redis key or index
// shard becomes hot.
type Manager struct {
	eventBuckets uint32
	hasherPool   sync.Pool
}

func NewManager(cfg *config.Config) *Manager {
	return &Manager{
		eventBuckets: uint32(cfg.Bucketing.EventBuckets),
		hasherPool: sync.Pool{
			New: func() interface{} {
				return murmur3.New32()
			},
		},
	}
}

// GetEventBucket hashes a key into one of the configured event buckets.
func (m *Manager) GetEventBucket(key string) uint32 {
	h := m.hasherPool.Get().(hash.Hash32)
	defer m.hasherPool.Put(h)

	h.Reset()
	h.Write([]byte(key))
	return h.Sum32() % m.eventBuckets
}

// GetTimeBucket truncates t to the window and formats it as a counter key
// suffix. Fixed-window rate limiting uses this to roll counters over.
func (m *Manager) GetTimeBucket(t time.Time, window time.Duration) string {
	return fmt.Sprintf("%d", t.Truncate(window).Unix())
}

// GetDateBucket returns the UTC day of t, used to suffix audit indices.
func (m *Manager) GetDateBucket(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}
