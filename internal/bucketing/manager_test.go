package bucketing

import (
	"testing"
	"time"

	"netwatch/internal/config"
)

func newTestManager() *Manager {
	cfg := &config.Config{}
	cfg.Bucketing.EventBuckets = 64
	return NewManager(cfg)
}

func TestGetEventBucketIsStable(t *testing.T) {
	m := newTestManager()

	first := m.GetEventBucket("node:42")
	for i := 0; i < 100; i++ {
		if got := m.GetEventBucket("node:42"); got != first {
			t.Fatalf("bucket changed between calls: %d != %d", got, first)
		}
	}
}

func TestGetEventBucketInRange(t *testing.T) {
	m := newTestManager()

	keys := []string{"a", "b", "node:1", "node:2", "some-longer-key"}
	for _, key := range keys {
		if bucket := m.GetEventBucket(key); bucket >= 64 {
			t.Errorf("bucket %d out of range for key %q", bucket, key)
		}
	}
}

func TestGetTimeBucketTruncates(t *testing.T) {
	m := newTestManager()

	base := time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC)
	within := base.Add(25 * time.Second)
	next := base.Add(61 * time.Second)

	if m.GetTimeBucket(base, time.Minute) != m.GetTimeBucket(within, time.Minute) {
		t.Fatal("timestamps in the same window should share a bucket")
	}
	if m.GetTimeBucket(base, time.Minute) == m.GetTimeBucket(next, time.Minute) {
		t.Fatal("timestamps in different windows should not share a bucket")
	}
}

func TestGetDateBucket(t *testing.T) {
	m := newTestManager()

	at := time.Date(2024, 3, 15, 23, 59, 0, 0, time.UTC)
	if got := m.GetDateBucket(at); got != "2024-03-15" {
		t.Fatalf("unexpected date bucket %q", got)
	}
}
