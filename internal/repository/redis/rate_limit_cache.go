package redis

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"netwatch/internal/bucketing"
	"netwatch/internal/client"
	"netwatch/internal/util"
)

const ingestRatePrefix = "rate_limit:ingest:"

// RateLimitCache implements fixed-window counters for the ingestion endpoint.
type RateLimitCache struct {
	client  *client.RedisClient
	buckets *bucketing.Manager
}

func NewRateLimitCache(client *client.RedisClient, buckets *bucketing.Manager) *RateLimitCache {
	return &RateLimitCache{client: client, buckets: buckets}
}

// AllowIngest increments the per-node counter for the current window and
// reports whether the request is within the limit. On Redis failure the
// request is allowed; dropping telemetry over a cache outage is worse than
// briefly admitting extra load.
func (c *RateLimitCache) AllowIngest(ctx context.Context, nodeID int64, limit int, window time.Duration) (bool, error) {
	nodeKey := fmt.Sprintf("%d", nodeID)
	key := fmt.Sprintf("%s%d:%s:%s",
		ingestRatePrefix,
		c.buckets.GetEventBucket(nodeKey),
		nodeKey,
		c.buckets.GetTimeBucket(time.Now(), window))

	count, err := c.client.IncrWithExpire(ctx, key, window)
	if err != nil {
		util.Warn("Rate limit counter unavailable, allowing request",
			zap.Int64("node_id", nodeID),
			zap.Error(err))
		return true, err
	}

	if count > int64(limit) {
		util.Debug("Ingest rate limit exceeded",
			zap.Int64("node_id", nodeID),
			zap.Int64("count", count),
			zap.Int("limit", limit))
		return false, nil
	}
	return true, nil
}
