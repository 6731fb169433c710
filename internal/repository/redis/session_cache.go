package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"netwatch/internal/client"
	"netwatch/internal/model"
	"netwatch/internal/util"
)

const sessionDataPrefix = "session_data:"

// ErrSessionNotFound is returned when a session ID has no backing entry,
// either because it never existed or because it expired.
var ErrSessionNotFound = errors.New("session not found")

// SessionCache stores server-side sessions keyed by opaque session IDs.
type SessionCache struct {
	client *client.RedisClient
	ttl    time.Duration
}

func NewSessionCache(client *client.RedisClient, ttl time.Duration) *SessionCache {
	return &SessionCache{client: client, ttl: ttl}
}

// Create stores the identity under a fresh session ID and returns the ID.
func (c *SessionCache) Create(ctx context.Context, identity *model.Identity) (string, error) {
	sessionID := uuid.New().String()

	payload, err := json.Marshal(identity)
	if err != nil {
		return "", fmt.Errorf("failed to marshal session: %w", err)
	}

	key := sessionDataPrefix + sessionID
	if err := c.client.Set(ctx, key, payload, c.ttl); err != nil {
		util.Error("Failed to store session",
			zap.Int64("user_id", identity.UserID),
			zap.Error(err))
		return "", fmt.Errorf("failed to store session: %w", err)
	}

	util.Debug("Session created",
		zap.Int64("user_id", identity.UserID),
		zap.Duration("ttl", c.ttl))
	return sessionID, nil
}

// Get resolves a session ID to the identity it was created with.
func (c *SessionCache) Get(ctx context.Context, sessionID string) (*model.Identity, error) {
	key := sessionDataPrefix + sessionID

	payload, err := c.client.Get(ctx, key)
	if err != nil {
		if errors.Is(err, client.ErrKeyNotFound) {
			return nil, ErrSessionNotFound
		}
		util.Error("Failed to get session", zap.Error(err))
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	identity := &model.Identity{}
	if err := json.Unmarshal([]byte(payload), identity); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return identity, nil
}

// Delete removes a session. Deleting a missing session is not an error.
func (c *SessionCache) Delete(ctx context.Context, sessionID string) error {
	if err := c.client.Del(ctx, sessionDataPrefix+sessionID); err != nil {
		util.Error("Failed to delete session", zap.Error(err))
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}
