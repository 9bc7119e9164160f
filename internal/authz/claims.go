package authz

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const claimsKeyPrefix = "authz:claims:"

// ClaimsCache stores resolved permission claims per session in Redis. An
// entry exists once resolution has run for the session, even when the
// resolved set is empty, which is what makes resolution one-shot for users
// holding no permissions.
type ClaimsCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewClaimsCache constructs a ClaimsCache. The TTL should not exceed the
// session lifetime.
func NewClaimsCache(client *redis.Client, ttl time.Duration) *ClaimsCache {
	return &ClaimsCache{client: client, ttl: ttl}
}

// Load fetches the cached permission set for a session. found is false on a
// cache miss.
func (c *ClaimsCache) Load(ctx context.Context, sessionID string) (PermissionSet, bool, error) {
	data, err := c.client.Get(ctx, claimsKeyPrefix+sessionID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, err
	}
	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		return nil, false, err
	}
	return NewPermissionSet(names...), true, nil
}

// Store persists the resolved permission set for a session.
func (c *ClaimsCache) Store(ctx context.Context, sessionID string, set PermissionSet) error {
	data, err := json.Marshal(set.Names())
	if err != nil {
		return err
	}
	return c.client.Set(ctx, claimsKeyPrefix+sessionID, data, c.ttl).Err()
}

// Invalidate drops cached claims for the given sessions so their next request
// re-resolves against current assignments.
func (c *ClaimsCache) Invalidate(ctx context.Context, sessionIDs ...string) error {
	if len(sessionIDs) == 0 {
		return nil
	}
	keys := make([]string, len(sessionIDs))
	for i, id := range sessionIDs {
		keys[i] = claimsKeyPrefix + id
	}
	return c.client.Del(ctx, keys...).Err()
}
