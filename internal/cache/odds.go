package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/xtrntr/parimut/internal/models"

	"github.com/redis/go-redis/v9"
)

// OddsCache keeps short-lived odds snapshots in redis to spare the pool
// recomputation on hot read paths. It is an optimization only: a miss or a
// redis error falls through to postgres.
type OddsCache struct {
	R   *redis.Client
	TTL time.Duration
}

func New(r *redis.Client, ttl time.Duration) *OddsCache {
	return &OddsCache{R: r, TTL: ttl}
}

func key(eventID int) string { return fmt.Sprintf("odds:event:%d", eventID) }

// Get returns the cached odds view, or found=false on miss or error.
func (c *OddsCache) Get(ctx context.Context, eventID int) (*models.OddsView, bool) {
	b, err := c.R.Get(ctx, key(eventID)).Bytes()
	if err != nil {
		return nil, false
	}
	var view models.OddsView
	if err := json.Unmarshal(b, &view); err != nil {
		return nil, false
	}
	return &view, true
}

// Set stores an odds view under the event key with the configured TTL.
func (c *OddsCache) Set(ctx context.Context, view *models.OddsView) {
	b, err := json.Marshal(view)
	if err != nil {
		return
	}
	_ = c.R.Set(ctx, key(view.EventID), b, c.TTL).Err()
}

// Invalidate drops the cached view after a stake or settlement commits.
func (c *OddsCache) Invalidate(ctx context.Context, eventID int) {
	_ = c.R.Del(ctx, key(eventID)).Err()
}
