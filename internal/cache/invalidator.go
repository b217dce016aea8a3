package cache

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/botsdv/backend/internal/metrics"
)

// Invalidator drops the dashboard snapshots a ticket mutation can affect.
// Failures are logged and swallowed; the TTL bounds any staleness left behind.
type Invalidator struct {
	Cache  Cache
	Logger zerolog.Logger
}

// Invalidate removes the admin snapshot, the snapshots of every non-empty
// agent id given (typically the previous and the new holder) and bumps the
// performance table generation.
func (i *Invalidator) Invalidate(ctx context.Context, agentIDs ...string) {
	if i == nil || i.Cache == nil {
		return
	}
	keys := []string{AdminDashboardKey}
	seen := make(map[string]struct{}, len(agentIDs))
	for _, id := range agentIDs {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		keys = append(keys, AgentDashboardKey(id), AgentStatsKey(id))
	}

	metrics.CacheInvalidations.Inc()
	if err := i.Cache.Delete(ctx, keys...); err != nil {
		i.Logger.Warn().Err(err).Strs("keys", keys).Msg("cache invalidation failed")
	}
	if _, err := i.Cache.Incr(ctx, PerformanceGenKey); err != nil {
		i.Logger.Warn().Err(err).Msg("performance cache generation bump failed")
	}
}
