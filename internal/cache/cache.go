// Package cache stores dashboard snapshots. It is advisory: callers treat
// any error as a miss and recompute.
package cache

import (
	"context"
	"fmt"
	"time"
)

type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	Incr(ctx context.Context, key string) (int64, error)
}

const (
	AdminDashboardKey = "dashboard:admin:stats:v2"
	PerformanceGenKey = "dashboard:performance:gen"
)

func AgentDashboardKey(agentID string) string {
	return fmt.Sprintf("dashboard:agent:%s:stats:v2", agentID)
}

func AgentStatsKey(agentID string) string {
	return fmt.Sprintf("dashboard:agent:%s:card:v2", agentID)
}

// PerformanceKey scopes tabular results to a generation so one INCR of
// PerformanceGenKey retires every cached table at once.
func PerformanceKey(gen int64, view, filters string) string {
	return fmt.Sprintf("dashboard:performance:%d:%s:%s", gen, view, filters)
}
