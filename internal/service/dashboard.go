package service

import (
	"context"
	"encoding/json"
	"math"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/botsdv/backend/internal/cache"
	"github.com/botsdv/backend/internal/errs"
	"github.com/botsdv/backend/internal/metrics"
	"github.com/botsdv/backend/internal/models"
	"github.com/botsdv/backend/internal/store"
)

const DefaultDashboardTTL = 300 * time.Second

// DashboardAggregator computes dashboard read models and caches each one
// under its scope key. The cache is advisory: a miss, a decode failure or a
// backend error all fall through to a fresh computation.
type DashboardAggregator struct {
	Store  store.Store
	Cache  cache.Cache
	TTL    time.Duration
	Logger zerolog.Logger
	Now    func() time.Time
}

type AdminToday struct {
	Received   int `json:"received"`
	Completed  int `json:"completed"`
	InProgress int `json:"in_progress"`
	Open       int `json:"open"`
}

type AdminMonth struct {
	Received     int     `json:"received"`
	Completed    int     `json:"completed"`
	AvgTime      float64 `json:"avg_time"`
	ActiveAgents int     `json:"active_agents"`
}

type AdminTotal struct {
	AllTickets  int `json:"all_tickets"`
	Completed   int `json:"completed"`
	TotalAgents int `json:"total_agents"`
}

type AdminDashboard struct {
	Today     AdminToday `json:"today"`
	ThisMonth AdminMonth `json:"this_month"`
	Total     AdminTotal `json:"total"`
}

type AgentToday struct {
	Received   int `json:"received"`
	Completed  int `json:"completed"`
	InProgress int `json:"in_progress"`
	Pending    int `json:"pending"`
}

type AgentMonth struct {
	Received  int     `json:"received"`
	Completed int     `json:"completed"`
	AvgTime   float64 `json:"avg_time"`
}

type AgentTotal struct {
	AllTickets int `json:"all_tickets"`
	Completed  int `json:"completed"`
}

type AgentDashboard struct {
	Today     AgentToday `json:"today"`
	ThisMonth AgentMonth `json:"this_month"`
	Total     AgentTotal `json:"total"`
}

type AgentStats struct {
	TotalTickets           int     `json:"total_tickets"`
	CompletedTickets       int     `json:"completed_tickets"`
	InProgressTickets      int     `json:"in_progress_tickets"`
	AvgCompletionTimeHours float64 `json:"avg_completion_time_hours"`
	CompletionRate         float64 `json:"completion_rate"`
	Rating                 float64 `json:"rating"`
}

// CanViewAgent reports whether actor may read agentID's numbers.
func CanViewAgent(actor Actor, agentID string) error {
	if actor.Role == models.RoleAdmin || (actor.Role == models.RoleAgent && actor.ID == agentID) {
		return nil
	}
	return errs.Permission("agents can only view their own statistics")
}

func (a *DashboardAggregator) AdminDashboard(ctx context.Context) (AdminDashboard, error) {
	return cached(ctx, a, cache.AdminDashboardKey, a.computeAdmin)
}

func (a *DashboardAggregator) AgentDashboard(ctx context.Context, agentID string) (AgentDashboard, error) {
	return cached(ctx, a, cache.AgentDashboardKey(agentID), func(ctx context.Context) (AgentDashboard, error) {
		return a.computeAgent(ctx, agentID)
	})
}

func (a *DashboardAggregator) AgentStats(ctx context.Context, agentID string) (AgentStats, error) {
	return cached(ctx, a, cache.AgentStatsKey(agentID), func(ctx context.Context) (AgentStats, error) {
		return a.computeAgentStats(ctx, agentID)
	})
}

func (a *DashboardAggregator) computeAdmin(ctx context.Context) (AdminDashboard, error) {
	tickets, err := a.Store.QueryTickets(ctx, store.TicketFilter{Limit: store.MaxScan})
	if err != nil {
		return AdminDashboard{}, err
	}
	agents, err := a.Store.ListUsers(ctx, store.UserFilter{Role: models.RoleAgent, Status: models.UserApproved})
	if err != nil {
		return AdminDashboard{}, err
	}

	now := a.now()
	dayStart, monthStart := startOfDay(now), startOfMonth(now)
	var out AdminDashboard
	var monthHours []float64
	monthAgents := make(map[string]struct{})

	for _, t := range tickets {
		if t.Status == models.StatusOpen {
			out.Today.Open++
		}
		out.Total.AllTickets++
		if t.Status == models.StatusCompleted {
			out.Total.Completed++
		}
		if !t.CreatedAt.Before(dayStart) {
			out.Today.Received++
			switch t.Status {
			case models.StatusCompleted:
				out.Today.Completed++
			case models.StatusInProgress:
				out.Today.InProgress++
			}
		}
		if !t.CreatedAt.Before(monthStart) {
			out.ThisMonth.Received++
			if t.Status == models.StatusCompleted && t.CompletedAt != nil {
				out.ThisMonth.Completed++
				monthHours = append(monthHours, t.ResolutionTime().Hours())
			}
			if t.AssignedAgent != nil {
				monthAgents[*t.AssignedAgent] = struct{}{}
			}
		}
	}
	out.ThisMonth.AvgTime = mean(monthHours)
	out.ThisMonth.ActiveAgents = len(monthAgents)
	out.Total.TotalAgents = len(agents)
	return out, nil
}

func (a *DashboardAggregator) computeAgent(ctx context.Context, agentID string) (AgentDashboard, error) {
	tickets, err := a.Store.QueryTickets(ctx, store.TicketFilter{AssignedAgent: agentID, Limit: store.MaxScan})
	if err != nil {
		return AgentDashboard{}, err
	}

	now := a.now()
	dayStart, monthStart := startOfDay(now), startOfMonth(now)
	var out AgentDashboard
	var monthHours []float64
	for _, t := range tickets {
		out.Total.AllTickets++
		if t.Status == models.StatusCompleted {
			out.Total.Completed++
		}
		if !t.CreatedAt.Before(dayStart) {
			out.Today.Received++
			switch t.Status {
			case models.StatusCompleted:
				out.Today.Completed++
			case models.StatusInProgress:
				out.Today.InProgress++
			case models.StatusPending:
				out.Today.Pending++
			}
		}
		if !t.CreatedAt.Before(monthStart) {
			out.ThisMonth.Received++
			if t.Status == models.StatusCompleted && t.CompletedAt != nil {
				out.ThisMonth.Completed++
				monthHours = append(monthHours, t.ResolutionTime().Hours())
			}
		}
	}
	out.ThisMonth.AvgTime = mean(monthHours)
	return out, nil
}

func (a *DashboardAggregator) computeAgentStats(ctx context.Context, agentID string) (AgentStats, error) {
	tickets, err := a.Store.QueryTickets(ctx, store.TicketFilter{AssignedAgent: agentID, Limit: store.MaxScan})
	if err != nil {
		return AgentStats{}, err
	}
	var out AgentStats
	var hours []float64
	for _, t := range tickets {
		out.TotalTickets++
		switch t.Status {
		case models.StatusCompleted:
			out.CompletedTickets++
			if t.CompletedAt != nil {
				hours = append(hours, t.ResolutionTime().Hours())
			}
		case models.StatusInProgress:
			out.InProgressTickets++
		}
	}
	out.AvgCompletionTimeHours = round1(mean(hours))
	out.CompletionRate = rate(out.CompletedTickets, out.TotalTickets)
	out.Rating = math.Min(5, round1(out.CompletionRate/20))
	return out, nil
}

// cached serves key from the cache or computes and stores it.
func cached[T any](ctx context.Context, a *DashboardAggregator, key string, compute func(context.Context) (T, error)) (T, error) {
	if a.Cache != nil {
		raw, ok, err := a.Cache.Get(ctx, key)
		switch {
		case err != nil:
			metrics.CacheLookups.WithLabelValues("error").Inc()
			a.Logger.Warn().Err(err).Str("key", key).Msg("dashboard cache read failed")
		case ok:
			var v T
			if err := json.Unmarshal(raw, &v); err == nil {
				metrics.CacheLookups.WithLabelValues("hit").Inc()
				return v, nil
			}
			a.Logger.Warn().Str("key", key).Msg("dropping undecodable cache entry")
		default:
			metrics.CacheLookups.WithLabelValues("miss").Inc()
		}
	}

	v, err := compute(ctx)
	if err != nil {
		return v, err
	}
	if a.Cache != nil {
		if raw, err := json.Marshal(v); err == nil {
			if err := a.Cache.Set(ctx, key, raw, a.ttl()); err != nil {
				a.Logger.Warn().Err(err).Str("key", key).Msg("dashboard cache write failed")
			}
		}
	}
	return v, nil
}

// performanceGen returns the current tabular cache generation, or -1 when
// the cache cannot be consulted.
func (a *DashboardAggregator) performanceGen(ctx context.Context) int64 {
	if a.Cache == nil {
		return -1
	}
	raw, ok, err := a.Cache.Get(ctx, cache.PerformanceGenKey)
	if err != nil {
		a.Logger.Warn().Err(err).Msg("performance generation read failed")
		return -1
	}
	if !ok {
		return 0
	}
	gen, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return -1
	}
	return gen
}

func (a *DashboardAggregator) now() time.Time {
	if a.Now != nil {
		return a.Now().UTC()
	}
	return time.Now().UTC()
}

func (a *DashboardAggregator) ttl() time.Duration {
	if a.TTL > 0 {
		return a.TTL
	}
	return DefaultDashboardTTL
}

func mean(v []float64) float64 {
	if len(v) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range v {
		sum += x
	}
	return sum / float64(len(v))
}

func rate(part, total int) float64 {
	if total == 0 {
		return 0
	}
	return round1(float64(part) / float64(total) * 100)
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
