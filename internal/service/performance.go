package service

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/botsdv/backend/internal/cache"
	"github.com/botsdv/backend/internal/errs"
	"github.com/botsdv/backend/internal/models"
	"github.com/botsdv/backend/internal/store"
)

const (
	unassignedLabel = "Unassigned"
	otherSubtype    = "OTHER"
)

// Subtypes are the product subtypes reported as breakdown columns.
var Subtypes = []string{"INTEGRASI", "PUSH BIMA", "RECONFIG", "REPLACE ONT", "TROUBLESHOOT"}

// PerformanceFilter narrows tabular reports. Zero values mean "all".
type PerformanceFilter struct {
	Year     int
	Month    int
	Category string
	AgentID  string
}

// ParsePerformanceFilter reads raw query values, where "" and "all" both
// disable a filter.
func ParsePerformanceFilter(year, month, category, agentID string) (PerformanceFilter, error) {
	var f PerformanceFilter
	if v := normalizeAll(year); v != "" {
		y, err := strconv.Atoi(v)
		if err != nil || y < 1970 || y > 9999 {
			return f, errs.Validation("invalid year")
		}
		f.Year = y
	}
	if v := normalizeAll(month); v != "" {
		m, err := strconv.Atoi(v)
		if err != nil || m < 1 || m > 12 {
			return f, errs.Validation("invalid month")
		}
		f.Month = m
	}
	f.Category = normalizeAll(category)
	f.AgentID = normalizeAll(agentID)
	return f, nil
}

func normalizeAll(v string) string {
	v = strings.TrimSpace(v)
	if strings.EqualFold(v, "all") {
		return ""
	}
	return v
}

func (f PerformanceFilter) key() string {
	return fmt.Sprintf("y=%d:m=%d:c=%s:a=%s", f.Year, f.Month, f.Category, f.AgentID)
}

// storeFilter maps the date filters onto a created_at range. A month without
// a year applies to every year and is filtered in memory.
func (f PerformanceFilter) storeFilter() store.TicketFilter {
	tf := store.TicketFilter{Category: f.Category, AssignedAgent: f.AgentID, Limit: store.MaxScan}
	switch {
	case f.Year > 0 && f.Month > 0:
		tf.CreatedFrom = time.Date(f.Year, time.Month(f.Month), 1, 0, 0, 0, 0, time.UTC)
		tf.CreatedBefore = tf.CreatedFrom.AddDate(0, 1, 0)
	case f.Year > 0:
		tf.CreatedFrom = time.Date(f.Year, time.January, 1, 0, 0, 0, 0, time.UTC)
		tf.CreatedBefore = tf.CreatedFrom.AddDate(1, 0, 0)
	}
	return tf
}

func (f PerformanceFilter) matches(t models.Ticket) bool {
	return f.Month == 0 || int(t.CreatedAt.UTC().Month()) == f.Month
}

type Buckets struct {
	Under1Hr     int `json:"under_1hr"`
	Between1And2 int `json:"between_1_2hr"`
	Between2And3 int `json:"between_2_3hr"`
	Over3Hr      int `json:"over_3hr"`
}

// BucketName classifies a resolution time. One hour exactly is [1,2) and
// three hours exactly is still [2,3].
func BucketName(d time.Duration) string {
	h := d.Hours()
	switch {
	case h < 1:
		return "under_1hr"
	case h < 2:
		return "between_1_2hr"
	case h <= 3:
		return "between_2_3hr"
	default:
		return "over_3hr"
	}
}

func (b *Buckets) add(d time.Duration) {
	switch BucketName(d) {
	case "under_1hr":
		b.Under1Hr++
	case "between_1_2hr":
		b.Between1And2++
	case "between_2_3hr":
		b.Between2And3++
	default:
		b.Over3Hr++
	}
}

type PerformanceRow struct {
	Agent          string  `json:"agent"`
	Total          int     `json:"total"`
	Completed      int     `json:"completed"`
	InProgress     int     `json:"in_progress"`
	Pending        int     `json:"pending"`
	Open           int     `json:"open"`
	CompletionRate float64 `json:"completion_rate"`
	Buckets
}

type PerformanceTable struct {
	Rows    []PerformanceRow `json:"rows"`
	Summary PerformanceRow   `json:"summary"`
}

type BreakdownRow struct {
	Label    string         `json:"label"`
	Subtypes map[string]int `json:"subtypes"`
	Total    int            `json:"total"`
}

type Breakdown struct {
	Subtypes   []string       `json:"subtypes"`
	Rows       []BreakdownRow `json:"rows"`
	GrandTotal int            `json:"grand_total"`
}

func (a *DashboardAggregator) PerformanceTable(ctx context.Context, f PerformanceFilter) (PerformanceTable, error) {
	return performanceCached(ctx, a, "table", f, func(ctx context.Context) (PerformanceTable, error) {
		tickets, err := a.filteredTickets(ctx, f)
		if err != nil {
			return PerformanceTable{}, err
		}
		return BuildPerformanceTable(tickets), nil
	})
}

func (a *DashboardAggregator) ByAgent(ctx context.Context, f PerformanceFilter) (Breakdown, error) {
	return performanceCached(ctx, a, "by-agent", f, func(ctx context.Context) (Breakdown, error) {
		tickets, err := a.filteredTickets(ctx, f)
		if err != nil {
			return Breakdown{}, err
		}
		return buildBreakdown(tickets, agentLabel), nil
	})
}

func (a *DashboardAggregator) ByProduct(ctx context.Context, f PerformanceFilter) (Breakdown, error) {
	return performanceCached(ctx, a, "by-product", f, func(ctx context.Context) (Breakdown, error) {
		tickets, err := a.filteredTickets(ctx, f)
		if err != nil {
			return Breakdown{}, err
		}
		return buildBreakdown(tickets, func(t models.Ticket) string { return t.Category }), nil
	})
}

// FilteredTickets returns the tickets a performance report covers.
func (a *DashboardAggregator) FilteredTickets(ctx context.Context, f PerformanceFilter) ([]models.Ticket, error) {
	return a.filteredTickets(ctx, f)
}

func (a *DashboardAggregator) filteredTickets(ctx context.Context, f PerformanceFilter) ([]models.Ticket, error) {
	all, err := a.Store.QueryTickets(ctx, f.storeFilter())
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, t := range all {
		if f.matches(t) {
			out = append(out, t)
		}
	}
	return out, nil
}

// performanceCached bypasses the cache when the generation is unknown, since
// an unreadable counter could otherwise serve a retired entry.
func performanceCached[T any](ctx context.Context, a *DashboardAggregator, view string, f PerformanceFilter, compute func(context.Context) (T, error)) (T, error) {
	gen := a.performanceGen(ctx)
	if gen < 0 {
		return compute(ctx)
	}
	return cached(ctx, a, cache.PerformanceKey(gen, view, f.key()), compute)
}

// BuildPerformanceTable groups tickets per holder. Rows are sorted by total
// descending, then by name.
func BuildPerformanceTable(tickets []models.Ticket) PerformanceTable {
	rows := make(map[string]*PerformanceRow)
	summary := PerformanceRow{Agent: "Total"}
	for _, t := range tickets {
		label := agentLabel(t)
		row, ok := rows[label]
		if !ok {
			row = &PerformanceRow{Agent: label}
			rows[label] = row
		}
		row.count(t)
		summary.count(t)
	}

	out := PerformanceTable{Rows: make([]PerformanceRow, 0, len(rows))}
	for _, row := range rows {
		row.CompletionRate = rate(row.Completed, row.Total)
		out.Rows = append(out.Rows, *row)
	}
	sort.Slice(out.Rows, func(i, j int) bool {
		if out.Rows[i].Total != out.Rows[j].Total {
			return out.Rows[i].Total > out.Rows[j].Total
		}
		return out.Rows[i].Agent < out.Rows[j].Agent
	})
	summary.CompletionRate = rate(summary.Completed, summary.Total)
	out.Summary = summary
	return out
}

func (r *PerformanceRow) count(t models.Ticket) {
	r.Total++
	switch t.Status {
	case models.StatusCompleted:
		r.Completed++
		if t.CompletedAt != nil {
			r.add(t.ResolutionTime())
		}
	case models.StatusInProgress:
		r.InProgress++
	case models.StatusPending:
		r.Pending++
	case models.StatusOpen:
		r.Open++
	}
}

func buildBreakdown(tickets []models.Ticket, label func(models.Ticket) string) Breakdown {
	rows := make(map[string]*BreakdownRow)
	for _, t := range tickets {
		l := label(t)
		if l == "" {
			l = unassignedLabel
		}
		row, ok := rows[l]
		if !ok {
			row = &BreakdownRow{Label: l, Subtypes: make(map[string]int, len(Subtypes))}
			for _, st := range Subtypes {
				row.Subtypes[st] = 0
			}
			rows[l] = row
		}
		row.Subtypes[subtypeColumn(t.Subtype)]++
		row.Total++
	}

	out := Breakdown{Subtypes: append(append([]string(nil), Subtypes...), otherSubtype), Rows: make([]BreakdownRow, 0, len(rows))}
	for _, row := range rows {
		out.Rows = append(out.Rows, *row)
		out.GrandTotal += row.Total
	}
	sort.Slice(out.Rows, func(i, j int) bool {
		if out.Rows[i].Total != out.Rows[j].Total {
			return out.Rows[i].Total > out.Rows[j].Total
		}
		return out.Rows[i].Label < out.Rows[j].Label
	})
	return out
}

func subtypeColumn(subtype string) string {
	s := strings.ToUpper(strings.TrimSpace(subtype))
	for _, known := range Subtypes {
		if s == known {
			return known
		}
	}
	return otherSubtype
}

func agentLabel(t models.Ticket) string {
	if name := t.HolderName(); name != "" {
		return name
	}
	return unassignedLabel
}
