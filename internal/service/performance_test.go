package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"testing"
	"time"

	"github.com/botsdv/backend/internal/errs"
	"github.com/botsdv/backend/internal/models"
	"github.com/botsdv/backend/internal/store"
)

func TestBucketBoundaries(t *testing.T) {
	cases := []struct {
		d    time.Duration
		want string
	}{
		{59 * time.Minute, "under_1hr"},
		{time.Hour, "between_1_2hr"},
		{2*time.Hour - time.Second, "between_1_2hr"},
		{2 * time.Hour, "between_2_3hr"},
		{3 * time.Hour, "between_2_3hr"},
		{3*time.Hour + time.Second, "over_3hr"},
	}
	for _, tc := range cases {
		if got := BucketName(tc.d); got != tc.want {
			t.Errorf("BucketName(%s) = %s, want %s", tc.d, got, tc.want)
		}
	}
}

func TestParsePerformanceFilter(t *testing.T) {
	f, err := ParsePerformanceFilter("2026", "all", "All", "")
	if err != nil {
		t.Fatal(err)
	}
	if f != (PerformanceFilter{Year: 2026}) {
		t.Fatalf("unexpected filter: %+v", f)
	}
	if _, err := ParsePerformanceFilter("", "13", "", ""); !errors.Is(err, errs.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := ParsePerformanceFilter("abc", "", "", ""); !errors.Is(err, errs.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestPerformanceTable(t *testing.T) {
	mem := store.NewMemory()
	seedTicket(t, mem, "1", models.StatusCompleted, "a1", fixedNow, 30*time.Minute)
	seedTicket(t, mem, "2", models.StatusCompleted, "a1", fixedNow, time.Hour)
	seedTicket(t, mem, "3", models.StatusInProgress, "a1", fixedNow, 0)
	seedTicket(t, mem, "4", models.StatusCompleted, "a2", fixedNow, 3*time.Hour)
	seedTicket(t, mem, "5", models.StatusOpen, "", fixedNow, 0)

	table, err := newAggregator(mem, nil).PerformanceTable(context.Background(), PerformanceFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(table.Rows) != 3 {
		t.Fatalf("expected 3 rows, got %+v", table.Rows)
	}
	top := table.Rows[0]
	if top.Agent != "name-a1" || top.Total != 3 || top.Completed != 2 || top.InProgress != 1 || top.Under1Hr != 1 || top.Between1And2 != 1 {
		t.Fatalf("unexpected top row: %+v", top)
	}
	if top.CompletionRate != 66.7 {
		t.Fatalf("completion rate = %v", top.CompletionRate)
	}
	if table.Rows[1].Agent != "Unassigned" && table.Rows[2].Agent != "Unassigned" {
		t.Fatalf("missing Unassigned row: %+v", table.Rows)
	}
	s := table.Summary
	if s.Total != 5 || s.Completed != 3 || s.Between2And3 != 1 || s.Open != 1 {
		t.Fatalf("unexpected summary: %+v", s)
	}
}

func TestPerformanceFilterByMonth(t *testing.T) {
	mem := store.NewMemory()
	seedTicket(t, mem, "1", models.StatusOpen, "", fixedNow, 0)
	seedTicket(t, mem, "2", models.StatusOpen, "", fixedNow.AddDate(0, -1, 0), 0)
	seedTicket(t, mem, "3", models.StatusOpen, "", fixedNow.AddDate(-1, 0, 0), 0)
	agg := newAggregator(mem, nil)
	ctx := context.Background()

	got, err := agg.FilteredTickets(ctx, PerformanceFilter{Year: 2026, Month: 3})
	if err != nil || len(got) != 1 {
		t.Fatalf("year+month: %v %d", err, len(got))
	}
	got, err = agg.FilteredTickets(ctx, PerformanceFilter{Month: 3})
	if err != nil || len(got) != 2 {
		t.Fatalf("month across years: %v %d", err, len(got))
	}
}

func TestBreakdowns(t *testing.T) {
	mem := store.NewMemory()
	seedTicket(t, mem, "1", models.StatusOpen, "a1", fixedNow, 0)
	seedTicket(t, mem, "2", models.StatusOpen, "a1", fixedNow, 0)
	seedTicket(t, mem, "3", models.StatusOpen, "", fixedNow, 0)
	agg := newAggregator(mem, nil)
	ctx := context.Background()

	byAgent, err := agg.ByAgent(ctx, PerformanceFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if byAgent.GrandTotal != 3 || len(byAgent.Rows) != 2 || byAgent.Rows[0].Label != "name-a1" || byAgent.Rows[0].Subtypes["RECONFIG"] != 2 {
		t.Fatalf("unexpected by-agent breakdown: %+v", byAgent)
	}
	byProduct, err := agg.ByProduct(ctx, PerformanceFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(byProduct.Rows) != 1 || byProduct.Rows[0].Label != "Provisioning" || byProduct.Rows[0].Total != 3 {
		t.Fatalf("unexpected by-product breakdown: %+v", byProduct)
	}
}

func TestExportCSV(t *testing.T) {
	mem := store.NewMemory()
	seedTicket(t, mem, "1", models.StatusCompleted, "a1", fixedNow, 90*time.Minute)
	ctx := context.Background()
	if err := mem.InsertComment(ctx, models.Comment{ID: "c1", TicketID: "1", Username: "Alice", Role: models.RoleAgent, Comment: "reboot ONT", Timestamp: fixedNow}); err != nil {
		t.Fatal(err)
	}
	ex := &Exporter{Store: mem, Dashboards: newAggregator(mem, nil)}

	var buf bytes.Buffer
	if err := ex.Performance(ctx, &buf, PerformanceFilter{}); err != nil {
		t.Fatalf("performance export: %v", err)
	}
	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 2 {
		t.Fatalf("expected header and one row, got %d", len(records))
	}
	row := records[1]
	if row[7] != "1.50" || row[8] != "between_1_2hr" || row[9] != "Alice: reboot ONT" {
		t.Fatalf("unexpected row: %q", row)
	}

	buf.Reset()
	if err := ex.Tickets(ctx, &buf, PerformanceFilter{}); err != nil {
		t.Fatalf("tickets export: %v", err)
	}
	records, err = csv.NewReader(&buf).ReadAll()
	if err != nil || len(records) != 2 || records[1][0] != "INC1" {
		t.Fatalf("unexpected tickets export: %v %q", err, records)
	}

	if got := ExportFilename("tickets", fixedNow); got != "tickets_20260315.csv" {
		t.Fatalf("filename = %s", got)
	}
}
