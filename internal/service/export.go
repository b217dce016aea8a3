package service

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/botsdv/backend/internal/models"
	"github.com/botsdv/backend/internal/store"
)

const exportTime = "2006-01-02 15:04:05"

var (
	ticketColumns = []string{
		"Ticket Number", "Status", "Category", "Subtype", "Description",
		"Assigned Agent", "Created At", "Completed At", "User Telegram",
	}
	performanceColumns = []string{
		"Ticket Number", "Agent", "Category", "Subtype", "Status",
		"Created At", "Completed At", "Resolution Hours", "Bucket", "Notes",
	}
)

// Exporter renders report data as CSV.
type Exporter struct {
	Store      store.Store
	Dashboards *DashboardAggregator
}

func (e *Exporter) Tickets(ctx context.Context, w io.Writer, f PerformanceFilter) error {
	tickets, err := e.Dashboards.FilteredTickets(ctx, f)
	if err != nil {
		return err
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(ticketColumns); err != nil {
		return err
	}
	for _, t := range tickets {
		record := []string{
			t.TicketNumber,
			string(t.Status),
			t.Category,
			t.Subtype,
			t.Description,
			agentLabel(t),
			t.CreatedAt.UTC().Format(exportTime),
			formatOptionalTime(t.CompletedAt),
			t.ReporterName,
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Performance writes one line per ticket with its resolution bucket. Notes
// are the staff comments on the ticket joined in posting order.
func (e *Exporter) Performance(ctx context.Context, w io.Writer, f PerformanceFilter) error {
	tickets, err := e.Dashboards.FilteredTickets(ctx, f)
	if err != nil {
		return err
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(performanceColumns); err != nil {
		return err
	}
	for _, t := range tickets {
		notes, err := e.staffNotes(ctx, t.ID)
		if err != nil {
			return err
		}
		hours, bucket := "", ""
		if t.Status == models.StatusCompleted && t.CompletedAt != nil {
			d := t.ResolutionTime()
			hours = fmt.Sprintf("%.2f", d.Hours())
			bucket = BucketName(d)
		}
		record := []string{
			t.TicketNumber,
			agentLabel(t),
			t.Category,
			t.Subtype,
			string(t.Status),
			t.CreatedAt.UTC().Format(exportTime),
			formatOptionalTime(t.CompletedAt),
			hours,
			bucket,
			notes,
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func (e *Exporter) staffNotes(ctx context.Context, ticketID string) (string, error) {
	comments, err := e.Store.ListComments(ctx, ticketID)
	if err != nil {
		return "", err
	}
	var notes []string
	for _, c := range comments {
		if c.Role.Staff() && strings.TrimSpace(c.Comment) != "" {
			notes = append(notes, c.Username+": "+c.Comment)
		}
	}
	return strings.Join(notes, " | "), nil
}

// ExportFilename builds a dated attachment name such as tickets_20260101.csv.
func ExportFilename(prefix string, now time.Time) string {
	return fmt.Sprintf("%s_%s.csv", prefix, now.UTC().Format("20060102"))
}

func formatOptionalTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(exportTime)
}
