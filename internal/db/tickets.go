package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/botsdv/backend/internal/errs"
	"github.com/botsdv/backend/internal/models"
	"github.com/botsdv/backend/internal/store"
)

const ticketColumns = `id, ticket_number, user_telegram_id, user_telegram_name, category, subtype,
	transaction_type, description, details, status, assigned_agent, assigned_agent_name,
	created_at, updated_at, completed_at`

func (s *Store) InsertTicket(ctx context.Context, t models.Ticket) error {
	_, err := s.Pool.Exec(ctx, `INSERT INTO tickets (`+ticketColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		t.ID, t.TicketNumber, t.ReporterChatID, t.ReporterName, t.Category, t.Subtype,
		t.TransactionType, t.Description, t.Details, string(t.Status), t.AssignedAgent, t.AssignedAgentName,
		t.CreatedAt, t.UpdatedAt, t.CompletedAt)
	if isUniqueViolation(err) {
		return errs.Duplicate("ticket_number", err)
	}
	return err
}

func (s *Store) GetTicket(ctx context.Context, id string) (models.Ticket, error) {
	row := s.Pool.QueryRow(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE id = $1`, id)
	t, err := scanTicket(row)
	if err != nil {
		return models.Ticket{}, notFoundOr(err, "ticket %s not found", id)
	}
	return t, nil
}

func (s *Store) GetTicketByNumber(ctx context.Context, number string) (models.Ticket, error) {
	row := s.Pool.QueryRow(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE ticket_number = $1`, number)
	t, err := scanTicket(row)
	if err != nil {
		return models.Ticket{}, notFoundOr(err, "ticket %s not found", number)
	}
	return t, nil
}

func (s *Store) ConditionalUpdate(ctx context.Context, id string, cond store.Condition, patch store.Patch) (bool, error) {
	args := []any{patch.UpdatedAt}
	sets := []string{"updated_at = $1"}
	if patch.SetAssignee {
		name := patch.AssignedAgentName
		if patch.AssignedAgent == nil {
			name = nil
		}
		args = append(args, patch.AssignedAgent, name)
		sets = append(sets, fmt.Sprintf("assigned_agent = $%d, assigned_agent_name = $%d", len(args)-1, len(args)))
	}
	if patch.Status != nil {
		args = append(args, string(*patch.Status))
		sets = append(sets, fmt.Sprintf("status = $%d", len(args)))
	}
	if patch.CompletedAt != nil {
		args = append(args, *patch.CompletedAt)
		sets = append(sets, fmt.Sprintf("completed_at = $%d", len(args)))
	}

	args = append(args, id)
	wheres := []string{fmt.Sprintf("id = $%d", len(args))}
	if cond.ClaimableBy != "" {
		args = append(args, cond.ClaimableBy)
		wheres = append(wheres, fmt.Sprintf("(assigned_agent IS NULL OR assigned_agent = $%d)", len(args)))
	}
	if len(cond.StatusIn) > 0 {
		args = append(args, statusStrings(cond.StatusIn))
		wheres = append(wheres, fmt.Sprintf("status = ANY($%d::text[])", len(args)))
	}

	query := "UPDATE tickets SET " + strings.Join(sets, ", ") + " WHERE " + strings.Join(wheres, " AND ")
	tag, err := s.Pool.Exec(ctx, query, args...)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (s *Store) QueryTickets(ctx context.Context, f store.TicketFilter) ([]models.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets`
	var args []any
	var wheres []string
	if len(f.Statuses) > 0 {
		args = append(args, statusStrings(f.Statuses))
		wheres = append(wheres, fmt.Sprintf("status = ANY($%d::text[])", len(args)))
	}
	if f.AssignedAgent != "" {
		args = append(args, f.AssignedAgent)
		wheres = append(wheres, fmt.Sprintf("assigned_agent = $%d", len(args)))
	}
	if f.Unassigned {
		wheres = append(wheres, "assigned_agent IS NULL")
	}
	if f.Category != "" {
		args = append(args, f.Category)
		wheres = append(wheres, fmt.Sprintf("category = $%d", len(args)))
	}
	if !f.CreatedFrom.IsZero() {
		args = append(args, f.CreatedFrom)
		wheres = append(wheres, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if !f.CreatedBefore.IsZero() {
		args = append(args, f.CreatedBefore)
		wheres = append(wheres, fmt.Sprintf("created_at < $%d", len(args)))
	}
	if len(wheres) > 0 {
		query += " WHERE " + strings.Join(wheres, " AND ")
	}
	query += " ORDER BY created_at DESC"
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]models.Ticket, 0)
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) DeleteTicket(ctx context.Context, id string) error {
	tag, err := s.Pool.Exec(ctx, `DELETE FROM tickets WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.NotFound("ticket %s not found", id)
	}
	return nil
}

func (s *Store) TicketYears(ctx context.Context) ([]int, error) {
	rows, err := s.Pool.Query(ctx, `SELECT DISTINCT EXTRACT(YEAR FROM created_at AT TIME ZONE 'UTC')::int AS y
		FROM tickets ORDER BY y DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	years := make([]int, 0)
	for rows.Next() {
		var y int
		if err := rows.Scan(&y); err != nil {
			return nil, err
		}
		years = append(years, y)
	}
	return years, rows.Err()
}

func (s *Store) TicketCategories(ctx context.Context) ([]string, error) {
	rows, err := s.Pool.Query(ctx, `SELECT DISTINCT category FROM tickets WHERE category <> '' ORDER BY category`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]string, 0)
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func scanTicket(row pgx.Row) (models.Ticket, error) {
	var t models.Ticket
	var status string
	err := row.Scan(&t.ID, &t.TicketNumber, &t.ReporterChatID, &t.ReporterName, &t.Category, &t.Subtype,
		&t.TransactionType, &t.Description, &t.Details, &status, &t.AssignedAgent, &t.AssignedAgentName,
		&t.CreatedAt, &t.UpdatedAt, &t.CompletedAt)
	t.Status = models.TicketStatus(status)
	return t, err
}

func statusStrings(in []models.TicketStatus) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = string(s)
	}
	return out
}
