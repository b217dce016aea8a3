package db

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/botsdv/backend/internal/errs"
	"github.com/botsdv/backend/internal/models"
)

const commentColumns = `id, ticket_id, user_id, username, role, comment, image_url, thumbnail_url,
	created_at, sent_to_telegram, read_by_agent`

func (s *Store) InsertComment(ctx context.Context, c models.Comment) error {
	_, err := s.Pool.Exec(ctx, `INSERT INTO comments (`+commentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		c.ID, c.TicketID, c.UserID, c.Username, string(c.Role), c.Comment, c.ImageURL, c.ThumbnailURL,
		c.Timestamp, c.SentToTelegram, c.ReadByAgent)
	return err
}

func (s *Store) ListComments(ctx context.Context, ticketID string) ([]models.Comment, error) {
	rows, err := s.Pool.Query(ctx, `SELECT `+commentColumns+` FROM comments WHERE ticket_id = $1 ORDER BY created_at ASC`, ticketID)
	if err != nil {
		return nil, err
	}
	return collectComments(rows)
}

func (s *Store) MarkCommentsRead(ctx context.Context, ticketID string) (int64, error) {
	tag, err := s.Pool.Exec(ctx, `UPDATE comments SET read_by_agent = TRUE
		WHERE ticket_id = $1 AND role = 'user' AND read_by_agent = FALSE`, ticketID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (s *Store) MarkCommentSent(ctx context.Context, id string) error {
	tag, err := s.Pool.Exec(ctx, `UPDATE comments SET sent_to_telegram = TRUE WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.NotFound("comment %s not found", id)
	}
	return nil
}

func (s *Store) ListUndeliveredComments(ctx context.Context, limit int) ([]models.Comment, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.Pool.Query(ctx, `SELECT `+commentColumns+` FROM comments
		WHERE role IN ('agent', 'admin') AND sent_to_telegram = FALSE
		ORDER BY created_at ASC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	return collectComments(rows)
}

func (s *Store) UnreadTicketIDs(ctx context.Context) ([]string, error) {
	rows, err := s.Pool.Query(ctx, `SELECT DISTINCT ticket_id FROM comments WHERE role = 'user' AND read_by_agent = FALSE`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func collectComments(rows pgx.Rows) ([]models.Comment, error) {
	defer rows.Close()
	out := make([]models.Comment, 0)
	for rows.Next() {
		var c models.Comment
		var role string
		if err := rows.Scan(&c.ID, &c.TicketID, &c.UserID, &c.Username, &role, &c.Comment, &c.ImageURL,
			&c.ThumbnailURL, &c.Timestamp, &c.SentToTelegram, &c.ReadByAgent); err != nil {
			return nil, err
		}
		c.Role = models.Role(role)
		out = append(out, c)
	}
	return out, rows.Err()
}
