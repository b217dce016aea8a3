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

const userColumns = `id, username, full_name, role, status, created_at`

func (s *Store) InsertUser(ctx context.Context, u models.User) error {
	_, err := s.Pool.Exec(ctx, `INSERT INTO users (`+userColumns+`) VALUES ($1, $2, $3, $4, $5, $6)`,
		u.ID, u.Username, u.FullName, string(u.Role), string(u.Status), u.CreatedAt)
	if isUniqueViolation(err) {
		return errs.Duplicate("username", err)
	}
	return err
}

func (s *Store) GetUser(ctx context.Context, id string) (models.User, error) {
	u, err := scanUser(s.Pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		return models.User{}, notFoundOr(err, "user %s not found", id)
	}
	return u, nil
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (models.User, error) {
	u, err := scanUser(s.Pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE username = $1`, username))
	if err != nil {
		return models.User{}, notFoundOr(err, "user %s not found", username)
	}
	return u, nil
}

func (s *Store) ListUsers(ctx context.Context, f store.UserFilter) ([]models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users`
	var args []any
	var wheres []string
	if f.Role != "" {
		args = append(args, string(f.Role))
		wheres = append(wheres, fmt.Sprintf("role = $%d", len(args)))
	}
	if f.Status != "" {
		args = append(args, string(f.Status))
		wheres = append(wheres, fmt.Sprintf("status = $%d", len(args)))
	}
	if len(wheres) > 0 {
		query += " WHERE " + strings.Join(wheres, " AND ")
	}
	query += " ORDER BY created_at ASC"

	rows, err := s.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]models.User, 0)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (s *Store) ApproveUser(ctx context.Context, id string, role models.Role) (models.User, error) {
	row := s.Pool.QueryRow(ctx, `UPDATE users SET role = $2, status = $3 WHERE id = $1 RETURNING `+userColumns,
		id, string(role), string(models.UserApproved))
	u, err := scanUser(row)
	if err != nil {
		return models.User{}, notFoundOr(err, "user %s not found", id)
	}
	return u, nil
}

func (s *Store) DeleteUser(ctx context.Context, id string) error {
	tag, err := s.Pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.NotFound("user %s not found", id)
	}
	return nil
}

func scanUser(row pgx.Row) (models.User, error) {
	var u models.User
	var role, status string
	err := row.Scan(&u.ID, &u.Username, &u.FullName, &role, &status, &u.CreatedAt)
	u.Role = models.Role(role)
	u.Status = models.UserStatus(status)
	return u, err
}
