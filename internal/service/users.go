package service

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/botsdv/backend/internal/errs"
	"github.com/botsdv/backend/internal/models"
	"github.com/botsdv/backend/internal/store"
)

// UserService manages staff accounts. Credentials live with the upstream
// identity provider; this service only tracks role and approval.
type UserService struct {
	Store store.UserStore
	Effects
}

type RegisterInput struct {
	Username string
	FullName string
}

// Register creates a pending account that cannot act until approved.
func (s *UserService) Register(ctx context.Context, in RegisterInput) (models.User, error) {
	username := strings.TrimSpace(in.Username)
	if username == "" {
		return models.User{}, errs.Validation("username is required")
	}
	u := models.User{
		ID:        uuid.NewString(),
		Username:  username,
		FullName:  strings.TrimSpace(in.FullName),
		Role:      models.RoleUser,
		Status:    models.UserPending,
		CreatedAt: s.now(),
	}
	if err := s.Store.InsertUser(ctx, u); err != nil {
		if errors.Is(err, errs.ErrDuplicateKey) {
			return models.User{}, errs.Conflict("username %s is already registered", username)
		}
		return models.User{}, err
	}
	s.Logger.Info().Str("user_id", u.ID).Str("username", u.Username).Msg("user registered")
	return u, nil
}

func (s *UserService) Get(ctx context.Context, id string) (models.User, error) {
	return s.Store.GetUser(ctx, id)
}

func (s *UserService) Pending(ctx context.Context) ([]models.User, error) {
	return s.Store.ListUsers(ctx, store.UserFilter{Status: models.UserPending})
}

func (s *UserService) Agents(ctx context.Context) ([]models.User, error) {
	return s.Store.ListUsers(ctx, store.UserFilter{Role: models.RoleAgent, Status: models.UserApproved})
}

// Approve activates a pending account as an agent or admin.
func (s *UserService) Approve(ctx context.Context, actor Actor, id string, role models.Role) (models.User, error) {
	if actor.Role != models.RoleAdmin {
		return models.User{}, errs.Permission("only admins can approve users")
	}
	if !role.Staff() {
		return models.User{}, errs.Validation("role must be agent or admin")
	}
	u, err := s.Store.ApproveUser(ctx, id, role)
	if err != nil {
		return models.User{}, err
	}
	s.invalidate(ctx, u.ID)
	return u, nil
}

func (s *UserService) Delete(ctx context.Context, actor Actor, id string) error {
	if actor.Role != models.RoleAdmin {
		return errs.Permission("only admins can delete users")
	}
	if actor.ID == id {
		return errs.Validation("admins cannot delete themselves")
	}
	if err := s.Store.DeleteUser(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx, id)
	return nil
}
