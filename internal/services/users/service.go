package users

import (
	"context"

	"lumen/internal/domain"
	"lumen/internal/ports"
)

// Service syncs externally authenticated users into the store on first
// login. Existing rows are left untouched.
type Service struct {
	users ports.UserRepository
}

func New(users ports.UserRepository) *Service { return &Service{users: users} }

func (s *Service) Sync(ctx context.Context, u domain.User) error {
	if u.ID == "" {
		return &domain.ValidationError{Msg: "user id is required"}
	}
	return s.users.Upsert(ctx, u)
}
