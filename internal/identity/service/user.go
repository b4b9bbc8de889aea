package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"time"

	"github.com/asia-shop/identity/internal/identity/domain"
	"github.com/asia-shop/identity/internal/identity/store"
	"github.com/asia-shop/identity/pkg/cryptox"
	"github.com/asia-shop/identity/pkg/idx"
)

type UserService struct {
	Store store.Store

	// Now is overridable for tests; when nil, time.Now is used.
	Now func() time.Time
}

func (s *UserService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

// Register creates a new active account with an argon2id password hash.
func (s *UserService) Register(ctx context.Context, email, username, password string) (domain.User, error) {
	if _, err := mail.ParseAddress(email); err != nil {
		return domain.User{}, domain.E(domain.CodeValidation, "invalid email address")
	}
	if username == "" {
		return domain.User{}, domain.E(domain.CodeValidation, "username is required")
	}
	if len(password) < 8 {
		return domain.User{}, domain.E(domain.CodeValidation, "password must be at least 8 characters")
	}

	hash, err := cryptox.HashPassword(password)
	if err != nil {
		return domain.User{}, fmt.Errorf("failed to hash password: %w", err)
	}

	now := s.now()
	user := domain.User{
		ID:           idx.New().String(),
		Email:        email,
		Username:     username,
		PasswordHash: hash,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.Store.Users().CreateUser(ctx, user); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return domain.User{}, domain.E(domain.CodeConflict, "email or username already in use")
		}
		return domain.User{}, fmt.Errorf("failed to create user: %w", err)
	}
	return user, nil
}

// GetUserByID fetches a user by id.
func (s *UserService) GetUserByID(ctx context.Context, userID string) (domain.User, error) {
	u, err := s.Store.Users().GetUserByID(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return domain.User{}, domain.E(domain.CodeNotFound, "user not found")
	}
	return u, err
}
