package session

import (
	"context"
	"fmt"

	"github.com/hotel-account-api/internal/domain"
	"golang.org/x/crypto/bcrypt"
)

type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type LoginResult struct {
	Bearer string
	User   *domain.User
}

// UserStore is the minimal interface the service requires from the user store.
type UserStore interface {
	GetByUsername(ctx context.Context, username string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
}

// TokenSigner issues bearer tokens for authenticated users.
type TokenSigner interface {
	Sign(userID, email, role string) (string, error)
}

type Service interface {
	Login(ctx context.Context, req LoginRequest) (*LoginResult, error)
}

type service struct {
	userRepo    UserStore
	jwtProvider TokenSigner
}

func NewService(userRepo UserStore, jwtProvider TokenSigner) Service {
	return &service{userRepo: userRepo, jwtProvider: jwtProvider}
}

func (s *service) Login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	u, err := s.userRepo.GetByUsername(ctx, req.Username)
	if err != nil {
		u, err = s.userRepo.GetByEmail(ctx, req.Username)
		if err != nil {
			return nil, fmt.Errorf("invalid credentials: %w", domain.ErrUnauthorized)
		}
	}
	if !u.Enable {
		return nil, fmt.Errorf("account disabled: %w", domain.ErrForbidden)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(req.Password)); err != nil {
		return nil, fmt.Errorf("invalid credentials: %w", domain.ErrUnauthorized)
	}
	bearer, err := s.jwtProvider.Sign(u.UserID, u.Email, u.Role)
	if err != nil {
		return nil, err
	}
	return &LoginResult{Bearer: bearer, User: u}, nil
}
