package identity

import (
	"context"
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// Service manages the identity lifecycle.
type Service struct {
	repo Repository
}

// NewService creates a new identity service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Register creates a new user with a hashed password.
func (s *Service) Register(ctx context.Context, creds Credentials) (User, error) {
	username := strings.TrimSpace(creds.Username)
	if username == "" {
		return User{}, errors.New("username is required")
	}
	if len(creds.Password) < 8 {
		return User{}, errors.New("password must be at least 8 characters")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(creds.Password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, err
	}

	return s.repo.Create(ctx, User{
		Username:     username,
		Email:        strings.TrimSpace(creds.Email),
		PasswordHash: hash,
	})
}

// Authenticate verifies a username and password pair.
func (s *Service) Authenticate(ctx context.Context, creds Credentials) (User, error) {
	user, err := s.repo.FindByUsername(ctx, strings.TrimSpace(creds.Username))
	if err != nil {
		return User{}, errors.New("invalid credentials")
	}
	if err := bcrypt.CompareHashAndPassword(user.PasswordHash, []byte(creds.Password)); err != nil {
		return User{}, errors.New("invalid credentials")
	}
	return user, nil
}

// Exists reports whether a user with the given id is registered.
func (s *Service) Exists(ctx context.Context, id int64) (bool, error) {
	_, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Get fetches a user by id.
func (s *Service) Get(ctx context.Context, id int64) (User, error) {
	return s.repo.FindByID(ctx, id)
}

// List returns every user except the caller.
func (s *Service) List(ctx context.Context, excludeID int64) ([]User, error) {
	return s.repo.List(ctx, excludeID)
}
