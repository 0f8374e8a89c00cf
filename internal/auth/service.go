package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/worksite-pm/worksite/internal/shared"
)

// Service wraps authentication business rules.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService constructs a new Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// Authenticate validates email/password credentials.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*User, error) {
	user, err := s.repo.FindByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	return user, nil
}

// Register creates an account with a bcrypt-hashed password.
func (s *Service) Register(ctx context.Context, email, password string) (*User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("auth: hash password: %w", err)
	}
	return s.repo.CreateUser(ctx, strings.ToLower(strings.TrimSpace(email)), string(hash))
}

// UpdatePassword replaces the password of userID.
func (s *Service) UpdatePassword(ctx context.Context, userID uuid.UUID, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("auth: hash password: %w", err)
	}
	return s.repo.UpdatePasswordHash(ctx, userID, string(hash))
}

// RegisterSession persists the session metadata in postgres.
func (s *Service) RegisterSession(ctx context.Context, id string, userID uuid.UUID, expiresAt time.Time, ip, ua string) error {
	return s.repo.CreateSession(ctx, id, userID, expiresAt, ip, ua)
}

// RemoveSession deletes a session record from postgres.
func (s *Service) RemoveSession(ctx context.Context, id string) error {
	return s.repo.DeleteSession(ctx, id)
}

// SessionActive reports whether p's session exists, belongs to p and has
// not expired.
func (s *Service) SessionActive(ctx context.Context, p shared.Principal) (bool, error) {
	if !p.Authenticated() {
		return false, nil
	}
	rec, err := s.repo.FindSession(ctx, p.SessionID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	if rec.UserID != p.UserID {
		return false, nil
	}
	return s.now().Before(rec.ExpiresAt), nil
}

// Identity returns the public profile of userID.
func (s *Service) Identity(ctx context.Context, userID uuid.UUID) (Identity, error) {
	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		return Identity{}, err
	}
	return Identity{ID: user.ID, Email: user.Email, Name: user.Email}, nil
}

// SweepExpiredSessions deletes every session that has already expired.
func (s *Service) SweepExpiredSessions(ctx context.Context) (int64, error) {
	return s.repo.DeleteExpiredSessions(ctx, s.now())
}
