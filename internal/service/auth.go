package service

import (
	"context"
	"errors"
	"net/mail"
	"strings"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"github.com/Dan9191/claims-service/internal/auth"
	"github.com/Dan9191/claims-service/internal/models"
	"github.com/Dan9191/claims-service/internal/repository"
)

const minPasswordLength = 6

// RegisterInput is a registration request
type RegisterInput struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

// Session is a signed token together with the user it identifies
type Session struct {
	Token string       `json:"token"`
	User  *models.User `json:"user"`
}

// Register creates a new user with hashed password and signs them in
func (s *Service) Register(ctx context.Context, in RegisterInput) (*Session, error) {
	name := strings.TrimSpace(in.Name)
	email := models.NormalizeEmail(in.Email)
	if name == "" {
		return nil, Validation("Name is required")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, Validation("A valid email is required")
	}
	if len(in.Password) < minPasswordLength {
		return nil, Validation("Password must be at least %d characters", minPasswordLength)
	}
	role, err := models.ParseRole(in.Role)
	if err != nil {
		return nil, Validation("Role must be patient or insurer")
	}

	if _, err := s.repo.FindUserByEmail(ctx, email); err == nil {
		return nil, Validation("User already exists")
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, Dependency("Registration failed", err)
	}

	user, err := s.CreateUser(ctx, name, email, in.Password, role)
	if err != nil {
		return nil, err
	}

	token, err := s.tokens.Issue(user.ID)
	if err != nil {
		return nil, Dependency("Registration failed", err)
	}
	return &Session{Token: token, User: user}, nil
}

// CreateUser validates and hashes password and persists a new account.
// Used by registration and by the operator CLI.
func (s *Service) CreateUser(ctx context.Context, name, email, password string, role models.Role) (*models.User, error) {
	if !role.Valid() {
		return nil, Validation("Role must be patient or insurer")
	}
	if strings.TrimSpace(name) == "" {
		return nil, Validation("Name is required")
	}
	if _, err := mail.ParseAddress(models.NormalizeEmail(email)); err != nil {
		return nil, Validation("A valid email is required")
	}
	if len(password) < minPasswordLength {
		return nil, Validation("Password must be at least %d characters", minPasswordLength)
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, Dependency("Registration failed", err)
	}

	user := &models.User{
		ID:           ulid.Make().String(),
		Name:         strings.TrimSpace(name),
		Email:        models.NormalizeEmail(email),
		PasswordHash: string(hashedPassword),
		Role:         role,
		CreatedAt:    s.timestamp(),
	}
	if err := s.repo.CreateUser(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return nil, Validation("User already exists")
		}
		return nil, Dependency("Registration failed", err)
	}

	s.log.WithFields(logrus.Fields{"user_id": user.ID, "role": user.Role}).Infof("User registered: %s", user.Email)
	return user, nil
}

// Login authenticates a user and returns a session token
func (s *Service) Login(ctx context.Context, email, password string) (*Session, error) {
	user, err := s.repo.FindUserByEmail(ctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, Unauthenticated("Invalid credentials", nil)
	}
	if err != nil {
		return nil, Dependency("Login failed", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, Unauthenticated("Invalid credentials", nil)
	}

	token, err := s.tokens.Issue(user.ID)
	if err != nil {
		return nil, Dependency("Login failed", err)
	}

	s.log.WithField("user_id", user.ID).Infof("User logged in: %s", user.Email)
	return &Session{Token: token, User: user}, nil
}

// Authenticate verifies token and resolves the user it names
func (s *Service) Authenticate(ctx context.Context, token string) (*models.User, error) {
	userID, err := s.tokens.Verify(token)
	switch {
	case err == nil:
	case errors.Is(err, auth.ErrMissingToken):
		return nil, Unauthenticated("No authentication token provided", err)
	case errors.Is(err, auth.ErrExpiredToken):
		return nil, Unauthenticated("Token expired", err)
	default:
		return nil, Unauthenticated("Invalid token", err)
	}

	if s.cache != nil {
		if user, err := s.cache.Get(ctx, userID); err == nil {
			return user, nil
		}
	}

	user, err := s.repo.FindUserByID(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, Unauthenticated("User not found", ErrUserNotFound)
	}
	if err != nil {
		return nil, Dependency("Authentication failed", err)
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, user); err != nil {
			s.log.Debugf("Failed to cache user %s: %v", user.ID, err)
		}
	}
	return user, nil
}

// RequireRole denies callers whose role is not in roles
func RequireRole(user *models.User, roles ...models.Role) error {
	if user == nil {
		return Unauthenticated("Authentication required", nil)
	}
	for _, r := range roles {
		if user.Role == r {
			return nil
		}
	}
	return Forbidden("Access denied")
}
