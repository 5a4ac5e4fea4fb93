package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/weiawesome/flow-market/internal/audit"
	"github.com/weiawesome/flow-market/internal/domain"
	"github.com/weiawesome/flow-market/internal/repository"
	"github.com/weiawesome/flow-market/pkg/jwt"
	"github.com/weiawesome/flow-market/pkg/log"
	"github.com/weiawesome/flow-market/pkg/middleware"
)

type authServiceImpl struct {
	users    repository.UserRepository
	tokens   *jwt.Manager
	hashCost int
}

// AuthOption customises the auth service.
type AuthOption func(*authServiceImpl)

// WithHashCost overrides the bcrypt cost.
func WithHashCost(cost int) AuthOption {
	return func(s *authServiceImpl) { s.hashCost = cost }
}

func NewAuthService(users repository.UserRepository, tokens *jwt.Manager, opts ...AuthOption) AuthService {
	s := &authServiceImpl{
		users:    users,
		tokens:   tokens,
		hashCost: bcrypt.DefaultCost,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func (s *authServiceImpl) Register(ctx context.Context, req *domain.RegisterRequest) (*domain.Session, error) {
	l := log.Ctx(ctx)

	username := normalize(req.Username)
	email := normalize(req.Email)
	if username == "" || email == "" || req.Password == "" {
		return nil, domain.Invalid("username, email and password are required")
	}

	if err := s.users.FindConflict(ctx, username, email); err != nil {
		if isConflict(err) {
			return nil, fmt.Errorf("%w: %w", domain.ErrConflict, err)
		}
		l.Error().Err(err).Msg("failed to check existing users")
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.hashCost)
	if err != nil {
		l.Error().Err(err).Msg("failed to hash password")
		return nil, err
	}

	user := &domain.User{
		Username:     username,
		Email:        email,
		PasswordHash: string(hash),
	}
	if err := s.users.Create(ctx, user); err != nil {
		if isConflict(err) {
			return nil, fmt.Errorf("%w: %w", domain.ErrConflict, err)
		}
		l.Error().Err(err).Msg("failed to create user")
		return nil, err
	}

	session, err := s.newSession(user)
	if err != nil {
		l.Error().Err(err).Uint(log.FieldUserID, user.ID).Msg("failed to issue session after register")
		return nil, err
	}

	audit.Write(ctx, audit.Entry{Action: audit.ActionRegister, UserID: user.ID}, "user registered")
	return session, nil
}

func (s *authServiceImpl) Login(ctx context.Context, req *domain.LoginRequest) (*domain.Session, error) {
	l := log.Ctx(ctx)
	username := normalize(req.Username)

	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			audit.Write(ctx, audit.Entry{Action: audit.ActionLoginFailed, Detail: username}, "login failed: user not found")
			return nil, domain.ErrInvalidCredentials
		}
		l.Error().Err(err).Msg("failed to get user by username")
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		audit.Write(ctx, audit.Entry{Action: audit.ActionLoginFailed, UserID: user.ID, Detail: username}, "login failed: wrong password")
		return nil, domain.ErrInvalidCredentials
	}

	session, err := s.newSession(user)
	if err != nil {
		l.Error().Err(err).Uint(log.FieldUserID, user.ID).Msg("failed to issue session after login")
		return nil, err
	}

	audit.Write(ctx, audit.Entry{Action: audit.ActionLogin, UserID: user.ID}, "user logged in")
	return session, nil
}

func (s *authServiceImpl) Logout(ctx context.Context, userID uint) {
	audit.Write(ctx, audit.Entry{Action: audit.ActionLogout, UserID: userID}, "user logged out")
}

// ResolveSession maps a session token to its user. Tokens that are invalid,
// expired or point at a missing user resolve to nil without error.
func (s *authServiceImpl) ResolveSession(ctx context.Context, token string) (*middleware.Identity, error) {
	claims, err := s.tokens.Validate(token)
	if err != nil {
		return nil, nil
	}

	user, err := s.users.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, nil
		}
		return nil, err
	}

	return &middleware.Identity{UserID: user.ID, Username: user.Username}, nil
}

func (s *authServiceImpl) newSession(user *domain.User) (*domain.Session, error) {
	token, exp, err := s.tokens.Issue(user.ID)
	if err != nil {
		return nil, err
	}
	return &domain.Session{User: user, Token: token, ExpiresAt: exp}, nil
}

func isConflict(err error) bool {
	return errors.Is(err, repository.ErrUsernameExists) || errors.Is(err, repository.ErrEmailExists)
}
