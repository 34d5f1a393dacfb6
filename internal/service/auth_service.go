package service

import (
	"context"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/event-service/internal/auth"
	"github.com/spec-kit/event-service/internal/config"
	"github.com/spec-kit/event-service/internal/domain"
	"github.com/spec-kit/event-service/internal/events"
	"github.com/spec-kit/event-service/internal/repository"
)

// LoginInput carries the login identifier and password. At least one of
// Email, Username or PhoneNumber must be set.
type LoginInput struct {
	Email       string
	Username    string
	PhoneNumber string
	Password    string
}

// TokenPair bundles the tokens minted on login.
type TokenPair struct {
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
}

// AuthService coordinates signup, login, verification and refresh. It keeps
// no per-session state: authentication state lives entirely in the tokens.
type AuthService struct {
	users         repository.UserRepository
	accessTokens  *auth.TokenManager
	refreshTokens *auth.TokenManager
	dispatcher    events.Dispatcher
	logger        *zap.Logger
	bcryptCost    int
}

// NewAuthService builds the service. Access and refresh token managers are
// constructed from separate secrets so neither class verifies as the other.
func NewAuthService(cfg config.AuthConfig, users repository.UserRepository, dispatcher events.Dispatcher, logger *zap.Logger) *AuthService {
	return &AuthService{
		users:         users,
		accessTokens:  auth.NewTokenManager(cfg.AccessTokenSecret, cfg.AccessTokenTTL()),
		refreshTokens: auth.NewTokenManager(cfg.RefreshTokenSecret, cfg.RefreshTokenTTL()),
		dispatcher:    dispatcher,
		logger:        logger,
		bcryptCost:    cfg.BcryptCost,
	}
}

// SignUp registers a new account. The duplicate check runs before any write;
// the user row and its auth row are persisted atomically.
func (s *AuthService) SignUp(ctx context.Context, email, password string) (*domain.User, error) {
	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		return nil, domain.ErrUserExists
	} else if err != pgx.ErrNoRows {
		return nil, err
	}

	hash, err := auth.HashPassword(password, s.bcryptCost)
	if err != nil {
		return nil, err
	}

	user := &domain.User{
		Username: usernameFromEmail(email),
		Email:    email,
		Role:     domain.RoleUser,
		Status:   domain.UserStatusActive,
	}
	if err := s.users.CreateWithAuth(ctx, user, hash); err != nil {
		s.logger.Error("user creation failed", zap.String("email", email), zap.Error(err))
		return nil, domain.ErrUserCreate
	}

	s.publish(ctx, events.EventUserRegistered, user, nil)
	return user, nil
}

// Login authenticates by email, username or phone number and mints one
// access token and one refresh token bound to the account email.
func (s *AuthService) Login(ctx context.Context, input LoginInput) (*domain.User, *TokenPair, error) {
	if input.Email == "" && input.Username == "" && input.PhoneNumber == "" {
		return nil, nil, domain.ErrMissingIdentifier
	}

	user, err := s.users.FindByIdentifier(ctx, input.Username, input.Email, input.PhoneNumber)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil, domain.ErrUserNotFound
		}
		return nil, nil, err
	}

	userAuth, err := s.users.GetAuthByUserID(ctx, user.ID)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil, domain.ErrUserNotFound
		}
		return nil, nil, err
	}

	if !auth.VerifyPassword(userAuth.PasswordHash, input.Password) {
		return nil, nil, domain.ErrInvalidCredentials
	}

	pair, err := s.issuePair(user.Email)
	if err != nil {
		return nil, nil, err
	}

	if err := s.users.TouchLastLogin(ctx, user.ID); err != nil {
		s.logger.Warn("failed to record last login", zap.String("user_id", user.ID), zap.Error(err))
	}

	s.publish(ctx, events.EventUserLoggedIn, user, nil)
	return user, pair, nil
}

// VerifyAccess validates a bearer access token and resolves its subject to
// an account.
func (s *AuthService) VerifyAccess(ctx context.Context, token string) (*domain.User, error) {
	claims, err := s.accessTokens.Parse(token)
	if err != nil {
		if err == auth.ErrTokenExpired {
			s.logger.Debug("access token expired")
		}
		return nil, domain.ErrInvalidToken
	}

	user, err := s.users.GetByEmail(ctx, claims.Subject)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, domain.ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}

// Refresh verifies a refresh token against the refresh secret only and
// issues a new access token without requiring credentials. The subject must
// still resolve to an account.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (string, time.Time, error) {
	claims, err := s.refreshTokens.Parse(refreshToken)
	if err != nil {
		return "", time.Time{}, domain.ErrInvalidRefreshToken
	}

	if _, err := s.users.GetByEmail(ctx, claims.Subject); err != nil {
		if err == pgx.ErrNoRows {
			return "", time.Time{}, domain.ErrInvalidRefreshToken
		}
		return "", time.Time{}, err
	}

	return s.accessTokens.Generate(claims.Subject)
}

// RefreshTokenTTL exposes the refresh token lifetime for cookie max-age.
func (s *AuthService) RefreshTokenTTL() time.Duration {
	return s.refreshTokens.TTL()
}

// AccessTokens exposes the access token manager for middleware usage.
func (s *AuthService) AccessTokens() *auth.TokenManager {
	return s.accessTokens
}

func (s *AuthService) issuePair(subject string) (*TokenPair, error) {
	access, accessExp, err := s.accessTokens.Generate(subject)
	if err != nil {
		return nil, err
	}
	refresh, refreshExp, err := s.refreshTokens.Generate(subject)
	if err != nil {
		return nil, err
	}
	return &TokenPair{
		AccessToken:      access,
		AccessExpiresAt:  accessExp,
		RefreshToken:     refresh,
		RefreshExpiresAt: refreshExp,
	}, nil
}

func (s *AuthService) publish(ctx context.Context, eventType events.EventType, user *domain.User, payload interface{}) {
	if s.dispatcher == nil {
		return
	}
	_ = s.dispatcher.Publish(ctx, events.NewEvent(eventType, user.ID, payload))
}

func usernameFromEmail(email string) string {
	if at := strings.Index(email, "@"); at > 0 {
		return email[:at]
	}
	return email
}
