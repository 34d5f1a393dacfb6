package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/event-service/internal/api/dto"
	"github.com/spec-kit/event-service/internal/auth"
	"github.com/spec-kit/event-service/internal/domain"
	"github.com/spec-kit/event-service/internal/service"
	apperrors "github.com/spec-kit/event-service/pkg/util"
)

// AuthHandler exposes the session endpoints.
type AuthHandler struct {
	auth *service.AuthService
}

// NewAuthHandler constructs handler.
func NewAuthHandler(authService *service.AuthService) *AuthHandler {
	return &AuthHandler{auth: authService}
}

// Register handles POST /auth/register.
func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var req dto.RegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.Email == "" || req.Password == "" {
		return apperrors.NewValidationError("email and password required", nil)
	}

	user, err := h.auth.SignUp(c.Context(), req.Email, req.Password)
	if err != nil {
		return mapAuthErr(err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"data": fiber.Map{"user": dto.NewUserResponse(user)},
	})
}

// Login handles POST /auth/login. On success the refresh token is set as an
// HTTP-only cookie and the access token is returned in the body.
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req dto.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.Password == "" {
		return apperrors.NewValidationError("password required", nil)
	}

	user, pair, err := h.auth.Login(c.Context(), service.LoginInput{
		Email:       req.Email,
		Username:    req.Username,
		PhoneNumber: req.PhoneNumber,
		Password:    req.Password,
	})
	if err != nil {
		return mapAuthErr(err)
	}

	auth.SetRefreshCookie(c, pair.RefreshToken, h.auth.RefreshTokenTTL())

	return c.JSON(fiber.Map{
		"data": fiber.Map{
			"user": dto.NewUserResponse(user),
			"auth": dto.AuthResponse{
				AccessToken: pair.AccessToken,
				TokenType:   "bearer",
				ExpiresAt:   pair.AccessExpiresAt,
			},
		},
	})
}

// VerifyToken handles GET /auth/verify-token with a bearer access token.
func (h *AuthHandler) VerifyToken(c *fiber.Ctx) error {
	token, err := auth.BearerToken(c)
	if err != nil {
		return err
	}

	user, err := h.auth.VerifyAccess(c.Context(), token)
	if err != nil {
		// every verification failure is a 401, including a vanished subject
		if errors.Is(err, domain.ErrUserNotFound) {
			return apperrors.NewUnauthorized("User not found")
		}
		return mapAuthErr(err)
	}

	return c.JSON(fiber.Map{
		"data": fiber.Map{"user": dto.NewUserResponse(user)},
	})
}

// Refresh handles GET /auth/refresh-token using the refresh cookie.
func (h *AuthHandler) Refresh(c *fiber.Ctx) error {
	refreshToken := c.Cookies(auth.RefreshCookieName)
	if refreshToken == "" {
		return apperrors.NewUnauthorized("Refresh token missing")
	}

	access, expiresAt, err := h.auth.Refresh(c.Context(), refreshToken)
	if err != nil {
		return mapAuthErr(err)
	}

	return c.JSON(fiber.Map{
		"data": dto.AuthResponse{
			AccessToken: access,
			TokenType:   "bearer",
			ExpiresAt:   expiresAt,
		},
	})
}

// Logout handles POST /auth/logout. It only clears the client cookie;
// issued tokens stay valid until natural expiry.
func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	auth.ClearRefreshCookie(c)
	return c.JSON(fiber.Map{
		"data": fiber.Map{"message": "Logged out successfully"},
	})
}

// mapAuthErr translates service sentinels to HTTP-mapped domain errors.
// Token failures all collapse to 401 so callers learn nothing beyond
// "rejected".
func mapAuthErr(err error) error {
	switch {
	case errors.Is(err, domain.ErrUserExists):
		return apperrors.NewValidationError("User already exists", nil)
	case errors.Is(err, domain.ErrUserCreate):
		return apperrors.NewValidationError("Failed to create user", nil)
	case errors.Is(err, domain.ErrMissingIdentifier):
		return apperrors.NewValidationError("Email, username or phone number is required", nil)
	case errors.Is(err, domain.ErrUserNotFound):
		return apperrors.NewValidationError("User not found", nil)
	case errors.Is(err, domain.ErrInvalidCredentials):
		return apperrors.NewValidationError("Invalid credentials", nil)
	case errors.Is(err, domain.ErrInvalidToken):
		return apperrors.NewUnauthorized("Invalid access token")
	case errors.Is(err, domain.ErrInvalidRefreshToken):
		return apperrors.NewUnauthorized("Invalid refresh token")
	default:
		return apperrors.MapError(err)
	}
}
