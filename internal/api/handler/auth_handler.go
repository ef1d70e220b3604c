package handler

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/abneribeiro/apits/internal/api/metrics"
	"github.com/abneribeiro/apits/internal/core/domain"
	"github.com/abneribeiro/apits/internal/core/ports"
)

// AuthHandler serves registration, login, session and profile routes.
type AuthHandler struct {
	auth    ports.AuthService
	users   ports.UserService
	metrics *metrics.Metrics
}

func NewAuthHandler(auth ports.AuthService, users ports.UserService, m *metrics.Metrics) *AuthHandler {
	return &AuthHandler{auth: auth, users: users, metrics: m}
}

type registerRequest struct {
	Email     string  `json:"email" validate:"required,email"`
	Username  string  `json:"username" validate:"required,min=3,max=100"`
	Password  string  `json:"password" validate:"required,password"`
	FirstName *string `json:"firstName" validate:"omitempty,max=100"`
	LastName  *string `json:"lastName" validate:"omitempty,max=100"`
	Role      string  `json:"role" validate:"omitempty,role"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type refreshTokenRequest struct {
	RefreshToken string `json:"refreshToken" validate:"required"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" validate:"required"`
	NewPassword     string `json:"newPassword" validate:"required,password"`
}

type updateProfileRequest struct {
	Email     *string `json:"email" validate:"omitempty,email"`
	Username  *string `json:"username" validate:"omitempty,min=3,max=100"`
	FirstName *string `json:"firstName" validate:"omitempty,max=100"`
	LastName  *string `json:"lastName" validate:"omitempty,max=100"`
}

func (r updateProfileRequest) update() domain.UserUpdate {
	upd := domain.UserUpdate{FirstName: r.FirstName, LastName: r.LastName, Username: r.Username}
	if r.Email != nil {
		email := strings.ToLower(*r.Email)
		upd.Email = &email
	}
	return upd
}

// Register creates a new account and opens its first session.
//
// @Summary      Register a new user
// @Tags         users
// @Accept       json
// @Produce      json
// @Param        body  body      registerRequest  true  "User registration details"
// @Success      201   {object}  Envelope{data=ports.AuthResult}
// @Failure      400   {object}  Envelope
// @Failure      409   {object}  Envelope
// @Router       /users/register [post]
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	result, err := h.auth.Register(c.Request().Context(), ports.RegisterInput{
		Email:     strings.ToLower(req.Email),
		Username:  req.Username,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Role:      req.Role,
	})
	if err != nil {
		return err
	}
	h.metrics.RegistrationsTotal.Inc()

	return Success(c, http.StatusCreated, result, "User registered successfully")
}

// Login exchanges credentials for a token pair.
//
// @Summary      Login
// @Tags         users
// @Accept       json
// @Produce      json
// @Param        body  body      loginRequest  true  "Login credentials"
// @Success      200   {object}  Envelope{data=ports.AuthResult}
// @Failure      400   {object}  Envelope
// @Failure      401   {object}  Envelope
// @Router       /users/login [post]
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	result, err := h.auth.Login(c.Request().Context(), strings.ToLower(req.Email), req.Password)
	h.metrics.LoginsTotal.WithLabelValues(metrics.Result(err)).Inc()
	if err != nil {
		return err
	}

	return Success(c, http.StatusOK, result, "Login successful")
}

// Logout revokes the presented refresh token.
//
// @Summary      Logout
// @Tags         users
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body  body      refreshTokenRequest  true  "Refresh token to revoke"
// @Success      200   {object}  Envelope
// @Failure      401   {object}  Envelope
// @Router       /users/logout [post]
func (h *AuthHandler) Logout(c echo.Context) error {
	var req refreshTokenRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	if err := h.auth.Logout(c.Request().Context(), req.RefreshToken); err != nil {
		return err
	}
	h.metrics.SessionsRevokedTotal.WithLabelValues(metrics.TriggerLogout).Inc()

	return Success(c, http.StatusOK, nil, "Logout successful")
}

// Refresh rotates a refresh token into a new token pair. The presented token
// cannot be used again.
//
// @Summary      Refresh tokens
// @Tags         users
// @Accept       json
// @Produce      json
// @Param        body  body      refreshTokenRequest  true  "Current refresh token"
// @Success      200   {object}  Envelope{data=domain.TokenPair}
// @Failure      401   {object}  Envelope
// @Router       /users/refresh-token [post]
func (h *AuthHandler) Refresh(c echo.Context) error {
	var req refreshTokenRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	pair, err := h.auth.Refresh(c.Request().Context(), req.RefreshToken)
	h.metrics.RefreshTotal.WithLabelValues(metrics.Result(err)).Inc()
	if err != nil {
		return err
	}

	return Success(c, http.StatusOK, pair, "Token refreshed successfully")
}

// Profile returns the caller's account.
//
// @Summary      Get own profile
// @Tags         users
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  Envelope{data=domain.UserWithPermissions}
// @Failure      401  {object}  Envelope
// @Router       /users/profile [get]
func (h *AuthHandler) Profile(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}

	user, err := h.users.GetUser(c.Request().Context(), p.UserID)
	if err != nil {
		return err
	}

	return Success(c, http.StatusOK, user, "Profile retrieved successfully")
}

// UpdateProfile changes the caller's own contact fields. Role and activation
// status are not accepted here.
//
// @Summary      Update own profile
// @Tags         users
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body  body      updateProfileRequest  true  "Fields to change"
// @Success      200   {object}  Envelope{data=domain.UserWithPermissions}
// @Failure      400   {object}  Envelope
// @Failure      409   {object}  Envelope
// @Router       /users/profile [put]
func (h *AuthHandler) UpdateProfile(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	var req updateProfileRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	user, _, err := h.users.UpdateUser(c.Request().Context(), p.UserID, req.update())
	if err != nil {
		return err
	}

	return Success(c, http.StatusOK, user, "Profile updated successfully")
}

// ChangePassword replaces the caller's password and signs out every session.
//
// @Summary      Change password
// @Tags         users
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body  body      changePasswordRequest  true  "Current and new password"
// @Success      200   {object}  Envelope
// @Failure      400   {object}  Envelope
// @Failure      401   {object}  Envelope
// @Router       /users/profile/change-password [put]
func (h *AuthHandler) ChangePassword(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	var req changePasswordRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	if err := h.auth.ChangePassword(c.Request().Context(), p.UserID, req.CurrentPassword, req.NewPassword); err != nil {
		return err
	}
	h.metrics.SessionsRevokedTotal.WithLabelValues(metrics.TriggerPasswordChange).Inc()

	return Success(c, http.StatusOK, nil, "Password changed successfully")
}
