package handler

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/abneribeiro/apits/internal/api/metrics"
	"github.com/abneribeiro/apits/internal/core/domain"
	"github.com/abneribeiro/apits/internal/core/ports"
)

// UserHandler serves account administration routes.
type UserHandler struct {
	users   ports.UserService
	metrics *metrics.Metrics
}

func NewUserHandler(users ports.UserService, m *metrics.Metrics) *UserHandler {
	return &UserHandler{users: users, metrics: m}
}

type adminUpdateUserRequest struct {
	Email           *string `json:"email" validate:"omitempty,email"`
	Username        *string `json:"username" validate:"omitempty,min=3,max=100"`
	FirstName       *string `json:"firstName" validate:"omitempty,max=100"`
	LastName        *string `json:"lastName" validate:"omitempty,max=100"`
	Role            *string `json:"role" validate:"omitempty,role"`
	IsActive        *bool   `json:"isActive"`
	IsEmailVerified *bool   `json:"isEmailVerified"`
}

func (r adminUpdateUserRequest) update() domain.UserUpdate {
	upd := domain.UserUpdate{
		Username:        r.Username,
		FirstName:       r.FirstName,
		LastName:        r.LastName,
		IsActive:        r.IsActive,
		IsEmailVerified: r.IsEmailVerified,
	}
	if r.Email != nil {
		email := strings.ToLower(*r.Email)
		upd.Email = &email
	}
	if r.Role != nil {
		role := domain.Role(strings.ToLower(*r.Role))
		upd.Role = &role
	}
	return upd
}

// List returns one page of accounts.
//
// @Summary      List users
// @Tags         users
// @Produce      json
// @Security     BearerAuth
// @Param        page     query     int     false  "Page number (default 1)"
// @Param        limit    query     int     false  "Page size, 1-100 (default 10)"
// @Param        orderBy  query     string  false  "createdAt, updatedAt, email or username"
// @Param        order    query     string  false  "asc or desc (default desc)"
// @Success      200      {object}  Envelope{data=domain.Page[domain.UserWithPermissions]}
// @Failure      400      {object}  Envelope
// @Failure      403      {object}  Envelope
// @Router       /users [get]
func (h *UserHandler) List(c echo.Context) error {
	q, err := pageQuery(c)
	if err != nil {
		return err
	}

	page, err := h.users.ListUsers(c.Request().Context(), q)
	if err != nil {
		return err
	}

	return Success(c, http.StatusOK, page, "Users retrieved successfully")
}

// Get returns one account. Callers other than admins may only read their own.
//
// @Summary      Get a user
// @Tags         users
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "User ID"
// @Success      200  {object}  Envelope{data=domain.UserWithPermissions}
// @Failure      403  {object}  Envelope
// @Failure      404  {object}  Envelope
// @Router       /users/{id} [get]
func (h *UserHandler) Get(c echo.Context) error {
	user, err := h.users.GetUser(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return Success(c, http.StatusOK, user, "User retrieved successfully")
}

// Update changes any account field. Setting isActive to false signs the user
// out everywhere.
//
// @Summary      Update a user
// @Tags         users
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id    path      string                  true  "User ID"
// @Param        body  body      adminUpdateUserRequest  true  "Fields to change"
// @Success      200   {object}  Envelope{data=domain.UserWithPermissions}
// @Failure      400   {object}  Envelope
// @Failure      404   {object}  Envelope
// @Failure      409   {object}  Envelope
// @Router       /users/{id} [put]
func (h *UserHandler) Update(c echo.Context) error {
	var req adminUpdateUserRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	user, revoked, err := h.users.UpdateUser(c.Request().Context(), c.Param("id"), req.update())
	if err != nil {
		return err
	}
	if revoked {
		h.metrics.SessionsRevokedTotal.WithLabelValues(metrics.TriggerUpdateInactive).Inc()
	}

	return Success(c, http.StatusOK, user, "User updated successfully")
}

// Delete removes an account together with its sessions and direct grants.
//
// @Summary      Delete a user
// @Tags         users
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "User ID"
// @Success      200  {object}  Envelope
// @Failure      404  {object}  Envelope
// @Router       /users/{id} [delete]
func (h *UserHandler) Delete(c echo.Context) error {
	if err := h.users.DeleteUser(c.Request().Context(), c.Param("id")); err != nil {
		return err
	}
	h.metrics.SessionsRevokedTotal.WithLabelValues(metrics.TriggerDelete).Inc()

	return Success(c, http.StatusOK, nil, "User deleted successfully")
}

// @Summary      Deactivate a user
// @Tags         users
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "User ID"
// @Success      200  {object}  Envelope{data=domain.UserWithPermissions}
// @Failure      404  {object}  Envelope
// @Router       /users/{id}/deactivate [put]
func (h *UserHandler) Deactivate(c echo.Context) error {
	user, err := h.users.Deactivate(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	h.metrics.SessionsRevokedTotal.WithLabelValues(metrics.TriggerDeactivate).Inc()

	return Success(c, http.StatusOK, user, "User deactivated successfully")
}

// @Summary      Activate a user
// @Tags         users
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "User ID"
// @Success      200  {object}  Envelope{data=domain.UserWithPermissions}
// @Failure      404  {object}  Envelope
// @Router       /users/{id}/activate [put]
func (h *UserHandler) Activate(c echo.Context) error {
	user, err := h.users.Activate(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return Success(c, http.StatusOK, user, "User activated successfully")
}
