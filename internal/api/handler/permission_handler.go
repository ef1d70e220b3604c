package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/abneribeiro/apits/internal/core/domain"
	"github.com/abneribeiro/apits/internal/core/ports"
)

// PermissionHandler serves permission administration and permission checks.
type PermissionHandler struct {
	perms ports.PermissionService
}

func NewPermissionHandler(perms ports.PermissionService) *PermissionHandler {
	return &PermissionHandler{perms: perms}
}

type createPermissionRequest struct {
	Name        string  `json:"name" validate:"required,max=100"`
	Description *string `json:"description" validate:"omitempty,max=255"`
	Resource    string  `json:"resource" validate:"required,max=100"`
	Action      string  `json:"action" validate:"required,max=100"`
}

type updatePermissionRequest struct {
	Name        *string `json:"name" validate:"omitempty,min=1,max=100"`
	Description *string `json:"description" validate:"omitempty,max=255"`
	Resource    *string `json:"resource" validate:"omitempty,min=1,max=100"`
	Action      *string `json:"action" validate:"omitempty,min=1,max=100"`
}

type rolePermissionRequest struct {
	Role         string `json:"role" validate:"required,role"`
	PermissionID string `json:"permissionId" validate:"required,uuid"`
}

type userPermissionRequest struct {
	UserID       string `json:"userId" validate:"required,uuid"`
	PermissionID string `json:"permissionId" validate:"required,uuid"`
}

type checkPermissionRequest struct {
	Resource string `json:"resource" validate:"required"`
	Action   string `json:"action" validate:"required"`
}

type checkPermissionResponse struct {
	Resource      string `json:"resource"`
	Action        string `json:"action"`
	HasPermission bool   `json:"hasPermission"`
}

// @Summary      Create a permission
// @Tags         permissions
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body  body      createPermissionRequest  true  "Permission"
// @Success      201   {object}  Envelope{data=domain.Permission}
// @Failure      400   {object}  Envelope
// @Failure      409   {object}  Envelope
// @Router       /permissions [post]
func (h *PermissionHandler) Create(c echo.Context) error {
	var req createPermissionRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	p, err := h.perms.Create(c.Request().Context(), ports.CreatePermissionInput{
		Name:        req.Name,
		Description: req.Description,
		Resource:    req.Resource,
		Action:      req.Action,
	})
	if err != nil {
		return err
	}

	return Success(c, http.StatusCreated, p, "Permission created successfully")
}

// @Summary      List permissions
// @Tags         permissions
// @Produce      json
// @Security     BearerAuth
// @Param        page     query     int     false  "Page number (default 1)"
// @Param        limit    query     int     false  "Page size, 1-100 (default 10)"
// @Param        orderBy  query     string  false  "createdAt, updatedAt or name"
// @Param        order    query     string  false  "asc or desc (default desc)"
// @Success      200      {object}  Envelope{data=domain.Page[domain.Permission]}
// @Failure      400      {object}  Envelope
// @Router       /permissions [get]
func (h *PermissionHandler) List(c echo.Context) error {
	q, err := pageQuery(c)
	if err != nil {
		return err
	}

	page, err := h.perms.List(c.Request().Context(), q)
	if err != nil {
		return err
	}

	return Success(c, http.StatusOK, page, "Permissions retrieved successfully")
}

// @Summary      Get a permission
// @Tags         permissions
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Permission ID"
// @Success      200  {object}  Envelope{data=domain.Permission}
// @Failure      404  {object}  Envelope
// @Router       /permissions/{id} [get]
func (h *PermissionHandler) Get(c echo.Context) error {
	p, err := h.perms.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return Success(c, http.StatusOK, p, "Permission retrieved successfully")
}

// @Summary      Update a permission
// @Tags         permissions
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id    path      string                   true  "Permission ID"
// @Param        body  body      updatePermissionRequest  true  "Fields to change"
// @Success      200   {object}  Envelope{data=domain.Permission}
// @Failure      404   {object}  Envelope
// @Failure      409   {object}  Envelope
// @Router       /permissions/{id} [put]
func (h *PermissionHandler) Update(c echo.Context) error {
	var req updatePermissionRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	p, err := h.perms.Update(c.Request().Context(), c.Param("id"), domain.PermissionUpdate{
		Name:        req.Name,
		Description: req.Description,
		Resource:    req.Resource,
		Action:      req.Action,
	})
	if err != nil {
		return err
	}

	return Success(c, http.StatusOK, p, "Permission updated successfully")
}

// @Summary      Delete a permission
// @Tags         permissions
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Permission ID"
// @Success      200  {object}  Envelope
// @Failure      404  {object}  Envelope
// @Router       /permissions/{id} [delete]
func (h *PermissionHandler) Delete(c echo.Context) error {
	if err := h.perms.Delete(c.Request().Context(), c.Param("id")); err != nil {
		return err
	}
	return Success(c, http.StatusOK, nil, "Permission deleted successfully")
}

// @Summary      Grant a permission to a role
// @Tags         permissions
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body  body      rolePermissionRequest  true  "Role and permission"
// @Success      200   {object}  Envelope
// @Failure      400   {object}  Envelope
// @Failure      404   {object}  Envelope
// @Router       /permissions/role/assign [post]
func (h *PermissionHandler) AssignToRole(c echo.Context) error {
	var req rolePermissionRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	if err := h.perms.AssignToRole(c.Request().Context(), req.Role, req.PermissionID); err != nil {
		return err
	}
	return Success(c, http.StatusOK, nil, "Permission assigned to role successfully")
}

// @Summary      Revoke a permission from a role
// @Tags         permissions
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body  body      rolePermissionRequest  true  "Role and permission"
// @Success      200   {object}  Envelope
// @Failure      404   {object}  Envelope
// @Router       /permissions/role/revoke [post]
func (h *PermissionHandler) RevokeFromRole(c echo.Context) error {
	var req rolePermissionRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	if err := h.perms.RevokeFromRole(c.Request().Context(), req.Role, req.PermissionID); err != nil {
		return err
	}
	return Success(c, http.StatusOK, nil, "Permission revoked from role successfully")
}

// @Summary      List a role's permissions
// @Tags         permissions
// @Produce      json
// @Security     BearerAuth
// @Param        role  path      string  true  "admin, moderator or user"
// @Success      200   {object}  Envelope{data=[]domain.Permission}
// @Failure      400   {object}  Envelope
// @Router       /permissions/role/{role} [get]
func (h *PermissionHandler) RolePermissions(c echo.Context) error {
	perms, err := h.perms.RolePermissions(c.Request().Context(), c.Param("role"))
	if err != nil {
		return err
	}
	return Success(c, http.StatusOK, perms, "Role permissions retrieved successfully")
}

// @Summary      Grant a permission to a user
// @Tags         permissions
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body  body      userPermissionRequest  true  "User and permission"
// @Success      200   {object}  Envelope
// @Failure      404   {object}  Envelope
// @Router       /permissions/user/assign [post]
func (h *PermissionHandler) AssignToUser(c echo.Context) error {
	var req userPermissionRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	if err := h.perms.AssignToUser(c.Request().Context(), req.UserID, req.PermissionID); err != nil {
		return err
	}
	return Success(c, http.StatusOK, nil, "Permission assigned to user successfully")
}

// @Summary      Revoke a permission from a user
// @Tags         permissions
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body  body      userPermissionRequest  true  "User and permission"
// @Success      200   {object}  Envelope
// @Failure      404   {object}  Envelope
// @Router       /permissions/user/revoke [post]
func (h *PermissionHandler) RevokeFromUser(c echo.Context) error {
	var req userPermissionRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	if err := h.perms.RevokeFromUser(c.Request().Context(), req.UserID, req.PermissionID); err != nil {
		return err
	}
	return Success(c, http.StatusOK, nil, "Permission revoked from user successfully")
}

// UserPermissions lists the permissions granted directly to a user.
//
// @Summary      List a user's direct permissions
// @Tags         permissions
// @Produce      json
// @Security     BearerAuth
// @Param        userId  path      string  true  "User ID"
// @Success      200     {object}  Envelope{data=[]domain.Permission}
// @Router       /permissions/user/{userId} [get]
func (h *PermissionHandler) UserPermissions(c echo.Context) error {
	perms, err := h.perms.UserPermissions(c.Request().Context(), c.Param("userId"))
	if err != nil {
		return err
	}
	return Success(c, http.StatusOK, perms, "User permissions retrieved successfully")
}

// UserEffectivePermissions lists a user's role and direct permissions together.
//
// @Summary      List a user's effective permissions
// @Tags         permissions
// @Produce      json
// @Security     BearerAuth
// @Param        userId  path      string  true  "User ID"
// @Success      200     {object}  Envelope{data=[]domain.Permission}
// @Failure      404     {object}  Envelope
// @Router       /permissions/user/{userId}/all [get]
func (h *PermissionHandler) UserEffectivePermissions(c echo.Context) error {
	perms, err := h.perms.UserEffectivePermissions(c.Request().Context(), c.Param("userId"))
	if err != nil {
		return err
	}
	return Success(c, http.StatusOK, perms, "User all permissions retrieved successfully")
}

// Check reports whether the caller holds action on resource.
//
// @Summary      Check own permission
// @Tags         permissions
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body  body      checkPermissionRequest  true  "Resource and action"
// @Success      200   {object}  Envelope{data=checkPermissionResponse}
// @Failure      400   {object}  Envelope
// @Router       /permissions/check [post]
func (h *PermissionHandler) Check(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	var req checkPermissionRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	ok, err := h.perms.CheckPermission(c.Request().Context(), p.UserID, p.Role, req.Resource, req.Action)
	if err != nil {
		return err
	}

	return Success(c, http.StatusOK, checkPermissionResponse{
		Resource:      req.Resource,
		Action:        req.Action,
		HasPermission: ok,
	}, "Permission checked successfully")
}
