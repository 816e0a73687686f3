package user

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/sudo-init-do/skillhub/internal/apperr"
	"github.com/sudo-init-do/skillhub/internal/httpx"
	"github.com/sudo-init-do/skillhub/internal/middleware"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// GET /profiles/:user_id
func (h *Handler) GetPublicProfile(c echo.Context) error {
	userID := c.Param("user_id")
	if _, err := uuid.Parse(userID); err != nil {
		return httpx.Error(c, apperr.NotFound("profile not found"))
	}
	p, err := h.svc.GetProfile(c.Request().Context(), userID)
	if err != nil {
		return httpx.Error(c, err)
	}
	return c.JSON(http.StatusOK, p)
}

// GET /profile
func (h *Handler) GetOwnProfile(c echo.Context) error {
	id, err := middleware.MustIdentity(c)
	if err != nil {
		return httpx.Error(c, err)
	}
	p, err := h.svc.GetOwnProfile(c.Request().Context(), id.UserID)
	if err != nil {
		return httpx.Error(c, err)
	}
	return c.JSON(http.StatusOK, p)
}

// PUT /profile
func (h *Handler) UpdateOwnProfile(c echo.Context) error {
	id, err := middleware.MustIdentity(c)
	if err != nil {
		return httpx.Error(c, err)
	}
	var req UpdateProfileRequest
	if err := httpx.Bind(c, &req); err != nil {
		return httpx.Error(c, err)
	}
	p, err := h.svc.UpdateOwnProfile(c.Request().Context(), id.UserID, req)
	if err != nil {
		return httpx.Error(c, err)
	}
	return c.JSON(http.StatusOK, p)
}
