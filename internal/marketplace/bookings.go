package marketplace

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/sudo-init-do/skillhub/internal/httpx"
	"github.com/sudo-init-do/skillhub/internal/middleware"
)

// Bookings predate tasks. Old clients still call these routes, so they answer
// in the old shape but persist nothing.

type Booking struct {
	ID          string     `json:"id"`
	CustomerID  string     `json:"customer_id"`
	ServiceType string     `json:"service_type"`
	Description string     `json:"description"`
	ScheduledAt *time.Time `json:"scheduled_at"`
	Status      TaskStatus `json:"status"`
	Location    Location   `json:"location"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

type CreateBookingRequest struct {
	ServiceType string     `json:"service_type" validate:"required,max=100"`
	Description string     `json:"description" validate:"max=5000"`
	ScheduledAt *time.Time `json:"scheduled_at"`
	Location    Location   `json:"location"`
}

// GET /bookings
func (h *Handler) ListBookings(c echo.Context) error {
	if _, err := middleware.MustIdentity(c); err != nil {
		return httpx.Error(c, err)
	}
	return c.JSON(http.StatusOK, []Booking{})
}

// POST /bookings
func (h *Handler) CreateBooking(c echo.Context) error {
	id, err := middleware.MustIdentity(c)
	if err != nil {
		return httpx.Error(c, err)
	}
	var req CreateBookingRequest
	if err := httpx.Bind(c, &req); err != nil {
		return httpx.Error(c, err)
	}
	now := h.svc.clock()
	return c.JSON(http.StatusOK, Booking{
		ID:          uuid.NewString(),
		CustomerID:  id.UserID,
		ServiceType: req.ServiceType,
		Description: req.Description,
		ScheduledAt: req.ScheduledAt,
		Status:      TaskPosted,
		Location:    req.Location,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
}
