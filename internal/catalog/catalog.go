// Package catalog serves the task categories.
package catalog

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/sudo-init-do/skillhub/internal/httpx"
)

type Category struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Slug        string `json:"slug"`
	Icon        string `json:"icon"`
	Color       string `json:"color,omitempty"`
	Description string `json:"description"`
	SortOrder   int    `json:"sort_order"`
}

var defaults = []Category{
	{ID: "1", Name: "Mounting & Installation", Slug: "mounting", Icon: "construct", Color: "#FF6B35", Description: "TV mounting, shelves, art, mirrors", SortOrder: 1},
	{ID: "2", Name: "Furniture Assembly", Slug: "furniture", Icon: "construct", Color: "#4ECDC4", Description: "IKEA and other furniture assembly", SortOrder: 2},
	{ID: "3", Name: "Moving Help", Slug: "moving", Icon: "car", Color: "#45B7D1", Description: "Loading, unloading, packing assistance", SortOrder: 3},
	{ID: "4", Name: "Cleaning", Slug: "cleaning", Icon: "sparkles", Color: "#96CEB4", Description: "Home cleaning, deep cleaning, organizing", SortOrder: 4},
	{ID: "5", Name: "Delivery", Slug: "delivery", Icon: "bicycle", Color: "#FFEAA7", Description: "Pick up and delivery services", SortOrder: 5},
	{ID: "6", Name: "Handyman", Slug: "handyman", Icon: "hammer", Color: "#DDA0DD", Description: "General repairs and maintenance", SortOrder: 6},
	{ID: "7", Name: "Electrical", Slug: "electrical", Icon: "flash", Color: "#FFD93D", Description: "Light fixtures, outlets, switches", SortOrder: 7},
	{ID: "8", Name: "Plumbing", Slug: "plumbing", Icon: "water", Color: "#6C5CE7", Description: "Faucets, toilets, minor repairs", SortOrder: 8},
	{ID: "9", Name: "Painting", Slug: "painting", Icon: "color-palette", Color: "#FF7675", Description: "Interior painting, touch-ups", SortOrder: 9},
	{ID: "10", Name: "Yard Work", Slug: "yard", Icon: "leaf", Color: "#00B894", Description: "Lawn care, gardening, landscaping", SortOrder: 10},
}

// Defaults returns the built-in categories in display order. The schema
// bootstrap seeds the categories table from the same list.
func Defaults() []Category {
	out := make([]Category, len(defaults))
	copy(out, defaults)
	return out
}

// Store lists the active categories in display order.
type Store interface {
	ListCategories(ctx context.Context) ([]Category, error)
}

type Handler struct {
	store Store
}

func NewHandler(store Store) *Handler {
	return &Handler{store: store}
}

// GET /service-categories
func (h *Handler) ServiceCategories(c echo.Context) error {
	return c.JSON(http.StatusOK, Defaults())
}

// GET /categories
func (h *Handler) Categories(c echo.Context) error {
	cats, err := h.store.ListCategories(c.Request().Context())
	if err != nil {
		return httpx.Error(c, err)
	}
	if cats == nil {
		cats = []Category{}
	}
	return c.JSON(http.StatusOK, cats)
}
