package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/vehicle-rental-bot/internal/model"
)

// CatalogStore lists the read-only catalog.
type CatalogStore interface {
	ListActiveLocations(ctx context.Context) ([]model.Location, error)
	ListActiveExtras(ctx context.Context) ([]model.Extra, error)
}

// CatalogHandler exposes the pickup sites and add-ons channel adapters
// render in their own menus.
type CatalogHandler struct {
	Store CatalogStore
}

func NewCatalogHandler(s CatalogStore) *CatalogHandler { return &CatalogHandler{Store: s} }

// Locations handles GET /v1/catalog/locations.
func (h *CatalogHandler) Locations(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	items, err := h.Store.ListActiveLocations(ctx)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	if items == nil {
		items = []model.Location{}
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items})
}

// Extras handles GET /v1/catalog/extras.
func (h *CatalogHandler) Extras(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	items, err := h.Store.ListActiveExtras(ctx)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	if items == nil {
		items = []model.Extra{}
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items})
}
