package franchise

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/openlis/lis/internal/platform/auth"
)

type Handler struct {
	registry *Registry
}

func NewHandler(registry *Registry) *Handler {
	return &Handler{registry: registry}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	role := auth.RequireRole(auth.RoleHubAdmin, auth.RoleFranchiseAdmin)
	api.GET("/tenants", h.ListTenants, role)
	api.GET("/tenants/:id", h.GetTenant, role)
}

func (h *Handler) ListTenants(c echo.Context) error {
	tenants, err := h.registry.ListActive(c.Request().Context())
	if err != nil {
		if errors.Is(err, ErrInvariantViolated) {
			return echo.NewHTTPError(http.StatusInternalServerError,
				"duplicate site codes detected; run the SID repair protocol")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, tenants)
}

func (h *Handler) GetTenant(c echo.Context) error {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	t, err := h.registry.Get(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, ErrTenantNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "tenant not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, t)
}
