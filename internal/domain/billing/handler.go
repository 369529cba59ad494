package billing

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/openlis/lis/internal/domain/franchise"
	"github.com/openlis/lis/internal/domain/sid"
	"github.com/openlis/lis/internal/platform/auth"
	"github.com/openlis/lis/internal/platform/store"
	"github.com/openlis/lis/pkg/pagination"
)

type Handler struct {
	svc *Service
	dir auth.TenantDirectory
}

func NewHandler(svc *Service, dir auth.TenantDirectory) *Handler {
	return &Handler{svc: svc, dir: dir}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/billings", h.CreateBilling)
	api.GET("/billings", h.ListBillings)
	api.GET("/billings/:id", h.GetBilling)
	api.PUT("/billings/:id/payment", h.RecordPayment)
	api.POST("/billings/:id/report", h.RegenerateReport)
}

func (h *Handler) CreateBilling(c echo.Context) error {
	var in CreateInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	res, err := h.svc.Create(c.Request().Context(), in)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusCreated, res)
}

func (h *Handler) ListBillings(c echo.Context) error {
	scope, err := h.scope(c)
	if err != nil {
		return err
	}
	billings, err := h.svc.List(c.Request().Context(), scope)
	if err != nil {
		return mapError(err)
	}
	pg := pagination.FromContext(c)
	lo, hi := pg.Slice(len(billings))
	return c.JSON(http.StatusOK, pagination.NewResponse(billings[lo:hi], len(billings), pg.Limit, pg.Offset))
}

func (h *Handler) GetBilling(c echo.Context) error {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	scope, err := h.scope(c)
	if err != nil {
		return err
	}
	b, err := h.svc.Get(c.Request().Context(), id, scope)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, b)
}

func (h *Handler) RecordPayment(c echo.Context) error {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var in PaymentInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	scope, err := h.scope(c)
	if err != nil {
		return err
	}
	b, err := h.svc.RecordPayment(c.Request().Context(), id, in, scope)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, b)
}

func (h *Handler) RegenerateReport(c echo.Context) error {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	scope, err := h.scope(c)
	if err != nil {
		return err
	}
	if err := h.svc.Regenerate(c.Request().Context(), id, scope); err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, map[string]bool{"report_generated": true})
}

func (h *Handler) scope(c echo.Context) (auth.Scope, error) {
	actor := auth.ActorFromContext(c.Request().Context())
	scope, err := auth.ResolveScope(c.Request().Context(), h.dir, actor)
	if err != nil {
		return auth.Scope{}, echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return scope, nil
}

func mapError(err error) error {
	switch {
	case errors.Is(err, franchise.ErrTenantNotFound), errors.Is(err, ErrBillingNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrOutOfScope):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	case errors.Is(err, ErrSIDTaken):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, sid.ErrEmpty), errors.Is(err, sid.ErrPrefix),
		errors.Is(err, sid.ErrFormat), errors.Is(err, sid.ErrLength):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, franchise.ErrInvariantViolated):
		return echo.NewHTTPError(http.StatusInternalServerError,
			"duplicate site codes detected; run the SID repair protocol")
	case errors.Is(err, store.ErrCorrupt):
		return echo.NewHTTPError(http.StatusInternalServerError,
			"data file unreadable; restore the most recent backup")
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
