package report

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/openlis/lis/internal/domain/billing"
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
	api.GET("/reports", h.SearchReports)
	api.GET("/reports/:id", h.GetReport)
	api.GET("/reports/sid/:sid", h.GetReportBySID)
}

func (h *Handler) SearchReports(c echo.Context) error {
	scope, err := h.scope(c)
	if err != nil {
		return err
	}
	tenantID, _ := strconv.Atoi(c.QueryParam("tenant_id"))
	cr := Criteria{
		SID:           c.QueryParam("sid"),
		Patient:       c.QueryParam("patient"),
		TenantID:      tenantID,
		From:          c.QueryParam("from"),
		To:            c.QueryParam("to"),
		InvoiceNumber: c.QueryParam("invoice_number"),
	}
	reports, err := h.svc.Search(c.Request().Context(), cr, scope)
	if err != nil {
		return mapError(err)
	}
	pg := pagination.FromContext(c)
	lo, hi := pg.Slice(len(reports))
	return c.JSON(http.StatusOK, pagination.NewResponse(reports[lo:hi], len(reports), pg.Limit, pg.Offset))
}

func (h *Handler) GetReport(c echo.Context) error {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	scope, err := h.scope(c)
	if err != nil {
		return err
	}
	r, err := h.svc.GetByID(c.Request().Context(), id, scope)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, r)
}

func (h *Handler) GetReportBySID(c echo.Context) error {
	scope, err := h.scope(c)
	if err != nil {
		return err
	}
	r, err := h.svc.GetBySID(c.Request().Context(), c.Param("sid"), scope)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, r)
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
	case errors.Is(err, ErrReportNotFound), errors.Is(err, billing.ErrBillingNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrOutOfScope):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	case errors.Is(err, store.ErrCorrupt):
		return echo.NewHTTPError(http.StatusInternalServerError,
			"data file unreadable; restore the most recent backup")
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
