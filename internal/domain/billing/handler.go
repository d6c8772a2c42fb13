package billing

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinicore/clinicore/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	staff := api.Group("", auth.RequireRole(auth.RoleDoctor, auth.RoleReceptionist))
	staff.GET("/visits/:id/invoice", h.GetByVisit)
	staff.POST("/invoices/:id/discount", h.ApplyDiscount)
	staff.POST("/invoices/:id/pay", h.MarkPaid)
}

type invoiceResponse struct {
	Invoice *Invoice       `json:"invoice"`
	Items   []*InvoiceItem `json:"items"`
}

func (h *Handler) GetByVisit(c echo.Context) error {
	visitID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid visit id")
	}
	inv, items, err := h.svc.GetByVisit(c.Request().Context(), visitID)
	if err != nil {
		if errors.Is(err, ErrInvoiceNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "invoice not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, invoiceResponse{Invoice: inv, Items: items})
}

type discountRequest struct {
	Discount int64 `json:"discount"`
}

func (h *Handler) ApplyDiscount(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req discountRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	inv, err := h.svc.ApplyDiscount(c.Request().Context(), id, req.Discount)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvoiceNotFound):
			return echo.NewHTTPError(http.StatusNotFound, "invoice not found")
		case errors.Is(err, ErrInvoicePaid):
			return echo.NewHTTPError(http.StatusConflict, "invoice already paid")
		case errors.Is(err, ErrDiscountOutOfRange):
			return echo.NewHTTPError(http.StatusBadRequest, "discount out of range")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, inv)
}

func (h *Handler) MarkPaid(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	inv, err := h.svc.MarkPaid(c.Request().Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvoiceNotFound):
			return echo.NewHTTPError(http.StatusNotFound, "invoice not found")
		case errors.Is(err, ErrInvoicePaid):
			return echo.NewHTTPError(http.StatusConflict, "invoice already paid")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, inv)
}
