package handlers

import (
	"net/http"
	"payment-stats/internal/payments"
	"payment-stats/internal/payments/entities"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
)

type MonthTotals struct {
	YearMonth entities.YearMonth `json:"yearMonth"`
	Total     decimal.Decimal    `json:"total"`
	Discount  decimal.Decimal    `json:"discount"`
}

type GetTotalsHandler struct {
	paymentService *payments.Service
}

func NewGetTotalsHandler(s *payments.Service) *GetTotalsHandler {
	return &GetTotalsHandler{paymentService: s}
}

func (h *GetTotalsHandler) Handle(c echo.Context) error {
	ym, err := entities.ParseYearMonth(c.Param("yearMonth"))
	if err != nil {
		return badRequest(c, "invalid year-month, expected YYYY-MM")
	}

	ctx := c.Request().Context()
	total, err := h.paymentService.TotalForMonth(ctx, ym)
	if err != nil {
		return internalError(c, "failed to sum totals", err)
	}
	discount, err := h.paymentService.TotalDiscountForMonth(ctx, ym)
	if err != nil {
		return internalError(c, "failed to sum discounts", err)
	}

	return c.JSON(http.StatusOK, MonthTotals{YearMonth: ym, Total: total, Discount: discount})
}
