package handlers

import (
	"context"
	"net/http"
	"payment-stats/internal/payments"
	"payment-stats/internal/payments/entities"
	"strconv"

	"github.com/labstack/echo/v4"
)

type ListPaymentsHandler struct {
	paymentService *payments.Service
}

func NewListPaymentsHandler(s *payments.Service) *ListPaymentsHandler {
	return &ListPaymentsHandler{paymentService: s}
}

// Handle serves GET /payments?sort=date|items&order=asc|desc.
func (h *ListPaymentsHandler) Handle(c echo.Context) error {
	sortBy := c.QueryParam("sort")
	if sortBy == "" {
		sortBy = "date"
	}
	order := c.QueryParam("order")
	if order == "" {
		order = "asc"
	}

	var query func(context.Context) ([]entities.Payment, error)
	switch sortBy + ":" + order {
	case "date:asc":
		query = h.paymentService.SortedByDateAsc
	case "date:desc":
		query = h.paymentService.SortedByDateDesc
	case "items:asc":
		query = h.paymentService.SortedByItemCountAsc
	case "items:desc":
		query = h.paymentService.SortedByItemCountDesc
	default:
		return badRequest(c, "invalid 'sort' or 'order'")
	}

	result, err := query(c.Request().Context())
	if err != nil {
		return internalError(c, "failed to list payments", err)
	}
	return c.JSON(http.StatusOK, result)
}

func (h *ListPaymentsHandler) HandleMonth(c echo.Context) error {
	ym, err := entities.ParseYearMonth(c.Param("yearMonth"))
	if err != nil {
		return badRequest(c, "invalid year-month, expected YYYY-MM")
	}

	result, err := h.paymentService.ForMonth(c.Request().Context(), ym)
	if err != nil {
		return internalError(c, "failed to list payments", err)
	}
	return c.JSON(http.StatusOK, result)
}

func (h *ListPaymentsHandler) HandleCurrentMonth(c echo.Context) error {
	result, err := h.paymentService.ForCurrentMonth(c.Request().Context())
	if err != nil {
		return internalError(c, "failed to list payments", err)
	}
	return c.JSON(http.StatusOK, result)
}

func (h *ListPaymentsHandler) HandleLastDays(c echo.Context) error {
	days, err := strconv.Atoi(c.Param("days"))
	if err != nil {
		return badRequest(c, "invalid 'days'")
	}

	result, err := h.paymentService.ForLastDays(c.Request().Context(), days)
	if err != nil {
		return internalError(c, "failed to list payments", err)
	}
	return c.JSON(http.StatusOK, result)
}

func (h *ListPaymentsHandler) HandleSingleItem(c echo.Context) error {
	result, err := h.paymentService.WithExactlyOneItem(c.Request().Context())
	if err != nil {
		return internalError(c, "failed to list payments", err)
	}
	return c.JSON(http.StatusOK, result)
}

func (h *ListPaymentsHandler) HandleValueOver(c echo.Context) error {
	threshold, err := strconv.ParseFloat(c.QueryParam("threshold"), 64)
	if err != nil {
		return badRequest(c, "invalid 'threshold'")
	}

	result, err := h.paymentService.WithValueOver(c.Request().Context(), threshold)
	if err != nil {
		return internalError(c, "failed to list payments", err)
	}
	return c.JSON(http.StatusOK, result)
}
