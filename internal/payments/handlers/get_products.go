package handlers

import (
	"net/http"
	"payment-stats/internal/payments"

	"github.com/labstack/echo/v4"
)

type GetProductsHandler struct {
	paymentService *payments.Service
}

func NewGetProductsHandler(s *payments.Service) *GetProductsHandler {
	return &GetProductsHandler{paymentService: s}
}

func (h *GetProductsHandler) Handle(c echo.Context) error {
	products, err := h.paymentService.ProductsSoldInCurrentMonth(c.Request().Context())
	if err != nil {
		return internalError(c, "failed to list products", err)
	}
	return c.JSON(http.StatusOK, products)
}
