package handlers

import (
	"net/http"
	"net/url"
	"payment-stats/internal/payments"

	"github.com/labstack/echo/v4"
)

type GetUserItemsHandler struct {
	paymentService *payments.Service
}

func NewGetUserItemsHandler(s *payments.Service) *GetUserItemsHandler {
	return &GetUserItemsHandler{paymentService: s}
}

func (h *GetUserItemsHandler) Handle(c echo.Context) error {
	email, err := emailParam(c)
	if err != nil || email == "" {
		return badRequest(c, "invalid 'email'")
	}

	items, err := h.paymentService.ItemsForUserEmail(c.Request().Context(), email)
	if err != nil {
		return internalError(c, "failed to list items", err)
	}
	return c.JSON(http.StatusOK, items)
}

// emailParam decodes the path param once. echo routes on URL.RawPath when
// the request carried one, leaving its params escaped.
func emailParam(c echo.Context) (string, error) {
	email := c.Param("email")
	if c.Request().URL.RawPath == "" {
		return email, nil
	}
	return url.PathUnescape(email)
}
