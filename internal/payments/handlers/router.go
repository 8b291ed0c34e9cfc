package handlers

import (
	"net/http"
	"payment-stats/internal/payments"
	"payment-stats/internal/payments/repository"

	"github.com/labstack/echo/v4"
)

// Dependencies are the collaborators of the HTTP API. Queue and Locker are
// optional and must be left as untyped nil when Redis is not configured.
type Dependencies struct {
	Service *payments.Service
	Store   repository.Payment
	Queue   PaymentQueue
	Locker  Locker
}

func Register(e *echo.Echo, deps Dependencies) {
	listPayments := NewListPaymentsHandler(deps.Service)
	getProducts := NewGetProductsHandler(deps.Service)
	getTotals := NewGetTotalsHandler(deps.Service)
	getUserItems := NewGetUserItemsHandler(deps.Service)
	createPayment := NewCreatePaymentHandler(deps.Store, deps.Queue)
	purgePayments := NewPurgePaymentsHandler(deps.Store, deps.Queue, deps.Locker)

	e.GET("/payments", listPayments.Handle)
	e.GET("/payments/month/:yearMonth", listPayments.HandleMonth)
	e.GET("/payments/current-month", listPayments.HandleCurrentMonth)
	e.GET("/payments/last-days/:days", listPayments.HandleLastDays)
	e.GET("/payments/single-item", listPayments.HandleSingleItem)
	e.GET("/payments/value-over", listPayments.HandleValueOver)
	e.POST("/payments", createPayment.Handle)

	e.GET("/products/current-month", getProducts.Handle)
	e.GET("/totals/:yearMonth", getTotals.Handle)
	e.GET("/users/:email/items", getUserItems.Handle)

	e.POST("/purge-payments", purgePayments.Handle)

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
}
