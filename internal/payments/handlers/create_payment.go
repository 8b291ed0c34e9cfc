package handlers

import (
	"context"
	"net/http"
	"payment-stats/internal/payments/entities"
	"payment-stats/internal/payments/repository"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// PaymentQueue hands payments over to the ingest worker.
type PaymentQueue interface {
	Enqueue(ctx context.Context, p entities.Payment) error
	ClearStream(ctx context.Context) error
}

type CreatePaymentHandler struct {
	store        repository.Payment
	paymentQueue PaymentQueue
}

// NewCreatePaymentHandler saves straight into store, unless q is non-nil,
// in which case payments are enqueued and persisted by the worker.
func NewCreatePaymentHandler(store repository.Payment, q PaymentQueue) *CreatePaymentHandler {
	return &CreatePaymentHandler{store: store, paymentQueue: q}
}

func (h *CreatePaymentHandler) Handle(c echo.Context) error {
	var payment entities.Payment
	if err := c.Bind(&payment); err != nil {
		return badRequest(c, "invalid request")
	}
	if payment.PaymentDate.IsZero() {
		return badRequest(c, "missing 'paymentDate'")
	}
	if payment.ID == "" {
		payment.ID = uuid.NewString()
	}
	if payment.Items == nil {
		payment.Items = []entities.PaymentItem{}
	}

	ctx := c.Request().Context()
	if h.paymentQueue != nil {
		if err := h.paymentQueue.Enqueue(ctx, payment); err != nil {
			return internalError(c, "failed to enqueue payment", err)
		}
		return c.JSON(http.StatusAccepted, payment)
	}

	if err := h.store.Save(ctx, payment); err != nil {
		return internalError(c, "failed to save payment", err)
	}
	return c.JSON(http.StatusCreated, payment)
}
