package handlers

import (
	"context"
	"net/http"
	"payment-stats/internal/payments/repository"

	"github.com/labstack/echo/v4"
)

const purgeLockName = "payments:purge"

// Locker serialises purges across server replicas.
type Locker interface {
	WithLock(ctx context.Context, name string, fn func(ctx context.Context) error) error
}

type PurgePaymentsHandler struct {
	store        repository.Payment
	paymentQueue PaymentQueue
	locker       Locker
}

func NewPurgePaymentsHandler(store repository.Payment, q PaymentQueue, l Locker) *PurgePaymentsHandler {
	return &PurgePaymentsHandler{store: store, paymentQueue: q, locker: l}
}

func (h *PurgePaymentsHandler) Handle(c echo.Context) error {
	ctx := c.Request().Context()

	var err error
	if h.locker != nil {
		err = h.locker.WithLock(ctx, purgeLockName, h.purge)
	} else {
		err = h.purge(ctx)
	}
	if err != nil {
		return internalError(c, "failed to purge payments", err)
	}

	return c.JSON(http.StatusOK, map[string]string{"message": "payments purged"})
}

func (h *PurgePaymentsHandler) purge(ctx context.Context) error {
	if err := h.store.Purge(ctx); err != nil {
		return err
	}
	if h.paymentQueue != nil {
		return h.paymentQueue.ClearStream(ctx)
	}
	return nil
}
