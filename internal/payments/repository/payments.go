package repository

import (
	"context"

	"payment-stats/internal/payments/entities"
)

// Source returns the complete current dataset. The order of the returned
// slice is the dataset order the queries preserve.
type Source interface {
	FindAll(ctx context.Context) ([]entities.Payment, error)
}

type Payment interface {
	Source
	Save(ctx context.Context, payment entities.Payment) error
	Purge(ctx context.Context) error
}
