package payments

import (
	"context"
	"encoding/json"
	"fmt"
	"payment-stats/internal/payments/entities"

	"github.com/redis/go-redis/v9"
)

// The index lives outside the "payment:" prefix so no client-chosen ID can
// collide with it.
const paymentIndexKey = "payments:index_by_date"

// PaymentRedisRepository stores each payment as a JSON document and keeps a
// sorted set of IDs scored by payment date.
type PaymentRedisRepository struct {
	client *redis.Client
}

func NewPaymentRedisRepository(client *redis.Client) *PaymentRedisRepository {
	return &PaymentRedisRepository{client: client}
}

func paymentKey(id string) string {
	return fmt.Sprintf("payment:%s", id)
}

func (r *PaymentRedisRepository) Save(ctx context.Context, payment entities.Payment) error {
	data, err := json.Marshal(payment)
	if err != nil {
		return err
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, paymentKey(payment.ID), data, 0)
		pipe.ZAdd(ctx, paymentIndexKey, redis.Z{
			Score:  float64(payment.PaymentDate.Unix()),
			Member: payment.ID,
		})
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save payment %s: %w", payment.ID, err)
	}
	return nil
}

// FindAll returns the payments in date-index order.
func (r *PaymentRedisRepository) FindAll(ctx context.Context) ([]entities.Payment, error) {
	payments := make([]entities.Payment, 0)

	ids, err := r.client.ZRange(ctx, paymentIndexKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read payment index: %w", err)
	}
	if len(ids) == 0 {
		return payments, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = paymentKey(id)
	}

	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read payments: %w", err)
	}

	for i, value := range values {
		data, ok := value.(string)
		if !ok {
			// indexed but the document is gone
			continue
		}
		var payment entities.Payment
		if err := json.Unmarshal([]byte(data), &payment); err != nil {
			return nil, fmt.Errorf("failed to decode payment %s: %w", ids[i], err)
		}
		if payment.Items == nil {
			payment.Items = []entities.PaymentItem{}
		}
		payments = append(payments, payment)
	}
	return payments, nil
}

func (r *PaymentRedisRepository) Purge(ctx context.Context) error {
	ids, err := r.client.ZRange(ctx, paymentIndexKey, 0, -1).Result()
	if err != nil {
		return fmt.Errorf("failed to read payment index: %w", err)
	}

	keys := make([]string, 0, len(ids)+1)
	for _, id := range ids {
		keys = append(keys, paymentKey(id))
	}
	keys = append(keys, paymentIndexKey)

	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to purge payments: %w", err)
	}
	return nil
}
