package payments

import (
	"context"
	"fmt"
	"payment-stats/internal/payments/entities"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

type PaymentPostgresRepository struct {
	pool *pgxpool.Pool
}

func NewPaymentPostgresRepository(ctx context.Context, connString string) (*PaymentPostgresRepository, error) {
	dbpool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}

	if err := dbpool.Ping(ctx); err != nil {
		dbpool.Close()
		return nil, fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}

	return &PaymentPostgresRepository{pool: dbpool}, nil
}

func (r *PaymentPostgresRepository) Close() {
	if r.pool != nil {
		r.pool.Close()
	}
}

func (r *PaymentPostgresRepository) Migrate(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS payments (
			seq             BIGSERIAL,
			id              TEXT PRIMARY KEY,
			payment_date    TIMESTAMPTZ NOT NULL,
			zone_offset     INTEGER NOT NULL,
			user_email      TEXT NOT NULL,
			user_first_name TEXT NOT NULL,
			user_last_name  TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS payment_items (
			payment_id    TEXT NOT NULL REFERENCES payments (id) ON DELETE CASCADE,
			position      INTEGER NOT NULL,
			name          TEXT NOT NULL,
			regular_price NUMERIC NOT NULL,
			final_price   NUMERIC NOT NULL,
			PRIMARY KEY (payment_id, position)
		);
	`)
	if err != nil {
		return fmt.Errorf("failed to create payments tables: %w", err)
	}
	return nil
}

func (r *PaymentPostgresRepository) Save(ctx context.Context, payment entities.Payment) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, offset := payment.PaymentDate.Zone()
	_, err = tx.Exec(ctx, `
		INSERT INTO payments (id, payment_date, zone_offset, user_email, user_first_name, user_last_name)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE
		SET payment_date = EXCLUDED.payment_date,
		    zone_offset = EXCLUDED.zone_offset,
		    user_email = EXCLUDED.user_email,
		    user_first_name = EXCLUDED.user_first_name,
		    user_last_name = EXCLUDED.user_last_name
	`, payment.ID, payment.PaymentDate, offset, payment.User.Email, payment.User.FirstName, payment.User.LastName)
	if err != nil {
		return fmt.Errorf("failed to save payment %s: %w", payment.ID, err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM payment_items WHERE payment_id = $1`, payment.ID); err != nil {
		return fmt.Errorf("failed to replace items of payment %s: %w", payment.ID, err)
	}

	batch := &pgx.Batch{}
	for i, item := range payment.Items {
		batch.Queue(`
			INSERT INTO payment_items (payment_id, position, name, regular_price, final_price)
			VALUES ($1, $2, $3, $4::numeric, $5::numeric)
		`, payment.ID, i, item.Name, item.RegularPrice.String(), item.FinalPrice.String())
	}
	if batch.Len() > 0 {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("failed to save items of payment %s: %w", payment.ID, err)
		}
	}

	return tx.Commit(ctx)
}

func (r *PaymentPostgresRepository) FindAll(ctx context.Context) ([]entities.Payment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, payment_date, zone_offset, user_email, user_first_name, user_last_name
		FROM payments
		ORDER BY seq ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query payments: %w", err)
	}
	defer rows.Close()

	results := make([]entities.Payment, 0)
	index := make(map[string]int)

	for rows.Next() {
		var (
			p      entities.Payment
			offset int
		)
		if err := rows.Scan(&p.ID, &p.PaymentDate, &offset, &p.User.Email, &p.User.FirstName, &p.User.LastName); err != nil {
			return nil, fmt.Errorf("failed to scan payment: %w", err)
		}
		p.PaymentDate = p.PaymentDate.In(time.FixedZone("", offset))
		p.Items = []entities.PaymentItem{}
		index[p.ID] = len(results)
		results = append(results, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read payments: %w", err)
	}

	if err := r.attachItems(ctx, results, index); err != nil {
		return nil, err
	}
	return results, nil
}

func (r *PaymentPostgresRepository) attachItems(ctx context.Context, payments []entities.Payment, index map[string]int) error {
	rows, err := r.pool.Query(ctx, `
		SELECT payment_id, name, regular_price::text, final_price::text
		FROM payment_items
		ORDER BY payment_id, position
	`)
	if err != nil {
		return fmt.Errorf("failed to query payment items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var paymentID, name, regular, final string
		if err := rows.Scan(&paymentID, &name, &regular, &final); err != nil {
			return fmt.Errorf("failed to scan payment item: %w", err)
		}

		i, ok := index[paymentID]
		if !ok {
			continue
		}
		item, err := parseItem(name, regular, final)
		if err != nil {
			return err
		}
		payments[i].Items = append(payments[i].Items, item)
	}
	return rows.Err()
}

func (r *PaymentPostgresRepository) Purge(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, `TRUNCATE payment_items, payments`); err != nil {
		return fmt.Errorf("failed to purge payments: %w", err)
	}
	return nil
}

func parseItem(name, regular, final string) (entities.PaymentItem, error) {
	regularPrice, err := decimal.NewFromString(regular)
	if err != nil {
		return entities.PaymentItem{}, fmt.Errorf("invalid regular price %q of %s: %w", regular, name, err)
	}
	finalPrice, err := decimal.NewFromString(final)
	if err != nil {
		return entities.PaymentItem{}, fmt.Errorf("invalid final price %q of %s: %w", final, name, err)
	}
	return entities.PaymentItem{Name: name, RegularPrice: regularPrice, FinalPrice: finalPrice}, nil
}
