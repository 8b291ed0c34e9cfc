package payments

import (
	"context"
	"database/sql"
	"fmt"
	"payment-stats/internal/payments/entities"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

type SQLiteRepository struct {
	db *sql.DB
	mu sync.Mutex
}

func NewSQLiteRepository(dataSourceName string) (*SQLiteRepository, error) {
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, err
	}
	// one connection, so ":memory:" databases are shared by every call
	db.SetMaxOpenConns(1)

	_, err = db.Exec(`
		PRAGMA foreign_keys = ON;

		CREATE TABLE IF NOT EXISTS payments (
			seq             INTEGER PRIMARY KEY AUTOINCREMENT,
			id              TEXT NOT NULL UNIQUE,
			payment_date    TEXT NOT NULL,
			user_email      TEXT NOT NULL,
			user_first_name TEXT NOT NULL,
			user_last_name  TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS payment_items (
			payment_id    TEXT NOT NULL REFERENCES payments (id) ON DELETE CASCADE,
			position      INTEGER NOT NULL,
			name          TEXT NOT NULL,
			regular_price TEXT NOT NULL,
			final_price   TEXT NOT NULL,
			PRIMARY KEY (payment_id, position)
		);
	`)
	if err != nil {
		db.Close()
		return nil, err
	}
	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

func (r *SQLiteRepository) Save(ctx context.Context, p entities.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO payments (id, payment_date, user_email, user_first_name, user_last_name)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE
		SET payment_date = excluded.payment_date,
		    user_email = excluded.user_email,
		    user_first_name = excluded.user_first_name,
		    user_last_name = excluded.user_last_name
	`, p.ID, p.PaymentDate.Format(time.RFC3339Nano), p.User.Email, p.User.FirstName, p.User.LastName)
	if err != nil {
		return fmt.Errorf("failed to save payment %s: %w", p.ID, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM payment_items WHERE payment_id = ?`, p.ID); err != nil {
		return fmt.Errorf("failed to replace items of payment %s: %w", p.ID, err)
	}

	for i, item := range p.Items {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO payment_items (payment_id, position, name, regular_price, final_price)
			VALUES (?, ?, ?, ?, ?)
		`, p.ID, i, item.Name, item.RegularPrice.String(), item.FinalPrice.String())
		if err != nil {
			return fmt.Errorf("failed to save items of payment %s: %w", p.ID, err)
		}
	}

	return tx.Commit()
}

func (r *SQLiteRepository) FindAll(ctx context.Context) ([]entities.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, payment_date, user_email, user_first_name, user_last_name
		FROM payments
		ORDER BY seq
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	payments := make([]entities.Payment, 0)
	index := make(map[string]int)
	for rows.Next() {
		var p entities.Payment
		var paymentDate string
		if err := rows.Scan(&p.ID, &paymentDate, &p.User.Email, &p.User.FirstName, &p.User.LastName); err != nil {
			return nil, err
		}
		p.PaymentDate, err = parseTime(paymentDate)
		if err != nil {
			return nil, fmt.Errorf("invalid date of payment %s: %w", p.ID, err)
		}
		p.Items = []entities.PaymentItem{}
		index[p.ID] = len(payments)
		payments = append(payments, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	itemRows, err := r.db.QueryContext(ctx, `
		SELECT payment_id, name, regular_price, final_price
		FROM payment_items
		ORDER BY payment_id, position
	`)
	if err != nil {
		return nil, err
	}
	defer itemRows.Close()

	for itemRows.Next() {
		var paymentID, name, regular, final string
		if err := itemRows.Scan(&paymentID, &name, &regular, &final); err != nil {
			return nil, err
		}
		i, ok := index[paymentID]
		if !ok {
			continue
		}
		item, err := parseItem(name, regular, final)
		if err != nil {
			return nil, err
		}
		payments[i].Items = append(payments[i].Items, item)
	}
	return payments, itemRows.Err()
}

func (r *SQLiteRepository) Purge(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, err := r.db.ExecContext(ctx, `DELETE FROM payment_items; DELETE FROM payments`)
	return err
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}
