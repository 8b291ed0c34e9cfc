package payments

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	"payment-stats/internal/clock"
	"payment-stats/internal/payments/entities"
	"payment-stats/internal/payments/repository"

	"github.com/shopspring/decimal"
)

// Service answers read-only questions about the payments held by a
// repository.Source. Every call fetches the whole dataset again, nothing is
// cached and the fetched payments are never modified.
type Service struct {
	paymentSource repository.Source
	clock         clock.Clock
}

func NewPaymentService(source repository.Source, clk clock.Clock) *Service {
	return &Service{paymentSource: source, clock: clk}
}

func (s *Service) SortedByDateAsc(ctx context.Context) ([]entities.Payment, error) {
	return s.sortedBy(ctx, byPaymentDate)
}

func (s *Service) SortedByDateDesc(ctx context.Context) ([]entities.Payment, error) {
	return s.sortedBy(ctx, reversed(byPaymentDate))
}

func (s *Service) SortedByItemCountAsc(ctx context.Context) ([]entities.Payment, error) {
	return s.sortedBy(ctx, byItemCount)
}

func (s *Service) SortedByItemCountDesc(ctx context.Context) ([]entities.Payment, error) {
	return s.sortedBy(ctx, reversed(byItemCount))
}

// ForMonth keeps the payments made in the month-of-year of ym. The year of
// ym is not compared: March 2023 payments match a March 2024 query.
func (s *Service) ForMonth(ctx context.Context, ym entities.YearMonth) ([]entities.Payment, error) {
	return s.filtered(ctx, func(p entities.Payment) bool {
		return p.PaymentDate.Month() == ym.Month
	})
}

func (s *Service) ForCurrentMonth(ctx context.Context) ([]entities.Payment, error) {
	return s.ForMonth(ctx, s.clock.CurrentYearMonth())
}

// ForLastDays keeps the payments dated strictly after now minus (days-1)
// calendar days. Negative values are not rejected.
func (s *Service) ForLastDays(ctx context.Context, days int) ([]entities.Payment, error) {
	since := s.clock.Now().AddDate(0, 0, -(days - 1))
	return s.filtered(ctx, func(p entities.Payment) bool {
		return p.PaymentDate.After(since)
	})
}

func (s *Service) WithExactlyOneItem(ctx context.Context) ([]entities.Payment, error) {
	payments, err := s.filtered(ctx, func(p entities.Payment) bool {
		return len(p.Items) == 1
	})
	if err != nil {
		return nil, err
	}
	return uniquePayments(payments), nil
}

// ProductsSoldInCurrentMonth returns the distinct item names of the
// payments made in the clock's current year-month, in order of first sale.
func (s *Service) ProductsSoldInCurrentMonth(ctx context.Context) ([]string, error) {
	payments, err := s.inYearMonth(ctx, s.clock.CurrentYearMonth())
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	names := make([]string, 0)
	for _, payment := range payments {
		for _, item := range payment.Items {
			if _, ok := seen[item.Name]; ok {
				continue
			}
			seen[item.Name] = struct{}{}
			names = append(names, item.Name)
		}
	}
	return names, nil
}

func (s *Service) TotalForMonth(ctx context.Context, ym entities.YearMonth) (decimal.Decimal, error) {
	return s.sumForMonth(ctx, ym, func(item entities.PaymentItem) decimal.Decimal {
		return item.FinalPrice
	})
}

func (s *Service) TotalDiscountForMonth(ctx context.Context, ym entities.YearMonth) (decimal.Decimal, error) {
	return s.sumForMonth(ctx, ym, entities.PaymentItem.Discount)
}

// ItemsForUserEmail flattens the items of every payment whose user email
// matches exactly. Duplicated items are kept.
func (s *Service) ItemsForUserEmail(ctx context.Context, email string) ([]entities.PaymentItem, error) {
	payments, err := s.filtered(ctx, func(p entities.Payment) bool {
		return p.User.Email == email
	})
	if err != nil {
		return nil, err
	}

	items := make([]entities.PaymentItem, 0)
	for _, payment := range payments {
		items = append(items, payment.Items...)
	}
	return items, nil
}

// WithValueOver compares a float64 sum of the final prices against
// threshold, so amounts near the threshold are subject to rounding.
func (s *Service) WithValueOver(ctx context.Context, threshold float64) ([]entities.Payment, error) {
	payments, err := s.filtered(ctx, func(p entities.Payment) bool {
		return paymentValue(p) > threshold
	})
	if err != nil {
		return nil, err
	}
	return uniquePayments(payments), nil
}

func (s *Service) findAll(ctx context.Context) ([]entities.Payment, error) {
	payments, err := s.paymentSource.FindAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch payments: %w", err)
	}
	return payments, nil
}

func (s *Service) sortedBy(ctx context.Context, compare func(a, b entities.Payment) int) ([]entities.Payment, error) {
	payments, err := s.findAll(ctx)
	if err != nil {
		return nil, err
	}

	sorted := make([]entities.Payment, len(payments))
	copy(sorted, payments)
	slices.SortStableFunc(sorted, compare)
	return sorted, nil
}

func (s *Service) filtered(ctx context.Context, keep func(entities.Payment) bool) ([]entities.Payment, error) {
	payments, err := s.findAll(ctx)
	if err != nil {
		return nil, err
	}

	result := make([]entities.Payment, 0)
	for _, payment := range payments {
		if keep(payment) {
			result = append(result, payment)
		}
	}
	return result, nil
}

func (s *Service) inYearMonth(ctx context.Context, ym entities.YearMonth) ([]entities.Payment, error) {
	return s.filtered(ctx, func(p entities.Payment) bool {
		return entities.YearMonthOf(p.PaymentDate) == ym
	})
}

func (s *Service) sumForMonth(ctx context.Context, ym entities.YearMonth, amount func(entities.PaymentItem) decimal.Decimal) (decimal.Decimal, error) {
	payments, err := s.inYearMonth(ctx, ym)
	if err != nil {
		return decimal.Zero, err
	}

	total := decimal.Zero
	for _, payment := range payments {
		for _, item := range payment.Items {
			total = total.Add(amount(item))
		}
	}
	return total, nil
}

func byPaymentDate(a, b entities.Payment) int {
	return a.PaymentDate.Compare(b.PaymentDate)
}

func byItemCount(a, b entities.Payment) int {
	return cmp.Compare(len(a.Items), len(b.Items))
}

func reversed(compare func(a, b entities.Payment) int) func(a, b entities.Payment) int {
	return func(a, b entities.Payment) int {
		return compare(b, a)
	}
}

func paymentValue(p entities.Payment) float64 {
	var value float64
	for _, item := range p.Items {
		value += item.FinalPrice.InexactFloat64()
	}
	return value
}

// uniquePayments collapses equal payments, keeping the first occurrence.
func uniquePayments(payments []entities.Payment) []entities.Payment {
	seen := make(map[string]struct{}, len(payments))
	result := make([]entities.Payment, 0, len(payments))
	for _, payment := range payments {
		key := payment.Key()
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		result = append(result, payment)
	}
	return result
}
