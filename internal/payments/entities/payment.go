package entities

import (
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type User struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
}

type PaymentItem struct {
	Name         string          `json:"name"`
	RegularPrice decimal.Decimal `json:"regularPrice"`
	FinalPrice   decimal.Decimal `json:"finalPrice"`
}

// Discount is the difference between the regular and the final price.
func (i PaymentItem) Discount() decimal.Decimal {
	return i.RegularPrice.Sub(i.FinalPrice)
}

type Payment struct {
	ID          string        `json:"id"`
	PaymentDate time.Time     `json:"paymentDate"`
	User        User          `json:"user"`
	Items       []PaymentItem `json:"items"`
}

// Key returns a canonical encoding of every field of the payment. Two
// payments are the same record when their keys are equal, so the key is
// what sets of payments are indexed by.
func (p Payment) Key() string {
	const sep = "\x1f"

	var b strings.Builder
	b.WriteString(p.ID)
	b.WriteString(sep)
	b.WriteString(p.PaymentDate.Format(time.RFC3339Nano))
	b.WriteString(sep)
	b.WriteString(p.User.Email)
	b.WriteString(sep)
	b.WriteString(p.User.FirstName)
	b.WriteString(sep)
	b.WriteString(p.User.LastName)
	b.WriteString(sep)
	b.WriteString(strconv.Itoa(len(p.Items)))
	for _, item := range p.Items {
		b.WriteString(sep)
		b.WriteString(item.Name)
		b.WriteString(sep)
		b.WriteString(item.RegularPrice.String())
		b.WriteString(sep)
		b.WriteString(item.FinalPrice.String())
	}
	return b.String()
}

func (p Payment) Equal(other Payment) bool {
	return p.Key() == other.Key()
}
