package clock

import (
	"time"

	"payment-stats/internal/payments/entities"
)

// Clock supplies the reference "now" for month and day-window queries.
type Clock interface {
	Now() time.Time
	CurrentYearMonth() entities.YearMonth
}

// System reads the wall clock in a fixed location.
type System struct {
	location *time.Location
}

func NewSystem(location *time.Location) *System {
	if location == nil {
		location = time.UTC
	}
	return &System{location: location}
}

func (c *System) Now() time.Time {
	return time.Now().In(c.location)
}

func (c *System) CurrentYearMonth() entities.YearMonth {
	return entities.YearMonthOf(c.Now())
}

// Fixed always reports the same instant.
type Fixed struct {
	At time.Time
}

func (c Fixed) Now() time.Time {
	return c.At
}

func (c Fixed) CurrentYearMonth() entities.YearMonth {
	return entities.YearMonthOf(c.At)
}
