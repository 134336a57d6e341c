// Package period models the calendar granularities used to filter remote
// fetches and to scope merges: a single month, a quarter, or a year.
package period

import (
	"errors"
	"fmt"
	"time"
)

// Kind is the granularity of a Period.
type Kind int

const (
	Month Kind = iota
	Quarter
	Year
)

// ErrInvalid is returned when a period cannot be constructed or cannot be
// turned into a usable remote filter.
var ErrInvalid = errors.New("invalid period")

// Period is a calendar window: one month, one quarter, or one year.
type Period struct {
	Kind    Kind
	Year    int
	Month   int // 1-12, set when Kind == Month
	Quarter int // 1-4, set when Kind == Quarter
}

// NewMonth builds a month period, validating the month number.
func NewMonth(year, month int) (Period, error) {
	if year <= 0 || month < 1 || month > 12 {
		return Period{}, fmt.Errorf("%w: %d-%d is not a calendar month", ErrInvalid, year, month)
	}
	return Period{Kind: Month, Year: year, Month: month}, nil
}

// NewQuarter builds a quarter period, validating the quarter number.
func NewQuarter(year, quarter int) (Period, error) {
	if year <= 0 || quarter < 1 || quarter > 4 {
		return Period{}, fmt.Errorf("%w: %d-Q%d is not a calendar quarter", ErrInvalid, year, quarter)
	}
	return Period{Kind: Quarter, Year: year, Quarter: quarter}, nil
}

// NewYear builds a year period.
func NewYear(year int) (Period, error) {
	if year <= 0 {
		return Period{}, fmt.Errorf("%w: year %d", ErrInvalid, year)
	}
	return Period{Kind: Year, Year: year}, nil
}

// QuarterOf returns the quarter (1-4) containing the given month.
func QuarterOf(month int) int {
	return (month-1)/3 + 1
}

// Previous returns the month period immediately before now. Scheduled runs
// default to it because upstream publishes a month's data after month end.
func Previous(now time.Time) Period {
	firstOfMonth := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	prev := firstOfMonth.AddDate(0, 0, -1)
	return Period{Kind: Month, Year: prev.Year(), Month: int(prev.Month())}
}

// MonthStart returns midnight UTC on the first day of a month period.
func (p Period) MonthStart() time.Time {
	return time.Date(p.Year, time.Month(p.Month), 1, 0, 0, 0, 0, time.UTC)
}

// MonthEnd returns midnight UTC on the last day of a month period,
// accounting for month length and leap years.
func (p Period) MonthEnd() time.Time {
	// Day 0 of the next month normalizes to the last day of this one.
	return time.Date(p.Year, time.Month(p.Month)+1, 0, 0, 0, 0, 0, time.UTC)
}

// MonthLabel formats a month period as "YYYY-MM".
func (p Period) MonthLabel() string {
	return fmt.Sprintf("%04d-%02d", p.Year, p.Month)
}

// QuarterLabel formats a quarter period as "YYYY-Qn".
func (p Period) QuarterLabel() string {
	return fmt.Sprintf("%04d-Q%d", p.Year, p.Quarter)
}

// String renders the period at its own granularity.
func (p Period) String() string {
	switch p.Kind {
	case Month:
		return p.MonthLabel()
	case Quarter:
		return p.QuarterLabel()
	default:
		return fmt.Sprintf("%04d", p.Year)
	}
}

// ParseDate parses a value from a dataset date column, accepting the
// "YYYY-MM" form used by upstream exports and the "YYYY-MM-DD" form used in
// stored segments.
func ParseDate(s string) (time.Time, error) {
	for _, layout := range []string{"2006-01-02", "2006-01"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}

// ParseStart parses a range-start query value ("YYYY", "YYYY-MM", or
// "YYYY-MM-DD"), coercing coarse forms to the start of their window.
func ParseStart(s string) (time.Time, error) {
	switch len(s) {
	case 4:
		return time.Parse("2006-01-02", s+"-01-01")
	case 7:
		return time.Parse("2006-01-02", s+"-01")
	default:
		return time.Parse("2006-01-02", s)
	}
}

// ParseEnd parses a range-end query value, coercing coarse forms to the end
// of their window ("2024" means 2024-12-31, "2024-02" means 2024-02-29).
func ParseEnd(s string) (time.Time, error) {
	switch len(s) {
	case 4:
		return time.Parse("2006-01-02", s+"-12-31")
	case 7:
		t, err := time.Parse("2006-01", s)
		if err != nil {
			return time.Time{}, err
		}
		p := Period{Kind: Month, Year: t.Year(), Month: int(t.Month())}
		return p.MonthEnd(), nil
	default:
		return time.Parse("2006-01-02", s)
	}
}
