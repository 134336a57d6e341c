package period

import (
	"errors"
	"testing"
	"time"
)

func TestMonthEndBoundaries(t *testing.T) {
	cases := []struct {
		year, month int
		wantDay     int
	}{
		{2023, 1, 31},
		{2023, 2, 28},
		{2024, 2, 29}, // leap year
		{2023, 4, 30},
		{2023, 12, 31},
	}

	for _, c := range cases {
		p, err := NewMonth(c.year, c.month)
		if err != nil {
			t.Fatalf("NewMonth(%d, %d): %v", c.year, c.month, err)
		}
		end := p.MonthEnd()
		if end.Day() != c.wantDay {
			t.Errorf("%d-%02d: expected last day %d, got %d", c.year, c.month, c.wantDay, end.Day())
		}
		if end.Month() != time.Month(c.month) || end.Year() != c.year {
			t.Errorf("%d-%02d: month end landed in %v", c.year, c.month, end)
		}
	}
}

func TestNewMonthRejectsInvalid(t *testing.T) {
	for _, m := range []int{0, 13, -1} {
		if _, err := NewMonth(2024, m); !errors.Is(err, ErrInvalid) {
			t.Errorf("month %d: expected ErrInvalid, got %v", m, err)
		}
	}
}

func TestNewQuarterRejectsInvalid(t *testing.T) {
	if _, err := NewQuarter(2024, 5); !errors.Is(err, ErrInvalid) {
		t.Errorf("expected ErrInvalid for Q5, got %v", err)
	}
	q, err := NewQuarter(2024, 2)
	if err != nil {
		t.Fatalf("NewQuarter: %v", err)
	}
	if q.QuarterLabel() != "2024-Q2" {
		t.Errorf("expected label 2024-Q2, got %s", q.QuarterLabel())
	}
}

func TestQuarterOf(t *testing.T) {
	cases := map[int]int{1: 1, 3: 1, 4: 2, 6: 2, 7: 3, 9: 3, 10: 4, 12: 4}
	for month, want := range cases {
		if got := QuarterOf(month); got != want {
			t.Errorf("QuarterOf(%d) = %d, want %d", month, got, want)
		}
	}
}

func TestPrevious(t *testing.T) {
	now := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	p := Previous(now)
	if p.Year != 2023 || p.Month != 12 {
		t.Errorf("expected 2023-12, got %s", p.MonthLabel())
	}
}

func TestParseStart(t *testing.T) {
	cases := map[string]string{
		"2024":       "2024-01-01",
		"2024-03":    "2024-03-01",
		"2024-03-15": "2024-03-15",
	}
	for in, want := range cases {
		got, err := ParseStart(in)
		if err != nil {
			t.Fatalf("ParseStart(%q): %v", in, err)
		}
		if got.Format("2006-01-02") != want {
			t.Errorf("ParseStart(%q) = %s, want %s", in, got.Format("2006-01-02"), want)
		}
	}
}

func TestParseEnd(t *testing.T) {
	cases := map[string]string{
		"2024":       "2024-12-31",
		"2024-02":    "2024-02-29",
		"2023-02":    "2023-02-28",
		"2024-03-15": "2024-03-15",
	}
	for in, want := range cases {
		got, err := ParseEnd(in)
		if err != nil {
			t.Fatalf("ParseEnd(%q): %v", in, err)
		}
		if got.Format("2006-01-02") != want {
			t.Errorf("ParseEnd(%q) = %s, want %s", in, got.Format("2006-01-02"), want)
		}
	}
}

func TestParseDate(t *testing.T) {
	if _, err := ParseDate("2024-03"); err != nil {
		t.Errorf("expected YYYY-MM to parse: %v", err)
	}
	if _, err := ParseDate("2024-03-01"); err != nil {
		t.Errorf("expected YYYY-MM-DD to parse: %v", err)
	}
	if _, err := ParseDate("march 2024"); err == nil {
		t.Error("expected error for free-form date")
	}
}
