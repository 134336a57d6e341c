package dataset

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/seayun/hdbmap/internal/period"
)

// Table is a parsed tabular export: a header plus data rows. Rows are kept
// positional; Col resolves a column name to its index.
type Table struct {
	Columns []string
	Rows    [][]string
}

// ParseCSV reads a delimited export with a header row.
func ParseCSV(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}

	var rows [][]string
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading row: %w", err)
		}
		rows = append(rows, rec)
	}

	return &Table{Columns: header, Rows: rows}, nil
}

// Col returns the index of a named column, or -1 when absent.
func (t *Table) Col(name string) int {
	for i, c := range t.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// Get returns the value of a named column in a row, or "" when the column
// is absent or the row is short.
func (t *Table) Get(row []string, name string) string {
	i := t.Col(name)
	if i < 0 || i >= len(row) {
		return ""
	}
	return row[i]
}

// FilterMonth narrows the table to rows whose "month" column date falls
// within the given month period, inclusive of both ends. Tables without a
// month column are returned unchanged: the server-side filter is taken as
// authoritative for them. The operation is idempotent.
func (t *Table) FilterMonth(p period.Period) *Table {
	col := t.Col("month")
	if col < 0 {
		return t
	}

	start, end := p.MonthStart(), p.MonthEnd()
	out := &Table{Columns: t.Columns}
	for _, row := range t.Rows {
		if col >= len(row) {
			continue
		}
		d, err := period.ParseDate(row[col])
		if err != nil {
			continue
		}
		if !d.Before(start) && !d.After(end) {
			out.Rows = append(out.Rows, row)
		}
	}
	return out
}

// FilterYears narrows the table to rows whose "month" column year falls in
// [from, to]. Used when materializing a closed historical segment from a
// full dataset export.
func (t *Table) FilterYears(from, to int) *Table {
	col := t.Col("month")
	if col < 0 {
		return t
	}

	out := &Table{Columns: t.Columns}
	for _, row := range t.Rows {
		if col >= len(row) {
			continue
		}
		d, err := period.ParseDate(row[col])
		if err != nil {
			continue
		}
		if d.Year() >= from && d.Year() <= to {
			out.Rows = append(out.Rows, row)
		}
	}
	return out
}
