package store

import (
	"github.com/seayun/hdbmap/internal/period"
	"github.com/seayun/hdbmap/internal/records"
)

// The merge engine reconciles a freshly fetched batch against the
// accumulated store. All three strategies share the same postcondition:
// for the targeted period, key, or label the merged result contains
// exactly the incoming rows, and every untargeted existing row survives
// unchanged. Each is idempotent.

// ReplaceByPeriod drops every existing transaction dated inside the month
// and appends the incoming batch. Used for monthly price updates.
func ReplaceByPeriod(existing, incoming []records.Transaction, p period.Period) []records.Transaction {
	start, end := p.MonthStart(), p.MonthEnd()

	out := make([]records.Transaction, 0, len(existing)+len(incoming))
	for _, tx := range existing {
		d, err := period.ParseDate(tx.Date)
		if err == nil && !d.Before(start) && !d.After(end) {
			continue
		}
		out = append(out, tx)
	}
	return append(out, incoming...)
}

// ReplaceByKey drops every existing building whose address appears in the
// incoming batch and appends the batch. Existing buildings absent from the
// batch are preserved, so a partial refetch never loses data.
func ReplaceByKey(existing, incoming []records.Building) []records.Building {
	keys := make(map[string]struct{}, len(incoming))
	for _, b := range incoming {
		keys[b.Address] = struct{}{}
	}

	out := make([]records.Building, 0, len(existing)+len(incoming))
	for _, b := range existing {
		if _, dup := keys[b.Address]; dup {
			continue
		}
		out = append(out, b)
	}
	return append(out, incoming...)
}

// ReplaceByLabel drops every existing aggregate row whose quarter label
// equals label and appends the incoming batch wholesale.
func ReplaceByLabel(existing, incoming []records.AggPrice, label string) []records.AggPrice {
	out := make([]records.AggPrice, 0, len(existing)+len(incoming))
	for _, r := range existing {
		if r.Quarter == label {
			continue
		}
		out = append(out, r)
	}
	return append(out, incoming...)
}
