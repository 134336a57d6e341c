// Package aggregate computes the read-side groupings served by the API:
// median resale prices grouped per address or per street and date.
package aggregate

import (
	"sort"

	"github.com/seayun/hdbmap/internal/records"
)

// AddressPrice is the median price for one (block+street, flat type) group.
type AddressPrice struct {
	BlockStreet string  `json:"block_street"`
	FlatType    string  `json:"flat_type"`
	Price       float64 `json:"price"`
}

// StreetPrice is the median price for one (date, street, flat type) group.
type StreetPrice struct {
	Date     string  `json:"date"`
	Street   string  `json:"street"`
	FlatType string  `json:"flat_type"`
	Price    float64 `json:"price"`
}

// Median returns the median of values: the middle element for odd counts,
// the mean of the two middle elements for even counts. Zero for empty
// input. The input slice is not modified.
func Median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}

// ByAddress groups transactions by (block+street, flat type) and returns
// the median price per group, sorted for stable output. Rows without a
// valid price are excluded before grouping.
func ByAddress(txs []records.Transaction) []AddressPrice {
	type key struct{ blockStreet, flatType string }

	groups := make(map[key][]float64)
	for _, tx := range txs {
		if tx.Price <= 0 {
			continue
		}
		k := key{tx.Block + " " + tx.Street, tx.FlatType}
		groups[k] = append(groups[k], tx.Price)
	}

	out := make([]AddressPrice, 0, len(groups))
	for k, prices := range groups {
		out = append(out, AddressPrice{
			BlockStreet: k.blockStreet,
			FlatType:    k.flatType,
			Price:       Median(prices),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].BlockStreet != out[j].BlockStreet {
			return out[i].BlockStreet < out[j].BlockStreet
		}
		return out[i].FlatType < out[j].FlatType
	})
	return out
}

// ByStreetDate groups transactions by (date, street, flat type) and
// returns the median price per group, sorted for stable output.
func ByStreetDate(txs []records.Transaction) []StreetPrice {
	type key struct{ date, street, flatType string }

	groups := make(map[key][]float64)
	for _, tx := range txs {
		if tx.Price <= 0 {
			continue
		}
		k := key{tx.Date, tx.Street, tx.FlatType}
		groups[k] = append(groups[k], tx.Price)
	}

	out := make([]StreetPrice, 0, len(groups))
	for k, prices := range groups {
		out = append(out, StreetPrice{
			Date:     k.date,
			Street:   k.street,
			FlatType: k.flatType,
			Price:    Median(prices),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date < out[j].Date
		}
		if out[i].Street != out[j].Street {
			return out[i].Street < out[j].Street
		}
		return out[i].FlatType < out[j].FlatType
	})
	return out
}
