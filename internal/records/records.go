// Package records holds the typed per-family records and the enrichment
// steps that turn raw dataset rows into them.
package records

import (
	"strconv"
	"strings"

	"github.com/seayun/hdbmap/internal/dataset"
	"github.com/seayun/hdbmap/internal/period"
)

// Transaction is one resale transaction. Dates are stored as YYYY-MM-DD at
// month granularity (day always 01 from upstream).
type Transaction struct {
	Date           string  `json:"date"`
	Town           string  `json:"town"`
	FlatType       string  `json:"flat_type"`
	Block          string  `json:"block"`
	Street         string  `json:"street"`
	StoreyRange    string  `json:"storey_range"`
	FloorArea      float64 `json:"floor_area_sqm"`
	FlatModel      string  `json:"flat_model"`
	LeaseStart     string  `json:"lease_commence_date"`
	RemainingLease string  `json:"remaining_lease"`
	Price          float64 `json:"price"`
	PricePerSqm    float64 `json:"price_per_sqm"`
}

// Building is one enriched building record. JSON field names are the wire
// contract of the /api/properties endpoint.
type Building struct {
	Tag         string  `json:"tag"`
	Lat         float64 `json:"lat"`
	Lon         float64 `json:"lon"`
	Town        string  `json:"town"`
	Address     string  `json:"address"`
	Street      string  `json:"street"`
	TotalUnits  int     `json:"total_units"`
	Year        int     `json:"year"`
	MaxFloorLvl int     `json:"max_floor_lvl"`
}

// AggPrice is one quarterly aggregated price row. Price stays a string
// because upstream publishes "-" for quarters without enough transactions.
type AggPrice struct {
	Quarter  string `json:"quarter"`
	Town     string `json:"town"`
	FlatType string `json:"flat_type"`
	Price    string `json:"price"`
}

// PriceValue returns the numeric price, or false for the "-" sentinel and
// other non-numeric values.
func (a AggPrice) PriceValue() (float64, bool) {
	v, err := strconv.ParseFloat(a.Price, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// RawBuilding is a building row as published, before geocoding. Flag
// columns hold the raw "Y"/"N" sentinels.
type RawBuilding struct {
	BlockNo            string
	Street             string
	YearCompleted      int
	TownCode           string
	TotalUnits         int
	MaxFloorLvl        int
	Residential        string
	Commercial         string
	MarketHawker       string
	Miscellaneous      string
	MultistoreyCarpark string
	PrecinctPavilion   string
}

// Query builds the geocoding query string for the block.
func (b RawBuilding) Query() string {
	return b.BlockNo + " " + b.Street
}

// DecodeTransactions turns raw resale-price rows into Transactions,
// renaming the month column to date and the raw price column to price, and
// deriving price per square metre. Rows with an unparsable date are
// dropped; a missing or unparsable area merely skips the derived field.
func DecodeTransactions(t *dataset.Table) []Transaction {
	out := make([]Transaction, 0, len(t.Rows))
	for _, row := range t.Rows {
		d, err := period.ParseDate(t.Get(row, "month"))
		if err != nil {
			continue
		}

		tx := Transaction{
			Date:           d.Format("2006-01-02"),
			Town:           t.Get(row, "town"),
			FlatType:       t.Get(row, "flat_type"),
			Block:          t.Get(row, "block"),
			Street:         t.Get(row, "street_name"),
			StoreyRange:    t.Get(row, "storey_range"),
			FlatModel:      t.Get(row, "flat_model"),
			LeaseStart:     t.Get(row, "lease_commence_date"),
			RemainingLease: t.Get(row, "remaining_lease"),
		}
		tx.FloorArea, _ = strconv.ParseFloat(t.Get(row, "floor_area_sqm"), 64)
		tx.Price, _ = strconv.ParseFloat(t.Get(row, "resale_price"), 64)
		if tx.Price > 0 && tx.FloorArea > 0 {
			tx.PricePerSqm = tx.Price / tx.FloorArea
		}
		out = append(out, tx)
	}
	return out
}

// DecodeBuildings turns raw property-information rows into RawBuildings.
func DecodeBuildings(t *dataset.Table) []RawBuilding {
	out := make([]RawBuilding, 0, len(t.Rows))
	for _, row := range t.Rows {
		b := RawBuilding{
			BlockNo:            t.Get(row, "blk_no"),
			Street:             t.Get(row, "street"),
			TownCode:           t.Get(row, "bldg_contract_town"),
			Residential:        t.Get(row, "residential"),
			Commercial:         t.Get(row, "commercial"),
			MarketHawker:       t.Get(row, "market_hawker"),
			Miscellaneous:      t.Get(row, "miscellaneous"),
			MultistoreyCarpark: t.Get(row, "multistorey_carpark"),
			PrecinctPavilion:   t.Get(row, "precinct_pavilion"),
		}
		b.YearCompleted, _ = strconv.Atoi(t.Get(row, "year_completed"))
		b.TotalUnits, _ = strconv.Atoi(t.Get(row, "total_dwelling_units"))
		b.MaxFloorLvl, _ = strconv.Atoi(t.Get(row, "max_floor_lvl"))
		out = append(out, b)
	}
	return out
}

// DecodeAggPrices turns raw quarterly rows into normalized AggPrices: flat
// types upper-cased with hyphens as spaces, towns upper-cased with the
// CENTRAL -> CENTRAL AREA special case, missing prices as "-".
// fallbackQuarter labels rows when the export lacks a quarter column.
func DecodeAggPrices(t *dataset.Table, fallbackQuarter string) []AggPrice {
	out := make([]AggPrice, 0, len(t.Rows))
	for _, row := range t.Rows {
		quarter := t.Get(row, "quarter")
		if quarter == "" {
			quarter = fallbackQuarter
		}

		town := strings.ToUpper(t.Get(row, "town"))
		if town == "CENTRAL" {
			town = "CENTRAL AREA"
		}

		flatType := strings.ToUpper(strings.ReplaceAll(t.Get(row, "flat_type"), "-", " "))

		price := t.Get(row, "price")
		if price == "" {
			price = "-"
		}

		out = append(out, AggPrice{
			Quarter:  quarter,
			Town:     town,
			FlatType: flatType,
			Price:    price,
		})
	}
	return out
}
