package records

import (
	"context"
	"errors"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/seayun/hdbmap/internal/dataset"
	"github.com/seayun/hdbmap/internal/geocode"
)

func parseTable(t *testing.T, csv string) *dataset.Table {
	t.Helper()
	table, err := dataset.ParseCSV(strings.NewReader(csv))
	if err != nil {
		t.Fatalf("parsing fixture: %v", err)
	}
	return table
}

func TestDecodeTransactions(t *testing.T) {
	table := parseTable(t,
		"month,town,flat_type,block,street_name,storey_range,floor_area_sqm,flat_model,lease_commence_date,remaining_lease,resale_price\n"+
			"2024-03,BEDOK,4 ROOM,123,BEDOK NTH RD,07 TO 09,100,Model A,1980,55 years,500000\n")

	txs := DecodeTransactions(table)
	if len(txs) != 1 {
		t.Fatalf("expected 1 transaction, got %d", len(txs))
	}

	tx := txs[0]
	if tx.Date != "2024-03-01" {
		t.Errorf("expected date 2024-03-01, got %s", tx.Date)
	}
	if tx.Street != "BEDOK NTH RD" {
		t.Errorf("expected street renamed from street_name, got %q", tx.Street)
	}
	if tx.Price != 500000 {
		t.Errorf("expected price 500000, got %v", tx.Price)
	}
	if tx.PricePerSqm != 5000 {
		t.Errorf("expected price_per_sqm 5000, got %v", tx.PricePerSqm)
	}
}

func TestDecodeTransactionsMissingAreaSkipsDerivedField(t *testing.T) {
	table := parseTable(t, "month,resale_price\n2024-03,500000\n")
	txs := DecodeTransactions(table)
	if len(txs) != 1 {
		t.Fatalf("expected 1 transaction, got %d", len(txs))
	}
	if txs[0].PricePerSqm != 0 {
		t.Errorf("expected no derived price_per_sqm, got %v", txs[0].PricePerSqm)
	}
	if txs[0].Price != 500000 {
		t.Errorf("expected price still decoded, got %v", txs[0].Price)
	}
}

func TestDecodeTransactionsDropsUnparsableDates(t *testing.T) {
	table := parseTable(t, "month,resale_price\nnot-a-date,500000\n2024-03,400000\n")
	txs := DecodeTransactions(table)
	if len(txs) != 1 {
		t.Fatalf("expected 1 transaction, got %d", len(txs))
	}
}

func TestCategoryTagPriority(t *testing.T) {
	b := RawBuilding{Residential: "Y", Commercial: "Y"}
	if got := CategoryTag(b); got != "Residential" {
		t.Errorf("expected Residential to outrank Commercial, got %q", got)
	}
}

func TestCategoryTagAllFlagsOff(t *testing.T) {
	b := RawBuilding{
		Residential: "N", Commercial: "N", MarketHawker: "N",
		Miscellaneous: "N", MultistoreyCarpark: "N", PrecinctPavilion: "N",
	}
	if got := CategoryTag(b); got != "" {
		t.Errorf("expected untagged, got %q", got)
	}
}

func TestCategoryTagPrecinctPavilionMapsToMiscellaneous(t *testing.T) {
	b := RawBuilding{PrecinctPavilion: "Y"}
	if got := CategoryTag(b); got != "Miscellaneous" {
		t.Errorf("expected Miscellaneous, got %q", got)
	}
}

func TestCategoryTagCarpark(t *testing.T) {
	b := RawBuilding{MultistoreyCarpark: "Y"}
	if got := CategoryTag(b); got != "Multi-storey carpark" {
		t.Errorf("expected Multi-storey carpark, got %q", got)
	}
}

func TestTownNameCoversAllCodes(t *testing.T) {
	if len(townLegend) != 27 {
		t.Fatalf("expected 27 town codes, got %d", len(townLegend))
	}
	for code := range townLegend {
		if _, err := TownName(code); err != nil {
			t.Errorf("TownName(%q): %v", code, err)
		}
	}
	if name, _ := TownName("CT"); name != "CENTRAL AREA" {
		t.Errorf("expected CT -> CENTRAL AREA, got %q", name)
	}
}

func TestTownNameFailsClosed(t *testing.T) {
	_, err := TownName("XYZ")
	if !errors.Is(err, ErrUnknownTownCode) {
		t.Errorf("expected ErrUnknownTownCode, got %v", err)
	}
}

func TestDecodeAggPricesNormalization(t *testing.T) {
	table := parseTable(t,
		"quarter,town,flat_type,price\n2023-Q2,Central,4-room,620000\n2023-Q2,BEDOK,5 ROOM,\n")

	prices := DecodeAggPrices(table, "2023-Q2")
	if len(prices) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(prices))
	}

	if prices[0].Town != "CENTRAL AREA" {
		t.Errorf("expected CENTRAL -> CENTRAL AREA, got %q", prices[0].Town)
	}
	if prices[0].FlatType != "4 ROOM" {
		t.Errorf("expected hyphen replaced and upper-cased, got %q", prices[0].FlatType)
	}
	if prices[1].Price != "-" {
		t.Errorf("expected missing price as '-', got %q", prices[1].Price)
	}

	if v, ok := prices[0].PriceValue(); !ok || v != 620000 {
		t.Errorf("expected numeric price 620000, got %v %v", v, ok)
	}
	if _, ok := prices[1].PriceValue(); ok {
		t.Error("expected '-' price to report not-numeric")
	}
}

func TestDecodeAggPricesFallbackQuarter(t *testing.T) {
	table := parseTable(t, "town,flat_type,price\nBEDOK,4 ROOM,500000\n")
	prices := DecodeAggPrices(table, "2024-Q1")
	if prices[0].Quarter != "2024-Q1" {
		t.Errorf("expected fallback quarter label, got %q", prices[0].Quarter)
	}
}

// stubGeocoder returns canned results per address.
type stubGeocoder struct {
	results map[string]*geocode.Result
	errs    map[string]error
}

func (s *stubGeocoder) Lookup(ctx context.Context, address string) (*geocode.Result, error) {
	if err, ok := s.errs[address]; ok {
		return nil, err
	}
	if r, ok := s.results[address]; ok {
		return r, nil
	}
	return nil, geocode.ErrNoMatch
}

func TestEnrichBuildings(t *testing.T) {
	geo := &stubGeocoder{
		results: map[string]*geocode.Result{
			"216 ANG MO KIO AVE 1": {Address: "216 ANG MO KIO AVENUE 1 SINGAPORE 560216", Lat: 1.36966, Lon: 103.84321, Matches: 1},
		},
	}
	enricher := NewBuildingEnricher(geo, zap.NewNop())

	raws := []RawBuilding{
		{BlockNo: "216", Street: "ANG MO KIO AVE 1", TownCode: "AMK", YearCompleted: 1977, TotalUnits: 142, MaxFloorLvl: 12, Residential: "Y"},
		{BlockNo: "1", Street: "NOWHERE ST", TownCode: "BD"},  // geocode miss
		{BlockNo: "5", Street: "SOMEWHERE RD", TownCode: "XYZ"}, // unknown town code
	}

	got, dropped := enricher.Enrich(context.Background(), raws)
	if len(got) != 1 {
		t.Fatalf("expected 1 enriched building, got %d", len(got))
	}
	if dropped != 2 {
		t.Errorf("expected 2 dropped rows, got %d", dropped)
	}

	b := got[0]
	if b.Town != "ANG MO KIO" {
		t.Errorf("expected town ANG MO KIO, got %q", b.Town)
	}
	if b.Tag != "Residential" {
		t.Errorf("expected tag Residential, got %q", b.Tag)
	}
	if b.Address != "216 ANG MO KIO AVENUE 1 SINGAPORE 560216" {
		t.Errorf("unexpected address %q", b.Address)
	}
	if b.Lat == 0 || b.Lon == 0 {
		t.Error("expected coordinates to be set")
	}
}
